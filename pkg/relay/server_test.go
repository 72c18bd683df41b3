package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DeBrosOfficial/stream-relay/pkg/bus"
	"github.com/DeBrosOfficial/stream-relay/pkg/config"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) (*Server, *bus.MemoryBus, *httptest.Server) {
	t.Helper()
	mem := bus.NewMemoryBus()
	s := NewServer(cfg, mem, nil, opts...)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(func() {
		s.CloseAll(CloseGoingAway, ReasonGoingAway)
		ts.Close()
	})
	return s, mem, ts
}

func dial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) RelayedMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	mt, data, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)

	var msg RelayedMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func readClose(t *testing.T, ws *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := ws.ReadMessage()
		if err == nil {
			continue
		}
		ce, ok := err.(*websocket.CloseError)
		require.True(t, ok, "expected close frame, got %v", err)
		return ce
	}
}

func TestServer_RelaysFromRequestedSequence(t *testing.T) {
	cfg := testConfig()
	_, mem, ts := newTestServer(t, cfg)
	for i := 1; i <= 102; i++ {
		_, err := mem.Publish(cfg.Bus.Channel, []byte(fmt.Sprintf(`{"id":"ev%d","mag":%d.0}`, i, i%7)))
		require.NoError(t, err)
	}

	ws := dial(t, ts, "/subscribe/100")
	for want := uint64(100); want <= 102; want++ {
		msg := readFrame(t, ws)
		assert.Equal(t, want, msg.Sequence)
		assert.NotZero(t, msg.Timestamp)
		assert.Equal(t, fmt.Sprintf("ev%d", want), msg.Data.(map[string]any)["id"])
	}
}

func TestServer_InvalidSequenceCloses4000(t *testing.T) {
	_, mem, ts := newTestServer(t, testConfig())

	ws := dial(t, ts, "/subscribe/abc")
	ce := readClose(t, ws)
	assert.Equal(t, CloseSequenceInvalid, ce.Code)
	assert.Equal(t, ReasonSequenceInvalid, ce.Text)
	assert.Zero(t, mem.Clients())
}

func TestServer_QueryStringIgnored(t *testing.T) {
	cfg := testConfig()
	_, mem, ts := newTestServer(t, cfg)
	_, err := mem.Publish(cfg.Bus.Channel, []byte(`1`))
	require.NoError(t, err)

	ws := dial(t, ts, "/subscribe/1?client=web")
	assert.Equal(t, uint64(1), readFrame(t, ws).Sequence)
}

func TestServer_ConcurrentClientsIndependentlyPositioned(t *testing.T) {
	cfg := testConfig()
	s, mem, ts := newTestServer(t, cfg)
	for i := 1; i <= 10; i++ {
		_, _ = mem.Publish(cfg.Bus.Channel, []byte(fmt.Sprintf(`%d`, i)))
	}

	a := dial(t, ts, "/subscribe/3")
	b := dial(t, ts, "/subscribe/8")
	assert.Equal(t, uint64(3), readFrame(t, a).Sequence)
	assert.Equal(t, uint64(8), readFrame(t, b).Sequence)
	require.Eventually(t, func() bool { return mem.Clients() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, s.Connections())
}

func TestServer_ClientCloseReleasesBus(t *testing.T) {
	cfg := testConfig()
	s, mem, ts := newTestServer(t, cfg)

	ws := dial(t, ts, "/subscribe/1")
	require.Eventually(t, func() bool { return mem.Clients() == 1 }, time.Second, 5*time.Millisecond)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	require.Eventually(t, func() bool { return mem.Clients() == 0 && s.Connections() == 0 },
		2*time.Second, 5*time.Millisecond)
}

func TestServer_HeartbeatTerminatesSilentClient(t *testing.T) {
	metrics := NewMetrics()
	s, mem, ts := newTestServer(t, testConfig(), WithMetrics(metrics))

	ws := dial(t, ts, "/subscribe/1")
	ws.SetPingHandler(func(string) error { return nil })
	require.Eventually(t, func() bool { return s.Connections() == 1 && mem.Clients() == 1 },
		time.Second, 5*time.Millisecond)

	s.Sweep()
	s.Sweep()

	ce := readClose(t, ws)
	assert.Equal(t, CloseStaleConnection, ce.Code)
	assert.Equal(t, ReasonStaleConnection, ce.Text)
	require.Eventually(t, func() bool { return s.Connections() == 0 && mem.Clients() == 0 },
		time.Second, 5*time.Millisecond, "termination releases the bus subscription")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.HeartbeatTerminations))
}

func TestServer_HeartbeatKeepsResponsiveClient(t *testing.T) {
	s, _, ts := newTestServer(t, testConfig())

	ws := dial(t, ts, "/subscribe/1")
	go func() {
		// The default ping handler answers with a pong while reading.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()
	require.Eventually(t, func() bool { return s.Connections() == 1 }, time.Second, 5*time.Millisecond)
	st, ok := s.registry.get(s.registry.handlers()[0])
	require.True(t, ok)

	for i := 0; i < 3; i++ {
		s.Sweep()
		require.Eventually(t, st.isAlive, 2*time.Second, 5*time.Millisecond, "pong %d not recorded", i)
	}
	assert.False(t, terminated(st))
	assert.Equal(t, 1, s.Connections())
}

func TestServer_HealthAndStatus(t *testing.T) {
	_, _, ts := newTestServer(t, testConfig(), WithVersion("stream-relay", "1.2.3"))

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "1.2.3", health.Version)

	resp2, err := http.Get(ts.URL + "/v1/status")
	require.NoError(t, err)
	defer resp2.Body.Close()

	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&status))
	assert.Equal(t, "memory", status.Backend)
	assert.Equal(t, "anss.pdl.realtime", status.Channel)
	assert.Equal(t, "/subscribe/", status.SubscribePath)
}

func TestServer_PlainHTTPOnSubscribePath(t *testing.T) {
	_, _, ts := newTestServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/subscribe/1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	metrics := NewMetrics()
	cfg := testConfig()
	_, mem, ts := newTestServer(t, cfg, WithMetrics(metrics))
	_, _ = mem.Publish(cfg.Bus.Channel, []byte(`{}`))

	ws := dial(t, ts, "/subscribe/1")
	readFrame(t, ws)
	require.Eventually(t, func() bool { return testutil.ToFloat64(metrics.Forwarded) == 1 },
		time.Second, 5*time.Millisecond)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)

	assert.Contains(t, buf.String(), "stream_relay_messages_forwarded_total 1")
	assert.Contains(t, buf.String(), `stream_relay_connections_total{outcome="accepted"} 1`)
	assert.Contains(t, buf.String(), "stream_relay_active_connections 1")
}

func TestServer_Publish(t *testing.T) {
	cfg := testConfig()
	cfg.Server.PublishEnabled = true
	_, _, ts := newTestServer(t, cfg)

	resp, err := http.Post(ts.URL+"/v1/publish", "application/json", strings.NewReader(`{"mag":5.10}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var pub PublishResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pub))
	assert.Equal(t, uint64(1), pub.Sequence)

	ws := dial(t, ts, "/subscribe/1")
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"data":{"mag":5.10}`)

	bad, err := http.Post(ts.URL+"/v1/publish", "application/json", strings.NewReader(`{nope`))
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestServer_PublishRouteDisabledByDefault(t *testing.T) {
	_, _, ts := newTestServer(t, testConfig())

	resp, err := http.Post(ts.URL+"/v1/publish", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_ShutdownClosesWith1001(t *testing.T) {
	cfg := testConfig()
	mem := bus.NewMemoryBus()
	s := NewServer(cfg, mem, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, ln) }()
	<-s.Ready()

	url := fmt.Sprintf("ws://%s/subscribe/1", s.Addr())
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return mem.Clients() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	ce := readClose(t, ws)
	assert.Equal(t, CloseGoingAway, ce.Code)
	assert.Equal(t, ReasonGoingAway, ce.Text)

	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Zero(t, mem.Clients())
}

func TestServer_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig()
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port
	s := NewServer(cfg, bus.NewMemoryBus(), nil)

	err = s.ListenAndServe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind")
}
