package bus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	stan "github.com/nats-io/stan.go"
	"github.com/nats-io/stan.go/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStanSub struct {
	stan.Subscription
	closed atomic.Bool
}

func (s *fakeStanSub) Close() error { s.closed.Store(true); return nil }

type fakeStanConn struct {
	stan.Conn
	closed  atomic.Bool
	subject string
	cb      stan.MsgHandler
	sub     *fakeStanSub
}

func (c *fakeStanConn) Subscribe(subject string, cb stan.MsgHandler, _ ...stan.SubscriptionOption) (stan.Subscription, error) {
	c.subject = subject
	c.cb = cb
	c.sub = &fakeStanSub{}
	return c.sub, nil
}

func (c *fakeStanConn) Close() error { c.closed.Store(true); return nil }

func TestStanConnector_ConnectAndSubscribe(t *testing.T) {
	fake := &fakeStanConn{}
	c := NewStanConnector("usgs", "nats://127.0.0.1:4222", time.Second, nil)

	var gotCluster, gotClient string
	c.dial = func(clusterID, clientID string, _ ...stan.Option) (stan.Conn, error) {
		gotCluster, gotClient = clusterID, clientID
		return fake, nil
	}

	conn, err := c.Connect(context.Background(), "client-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "usgs", gotCluster)
	assert.Equal(t, "client-1", gotClient)

	var got Message
	sub, err := conn.Subscribe("anss.pdl.realtime", 100, func(m Message) { got = m })
	require.NoError(t, err)
	assert.Equal(t, "anss.pdl.realtime", fake.subject)

	fake.cb(&stan.Msg{MsgProto: pb.MsgProto{Sequence: 100, Timestamp: 1700000000123456789, Data: []byte(`{"a":1}`)}})
	assert.Equal(t, Message{Sequence: 100, Timestamp: 1700000000123456789, Data: []byte(`{"a":1}`)}, got)

	require.NoError(t, sub.Close())
	assert.True(t, fake.sub.closed.Load())
	require.NoError(t, conn.Close())
	assert.True(t, fake.closed.Load())
}

func TestStanConnector_ConnectFailure(t *testing.T) {
	c := NewStanConnector("usgs", "nats://127.0.0.1:4222", time.Second, nil)
	c.dial = func(string, string, ...stan.Option) (stan.Conn, error) {
		return nil, stan.ErrConnectReqTimeout
	}
	_, err := c.Connect(context.Background(), "client-1", nil)
	assert.True(t, errors.Is(err, stan.ErrConnectReqTimeout))
}

func TestStanConnector_CancelClosesLateConnection(t *testing.T) {
	fake := &fakeStanConn{}
	entered := make(chan struct{})
	release := make(chan struct{})
	c := NewStanConnector("usgs", "nats://127.0.0.1:4222", time.Second, nil)
	c.dial = func(string, string, ...stan.Option) (stan.Conn, error) {
		close(entered)
		<-release
		return fake, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Connect(ctx, "client-1", nil)
		errCh <- err
	}()

	// Cancel only once the dial is in flight.
	<-entered
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	assert.False(t, fake.closed.Load(), "nothing to close before the dial returns")

	close(release)
	require.Eventually(t, fake.closed.Load, time.Second, 5*time.Millisecond)
}
