package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DeBrosOfficial/stream-relay/pkg/bus"
	"github.com/DeBrosOfficial/stream-relay/pkg/config"
	"github.com/DeBrosOfficial/stream-relay/pkg/errors"
)

type closeCall struct {
	code   int
	reason string
}

// fakeSocket records everything the handler does to the client.
type fakeSocket struct {
	mu      sync.Mutex
	sent    [][]byte
	pings   int
	closes  []closeCall
	sendErr error
	pingErr error

	frames chan []byte
	closed chan struct{}
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		frames: make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (s *fakeSocket) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.closes) > 0 {
		return errors.ErrClosed
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, data)
	s.frames <- data
	return nil
}

func (s *fakeSocket) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings++
	return s.pingErr
}

func (s *fakeSocket) Close(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes = append(s.closes, closeCall{code, reason})
	if len(s.closes) == 1 {
		close(s.closed)
	}
	return nil
}

func (s *fakeSocket) RemoteAddr() string { return "198.51.100.7:50000" }

func (s *fakeSocket) closeCalls() []closeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]closeCall(nil), s.closes...)
}

func (s *fakeSocket) pingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings
}

func (s *fakeSocket) waitClosed(t *testing.T) closeCall {
	t.Helper()
	select {
	case <-s.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("socket was not closed")
	}
	return s.closeCalls()[0]
}

func (s *fakeSocket) nextFrame(t *testing.T) []byte {
	t.Helper()
	select {
	case f := <-s.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

// fakeConnector hands out fakeConns through a configurable connect func.
type fakeConnector struct {
	calls   atomic.Int32
	connect func(ctx context.Context, clientID string, onLost bus.LostHandler) (bus.Conn, error)

	mu        sync.Mutex
	clientIDs []string
}

func (c *fakeConnector) Name() string { return "fake" }

func (c *fakeConnector) Connect(ctx context.Context, clientID string, onLost bus.LostHandler) (bus.Conn, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.clientIDs = append(c.clientIDs, clientID)
	c.mu.Unlock()
	if c.connect == nil {
		return &fakeConn{}, nil
	}
	return c.connect(ctx, clientID, onLost)
}

// fakeConn delivers whatever the test pushes through deliver.
type fakeConn struct {
	closes       atomic.Int32
	subscribeErr error

	mu      sync.Mutex
	handler bus.MessageHandler
	start   uint64
	sub     *fakeSub
}

func (c *fakeConn) Subscribe(_ string, startSeq uint64, handler bus.MessageHandler) (bus.Subscription, error) {
	if c.subscribeErr != nil {
		return nil, c.subscribeErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
	c.start = startSeq
	c.sub = &fakeSub{}
	return c.sub, nil
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	return nil
}

func (c *fakeConn) deliver(msg bus.Message) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	h(msg)
}

func (c *fakeConn) subscription() *fakeSub {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub
}

type fakeSub struct {
	closes atomic.Int32
}

func (s *fakeSub) Close() error {
	s.closes.Add(1)
	return nil
}

var errRefused = errors.New("connection refused")

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Bus.Backend = config.BackendMemory
	cfg.Server.PingInterval = time.Hour
	cfg.Server.WriteTimeout = time.Second
	return cfg
}

// stallingSocket blocks in Ping until release is closed, as a gorilla
// connection does while a write to a slow peer holds its write lock.
type stallingSocket struct {
	*fakeSocket
	pinging chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStallingSocket() *stallingSocket {
	return &stallingSocket{
		fakeSocket: newFakeSocket(),
		pinging:    make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (s *stallingSocket) Ping() error {
	s.once.Do(func() { close(s.pinging) })
	<-s.release
	return s.fakeSocket.Ping()
}
