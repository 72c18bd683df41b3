package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/DeBrosOfficial/stream-relay/pkg/errors"
	"github.com/gorilla/websocket"
)

// Socket is the client side of one relay connection. Send and Ping may be
// called concurrently; Close is idempotent. Writes after Close fail with
// errors.ErrClosed.
type Socket interface {
	Send(data []byte) error
	Ping() error
	Close(code int, reason string) error
	RemoteAddr() string
}

// wsSocket wraps a gorilla websocket connection
type wsSocket struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu        sync.Mutex // serializes data frames
	closeOnce sync.Once
	closed    atomic.Bool
}

func newWSSocket(conn *websocket.Conn, writeTimeout time.Duration) *wsSocket {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &wsSocket{conn: conn, writeTimeout: writeTimeout}
}

// Send writes data as a single text frame.
func (s *wsSocket) Send(data []byte) error {
	if s.closed.Load() {
		return errors.ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a ping control frame. Control frames may be written
// concurrently with Send.
func (s *wsSocket) Ping() error {
	if s.closed.Load() {
		return errors.ErrClosed
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout))
}

// Close sends a close frame with code and reason, then closes the
// underlying connection. Only the first call has any effect.
func (s *wsSocket) Close(code int, reason string) error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeTimeout))
		err = s.conn.Close()
	})
	return err
}

func (s *wsSocket) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}
