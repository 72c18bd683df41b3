package bus

import (
	"context"
	"errors"
)

// Message is one message delivered by a subscription. Timestamp is passed
// through in the bus's own units (nanoseconds since the epoch for stan).
type Message struct {
	Sequence  uint64
	Timestamp int64
	Data      []byte
}

// MessageHandler receives messages for one subscription. Calls for a single
// subscription never overlap and arrive in ascending sequence order.
type MessageHandler func(msg Message)

// LostHandler is called at most once when an established bus connection
// fails without being closed by its owner.
type LostHandler func(err error)

// Connector opens bus connections. Each connection is a distinct subscriber
// identity on the bus, so clientID must be unique per relay connection.
type Connector interface {
	// Connect blocks until the bus confirms the connection or ctx is done.
	// If ctx ends first, a connection that completes later is closed.
	Connect(ctx context.Context, clientID string, onLost LostHandler) (Conn, error)
	// Name identifies the backend in logs and status output.
	Name() string
}

// Conn is an established bus connection.
type Conn interface {
	// Subscribe delivers every message of channel with sequence >= startSeq.
	Subscribe(channel string, startSeq uint64, handler MessageHandler) (Subscription, error)
	// Close releases the connection and every subscription opened on it.
	Close() error
}

// Subscription is a live cursor into a channel.
type Subscription interface {
	Close() error
}

// Publisher is implemented by backends that accept messages from the relay
// itself. Only the in-process backend does.
type Publisher interface {
	Publish(channel string, data []byte) (uint64, error)
}

var (
	// ErrBusClosed is returned by operations on a closed bus or connection.
	ErrBusClosed = errors.New("bus closed")

	// ErrDuplicateClient is returned when a client id is already connected.
	ErrDuplicateClient = errors.New("client id already connected")
)
