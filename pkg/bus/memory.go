package bus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBus is an in-process, sequence-addressable bus. Every channel keeps
// its full log, so subscribers can start at any sequence. Sequences start at
// 1, as on a streaming server.
type MemoryBus struct {
	mu       sync.RWMutex
	channels map[string]*memChannel
	clients  map[string]*memConn
	closed   bool
	now      func() time.Time
}

type memChannel struct {
	mu     sync.Mutex
	log    []Message
	notify chan struct{} // closed and replaced on every append
}

// NewMemoryBus creates an empty in-process bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		channels: make(map[string]*memChannel),
		clients:  make(map[string]*memConn),
		now:      time.Now,
	}
}

// Name implements Connector.
func (b *MemoryBus) Name() string { return "memory" }

// getOrCreateChannel returns an existing channel or creates it
func (b *MemoryBus) getOrCreateChannel(name string) *memChannel {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.channels[name]; ok {
		return ch
	}
	ch := &memChannel{notify: make(chan struct{})}
	b.channels[name] = ch
	return ch
}

// Publish appends data to channel and returns its sequence.
func (b *MemoryBus) Publish(channel string, data []byte) (uint64, error) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return 0, ErrBusClosed
	}

	ch := b.getOrCreateChannel(channel)
	payload := append([]byte(nil), data...)

	ch.mu.Lock()
	defer ch.mu.Unlock()
	seq := uint64(len(ch.log)) + 1
	ch.log = append(ch.log, Message{Sequence: seq, Timestamp: b.now().UnixNano(), Data: payload})
	close(ch.notify)
	ch.notify = make(chan struct{})
	return seq, nil
}

// LastSequence returns the newest sequence on channel, 0 when empty.
func (b *MemoryBus) LastSequence(channel string) uint64 {
	b.mu.RLock()
	ch, ok := b.channels[channel]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return uint64(len(ch.log))
}

// Clients returns the number of connected client ids.
func (b *MemoryBus) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// since returns a copy of the log from seq onwards and the channel to wait
// on for the next append.
func (ch *memChannel) since(seq uint64) ([]Message, <-chan struct{}) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if seq == 0 {
		seq = 1
	}
	if seq > uint64(len(ch.log)) {
		return nil, ch.notify
	}
	out := make([]Message, len(ch.log)-int(seq-1))
	copy(out, ch.log[seq-1:])
	return out, ch.notify
}

// Connect implements Connector. Client ids are exclusive, as on a streaming
// server.
func (b *MemoryBus) Connect(ctx context.Context, clientID string, onLost LostHandler) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if _, exists := b.clients[clientID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateClient, clientID)
	}
	c := &memConn{
		bus:      b,
		clientID: clientID,
		onLost:   onLost,
		subs:     make(map[*memSub]struct{}),
	}
	b.clients[clientID] = c
	return c, nil
}

// Close drops every connection, reporting ErrBusClosed to their lost
// handlers.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	conns := make([]*memConn, 0, len(b.clients))
	for _, c := range b.clients {
		conns = append(conns, c)
	}
	b.clients = make(map[string]*memConn)
	b.mu.Unlock()

	for _, c := range conns {
		if c.shutdown() && c.onLost != nil {
			c.onLost(ErrBusClosed)
		}
	}
	return nil
}

type memConn struct {
	bus      *MemoryBus
	clientID string
	onLost   LostHandler

	mu     sync.Mutex
	subs   map[*memSub]struct{}
	closed bool
}

type memSub struct {
	conn   *memConn
	cancel context.CancelFunc
	done   chan struct{}
}

// Subscribe implements Conn.
func (c *memConn) Subscribe(channel string, startSeq uint64, handler MessageHandler) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrBusClosed
	}

	ch := c.bus.getOrCreateChannel(channel)
	ctx, cancel := context.WithCancel(context.Background())
	sub := &memSub{conn: c, cancel: cancel, done: make(chan struct{})}
	c.subs[sub] = struct{}{}

	go func() {
		defer close(sub.done)
		next := startSeq
		for {
			msgs, wait := ch.since(next)
			for _, m := range msgs {
				if ctx.Err() != nil {
					return
				}
				handler(m)
				next = m.Sequence + 1
			}
			if len(msgs) > 0 {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-wait:
			}
		}
	}()

	return sub, nil
}

// Close stops delivery. It does not wait for an in-flight handler call, so
// it is safe to call from inside the handler.
func (s *memSub) Close() error {
	s.cancel()
	s.conn.mu.Lock()
	delete(s.conn.subs, s)
	s.conn.mu.Unlock()
	return nil
}

// shutdown closes every subscription; it reports false if already closed.
func (c *memConn) shutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	for s := range c.subs {
		s.cancel()
	}
	c.subs = nil
	return true
}

// Close implements Conn.
func (c *memConn) Close() error {
	if !c.shutdown() {
		return nil
	}
	c.bus.mu.Lock()
	if c.bus.clients[c.clientID] == c {
		delete(c.bus.clients, c.clientID)
	}
	c.bus.mu.Unlock()
	return nil
}
