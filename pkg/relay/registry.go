package relay

import "sync"

// connState is the registry's liveness record for one connection.
type connState struct {
	handler *ConnHandler

	mu      sync.Mutex
	alive   bool
	closing bool

	terminate     chan struct{}
	terminateOnce sync.Once
}

// markAlive records a pong.
func (c *connState) markAlive() {
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()
}

// isAlive reports the current liveness flag.
func (c *connState) isAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

// signalTerminate asks the connection's watcher to tear it down. It never
// blocks and may be called more than once.
func (c *connState) signalTerminate() {
	c.terminateOnce.Do(func() { close(c.terminate) })
}

// registry tracks every open connection. Entries are inserted on accept and
// removed only by the connection's own teardown.
type registry struct {
	mu    sync.RWMutex
	conns map[*ConnHandler]*connState
}

func newRegistry() *registry {
	return &registry{conns: make(map[*ConnHandler]*connState)}
}

// add registers h as alive and returns its record.
func (r *registry) add(h *ConnHandler) *connState {
	st := &connState{
		handler:   h,
		alive:     true,
		terminate: make(chan struct{}),
	}
	r.mu.Lock()
	r.conns[h] = st
	r.mu.Unlock()
	return st
}

// remove marks h's record closing, then drops it. It reports whether h was
// registered.
func (r *registry) remove(h *ConnHandler) bool {
	r.mu.RLock()
	st, ok := r.conns[h]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	st.mu.Lock()
	st.closing = true
	st.mu.Unlock()

	r.mu.Lock()
	delete(r.conns, h)
	r.mu.Unlock()
	return true
}

// get returns the record for h.
func (r *registry) get(h *ConnHandler) (*connState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.conns[h]
	return st, ok
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// handlers returns a snapshot of the registered handlers.
func (r *registry) handlers() []*ConnHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ConnHandler, 0, len(r.conns))
	for h := range r.conns {
		out = append(out, h)
	}
	return out
}
