package relay

import (
	"sync"
	"sync/atomic"
)

// sweepResult summarizes one heartbeat pass.
type sweepResult struct {
	Probed     int
	Terminated int
	Skipped    int
	PingErrors int
}

// sweep runs one heartbeat pass. A connection that has not answered the
// previous probe is signalled for termination; every other connection is
// marked not alive and pinged. The sweep never removes entries and never
// tears a connection down itself.
//
// Decisions are made under the registry and entry locks; pings are sent
// after both are released, one goroutine per connection, so a peer whose
// write blocks holds up neither the registry nor the other pings.
func (r *registry) sweep() sweepResult {
	var res sweepResult
	var probes []Socket

	r.mu.RLock()
	for h, st := range r.conns {
		st.mu.Lock()
		switch {
		case st.closing:
			res.Skipped++
		case !st.alive:
			st.signalTerminate()
			res.Terminated++
		default:
			st.alive = false
			probes = append(probes, h.socket)
		}
		st.mu.Unlock()
	}
	r.mu.RUnlock()

	res.Probed = len(probes)
	var (
		wg     sync.WaitGroup
		failed atomic.Int32
	)
	for _, sock := range probes {
		wg.Add(1)
		go func(sock Socket) {
			defer wg.Done()
			if err := sock.Ping(); err != nil {
				failed.Add(1)
			}
		}(sock)
	}
	wg.Wait()
	res.PingErrors = int(failed.Load())
	return res
}
