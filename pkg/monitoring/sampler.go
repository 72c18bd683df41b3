package monitoring

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DeBrosOfficial/stream-relay/pkg/logging"
	"github.com/mackerelio/go-osstat/cpu"
	"github.com/mackerelio/go-osstat/memory"
	"go.uber.org/zap"
)

// Stats is the latest host sample.
type Stats struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryUsed    uint64    `json:"memory_used"`
	MemoryTotal   uint64    `json:"memory_total"`
	MemoryPercent float64   `json:"memory_percent"`
	Connections   int       `json:"connections"`
	SampledAt     time.Time `json:"sampled_at"`
}

// Sampler periodically records host CPU and memory usage together with the
// relay's connection count.
type Sampler struct {
	logger      *logging.ColoredLogger
	connections func() int

	readCPU    func() (*cpu.Stats, error)
	readMemory func() (*memory.Stats, error)

	mu      sync.RWMutex
	latest  Stats
	prevCPU *cpu.Stats

	lastConnections int
	firstCheck      bool
}

// NewSampler creates a sampler. connections may be nil.
func NewSampler(logger *logging.ColoredLogger, connections func() int) *Sampler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if connections == nil {
		connections = func() int { return 0 }
	}
	return &Sampler{
		logger:      logger,
		connections: connections,
		readCPU:     cpu.Get,
		readMemory:  memory.Get,
		firstCheck:  true,
	}
}

// Latest returns the most recent sample. SampledAt is zero until the first
// sample has been taken.
func (s *Sampler) Latest() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Run samples every interval until ctx is done.
func (s *Sampler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	s.Sample()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sample()
		}
	}
}

// Sample takes one sample. CPU usage is measured between consecutive
// samples, so the first call reports 0.
func (s *Sampler) Sample() Stats {
	st := Stats{
		Connections: s.connections(),
		SampledAt:   time.Now(),
	}

	if mem, err := s.readMemory(); err != nil {
		s.logger.ComponentDebug(logging.ComponentGeneral, "memory stats unavailable", zap.Error(err))
	} else if mem.Total > 0 {
		st.MemoryUsed = mem.Used
		st.MemoryTotal = mem.Total
		st.MemoryPercent = float64(mem.Used) / float64(mem.Total) * 100
	}

	cur, err := s.readCPU()
	if err != nil {
		s.logger.ComponentDebug(logging.ComponentGeneral, "cpu stats unavailable", zap.Error(err))
	}

	s.mu.Lock()
	if cur != nil {
		if s.prevCPU != nil {
			if pct, err := cpuUsagePercent(s.prevCPU, cur); err == nil {
				st.CPUPercent = pct
			}
		}
		s.prevCPU = cur
	}
	s.latest = st
	s.logConnectionStatus(st.Connections)
	s.mu.Unlock()

	s.logger.ComponentDebug(logging.ComponentGeneral, "relay resource usage",
		zap.Float64("cpu_usage", st.CPUPercent),
		zap.Float64("memory_usage_percent", st.MemoryPercent),
		zap.Int("connections", st.Connections))
	return st
}

// logConnectionStatus logs when the connection count changes. Caller holds
// s.mu.
func (s *Sampler) logConnectionStatus(current int) {
	if !s.firstCheck && current == s.lastConnections {
		return
	}
	switch {
	case current == 0 && !s.firstCheck:
		s.logger.ComponentInfo(logging.ComponentGeneral, "relay has no connected clients")
	case current < s.lastConnections:
		s.logger.ComponentInfo(logging.ComponentGeneral, "relay lost clients",
			zap.Int("current_clients", current),
			zap.Int("previous_clients", s.lastConnections))
	case current > s.lastConnections:
		s.logger.ComponentDebug(logging.ComponentGeneral, "relay gained clients",
			zap.Int("current_clients", current),
			zap.Int("previous_clients", s.lastConnections))
	}
	s.lastConnections = current
	s.firstCheck = false
}

func cpuUsagePercent(before, after *cpu.Stats) (float64, error) {
	idle := float64(after.Idle - before.Idle)
	total := float64(after.Total - before.Total)
	if total <= 0 {
		return 0, errors.New("no cpu time elapsed between samples")
	}
	return (1.0 - idle/total) * 100.0, nil
}
