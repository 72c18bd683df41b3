package relay

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "stream_relay"

// Metrics holds the relay's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ActiveConnections     prometheus.Gauge
	Connections           *prometheus.CounterVec
	Forwarded             prometheus.Counter
	Dropped               prometheus.Counter
	DecodeErrors          prometheus.Counter
	HeartbeatTerminations prometheus.Counter
	BusFailures           *prometheus.CounterVec
	Closes                *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_connections",
			Help:      "Number of websocket connections currently registered",
		}),
		Connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_total",
			Help:      "Total accepted websocket connections by outcome of sequence parsing",
		}, []string{"outcome"}),
		Forwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "messages",
			Name:      "forwarded_total",
			Help:      "Total bus messages forwarded to clients",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "messages",
			Name:      "dropped_total",
			Help:      "Total bus messages dropped for preceding the requested start sequence",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "messages",
			Name:      "decode_errors_total",
			Help:      "Total bus messages skipped because the payload was not valid JSON",
		}),
		HeartbeatTerminations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "heartbeat",
			Name:      "terminations_total",
			Help:      "Total connections terminated for missing a heartbeat",
		}),
		BusFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "bus",
			Name:      "failures_total",
			Help:      "Total bus failures by operation",
		}, []string{"op"}),
		Closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "closes_total",
			Help:      "Total connection closes by websocket close code",
		}, []string{"code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ActiveConnections,
		m.Connections,
		m.Forwarded,
		m.Dropped,
		m.DecodeErrors,
		m.HeartbeatTerminations,
		m.BusFailures,
		m.Closes,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) connectionAccepted(valid bool) {
	if m == nil {
		return
	}
	outcome := "accepted"
	if !valid {
		outcome = "sequence_invalid"
	}
	m.Connections.WithLabelValues(outcome).Inc()
}

func (m *Metrics) registered()   { m.addActive(1) }
func (m *Metrics) unregistered() { m.addActive(-1) }

func (m *Metrics) addActive(delta float64) {
	if m == nil {
		return
	}
	m.ActiveConnections.Add(delta)
}

func (m *Metrics) forwarded() {
	if m != nil {
		m.Forwarded.Inc()
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) decodeError() {
	if m != nil {
		m.DecodeErrors.Inc()
	}
}

func (m *Metrics) heartbeatTerminated() {
	if m != nil {
		m.HeartbeatTerminations.Inc()
	}
}

func (m *Metrics) busFailure(op string) {
	if m != nil {
		m.BusFailures.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) closed(code int) {
	if m != nil {
		m.Closes.WithLabelValues(strconv.Itoa(code)).Inc()
	}
}
