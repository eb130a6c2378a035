package chat

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for one chat server.
// Every Record method is safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	activeSessions     prometheus.Gauge
	pendingConnections prometheus.Gauge
	rejectedConns      *prometheus.CounterVec

	// Identity metrics
	authAttempts  *prometheus.CounterVec
	registrations *prometheus.CounterVec
	renames       *prometheus.CounterVec

	// Message metrics
	messages        *prometheus.CounterVec
	broadcastFanout prometheus.Histogram
}

// NewMetrics creates the metrics on a private registry, together with the Go runtime and
// process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatty_active_sessions",
				Help: "Current number of authenticated sessions",
			},
		),
		pendingConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatty_pending_connections",
				Help: "Current number of connections that have not authenticated yet",
			},
		),
		rejectedConns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatty_rejected_connections_total",
				Help: "Connections refused before a session was created",
			},
			[]string{"reason"}, // "rate_limit" or "shutdown"
		),
		authAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatty_auth_attempts_total",
				Help: "Authentication attempts by result",
			},
			[]string{"result"}, // "ok", "bad_credentials", "already_connected", "timeout"
		),
		registrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatty_registrations_total",
				Help: "Registration attempts by result",
			},
			[]string{"result"},
		),
		renames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatty_renames_total",
				Help: "Nickname changes by result",
			},
			[]string{"result"},
		),
		messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatty_messages_total",
				Help: "Chat messages routed by kind",
			},
			[]string{"kind"}, // "broadcast", "private", "undelivered"
		),
		broadcastFanout: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatty_broadcast_fanout",
				Help:    "Number of sessions that received each broadcast",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),
	}
}

// Handler returns the exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetActiveSessions updates the authenticated session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// SetPendingConnections updates the unauthenticated connection gauge.
func (m *Metrics) SetPendingConnections(n int) {
	if m == nil {
		return
	}
	m.pendingConnections.Set(float64(n))
}

// RecordRejected counts a connection refused for reason.
func (m *Metrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.rejectedConns.WithLabelValues(reason).Inc()
}

// RecordAuth counts an authentication outcome.
func (m *Metrics) RecordAuth(result string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(result).Inc()
}

// RecordRegistration counts a registration outcome.
func (m *Metrics) RecordRegistration(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}

// RecordRename counts a rename outcome.
func (m *Metrics) RecordRename(result string) {
	if m == nil {
		return
	}
	m.renames.WithLabelValues(result).Inc()
}

// RecordMessage counts one routed message of kind.
func (m *Metrics) RecordMessage(kind string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind).Inc()
}

// RecordFanout observes how many sessions a broadcast reached.
func (m *Metrics) RecordFanout(n int) {
	if m == nil {
		return
	}
	m.broadcastFanout.Observe(float64(n))
}
