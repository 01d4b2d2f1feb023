// Package metrics exposes Prometheus collectors for routing, readiness and bootstrap.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes a command can take.
const (
	RouteLocal       = "local"
	RoutePlatform    = "platform"
	RouteFlutter     = "flutter"
	RoutePassthrough = "passthrough"
)

// Metrics owns a private registry so tests and multiple servers never collide.
type Metrics struct {
	registry *prometheus.Registry

	commands       *prometheus.CounterVec
	probes         *prometheus.CounterVec
	bootstrap      *prometheus.HistogramVec
	sessionsActive prometheus.Gauge
}

// New creates and registers the driver collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flutter_driver_commands_total",
			Help: "Commands handled, by route and command name",
		},
		[]string{"route", "command"},
	)
	m.probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flutter_driver_readiness_probes_total",
			Help: "Flutter server readiness probes, by result",
		},
		[]string{"result"},
	)
	m.bootstrap = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flutter_driver_session_bootstrap_seconds",
			Help:    "Time from session request to Flutter handshake",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"platform", "outcome"},
	)
	m.sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flutter_driver_sessions_active",
		Help: "Sessions currently open",
	})

	m.registry.MustRegister(m.commands, m.probes, m.bootstrap, m.sessionsActive)
	return m
}

// Command counts one dispatched command.
func (m *Metrics) Command(route, command string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(route, command).Inc()
}

// Probe counts one readiness probe.
func (m *Metrics) Probe(ready bool) {
	if m == nil {
		return
	}
	result := "not_ready"
	if ready {
		result = "ready"
	}
	m.probes.WithLabelValues(result).Inc()
}

// Bootstrap records a finished session bootstrap.
func (m *Metrics) Bootstrap(platform string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.bootstrap.WithLabelValues(platform, outcome).Observe(d.Seconds())
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessionsActive.Inc()
	}
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m != nil {
		m.sessionsActive.Dec()
	}
}

// Registry exposes the registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
