// Package metrics exposes the server's prometheus collectors on a private
// registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "convai_relay"

// Metrics holds all Prometheus metrics for the server.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal *prometheus.CounterVec
	UpstreamDuration  *prometheus.HistogramVec
	UpstreamErrors    *prometheus.CounterVec

	RelaySessionsActive prometheus.Gauge
	AudioFragmentsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	upstreamDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of ElevenLabs requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)

	upstreamErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Failed ElevenLabs requests by operation and error kind",
		},
		[]string{"operation", "kind"},
	)

	relaySessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_sessions_active",
			Help:      "Number of connected browser relay sessions",
		},
	)

	audioFragmentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_fragments_total",
			Help:      "Audio fragments played by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	registry.MustRegister(
		httpRequestsTotal,
		upstreamDuration,
		upstreamErrors,
		relaySessionsActive,
		audioFragmentsTotal,
	)

	return &Metrics{
		registry:            registry,
		HTTPRequestsTotal:   httpRequestsTotal,
		UpstreamDuration:    upstreamDuration,
		UpstreamErrors:      upstreamErrors,
		RelaySessionsActive: relaySessionsActive,
		AudioFragmentsTotal: audioFragmentsTotal,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records a completed request.
func (m *Metrics) RecordHTTPRequest(route string, status int) {
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// RecordUpstream records one upstream call. kind is empty on success.
func (m *Metrics) RecordUpstream(operation string, duration time.Duration, kind string) {
	m.UpstreamDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if kind != "" {
		m.UpstreamErrors.WithLabelValues(operation, kind).Inc()
	}
}

// RecordSessionStart records a browser relay session opening.
func (m *Metrics) RecordSessionStart() {
	m.RelaySessionsActive.Inc()
}

// RecordSessionEnd records a browser relay session closing.
func (m *Metrics) RecordSessionEnd() {
	m.RelaySessionsActive.Dec()
}

// RecordFragment records a played or failed fragment.
func (m *Metrics) RecordFragment(source string, err error) {
	outcome := "played"
	if err != nil {
		outcome = "failed"
	}
	m.AudioFragmentsTotal.WithLabelValues(source, outcome).Inc()
}
