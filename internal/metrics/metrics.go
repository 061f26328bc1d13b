package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the client's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	gatewayRequests *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	recordings      *prometheus.CounterVec
	messages        *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicechat",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Backend requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voicechat",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Backend request latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		recordings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicechat",
			Subsystem: "recorder",
			Name:      "sessions_total",
			Help:      "Finished recording sessions by outcome.",
		}, []string{"outcome"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicechat",
			Subsystem: "transcript",
			Name:      "messages_total",
			Help:      "Messages appended to the transcript by sender.",
		}, []string{"sender"}),
	}

	m.registry.MustRegister(m.gatewayRequests, m.gatewayLatency, m.recordings, m.messages)
	return m
}

// ObserveGateway records one backend call. A nil receiver is a no-op so
// components can run without metrics.
func (m *Metrics) ObserveGateway(endpoint, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(endpoint, outcome).Inc()
	m.gatewayLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveRecording counts a finished recording session.
func (m *Metrics) ObserveRecording(outcome string) {
	if m == nil {
		return
	}
	m.recordings.WithLabelValues(outcome).Inc()
}

// ObserveMessage counts an appended transcript message.
func (m *Metrics) ObserveMessage(sender string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(sender).Inc()
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
