package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	requests    *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewMetrics registers collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status_code"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_request_errors_total",
			Help: "HTTP requests that ended in a domain error, by error code",
		}, []string{"method", "path", "code"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedback_workflow_transitions_total",
			Help: "Workflow transition attempts by role, target state and outcome",
		}, []string{"role", "target", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.durations, m.errors, m.transitions)
	}
	return m
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.durations.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, path, code).Inc()
}

// RecordTransition counts a workflow transition attempt. outcome is "ok" or
// the error code that stopped it.
func (m *Metrics) RecordTransition(role, target, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(role, target, outcome).Inc()
}

// TransitionCounter exposes the transition collector for assertions.
func (m *Metrics) TransitionCounter() *prometheus.CounterVec {
	return m.transitions
}
