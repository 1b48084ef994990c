// Prometheus-backed Recorder implementation.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var _ Recorder = (*PrometheusRecorder)(nil)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	attemptsTotal    *prometheus.CounterVec
	attemptDuration  *prometheus.HistogramVec
	rateLimitedTotal *prometheus.CounterVec
	circuitOpenTotal *prometheus.CounterVec
	backoffSeconds   *prometheus.HistogramVec
	circuitState     *prometheus.GaugeVec
}

// NewPrometheusRecorder creates a new Prometheus-based metrics recorder
// registered on the default registry. Create at most one per process.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		attemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_attempts_total",
				Help: "Total operation attempts by instance, attempt index, status, and error type",
			},
			[]string{"instance", "attempt", "status", "error_type"},
		),
		attemptDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "governor_attempt_duration_seconds",
				Help:    "Duration of individual operation attempts in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"instance", "status"},
		),
		rateLimitedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_rate_limited_total",
				Help: "Total rate-limit classified failures",
			},
			[]string{"instance"},
		),
		circuitOpenTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_circuit_open_total",
				Help: "Total calls short-circuited by an open circuit breaker",
			},
			[]string{"instance"},
		),
		backoffSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "governor_backoff_seconds",
				Help:    "Backoff suspend durations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"instance"},
		),
		circuitState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "governor_circuit_state",
				Help: "Current circuit breaker state (0 closed, 1 open)",
			},
			[]string{"instance"},
		),
	}
}

// ObserveAttempt records one invocation of the wrapped operation.
func (p *PrometheusRecorder) ObserveAttempt(instanceID string, attempt int, success bool, errorType string, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.attemptsTotal.WithLabelValues(instanceID, strconv.Itoa(attempt), status, errorType).Inc()
	p.attemptDuration.WithLabelValues(instanceID, status).Observe(duration.Seconds())
}

// IncRateLimited increments the rate-limited failure counter.
func (p *PrometheusRecorder) IncRateLimited(instanceID string) {
	p.rateLimitedTotal.WithLabelValues(instanceID).Inc()
}

// IncCircuitOpen increments the counter of short-circuited calls.
func (p *PrometheusRecorder) IncCircuitOpen(instanceID string) {
	p.circuitOpenTotal.WithLabelValues(instanceID).Inc()
}

// ObserveBackoff records a backoff suspend duration.
func (p *PrometheusRecorder) ObserveBackoff(instanceID string, delay time.Duration) {
	p.backoffSeconds.WithLabelValues(instanceID).Observe(delay.Seconds())
}

// SetCircuitState records the current breaker state.
func (p *PrometheusRecorder) SetCircuitState(instanceID string, open bool) {
	value := 0.0
	if open {
		value = 1.0
	}
	p.circuitState.WithLabelValues(instanceID).Set(value)
}
