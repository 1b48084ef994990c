// Package metrics provides metrics recording for governor operations.
package metrics

import "time"

// Recorder defines the interface for recording retry-governor metrics.
type Recorder interface {
	// ObserveAttempt records one invocation of the wrapped operation.
	ObserveAttempt(instanceID string, attempt int, success bool, errorType string, duration time.Duration)

	// IncRateLimited increments the rate-limited failure counter.
	IncRateLimited(instanceID string)

	// IncCircuitOpen increments the counter of calls short-circuited by the breaker.
	IncCircuitOpen(instanceID string)

	// ObserveBackoff records a backoff suspend duration.
	ObserveBackoff(instanceID string, delay time.Duration)

	// SetCircuitState records the current breaker state (open or closed).
	SetCircuitState(instanceID string, open bool)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

var _ Recorder = (*NoopRecorder)(nil)

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) ObserveAttempt(_ string, _ int, _ bool, _ string, _ time.Duration) {}

func (n *NoopRecorder) IncRateLimited(_ string) {}

func (n *NoopRecorder) IncCircuitOpen(_ string) {}

func (n *NoopRecorder) ObserveBackoff(_ string, _ time.Duration) {}

func (n *NoopRecorder) SetCircuitState(_ string, _ bool) {}
