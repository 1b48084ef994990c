// Package circuit provides a failure-streak circuit breaker for completion-provider calls.
//
// The breaker has two states. CLOSED lets calls proceed; OPEN short-circuits
// them. Recovery is lazy: there is no background timer, the cooldown check runs
// at the start of every call via Allow, and the first call after the cooldown
// elapses acts as an implicit probe.
package circuit

import (
	"fmt"
	"sync"
	"time"

	"governor/pkg/clock"
)

// State represents the current state of the circuit breaker.
type State int

// Circuit breaker states.
const (
	Closed State = iota // Normal operation
	Open                // Failing, reject requests
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config defines configuration for circuit breaker behavior.
type Config struct {
	FailureThreshold int           // Consecutive rate-limit failures before opening
	Timeout          time.Duration // Cooldown before the next call probes again
}

// DefaultConfig provides reasonable defaults for circuit breaker behavior.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	FailureThreshold: 10,
	Timeout:          300 * time.Second,
}

// OpenError is returned when the circuit is open and a call was short-circuited
// before the operation ran. Remaining reports how much cooldown is left.
type OpenError struct {
	Remaining time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker is OPEN, retry in %s", e.Remaining.Round(time.Millisecond))
}

// Breaker tracks the consecutive rate-limit failure streak for one governor
// instance. All methods are safe for concurrent use; every read-modify-write on
// the streak and open timestamp is serialized by a single mutex.
//
// Invariant: openedAt is non-zero iff the breaker is logically open.
type Breaker struct {
	mu                  sync.Mutex
	config              Config
	clk                 clock.Clock
	consecutiveFailures int
	openedAt            time.Time
}

// New creates a breaker with the given configuration. A nil clk defaults to the
// real clock.
func New(config Config, clk clock.Clock) *Breaker {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Breaker{
		config: config,
		clk:    clk,
	}
}

// Allow runs the lazy recovery check and reports whether a call may proceed.
// When the cooldown has elapsed it closes the circuit and resets the failure
// streak before allowing the call, so the call's own outcome re-drives the
// state machine. When still open it returns the remaining cooldown.
func (b *Breaker) Allow() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openedAt.IsZero() {
		return true, 0
	}

	elapsed := b.clk.Since(b.openedAt)
	if elapsed > b.config.Timeout {
		// OPEN -> CLOSED; the allowed call is the implicit probe.
		b.openedAt = time.Time{}
		b.consecutiveFailures = 0
		return true, 0
	}
	return false, b.config.Timeout - elapsed
}

// RecordSuccess resets the failure streak and closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.openedAt = time.Time{}
}

// RecordFailure counts one rate-limit failure. Crossing the threshold opens the
// circuit; failures recorded while already open keep the original open time.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	if b.consecutiveFailures >= b.config.FailureThreshold && b.openedAt.IsZero() {
		b.openedAt = b.clk.Now()
	}
}

// GetState returns the current circuit breaker state.
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openedAt.IsZero() {
		return Closed
	}
	return Open
}

// ConsecutiveFailures returns the current rate-limit failure streak.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// Reset manually resets the circuit breaker to closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.openedAt = time.Time{}
}

// Stats provides a snapshot of breaker state.
type Stats struct {
	OpenSince           *time.Time `json:"open_since,omitempty"`
	State               State      `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
}

// GetStats returns current statistics.
func (b *Breaker) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{
		State:               Closed,
		ConsecutiveFailures: b.consecutiveFailures,
	}
	if !b.openedAt.IsZero() {
		openSince := b.openedAt
		stats.State = Open
		stats.OpenSince = &openSince
	}
	return stats
}
