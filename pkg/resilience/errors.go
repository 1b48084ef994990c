package resilience

import (
	"errors"
	"fmt"
	"time"

	"governor/pkg/resilience/circuit"
)

// ExhaustedError is returned when every attempt saw a rate-limit classified
// failure. It wraps the last such failure and the retry-after hint it carried,
// if any.
type ExhaustedError struct {
	Err        error
	Attempts   int
	RetryAfter time.Duration
}

func (e *ExhaustedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited after %d attempts (server hinted retry in %s): %v",
			e.Attempts, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the last rate-limit failure.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// IsCircuitOpen reports whether err is a breaker fast-fail.
func IsCircuitOpen(err error) bool {
	var oerr *circuit.OpenError
	return errors.As(err, &oerr)
}

// IsExhausted reports whether err signals consumed retries.
func IsExhausted(err error) bool {
	var xerr *ExhaustedError
	return errors.As(err, &xerr)
}
