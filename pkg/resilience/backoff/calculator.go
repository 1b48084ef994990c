// Package backoff computes deterministic jittered exponential retry delays.
//
// Jitter is drawn from a PRNG reseeded per (containerSeed, attempt), so a given
// instance always reproduces the same schedule while independently seeded
// instances spread out and avoid synchronized retry storms.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// MinDelay is the floor applied to every computed delay. It forbids
// non-positive sleeps regardless of jitter draw or configuration.
const MinDelay = 100 * time.Millisecond

// Calculator produces retry delays for a single governor instance.
// A Calculator is immutable after construction and safe for concurrent use.
type Calculator struct {
	baseDelay    time.Duration
	maxDelay     time.Duration
	jitterFactor float64
	seed         int64
}

// NewCalculator creates a calculator. jitterFactor must be in [0, 1]; values
// outside that range are clamped.
func NewCalculator(baseDelay, maxDelay time.Duration, jitterFactor float64, seed int64) *Calculator {
	if jitterFactor < 0 {
		jitterFactor = 0
	}
	if jitterFactor > 1 {
		jitterFactor = 1
	}
	return &Calculator{
		baseDelay:    baseDelay,
		maxDelay:     maxDelay,
		jitterFactor: jitterFactor,
		seed:         seed,
	}
}

// Delay computes the suspend duration before retrying the given attempt.
//
// A server hint (Retry-After) takes precedence over the exponential schedule
// when present and within the configured ceiling. The result is always at
// least MinDelay.
func (c *Calculator) Delay(attempt int, hint time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	base := c.exponential(attempt)
	if hint > 0 && hint <= c.maxDelay {
		base = float64(hint)
	}

	// One uniform draw in [-1, 1], reproducible per (seed, attempt). The global
	// rand source is deliberately not used here: fleet decorrelation must come
	// from the seed alone.
	window := base * c.jitterFactor
	rng := rand.New(rand.NewSource(c.seed + int64(attempt))) //nolint:gosec // reproducible jitter, not security-sensitive
	u := rng.Float64()*2 - 1

	delay := time.Duration(base + u*window)
	if delay < MinDelay {
		delay = MinDelay
	}
	return delay
}

// exponential returns min(baseDelay * 2^attempt, maxDelay) in float nanoseconds.
func (c *Calculator) exponential(attempt int) float64 {
	d := float64(c.baseDelay) * math.Pow(2, float64(attempt))
	if d > float64(c.maxDelay) {
		d = float64(c.maxDelay)
	}
	return d
}

// Seed returns the container seed this calculator was built with.
func (c *Calculator) Seed() int64 {
	return c.seed
}
