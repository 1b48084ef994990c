// Package resilience provides the retry governor that wraps calls to a
// rate-limited completion provider with jittered exponential backoff and a
// failure-streak circuit breaker.
//
// Each process owns its governor instances; there is no cross-process
// coordination. Fleet-wide retry decorrelation comes solely from every instance
// deriving its own container seed.
package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"governor/pkg/clock"
	"governor/pkg/config"
	"governor/pkg/llmerrors"
	"governor/pkg/logx"
	"governor/pkg/metrics"
	"governor/pkg/resilience/backoff"
	"governor/pkg/resilience/circuit"
	"governor/pkg/resilience/classify"
)

// Config defines governor behavior. Zero values for delays and thresholds are
// replaced with defaults at construction; MaxRetries=0 is meaningful (single
// attempt) and kept as-is.
type Config struct {
	MaxRetries              int           // Retries after the initial attempt
	BaseDelay               time.Duration // First backoff step
	MaxDelay                time.Duration // Backoff ceiling, also caps server hints
	JitterFactor            float64       // Jitter window as a fraction of the base delay, in [0, 1]
	CircuitBreakerThreshold int           // Consecutive rate-limit failures before opening
	CircuitBreakerTimeout   time.Duration // Cooldown before the breaker lets a probe through
	RateLimitStatusCodes    []int         // Status codes classified as rate limiting (default 429, 503)
	RateLimitKeywords       []string      // Message keywords classified as rate limiting
}

// DefaultConfig provides reasonable defaults for governing completion-provider calls.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	MaxRetries:              config.DefaultMaxRetries,
	BaseDelay:               config.DefaultBaseDelay,
	MaxDelay:                config.DefaultMaxDelay,
	JitterFactor:            config.DefaultJitterFactor,
	CircuitBreakerThreshold: config.DefaultCircuitBreakerThreshold,
	CircuitBreakerTimeout:   config.DefaultCircuitBreakerTimeout,
}

// ConfigFrom converts loaded YAML settings into a governor Config.
func ConfigFrom(cfg config.GovernorCfg) Config {
	return Config{
		MaxRetries:              cfg.MaxRetries,
		BaseDelay:               cfg.BaseDelay.Std(),
		MaxDelay:                cfg.MaxDelay.Std(),
		JitterFactor:            cfg.JitterFactor,
		CircuitBreakerThreshold: cfg.CircuitBreakerThreshold,
		CircuitBreakerTimeout:   cfg.CircuitBreakerTimeout.Std(),
		RateLimitStatusCodes:    cfg.RateLimitStatusCodes,
		RateLimitKeywords:       cfg.RateLimitKeywords,
	}
}

// Operation is a unit of work supplied by the caller. The governor imposes no
// timeout of its own; bounding a hanging operation is the caller's job.
type Operation[T any] func(ctx context.Context) (T, error)

// Governor wraps operations with retry, backoff, and circuit-breaking. One
// instance is created per process/agent and reused for all calls; it is safe
// for concurrent use by multiple callers.
type Governor struct {
	id         string
	config     Config
	classifier *classify.Classifier
	calc       *backoff.Calculator
	breaker    *circuit.Breaker
	clk        clock.Clock
	logger     *logx.Logger
	recorder   metrics.Recorder
}

// Option customizes a Governor at construction.
type Option func(*governorOptions)

type governorOptions struct {
	clk      clock.Clock
	logger   *logx.Logger
	recorder metrics.Recorder
	seed     *int64
}

// WithClock injects a clock, used by tests to control breaker timeouts and suspends.
func WithClock(clk clock.Clock) Option {
	return func(o *governorOptions) { o.clk = clk }
}

// WithLogger sets the logger. Defaults to a "governor" component logger.
func WithLogger(logger *logx.Logger) Option {
	return func(o *governorOptions) { o.logger = logger }
}

// WithRecorder sets the metrics recorder. Defaults to the no-op recorder.
func WithRecorder(recorder metrics.Recorder) Option {
	return func(o *governorOptions) { o.recorder = recorder }
}

// WithSeed overrides the container seed. Production code should let the
// governor derive it; tests use this for reproducible jitter.
func WithSeed(seed int64) Option {
	return func(o *governorOptions) { o.seed = &seed }
}

// New creates a governor. Unset config fields fall back to DefaultConfig.
func New(cfg Config, opts ...Option) *Governor {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.CircuitBreakerThreshold <= 0 {
		cfg.CircuitBreakerThreshold = DefaultConfig.CircuitBreakerThreshold
	}
	if cfg.CircuitBreakerTimeout <= 0 {
		cfg.CircuitBreakerTimeout = DefaultConfig.CircuitBreakerTimeout
	}

	var o governorOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.clk == nil {
		o.clk = clock.NewRealClock()
	}
	if o.logger == nil {
		o.logger = logx.NewLogger("governor")
	}
	if o.recorder == nil {
		o.recorder = metrics.Nop()
	}

	seed := backoff.ContainerSeed()
	if o.seed != nil {
		seed = *o.seed
	}

	return &Governor{
		id:         uuid.NewString()[:8],
		config:     cfg,
		classifier: classify.New(cfg.RateLimitStatusCodes, cfg.RateLimitKeywords),
		calc:       backoff.NewCalculator(cfg.BaseDelay, cfg.MaxDelay, cfg.JitterFactor, seed),
		breaker:    circuit.New(circuit.Config{FailureThreshold: cfg.CircuitBreakerThreshold, Timeout: cfg.CircuitBreakerTimeout}, o.clk),
		clk:        o.clk,
		logger:     o.logger,
		recorder:   o.recorder,
	}
}

// ID returns the instance identifier used in logs and metric labels.
func (g *Governor) ID() string {
	return g.id
}

// Reset manually closes the circuit breaker and clears the failure streak.
func (g *Governor) Reset() {
	g.breaker.Reset()
	g.recorder.SetCircuitState(g.id, false)
}

// Stats provides a snapshot of governor state.
type Stats struct {
	InstanceID string        `json:"instance_id"`
	Circuit    circuit.Stats `json:"circuit"`
}

// GetStats returns current statistics.
func (g *Governor) GetStats() Stats {
	return Stats{
		InstanceID: g.id,
		Circuit:    g.breaker.GetStats(),
	}
}

// Execute runs op under the governor's retry policy.
//
// The breaker's lazy recovery check runs first; while the circuit is open the
// call fails with *circuit.OpenError and op is never invoked. Failures not
// classified as rate limiting propagate unchanged on the first attempt with no
// retry and no breaker update. Rate-limit failures are retried up to
// cfg.MaxRetries times with jittered exponential backoff, honoring any
// Retry-After hint; exhaustion yields *ExhaustedError wrapping the last
// failure.
func Execute[T any](ctx context.Context, g *Governor, op Operation[T]) (T, error) {
	var zero T

	if ok, remaining := g.breaker.Allow(); !ok {
		g.recorder.IncCircuitOpen(g.id)
		g.recorder.SetCircuitState(g.id, true)
		g.logger.Warn("circuit open, fast-failing with %s cooldown remaining", remaining.Round(time.Millisecond))
		return zero, &circuit.OpenError{Remaining: remaining}
	}
	g.recorder.SetCircuitState(g.id, false)

	var lastErr error
	var lastHint time.Duration

	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		start := g.clk.Now()
		result, err := op(ctx)
		elapsed := g.clk.Since(start)

		if err == nil {
			g.breaker.RecordSuccess()
			g.recorder.ObserveAttempt(g.id, attempt, true, "", elapsed)
			if attempt > 0 {
				g.logger.Info("operation succeeded after %d rate-limited attempts", attempt)
			}
			return result, nil
		}

		if !g.classifier.IsRateLimit(err) {
			// Unrelated failure: propagate unchanged, no retry, no breaker update.
			g.recorder.ObserveAttempt(g.id, attempt, false, llmerrors.TypeOf(err).String(), elapsed)
			return zero, err
		}

		g.breaker.RecordFailure()
		g.recorder.ObserveAttempt(g.id, attempt, false, llmerrors.ErrorTypeRateLimit.String(), elapsed)
		g.recorder.IncRateLimited(g.id)

		lastErr = err
		hint, _ := classify.RetryAfter(err)
		lastHint = hint

		if attempt == g.config.MaxRetries {
			break
		}

		delay := g.calc.Delay(attempt, hint)
		g.recorder.ObserveBackoff(g.id, delay)
		g.logger.Warn("rate limited on attempt %d/%d, backing off %s",
			attempt+1, g.config.MaxRetries+1, delay.Round(time.Millisecond))

		if serr := g.suspend(ctx, delay); serr != nil {
			return zero, serr
		}
	}

	if g.breaker.GetState() == circuit.Open {
		g.recorder.SetCircuitState(g.id, true)
	}
	return zero, &ExhaustedError{
		Err:        lastErr,
		Attempts:   g.config.MaxRetries + 1,
		RetryAfter: lastHint,
	}
}

// Do runs an error-only operation under the governor's retry policy.
func (g *Governor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Execute(ctx, g, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// suspend sleeps for the backoff delay without blocking sibling callers,
// returning promptly when the caller's context is cancelled.
func (g *Governor) suspend(ctx context.Context, delay time.Duration) error {
	timer := g.clk.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled: %w", ctx.Err())
	case <-timer.C():
		return nil
	}
}
