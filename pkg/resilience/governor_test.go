package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"governor/internal/testutils"
	"governor/pkg/llmerrors"
	"governor/pkg/resilience/circuit"
)

// fastConfig keeps real-clock retry tests quick. Backoff still applies its
// 100ms floor, so each retry sleeps about 100ms.
func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries:              maxRetries,
		BaseDelay:               time.Millisecond,
		MaxDelay:                50 * time.Millisecond,
		JitterFactor:            0,
		CircuitBreakerThreshold: 1000,
		CircuitBreakerTimeout:   time.Minute,
	}
}

func rateLimitErr(msg string) error {
	return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, 429, msg)
}

func TestExecute_SuccessFirstAttempt(t *testing.T) {
	g := New(fastConfig(5))

	calls := 0
	result, err := Execute(context.Background(), g, func(_ context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestExecute_NonRateLimitPropagatesUnchanged(t *testing.T) {
	g := New(fastConfig(5))

	authErr := llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, 401, "invalid api key")
	calls := 0
	_, err := Execute(context.Background(), g, func(_ context.Context) (string, error) {
		calls++
		return "", authErr
	})

	assert.Same(t, authErr, err.(*llmerrors.Error))
	assert.Equal(t, 1, calls, "unrelated failures must not retry")
	assert.Equal(t, 0, g.GetStats().Circuit.ConsecutiveFailures,
		"unrelated failures must not count toward the breaker")
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	g := New(fastConfig(5))

	calls := 0
	result, err := Execute(context.Background(), g, func(_ context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, rateLimitErr("too many requests")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, g.GetStats().Circuit.ConsecutiveFailures,
		"success must reset the failure streak")
}

func TestExecute_Exhaustion(t *testing.T) {
	g := New(fastConfig(2))

	calls := 0
	_, err := Execute(context.Background(), g, func(_ context.Context) (string, error) {
		calls++
		return "", rateLimitErr("throttled")
	})

	assert.Equal(t, 3, calls, "maxRetries=2 means three attempts total")

	var xerr *ExhaustedError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, 3, xerr.Attempts)
	assert.True(t, llmerrors.Is(xerr.Err, llmerrors.ErrorTypeRateLimit))
	assert.True(t, IsExhausted(err))
}

func TestExecute_ExhaustionCarriesLastHint(t *testing.T) {
	g := New(fastConfig(1))

	_, err := Execute(context.Background(), g, func(_ context.Context) (string, error) {
		return "", llmerrors.NewRateLimitError(429, 150*time.Millisecond, "throttled")
	})

	var xerr *ExhaustedError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, 150*time.Millisecond, xerr.RetryAfter)
	assert.Contains(t, xerr.Error(), "server hinted retry in")
}

func TestExecute_MaxRetriesZeroSingleAttempt(t *testing.T) {
	g := New(fastConfig(0))

	calls := 0
	_, err := Execute(context.Background(), g, func(_ context.Context) (string, error) {
		calls++
		return "", rateLimitErr("throttled")
	})

	assert.Equal(t, 1, calls)
	var xerr *ExhaustedError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, 1, xerr.Attempts)
}

func TestExecute_CancelledDuringBackoff(t *testing.T) {
	cfg := fastConfig(5)
	cfg.BaseDelay = 5 * time.Second
	cfg.MaxDelay = 5 * time.Second
	g := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Execute(ctx, g, func(_ context.Context) (string, error) {
			calls++
			return "", rateLimitErr("throttled")
		})
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		assert.Contains(t, err.Error(), "retry cancelled")
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("execute did not return promptly after cancellation")
	}
}

func TestExecute_BreakerOpensAndFastFails(t *testing.T) {
	clk := testutils.NewClockWrapper(testutils.NewMockClock(t))
	cfg := fastConfig(0)
	cfg.CircuitBreakerThreshold = 2
	g := New(cfg, WithClock(clk))

	calls := 0
	fail := func(_ context.Context) (string, error) {
		calls++
		return "", rateLimitErr("throttled")
	}

	for i := 0; i < 2; i++ {
		_, err := Execute(context.Background(), g, fail)
		require.True(t, IsExhausted(err))
	}
	assert.Equal(t, circuit.Open, g.GetStats().Circuit.State)

	_, err := Execute(context.Background(), g, fail)
	var oerr *circuit.OpenError
	require.ErrorAs(t, err, &oerr)
	assert.True(t, IsCircuitOpen(err))
	assert.Equal(t, time.Minute, oerr.Remaining)
	assert.Equal(t, 2, calls, "open circuit must not invoke the operation")
}

func TestExecute_BreakerProbeAfterTimeout(t *testing.T) {
	clk := testutils.NewClockWrapper(testutils.NewMockClock(t))
	cfg := fastConfig(0)
	cfg.CircuitBreakerThreshold = 1
	g := New(cfg, WithClock(clk))

	_, err := Execute(context.Background(), g, func(_ context.Context) (string, error) {
		return "", rateLimitErr("throttled")
	})
	require.True(t, IsExhausted(err))
	require.Equal(t, circuit.Open, g.GetStats().Circuit.State)

	clk.Mock.Advance(time.Minute + time.Second)

	result, err := Execute(context.Background(), g, func(_ context.Context) (string, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, circuit.Closed, g.GetStats().Circuit.State)
}

func TestGovernor_Reset(t *testing.T) {
	clk := testutils.NewClockWrapper(testutils.NewMockClock(t))
	cfg := fastConfig(0)
	cfg.CircuitBreakerThreshold = 1
	g := New(cfg, WithClock(clk))

	_, _ = Execute(context.Background(), g, func(_ context.Context) (string, error) {
		return "", rateLimitErr("throttled")
	})
	require.Equal(t, circuit.Open, g.GetStats().Circuit.State)

	g.Reset()

	stats := g.GetStats()
	assert.Equal(t, circuit.Closed, stats.Circuit.State)
	assert.Equal(t, 0, stats.Circuit.ConsecutiveFailures)
	assert.Nil(t, stats.Circuit.OpenSince)
}

func TestGovernor_Do(t *testing.T) {
	g := New(fastConfig(2))

	calls := 0
	err := g.Do(context.Background(), func(_ context.Context) error {
		calls++
		if calls < 2 {
			return rateLimitErr("throttled")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestGovernor_IDStable(t *testing.T) {
	g := New(DefaultConfig)
	assert.Len(t, g.ID(), 8)
	assert.Equal(t, g.ID(), g.GetStats().InstanceID)
	assert.NotEqual(t, g.ID(), New(DefaultConfig).ID())
}

func TestNew_FillsDefaults(t *testing.T) {
	g := New(Config{MaxRetries: -1})

	assert.Equal(t, DefaultConfig.MaxRetries, g.config.MaxRetries)
	assert.Equal(t, DefaultConfig.BaseDelay, g.config.BaseDelay)
	assert.Equal(t, DefaultConfig.MaxDelay, g.config.MaxDelay)
	assert.Equal(t, DefaultConfig.CircuitBreakerThreshold, g.config.CircuitBreakerThreshold)
	assert.Equal(t, DefaultConfig.CircuitBreakerTimeout, g.config.CircuitBreakerTimeout)
}

func TestExecute_ErrorsAndWrapping(t *testing.T) {
	inner := rateLimitErr("throttled")
	xerr := &ExhaustedError{Err: inner, Attempts: 4}
	assert.ErrorIs(t, xerr, inner)
	assert.False(t, IsCircuitOpen(xerr))
	assert.False(t, IsExhausted(errors.New("plain")))
}
