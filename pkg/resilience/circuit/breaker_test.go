package circuit

import (
	"sync"
	"testing"
	"time"

	"governor/internal/testutils"
)

func newTestBreaker(t *testing.T, threshold int, timeout time.Duration) (*Breaker, *testutils.ClockWrapper) {
	t.Helper()
	mock := testutils.NewMockClock(t)
	clk := testutils.NewClockWrapper(mock)
	return New(Config{FailureThreshold: threshold, Timeout: timeout}, clk), clk
}

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTestBreaker(t, 3, time.Minute)

	if b.GetState() != Closed {
		t.Errorf("expected CLOSED, got %s", b.GetState())
	}
	if ok, _ := b.Allow(); !ok {
		t.Error("closed breaker must allow calls")
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(t, 3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	if b.GetState() != Closed {
		t.Fatal("breaker must stay closed below threshold")
	}

	b.RecordFailure()
	if b.GetState() != Open {
		t.Fatal("breaker must open at threshold")
	}

	ok, remaining := b.Allow()
	if ok {
		t.Error("open breaker must reject calls")
	}
	if remaining <= 0 || remaining > time.Minute {
		t.Errorf("remaining cooldown out of range: %v", remaining)
	}
}

func TestBreaker_SuccessResetsStreak(t *testing.T) {
	b, _ := newTestBreaker(t, 3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	if got := b.ConsecutiveFailures(); got != 0 {
		t.Errorf("expected streak reset to 0, got %d", got)
	}
	if b.GetState() != Closed {
		t.Error("breaker must remain closed after success")
	}

	// The streak must reaccumulate from scratch.
	b.RecordFailure()
	b.RecordFailure()
	if b.GetState() != Closed {
		t.Error("two failures after reset must not reopen a threshold-3 breaker")
	}
}

func TestBreaker_LazyRecoveryAfterTimeout(t *testing.T) {
	b, clk := newTestBreaker(t, 2, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	if ok, _ := b.Allow(); ok {
		t.Fatal("expected open breaker to reject")
	}

	clk.Mock.Advance(time.Minute + time.Second)

	// First call after cooldown is let through as the implicit probe and the
	// breaker closes with a cleared streak before the call runs.
	ok, remaining := b.Allow()
	if !ok {
		t.Fatal("expected probe to be allowed after cooldown")
	}
	if remaining != 0 {
		t.Errorf("expected no remaining cooldown, got %v", remaining)
	}
	if b.GetState() != Closed {
		t.Error("breaker must be closed after lazy recovery")
	}
	if b.ConsecutiveFailures() != 0 {
		t.Error("streak must reset on lazy recovery")
	}
}

func TestBreaker_RejectsBeforeTimeout(t *testing.T) {
	b, clk := newTestBreaker(t, 1, time.Minute)

	b.RecordFailure()
	clk.Mock.Advance(30 * time.Second)

	ok, remaining := b.Allow()
	if ok {
		t.Fatal("breaker must stay open before the timeout elapses")
	}
	if remaining != 30*time.Second {
		t.Errorf("expected 30s remaining, got %v", remaining)
	}
}

func TestBreaker_FailuresWhileOpenKeepOpenTime(t *testing.T) {
	b, clk := newTestBreaker(t, 1, time.Minute)

	b.RecordFailure()
	openedAt := b.GetStats().OpenSince
	if openedAt == nil {
		t.Fatal("expected open_since to be set")
	}

	clk.Mock.Advance(10 * time.Second)
	b.RecordFailure()

	after := b.GetStats().OpenSince
	if after == nil || !after.Equal(*openedAt) {
		t.Error("failures while open must not move the open timestamp")
	}
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(t, 1, time.Minute)

	b.RecordFailure()
	b.Reset()

	if b.GetState() != Closed {
		t.Error("expected CLOSED after manual reset")
	}
	if b.ConsecutiveFailures() != 0 {
		t.Error("expected streak cleared after manual reset")
	}
}

func TestBreaker_Stats(t *testing.T) {
	b, _ := newTestBreaker(t, 2, time.Minute)

	stats := b.GetStats()
	if stats.State != Closed || stats.ConsecutiveFailures != 0 || stats.OpenSince != nil {
		t.Errorf("unexpected initial stats: %+v", stats)
	}

	b.RecordFailure()
	b.RecordFailure()

	stats = b.GetStats()
	if stats.State != Open {
		t.Errorf("expected OPEN, got %s", stats.State)
	}
	if stats.ConsecutiveFailures != 2 {
		t.Errorf("expected streak 2, got %d", stats.ConsecutiveFailures)
	}
	if stats.OpenSince == nil {
		t.Error("expected open_since to be set while open")
	}
}

func TestBreaker_ConcurrentRecording(t *testing.T) {
	b, _ := newTestBreaker(t, 1000, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.RecordFailure()
		}()
	}
	wg.Wait()

	if got := b.ConsecutiveFailures(); got != 100 {
		t.Errorf("expected 100 recorded failures, got %d", got)
	}
}

func TestState_String(t *testing.T) {
	if Closed.String() != "CLOSED" || Open.String() != "OPEN" {
		t.Error("unexpected state strings")
	}
	if State(42).String() != "UNKNOWN" {
		t.Error("unexpected fallback state string")
	}
}
