package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errTransient  = errors.New("connection reset")
	errStructural = errors.New("table not found")
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func TestDoFailsTwiceThenSucceeds(t *testing.T) {
	rec := &Recorder{}
	calls := 0
	res, err := Do(context.Background(), Policy{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		OnRetry:      rec.OnRetry,
		Sleep:        noSleep,
	}, func(ctx context.Context, attempt int) error {
		calls++
		if calls <= 2 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempts != 3 || calls != 3 {
		t.Fatalf("expected 3 attempts, got res=%d calls=%d", res.Attempts, calls)
	}
	if rec.Calls() != 2 {
		t.Fatalf("expected OnRetry twice, got %d", rec.Calls())
	}
	if got := rec.Attempts(); got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected attempt numbers %v", got)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	rec := &Recorder{}
	calls := 0
	_, err := Do(context.Background(), Policy{
		MaxRetries:  5,
		ShouldRetry: func(err error) bool { return !errors.Is(err, errStructural) },
		OnRetry:     rec.OnRetry,
		Sleep:       noSleep,
	}, func(ctx context.Context, attempt int) error {
		calls++
		return errStructural
	})
	if !errors.Is(err, errStructural) {
		t.Fatalf("expected structural error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", calls)
	}
	if rec.Calls() != 1 {
		t.Fatalf("expected OnRetry for the single failed attempt, got %d", rec.Calls())
	}
}

func TestDoCallsOnRetryForEveryFailedAttempt(t *testing.T) {
	rec := &Recorder{}
	_, err := Do(context.Background(), Policy{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		OnRetry:      rec.OnRetry,
		Sleep:        noSleep,
	}, func(ctx context.Context, attempt int) error {
		return errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	got := rec.Attempts()
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("expected OnRetry for attempts 1..3, got %v", got)
	}
}

func TestDoExhaustionReturnsLastErrorUnchanged(t *testing.T) {
	calls := 0
	last := errors.New("third")
	_, err := Do(context.Background(), Policy{MaxRetries: 2, Sleep: noSleep}, func(ctx context.Context, attempt int) error {
		calls++
		if attempt == 3 {
			return last
		}
		return errTransient
	})
	if err != last {
		t.Fatalf("expected the very last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDoValueReturnsValue(t *testing.T) {
	v, res, err := DoValue(context.Background(), Policy{Sleep: noSleep}, func(ctx context.Context, attempt int) (string, error) {
		if attempt == 1 {
			return "", errTransient
		}
		return "ok", nil
	})
	if err != nil || v != "ok" || res.Attempts != 2 {
		t.Fatalf("unexpected result v=%q attempts=%d err=%v", v, res.Attempts, err)
	}
}

func TestDoHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, Policy{MaxRetries: 10, InitialDelay: time.Hour}, func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected last op error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt after cancel, got %d", calls)
	}
}

func TestAttemptTimeoutIsReported(t *testing.T) {
	_, err := Do(context.Background(), Policy{MaxRetries: 0, AttemptTimeout: 5 * time.Millisecond}, func(ctx context.Context, attempt int) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDelayBounds(t *testing.T) {
	p := Policy{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Factor: 2}
	tests := []struct {
		n        int
		u        float64
		min, max time.Duration
	}{
		{0, 0, 849 * time.Millisecond, 851 * time.Millisecond},
		{0, 0.9999, 1149 * time.Millisecond, 1150 * time.Millisecond},
		{2, 0.5, 3999 * time.Millisecond, 4001 * time.Millisecond},
		{10, 0, 10 * time.Second, 10 * time.Second},
	}
	for _, tt := range tests {
		got := Delay(p, tt.n, tt.u)
		if got < tt.min || got > tt.max {
			t.Fatalf("Delay(n=%d,u=%v)=%v, want in [%v,%v]", tt.n, tt.u, got, tt.min, tt.max)
		}
	}
}
