package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	jitterMin = 0.85
	jitterMax = 1.15
)

// Policy configures Do. Zero delays and factor fall back to DefaultPolicy; MaxRetries is
// taken as is, so zero means a single attempt.
type Policy struct {
	MaxRetries   int           // retries after the first attempt
	InitialDelay time.Duration // delay before the first retry (default 1s)
	MaxDelay     time.Duration // cap for any single delay (default 30s)
	Factor       float64       // exponential growth factor (default 2)

	// AttemptTimeout bounds each attempt. A timed out attempt is reported as
	// context.DeadlineExceeded and is retryable under the default ShouldRetry.
	AttemptTimeout time.Duration

	// ShouldRetry reports whether err is worth another attempt. Nil retries everything
	// except context cancellation of the parent.
	ShouldRetry func(err error) bool

	// OnRetry is called after every failed attempt, including the last one and any
	// rejected by ShouldRetry. attempt is 1-based.
	OnRetry func(err error, attempt int)

	// Sleep waits for d or until ctx is done. Tests replace it to avoid real waits.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns the policy used by source fetches when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Factor:       2,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = d.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Factor < 1 {
		p.Factor = d.Factor
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// Result describes how an execution went.
type Result struct {
	Attempts      int
	TotalDuration time.Duration
}

// Do runs op until it succeeds, the policy gives up, or ctx is done.
// On exhaustion the last error is returned unchanged.
func Do(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error) (Result, error) {
	_, res, err := DoValue(ctx, p, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, op(ctx, attempt)
	})
	return res, err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, Result, error) {
	p = p.withDefaults()
	start := time.Now()
	var (
		zero    T
		res     Result
		lastErr error
	)

	for attempt := 1; attempt <= p.MaxRetries+1; attempt++ {
		res.Attempts = attempt
		if err := ctx.Err(); err != nil {
			res.TotalDuration = time.Since(start)
			if lastErr != nil {
				return zero, res, lastErr
			}
			return zero, res, err
		}

		v, err := runAttempt(ctx, p.AttemptTimeout, attempt, op)
		if err == nil {
			res.TotalDuration = time.Since(start)
			return v, res, nil
		}
		lastErr = err
		if p.OnRetry != nil {
			p.OnRetry(err, attempt)
		}

		if !shouldRetry(ctx, p, err) || attempt > p.MaxRetries {
			break
		}
		if serr := p.Sleep(ctx, Delay(p, attempt-1, rand.Float64())); serr != nil {
			break
		}
	}

	res.TotalDuration = time.Since(start)
	return zero, res, lastErr
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, attempt int, op func(context.Context, int) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx, attempt)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := op(actx, attempt)
	if err == nil && actx.Err() != nil && ctx.Err() == nil {
		// finished, but only after the attempt deadline passed
		var zero T
		return zero, fmt.Errorf("attempt %d: %w", attempt, context.DeadlineExceeded)
	}
	return v, err
}

func shouldRetry(ctx context.Context, p Policy, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if p.ShouldRetry != nil {
		return p.ShouldRetry(err)
	}
	return !errors.Is(err, context.Canceled)
}

// Delay computes min(InitialDelay * Factor^n * jitter, MaxDelay) for the n-th retry (0-based),
// mapping u in [0,1) onto the jitter interval [0.85, 1.15].
func Delay(p Policy, n int, u float64) time.Duration {
	p = p.withDefaults()
	if n < 0 {
		n = 0
	}
	jitter := jitterMin + u*(jitterMax-jitterMin)
	d := float64(p.InitialDelay) * math.Pow(p.Factor, float64(n)) * jitter
	if d > float64(p.MaxDelay) || math.IsInf(d, 1) || math.IsNaN(d) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Recorder collects OnRetry calls; handy for diagnostics and tests.
type Recorder struct {
	mu       sync.Mutex
	attempts []int
	errs     []error
}

// OnRetry satisfies Policy.OnRetry.
func (r *Recorder) OnRetry(err error, attempt int) {
	r.mu.Lock()
	r.attempts = append(r.attempts, attempt)
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

// Calls returns how many times OnRetry fired.
func (r *Recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}

// Attempts returns the attempt numbers passed to OnRetry.
func (r *Recorder) Attempts() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.attempts...)
}
