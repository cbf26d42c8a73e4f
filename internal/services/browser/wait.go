package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrReadinessTimeout is returned when a readiness predicate never held
var ErrReadinessTimeout = errors.New("page readiness timeout")

// Predicate reports whether the page reached the awaited state
type Predicate func(ctx context.Context) (bool, error)

// Backoff bounds readiness polling. When Fallback is positive a timeout
// sleeps for Fallback and then proceeds instead of failing.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Timeout    time.Duration
	Fallback   time.Duration
}

// DefaultBackoff polls from 100ms up to 2s intervals for at most 20s
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    100 * time.Millisecond,
		Max:        2 * time.Second,
		Multiplier: 2,
		Timeout:    20 * time.Second,
	}
}

// WaitFor polls ready with exponential backoff until it returns true,
// the timeout elapses or ctx is done.
func WaitFor(ctx context.Context, ready Predicate, b Backoff) error {
	if b.Initial <= 0 {
		b.Initial = 100 * time.Millisecond
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}

	deadline := time.Now().Add(b.Timeout)
	interval := b.Initial
	var lastErr error

	for {
		ok, err := ready(ctx)
		if err == nil && ok {
			return nil
		}
		if err != nil {
			lastErr = err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if interval > remaining {
			interval = remaining
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
		interval = time.Duration(float64(interval) * b.Multiplier)
		if interval > b.Max {
			interval = b.Max
		}
	}

	if b.Fallback > 0 {
		return sleep(ctx, b.Fallback)
	}
	if lastErr != nil {
		return fmt.Errorf("%w after %s: %v", ErrReadinessTimeout, b.Timeout, lastErr)
	}
	return fmt.Errorf("%w after %s", ErrReadinessTimeout, b.Timeout)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
