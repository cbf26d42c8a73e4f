package processor

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// throttle spaces publication attempts by PostDelay. Only attempts take a
// slot, so a job skipped at claim time does not delay the next one.
type throttle struct {
	limiter *rate.Limiter
}

// newThrottle returns nil when every is zero; a nil throttle never waits
func newThrottle(every time.Duration) *throttle {
	if every <= 0 {
		return nil
	}
	return &throttle{limiter: rate.NewLimiter(rate.Every(every), 1)}
}

// wait blocks until a slot is available without taking it
func (t *throttle) wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	missing := 1 - t.limiter.Tokens()
	if missing <= 0 {
		return ctx.Err()
	}
	return sleep(ctx, time.Duration(missing/float64(t.limiter.Limit())*float64(time.Second)))
}

// take spends the slot for an attempt that is going ahead
func (t *throttle) take() {
	if t == nil {
		return
	}
	// Reserve always spends the token, even when rounding left it a hair short
	t.limiter.Reserve()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
