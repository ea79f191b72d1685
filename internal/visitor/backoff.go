package visitor

import (
	"context"
	"math/rand/v2"
	"time"
)

// maxBackoff caps the exponential retry schedule.
const maxBackoff = 30 * time.Second

// Backoff returns the base wait before retry number retry (1-based),
// doubling each time and capped at maxBackoff. The jitter applied on top
// is added separately so the schedule stays deterministic under test.
func Backoff(base time.Duration, retry int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if retry < 1 {
		retry = 1
	}
	d := base
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// jitterBetween draws a random pacing delay from [min, max).
func jitterBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)))
}

// withJitter spreads a backoff wait by up to 25% in either direction.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	spread := int64(d) / 4
	if spread == 0 {
		return d
	}
	return d + time.Duration(rand.Int64N(2*spread)-spread)
}

// sleep blocks for d or until the context is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
