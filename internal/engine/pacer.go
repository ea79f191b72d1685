package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces requests against the target site, combining an optional
// minimum gap between consecutive requests with an optional token bucket.
// Visit jitter handles human-like pacing; the pacer is a hard floor.
type Pacer struct {
	gap     time.Duration
	limiter *rate.Limiter

	mu   sync.Mutex
	last time.Time
}

// NewPacer builds a pacer. Zero gap and a nil rate window disable it.
func NewPacer(gap time.Duration, requests int, window time.Duration) *Pacer {
	p := &Pacer{gap: gap}
	if requests > 0 && window > 0 {
		interval := window / time.Duration(requests)
		if interval <= 0 {
			interval = time.Millisecond
		}
		p.limiter = rate.NewLimiter(rate.Every(interval), requests)
	}
	return p
}

// Wait blocks until the next request may be issued.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || (p.gap <= 0 && p.limiter == nil) {
		return nil
	}

	if p.gap > 0 {
		var sleep time.Duration
		now := time.Now()
		p.mu.Lock()
		if !p.last.IsZero() {
			if rest := p.last.Add(p.gap).Sub(now); rest > 0 {
				sleep = rest
			}
		}
		p.last = now.Add(sleep)
		p.mu.Unlock()

		if sleep > 0 {
			timer := time.NewTimer(sleep)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
