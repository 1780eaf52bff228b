package blocksource

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces two independent constraints on outbound requests: at
// most maxPerWindow requests inside any sliding one-second window, and a
// minimum spacing between consecutive requests. When both would delay a
// request, the longer wait wins.
//
// Each tracking flow owns its limiter so that one consumer's burst never
// penalizes another; only the endpoint pool is shared.
type Limiter struct {
	mu           sync.Mutex
	maxPerWindow int
	minSpacing   time.Duration

	stamps []time.Time
	last   time.Time
}

const limiterWindow = time.Second

// NewLimiter creates a limiter allowing maxPerWindow requests per sliding
// second with at least minSpacing between consecutive requests. Values
// that are zero or negative disable the corresponding constraint.
func NewLimiter(maxPerWindow int, minSpacing time.Duration) *Limiter {
	return &Limiter{
		maxPerWindow: maxPerWindow,
		minSpacing:   minSpacing,
	}
}

// Acquire blocks until a request may proceed or the context is cancelled.
// On success the request is recorded against the window.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		wait := l.waitLocked(now)
		if wait <= 0 {
			l.recordLocked(now)
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// waitLocked computes how long the next request must be suspended. The
// window wait and the spacing wait are computed independently and the
// larger applies.
func (l *Limiter) waitLocked(now time.Time) time.Duration {
	cutoff := now.Add(-limiterWindow)
	kept := l.stamps[:0]
	for _, ts := range l.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.stamps = kept

	var wait time.Duration
	if l.maxPerWindow > 0 && len(l.stamps) >= l.maxPerWindow {
		if w := l.stamps[0].Add(limiterWindow).Sub(now); w > wait {
			wait = w
		}
	}
	if l.minSpacing > 0 && !l.last.IsZero() {
		if w := l.last.Add(l.minSpacing).Sub(now); w > wait {
			wait = w
		}
	}
	return wait
}

func (l *Limiter) recordLocked(now time.Time) {
	l.stamps = append(l.stamps, now)
	l.last = now
}

// Reset discards the window and spacing history, for example after an
// endpoint rotation gives the flow a fresh provider.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.stamps = l.stamps[:0]
	l.last = time.Time{}
	l.mu.Unlock()
}
