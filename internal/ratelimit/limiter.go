// Package ratelimit provides a blocking rolling-window rate limiter for
// outbound API calls.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits at most maxCalls acquisitions within any sliding window.
// Acquire blocks until a slot frees rather than failing fast, so callers
// queue behind the provider's quota instead of erroring out.
type Limiter struct {
	mu       sync.Mutex
	maxCalls int
	window   time.Duration
	stamps   []time.Time // acquisition times inside the current window, oldest first

	// now is swapped out in tests
	now func() time.Time
}

// New returns a limiter admitting maxCalls per window.
func New(maxCalls int, window time.Duration) *Limiter {
	if maxCalls < 1 {
		maxCalls = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		maxCalls: maxCalls,
		window:   window,
		now:      time.Now,
	}
}

// Acquire blocks until a call slot is available or ctx is done.
// It returns ctx.Err() on cancellation and nil once a slot is claimed.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)
		if len(l.stamps) < l.maxCalls {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		}
		// the oldest stamp leaving the window frees the next slot
		wait := l.stamps[0].Add(l.window).Sub(now)
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

// Available returns the number of immediately claimable slots.
func (l *Limiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return l.maxCalls - len(l.stamps)
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
