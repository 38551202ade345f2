// Package ratelimit bounds how often the supervisor may restart the child.
// A supervised process that re-requests an image on every resume would
// otherwise restart forever.
package ratelimit

import (
	"errors"
	"time"
)

// ErrTooManyRestarts means the restart budget for the sliding window is
// exhausted.
var ErrTooManyRestarts = errors.New("too many restarts in window")

// Limiter is a sliding-window restart counter. Not safe for concurrent
// use; the supervisor's event loop is the only caller.
type Limiter struct {
	window time.Duration
	max    int
	stamps []time.Time
}

// New returns a Limiter admitting at most max restarts per window.
func New(window time.Duration, max int) *Limiter {
	return &Limiter{window: window, max: max}
}

// Admit records a restart at now and reports whether it fits the budget.
// The timestamp is recorded even when rejected, so the limiter recovers on
// its own once the window ages out.
func (l *Limiter) Admit(now time.Time) error {
	cutoff := now.Add(-l.window)
	kept := l.stamps[:0]
	for _, s := range l.stamps {
		if s.After(cutoff) {
			kept = append(kept, s)
		}
	}
	l.stamps = append(kept, now)

	if len(l.stamps) > l.max {
		return ErrTooManyRestarts
	}
	return nil
}

// Count returns the number of restarts currently inside the window.
func (l *Limiter) Count() int {
	return len(l.stamps)
}
