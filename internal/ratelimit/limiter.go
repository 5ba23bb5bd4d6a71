// Package ratelimit throttles repeated authentication attempts per
// identifier within a sliding window anchored to the last allowed attempt.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultMaxAttempts is used when New receives a non-positive limit.
	DefaultMaxAttempts = 5
	// DefaultWindow is used when New receives a non-positive window.
	DefaultWindow = 15 * time.Minute
)

type record struct {
	count       int
	lastAttempt time.Time
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// Limiter counts attempts per identifier. Records are replaced once the window
// since the last allowed attempt has elapsed and are only deleted by Prune.
// Counts are local to one Limiter and are not shared across instances.
type Limiter struct {
	mu          sync.Mutex
	attempts    map[string]*record
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

// New creates a limiter allowing maxAttempts within window.
func New(maxAttempts int, window time.Duration, opts ...Option) *Limiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		attempts:    make(map[string]*record),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records an attempt for identifier and reports whether it may proceed.
// Rejected attempts leave the stored record untouched.
func (l *Limiter) Allow(identifier string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.attempts[identifier]
	if !ok || now.Sub(rec.lastAttempt) > l.window {
		l.attempts[identifier] = &record{count: 1, lastAttempt: now}
		return true
	}

	if rec.count < l.maxAttempts {
		rec.count++
		rec.lastAttempt = now
		return true
	}

	return false
}

// RemainingTime returns how long until the window for identifier expires, or
// zero when nothing is recorded.
func (l *Limiter) RemainingTime(identifier string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.attempts[identifier]
	if !ok {
		return 0
	}
	remaining := l.window - l.now().Sub(rec.lastAttempt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Attempts returns the stored count for identifier.
func (l *Limiter) Attempts(identifier string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, ok := l.attempts[identifier]; ok {
		return rec.count
	}
	return 0
}

// Prune drops records whose window has elapsed and returns how many were
// removed. Long-lived limiters keyed by client address call it periodically.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	dropped := 0
	for id, rec := range l.attempts {
		if now.Sub(rec.lastAttempt) > l.window {
			delete(l.attempts, id)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of stored records.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}

// RetryMinutes rounds d up to whole minutes for display.
func RetryMinutes(d time.Duration) int {
	return int(math.Ceil(d.Minutes()))
}
