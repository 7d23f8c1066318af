// Package ratelimit provides the dual-gate sync rate limiter: a minimum
// inter-sync interval plus a rolling hourly cap.
package ratelimit

import (
	"sync"
	"time"
)

// Defaults for the sync rate limiter.
const (
	DefaultMinInterval = 65 * time.Second
	DefaultHourlyCap   = 55
)

// window is the trailing period the hourly cap counts over.
const window = time.Hour

// Limiter gates sync cycles. Both gates must pass: the elapsed time since
// the last sync must be at least the minimum interval (boundary inclusive
// on the allow side), and fewer than the cap syncs may exist in the
// trailing hour.
//
// All reads and mutations share one critical section so concurrent timer
// callbacks cannot both pass the gate for the same window.
type Limiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	hourlyCap   int
	lastSync    time.Time
	history     []time.Time // time-ordered sync timestamps within the window

	// now is the clock; overridable in tests.
	now func() time.Time
}

// New creates a Limiter with the given gates. Non-positive arguments fall
// back to the defaults.
func New(minInterval time.Duration, hourlyCap int) *Limiter {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if hourlyCap <= 0 {
		hourlyCap = DefaultHourlyCap
	}
	return &Limiter{
		minInterval: minInterval,
		hourlyCap:   hourlyCap,
		now:         time.Now,
	}
}

// IsAllowed reports whether a sync cycle may start now. It prunes expired
// history as a side effect but records nothing; callers that proceed must
// invoke RecordSync exactly once per attempted cycle.
func (l *Limiter) IsAllowed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	// Exclusive boundary: elapsed exactly equal to the minimum is allowed.
	if !l.lastSync.IsZero() && now.Sub(l.lastSync) < l.minInterval {
		return false
	}

	l.prune(now)
	return len(l.history) < l.hourlyCap
}

// RecordSync registers that a sync cycle was actually attempted.
func (l *Limiter) RecordSync() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.lastSync = now
	l.history = append(l.history, now)
	l.prune(now)
}

// prune drops history entries aged one hour or more. An entry exactly one
// hour old counts as expired. Caller holds l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(l.history) && !l.history[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.history = append(l.history[:0], l.history[i:]...)
	}
}

// HistoryCount returns the number of syncs within the trailing hour.
func (l *Limiter) HistoryCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	return len(l.history)
}

// LastSync returns the time of the last recorded sync; the zero time when
// no sync has been recorded.
func (l *Limiter) LastSync() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSync
}

// SetClock overrides the limiter's clock. Test hook.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
