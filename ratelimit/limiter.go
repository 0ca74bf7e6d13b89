// Package ratelimit provides per-session fixed-window admission control.
//
// Limits are best-effort: counters live in process memory (or Redis) and
// reset on restart. They deter single-client flooding, not distributed abuse.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Defaults for the collector's admission control.
const (
	DefaultLimit  = 10
	DefaultWindow = time.Minute
)

// Limiter implements fixed-window rate limiting per key.
type Limiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	limit     int
	period    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type window struct {
	count   int
	expires time.Time
}

// New creates a limiter admitting limit events per key per period.
// Non-positive arguments fall back to DefaultLimit and DefaultWindow.
func New(limit int, period time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if period <= 0 {
		period = DefaultWindow
	}
	return &Limiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
}

// Allow reports whether key may record another event in its current window,
// counting the event when it does.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	w, ok := l.windows[key]
	if !ok || !now.Before(w.expires) {
		l.windows[key] = &window{count: 1, expires: now.Add(l.period)}
		return true
	}

	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// Admit is Allow with the context-aware signature shared with the Redis limiter.
func (l *Limiter) Admit(_ context.Context, key string) (bool, error) {
	return l.Allow(key), nil
}

// Reset clears the window for a key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Len returns the number of tracked keys, including expired ones not yet swept.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// sweep evicts expired windows at most once per period. Must be called with mu held.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.period {
		return
	}
	for key, w := range l.windows {
		if !now.Before(w.expires) {
			delete(l.windows, key)
		}
	}
	l.lastSweep = now
}
