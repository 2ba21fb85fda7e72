package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// entry pairs a key's token bucket with when it was last used.
type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-key token-bucket limiter: each key (a learner ID) may make
// limit requests per window, refilled continuously.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   int
	window  time.Duration
	now     func() time.Time // injectable clock for testing
}

// New creates a Limiter that allows limit requests per window per key.
func New(limit int, window time.Duration) *Limiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		entries: make(map[string]*entry),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// get returns the bucket for key, creating a full one on first use.
// Must be called with l.mu held.
func (l *Limiter) get(key string, now time.Time) *rate.Limiter {
	e, ok := l.entries[key]
	if !ok {
		every := rate.Limit(float64(l.limit) / l.window.Seconds())
		e = &entry{lim: rate.NewLimiter(every, l.limit)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.lim
}

// Allow reports whether a request for key may proceed, consuming one token
// when it may.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	return l.get(key, now).AllowN(now, 1)
}

// Status returns the limit, the whole tokens left and the time the bucket
// will be full again.
func (l *Limiter) Status(key string) (limit int, remaining int, resetAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	lim := l.get(key, now)

	tokens := lim.TokensAt(now)
	remaining = int(tokens)
	if remaining < 0 {
		remaining = 0
	}
	deficit := float64(l.limit) - tokens
	if deficit <= 0 {
		return l.limit, remaining, now
	}
	wait := time.Duration(deficit / float64(lim.Limit()) * float64(time.Second))
	return l.limit, remaining, now.Add(wait)
}

// Sweep drops buckets idle for longer than idle and returns how many went.
// An idle bucket has refilled completely, so dropping it changes nothing.
func (l *Limiter) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-idle)
	n := 0
	for k, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
