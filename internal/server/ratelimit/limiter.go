// Implements a per-key token bucket rate limiter.

// Package ratelimit implements token bucket rate limiting for HTTP handlers.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// staleAfter is how long an idle, full bucket is kept.
const staleAfter = 10 * time.Minute

// Key identifies a bucket.
type Key struct {
	Scope Scope
	// ID is the client IP or the user ID, depending on Scope.
	ID   string
	Tier string
}

func (k Key) String() string {
	prefix := "unknown"
	switch k.Scope {
	case ScopeIP:
		prefix = "ip"
	case ScopeUser:
		prefix = "user"
	}
	return prefix + ":" + k.ID + ":" + k.Tier
}

// Result contains the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int           // requests per minute
	Remaining  int           // requests left before the bucket is empty
	ResetAt    time.Time     // when the bucket will be full again
	RetryAfter time.Duration // 0 if allowed
}

// Limiter keeps one token bucket per Key.
type Limiter struct {
	perMinute int
	burst     int
	limit     rate.Limit

	mu      sync.Mutex
	buckets map[Key]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a limiter allowing perMinute requests per key with the
// given burst. Close stops its janitor.
func NewLimiter(perMinute, burst int) *Limiter {
	l := &Limiter{
		perMinute: perMinute,
		burst:     burst,
		limit:     rate.Limit(float64(perMinute) / 60),
		buckets:   map[Key]*bucket{},
		stop:      make(chan struct{}),
	}
	go l.janitor()
	return l
}

// Allow consumes one token for k if available.
func (l *Limiter) Allow(k Key) Result {
	now := time.Now()
	l.mu.Lock()
	b := l.buckets[k]
	if b == nil {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[k] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	res := Result{
		Allowed:   allowed,
		Limit:     l.perMinute,
		Remaining: max(int(tokens), 0),
		ResetAt:   now.Add(time.Duration((float64(l.burst) - tokens) / float64(l.limit) * float64(time.Second))),
	}
	if !allowed {
		// Wait for at least one token, never less than a second.
		res.RetryAfter = max(time.Duration((1-tokens)/float64(l.limit)*float64(time.Second)), time.Second)
	}
	return res
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) janitor() {
	ticker := time.NewTicker(staleAfter)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			l.sweep(now)
		case <-l.stop:
			return
		}
	}
}

// sweep drops the buckets idle since staleAfter that refilled completely.
func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) >= staleAfter && b.limiter.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, k)
		}
	}
}

// Close stops the janitor. It is safe to call more than once.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}
