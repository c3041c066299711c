package handlers

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter gates request admission per caller key.
type RateLimiter interface {
	Allow(key string) bool
}

// keyedLimiter hands each caller its own token bucket sized to allow limit
// requests per window, with the full limit available as burst.
type keyedLimiter struct {
	perSecond rate.Limit
	burst     int
	window    time.Duration
	clock     func() time.Time

	mu        sync.Mutex
	buckets   map[string]*callerBucket
	lastSweep time.Time
}

type callerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds an in-memory per-key token bucket limiter. A
// non-positive limit or window disables limiting.
func NewRateLimiter(limit int, window time.Duration, clock func() time.Time) RateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &keyedLimiter{
		perSecond: rate.Limit(float64(limit) / window.Seconds()),
		burst:     limit,
		window:    window,
		clock:     clock,
		buckets:   make(map[string]*callerBucket),
	}
}

func (l *keyedLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &callerBucket{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// sweepLocked drops buckets idle for at least a full window; by then the
// bucket has refilled and carries no state worth keeping.
func (l *keyedLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.window {
			delete(l.buckets, key)
		}
	}
}
