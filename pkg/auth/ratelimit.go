package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether an identity may issue another request.
type RateLimiter interface {
	Allow(ctx context.Context, id *Identity) error
}

// TierLimit is the request budget of one service tier.
type TierLimit struct {
	RequestsPerMinute int
	Burst             int
}

// TokenBucketLimiter keeps one token bucket per subject and tier. Buckets
// idle for longer than the idle timeout are dropped on the next sweep.
type TokenBucketLimiter struct {
	tiers    map[string]TierLimit
	fallback TierLimit
	idle     time.Duration
	now      func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

const defaultIdle = 10 * time.Minute

// NewTokenBucketLimiter creates a limiter. Tiers without an entry use
// fallback; a RequestsPerMinute of zero or less means unlimited.
func NewTokenBucketLimiter(tiers map[string]TierLimit, fallback TierLimit) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		tiers:    tiers,
		fallback: fallback,
		idle:     defaultIdle,
		now:      time.Now,
		buckets:  make(map[string]*bucket),
	}
}

// Allow takes one token from the caller's bucket. It fails with
// ErrTooManyRequests when the bucket is empty.
func (l *TokenBucketLimiter) Allow(_ context.Context, id *Identity) error {
	tier := id.RateTier()
	lim, ok := l.tiers[tier]
	if !ok {
		lim = l.fallback
	}
	if lim.RequestsPerMinute <= 0 {
		return nil
	}

	now := l.now()
	key := id.Subject + ":" + tier

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		burst := lim.Burst
		if burst <= 0 {
			burst = lim.RequestsPerMinute
		}
		every := rate.Every(time.Minute / time.Duration(lim.RequestsPerMinute))
		b = &bucket{limiter: rate.NewLimiter(every, burst)}
		l.buckets[key] = b
	}
	b.seen = now
	l.sweep(now)
	l.mu.Unlock()

	if !b.limiter.AllowN(now, 1) {
		return ErrTooManyRequests
	}
	return nil
}

// sweep drops idle buckets at most once per idle period. Must be called
// with mu held.
func (l *TokenBucketLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	l.lastSweep = now
	for k, b := range l.buckets {
		if now.Sub(b.seen) >= l.idle {
			delete(l.buckets, k)
		}
	}
}
