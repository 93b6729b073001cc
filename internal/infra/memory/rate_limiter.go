package memory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is the in-process fallback for the redis limiter: a token
// bucket per key refilling limit tokens per window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*bucket)}
}

func (r *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	now := time.Now()
	r.mu.Lock()
	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)}
		r.buckets[key] = b
	}
	b.seen = now
	r.mu.Unlock()
	return b.lim.AllowN(now, 1), nil
}

// Prune drops buckets idle for longer than maxIdle.
func (r *RateLimiter) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, b := range r.buckets {
		if !b.seen.After(cutoff) {
			delete(r.buckets, k)
			n++
		}
	}
	return n
}
