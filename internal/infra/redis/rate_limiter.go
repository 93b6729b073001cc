package redis

import (
	"context"
	"strconv"
	"time"
)

// RateLimiter counts hits per key in windows aligned to the wall clock, so
// every instance sharing the redis agrees on where a window starts. Each
// window gets its own counter key, which expires shortly after the window
// closes.
type RateLimiter struct {
	client RedisClient
	prefix string
	now    func() time.Time
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client, prefix: "rate_limit:", now: time.Now}
}

func (r *RateLimiter) windowKey(key string, window time.Duration) string {
	start := r.now().UnixNano() / int64(window)
	return r.prefix + key + ":" + strconv.FormatInt(start, 36)
}

// Allow reports whether one more hit fits under limit. A non-positive
// limit or window disables limiting.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	k := r.windowKey(key, window)
	count, err := r.client.Incr(ctx, k)
	if err != nil {
		return false, err
	}
	if count == 1 {
		// a second window of slack so a late EXPIRE never outlives the bucket by much
		if err := r.client.Expire(ctx, k, 2*window); err != nil {
			return false, err
		}
	}
	return count <= int64(limit), nil
}
