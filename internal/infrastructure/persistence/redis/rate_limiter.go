package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter implements a fixed-window counter per identifier+action.
// The linking service uses it to throttle code generation per user.
type RateLimiter struct {
	cache  *Cache
	limit  int64
	window time.Duration
}

// NewRateLimiter creates a limiter allowing limit hits per window.
func NewRateLimiter(cache *Cache, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		cache:  cache,
		limit:  limit,
		window: window,
	}
}

// Allow records one hit and reports whether it is within the limit.
func (l *RateLimiter) Allow(ctx context.Context, identifier, action string) (bool, error) {
	key := RateLimitKey(identifier, action)

	count, err := l.cache.Incr(ctx, key)
	if err != nil {
		return false, fmt.Errorf("rate limit increment failed: %w", err)
	}

	// First hit opens the window.
	if count == 1 {
		if err := l.cache.Expire(ctx, key, l.window); err != nil {
			return false, fmt.Errorf("rate limit window failed: %w", err)
		}
	}

	return count <= l.limit, nil
}
