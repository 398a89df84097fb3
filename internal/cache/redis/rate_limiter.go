package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neonslash/neonvault/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

var slidingWindow = redis.NewScript(slidingWindowLua)

// RateLimiter is a per-key sliding-window counter shared by every API
// replica, so the request budget holds across processes.
type RateLimiter struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// NewRateLimiter creates a RateLimiter on c.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.Underlying(), prefix: c.Key("ratelimit:"), now: time.Now}
}

// Allow counts one request for key and reports whether it stayed within
// limit requests per window. Rejected requests are not counted.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	res, err := slidingWindow.Run(ctx, rl.rdb, []string{rl.prefix + key},
		rl.now().UnixMicro(), window.Microseconds(), limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) != 2 {
		return false, fmt.Errorf("redis: rate limit %s: script returned %d values", key, len(res))
	}
	return res[0] == 1, nil
}
