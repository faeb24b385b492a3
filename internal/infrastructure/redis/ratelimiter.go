package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/baechuer/medimg-identity/internal/ratelimit"
)

// FixedWindowLimiter implements a fixed-window rate limiter using Redis:
// INCR key; if count == 1 then PEXPIRE key window.
// The first hit opens the window, so keys carry no bucket suffix.
type FixedWindowLimiter struct {
	rdb    *goredis.Client
	limit  int
	window time.Duration
}

func NewFixedWindowLimiter(c *Client, limit int, window time.Duration) *FixedWindowLimiter {
	if window <= 0 {
		window = time.Minute
	}
	l := &FixedWindowLimiter{limit: limit, window: window}
	if c != nil {
		l.rdb = c.rdb
	}
	return l
}

var _ ratelimit.Limiter = (*FixedWindowLimiter)(nil)

// returns: {count, ttl_ms}
const fixedWindowLua = `
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {c, ttl}
`

func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (ratelimit.Decision, error) {
	limit := l.limit
	if limit <= 0 {
		return ratelimit.Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	if l.rdb == nil {
		// Redis disabled => allow (fail-open).
		return ratelimit.Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}

	ttlms := l.window.Milliseconds()
	if ttlms <= 0 {
		ttlms = 60000
	}

	res, err := l.rdb.Eval(ctx, fixedWindowLua, []string{key}, ttlms).Result()
	if err != nil {
		return ratelimit.Decision{}, fmt.Errorf("ratelimit redis eval: %w", err)
	}

	arr, ok := res.([]any)
	if !ok || len(arr) != 2 {
		return ratelimit.Decision{}, fmt.Errorf("ratelimit redis eval: unexpected result type")
	}
	c, ok1 := arr[0].(int64)
	ttl, ok2 := arr[1].(int64)
	if !ok1 || !ok2 {
		return ratelimit.Decision{}, fmt.Errorf("ratelimit redis eval: unexpected element types")
	}

	count := int(c)
	ttlGot := time.Duration(ttl) * time.Millisecond

	d := ratelimit.Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(0, limit-count),
		Count:     count,
		ResetAt:   time.Now().Add(ttlGot),
	}

	if !d.Allowed {
		if ttlGot > 0 {
			d.RetryAfter = ttlGot
		} else {
			d.RetryAfter = l.window
		}
	}

	return d, nil
}
