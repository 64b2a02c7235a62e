package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/blog-auth-service/pkg/database"
	"github.com/redis/go-redis/v9"
)

// RateLimitResult is the decision for a single request
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// slidingWindowScript trims the window, then admits and records the request only
// when it fits. Running as one script keeps concurrent callers from overshooting the limit.
// Returns {allowed, remaining, retry_after_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local used = redis.call('ZCARD', key)
if used >= limit then
  local retry = window
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  if oldest[2] then
    retry = window - (now - tonumber(oldest[2]))
  end
  return {0, 0, retry}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window + 60000)
return {1, limit - used - 1, 0}
`)

// RateLimiter is a sliding window log limiter backed by Redis sorted sets
type RateLimiter struct {
	redis *database.Redis
	now   func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(redis *database.Redis) *RateLimiter {
	return &RateLimiter{redis: redis, now: time.Now}
}

// Allow records a request under key and reports whether it fits in limit per window.
// Rejected requests are not recorded.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	reply, err := slidingWindowScript.Run(ctx, r.redis.Client, []string{"ratelimit:" + key},
		r.now().UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}
	if len(reply) != 3 {
		return RateLimitResult{}, fmt.Errorf("unexpected rate limit reply: %v", reply)
	}

	if reply[0] == 1 {
		return RateLimitResult{Allowed: true, Remaining: int(reply[1])}, nil
	}

	retryAfter := time.Duration(reply[2]) * time.Millisecond
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return RateLimitResult{Allowed: false, RetryAfter: retryAfter}, nil
}
