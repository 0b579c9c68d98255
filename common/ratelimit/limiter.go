// Package ratelimit throttles execution requests with Redis-backed
// fixed-window counters. Limits are tiered by graph weight so chat
// workflows are never starved by model-heavy ones.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aether-ai/conductor/common/logger"
)

// Atomic check-and-increment. Returns {allowed, current, limit, retry_after}.
const checkScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local current = redis.call('INCR', key)
if current == 1 then
    redis.call('EXPIRE', key, window)
end

if current > limit then
    local ttl = redis.call('TTL', key)
    if ttl < 0 then
        ttl = window
    end
    return {0, current, limit, ttl}
end

return {1, current, limit, 0}
`

// Result is the outcome of one rate limit check
type Result struct {
	Allowed           bool
	CurrentCount      int64
	Limit             int64
	RetryAfterSeconds int64
}

// Limiter provides execution rate limiting using Redis + Lua
type Limiter struct {
	redis  *redis.Client
	script *redis.Script
	log    *logger.Logger
}

// New creates a limiter on the given Redis client
func New(redisClient *redis.Client, log *logger.Logger) *Limiter {
	return &Limiter{
		redis:  redisClient,
		script: redis.NewScript(checkScript),
		log:    log,
	}
}

// CheckGlobal checks the service-wide execution limit
func (l *Limiter) CheckGlobal(ctx context.Context, limit int64) (*Result, error) {
	return l.check(ctx, "rate_limit:global", limit, DefaultGlobal.WindowSeconds)
}

// CheckUser checks the per-user execution limit
func (l *Limiter) CheckUser(ctx context.Context, userID string, limit int64, windowSec int) (*Result, error) {
	key := fmt.Sprintf("rate_limit:user:%s", userID)
	return l.check(ctx, key, limit, windowSec)
}

// CheckTiered checks the per-user limit for a graph-weight tier.
// Each tier gets its own counter so cheap executions never compete
// with expensive ones for quota.
func (l *Limiter) CheckTiered(ctx context.Context, userID string, tier Tier) (*Result, error) {
	key := fmt.Sprintf("rate_limit:user:%s:tier:%s", userID, tier)
	return l.check(ctx, key, LimitForTier(tier), WindowForTier(tier))
}

func (l *Limiter) check(ctx context.Context, key string, limit int64, windowSec int) (*Result, error) {
	raw, err := l.script.Run(ctx, l.redis, []string{key}, limit, windowSec).Result()
	if err != nil {
		l.log.Error("rate limit check failed", "key", key, "error", err)
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 4 {
		return nil, fmt.Errorf("unexpected script result format")
	}

	result := &Result{
		Allowed:           values[0].(int64) == 1,
		CurrentCount:      values[1].(int64),
		Limit:             values[2].(int64),
		RetryAfterSeconds: values[3].(int64),
	}

	if !result.Allowed {
		l.log.Warn("rate limit exceeded",
			"key", key,
			"current", result.CurrentCount,
			"limit", limit,
			"retry_after", result.RetryAfterSeconds)
	}

	return result, nil
}

// CurrentCount returns the counter without incrementing it
func (l *Limiter) CurrentCount(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

// Reset clears a counter
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.redis.Del(ctx, key).Err()
}
