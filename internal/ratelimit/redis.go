package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// fixedWindow increments the counter and starts its window on the first hit.
// It returns the count and the remaining window in milliseconds. A key that
// somehow lost its TTL gets a fresh one so it can never block forever.
var fixedWindow = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisLimiter keeps counters in Redis so every replica shares them. Window
// expiry is the key's TTL, so no sweep is needed.
type RedisLimiter struct {
	name   string
	length time.Duration
	limit  int
	prefix string
	rdb    redis.UniversalClient
	logger *logrus.Logger
	now    func() time.Time
}

// NewRedisLimiter creates a Redis backed limiter. Keys are written as
// <prefix>ratelimit:<key>.
func NewRedisLimiter(
	rdb redis.UniversalClient,
	prefix, name string,
	length time.Duration,
	limit int,
	logger *logrus.Logger,
) *RedisLimiter {
	return &RedisLimiter{
		name:   name,
		length: length,
		limit:  limit,
		prefix: prefix,
		rdb:    rdb,
		logger: logger,
		now:    time.Now,
	}
}

// Name returns the endpoint class.
func (l *RedisLimiter) Name() string { return l.name }

// Max returns the per-window maximum.
func (l *RedisLimiter) Max() int { return l.limit }

// Check implements Limiter.
func (l *RedisLimiter) Check(ctx context.Context, key string) (Result, error) {
	values, err := fixedWindow.Run(ctx, l.rdb, []string{l.prefix + "ratelimit:" + key}, l.length.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(values) != 2 {
		return Result{}, fmt.Errorf("rate limit script returned %d values", len(values))
	}

	count := int(values[0])
	resetAt := l.now().Add(time.Duration(values[1]) * time.Millisecond)
	return newResult(count, l.limit, resetAt), nil
}
