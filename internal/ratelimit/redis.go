package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript admits a request against a sorted-set sliding window.
// KEYS[1] = bucket key
// ARGV[1] = cutoff (unix micros)
// ARGV[2] = now (unix micros)
// ARGV[3] = max_requests
// ARGV[4] = window_micros
// ARGV[5] = member (unique per call, now concatenated with a counter)
//
// Adapted from core/pkg/kernel.redisTokenBucketScript's HMGET/refill/EXPIRE
// shape, swapped from a token bucket to a sorted-set sliding window so
// Redis enforces the same cutoff-and-prune rule as MemoryStore.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local cutoff = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local max_requests = tonumber(ARGV[3])
local window = tonumber(ARGV[4])
local member = ARGV[5]

redis.call("ZREMRANGEBYSCORE", key, "-inf", cutoff)
local count = redis.call("ZCARD", key)

local allowed = 0
if count < max_requests then
    redis.call("ZADD", key, now, member)
    allowed = 1
    count = count + 1
end
redis.call("PEXPIRE", key, math.ceil(window / 1000) + 1000)

return {allowed, count}
`)

// RedisStore implements Store against a shared Redis instance, letting
// multiple control-plane processes share one sliding-window counter.
type RedisStore struct {
	client *redis.Client
	seq    uint64
}

// NewRedisStore creates a store backed by Redis at addr.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Allow runs the sliding-window admission script atomically in Redis.
func (s *RedisStore) Allow(ctx context.Context, rule Rule, clientID string, now time.Time) (Info, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", rule.Name, clientID)
	nowMicros := now.UnixMicro()
	cutoff := now.Add(-rule.Window).UnixMicro()
	s.seq++
	member := fmt.Sprintf("%d-%d", nowMicros, s.seq)

	res, err := slidingWindowScript.Run(ctx, s.client, []string{key},
		cutoff, nowMicros, rule.MaxRequests, rule.Window.Microseconds(), member).Result()
	if err != nil {
		return Info{}, fmt.Errorf("ratelimit: redis script: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return Info{}, fmt.Errorf("ratelimit: unexpected redis script result")
	}
	allowed, _ := results[0].(int64)
	count, _ := results[1].(int64)

	if allowed == 1 {
		return Info{Allowed: true, Remaining: rule.MaxRequests - int(count)}, nil
	}
	return Info{Allowed: false, Remaining: 0, ResetTime: now.Add(rule.Window)}, nil
}

// Reset deletes the (rule, client) sorted set entirely.
func (s *RedisStore) Reset(ctx context.Context, rule Rule, clientID string) error {
	key := fmt.Sprintf("ratelimit:%s:%s", rule.Name, clientID)
	return s.client.Del(ctx, key).Err()
}

// Sweep is a no-op: Redis keys self-expire via PEXPIRE and ZREMRANGEBYSCORE
// prunes lazily on the next Allow call for that key.
func (s *RedisStore) Sweep(context.Context, time.Time) {}
