package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript increments a fixed-window counter atomically.
// KEYS[1] = counter key
// ARGV[1] = window length in milliseconds
// Returns {count, remaining ttl in milliseconds}.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
    ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore shares counters between replicas through Redis. The window
// expires with the key, so reset is handled by Redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store using client. Keys are namespaced by prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "assistant:ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":" + k
}

// Incr implements Store.
func (s *RedisStore) Incr(ctx context.Context, key string, now time.Time, window time.Duration) (Window, error) {
	res, err := incrScript.Run(ctx, s.client, []string{s.key(key)}, window.Milliseconds()).Result()
	if err != nil {
		return Window{}, fmt.Errorf("redis limiter error: %w", err)
	}
	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return Window{}, fmt.Errorf("invalid response from lua script")
	}
	count, _ := results[0].(int64)
	ttl, _ := results[1].(int64)
	return Window{Count: count, Start: windowStart(now, window, ttl)}, nil
}

// Peek implements Store.
func (s *RedisStore) Peek(ctx context.Context, key string, now time.Time, window time.Duration) (Window, error) {
	k := s.key(key)
	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, k)
	pttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Window{}, fmt.Errorf("redis limiter error: %w", err)
	}
	count, err := get.Int64()
	if errors.Is(err, redis.Nil) {
		return Window{Start: now}, nil
	}
	if err != nil {
		return Window{}, fmt.Errorf("redis limiter error: %w", err)
	}
	return Window{Count: count, Start: windowStart(now, window, pttl.Val().Milliseconds())}, nil
}

func windowStart(now time.Time, window time.Duration, ttlMillis int64) time.Time {
	if ttlMillis < 0 {
		return now
	}
	return now.Add(time.Duration(ttlMillis) * time.Millisecond).Add(-window)
}
