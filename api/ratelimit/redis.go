// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package ratelimit

import (
	"time"

	"github.com/go-redis/redis/v7"
)

// tokenBucketScript keeps refill math inside Redis so concurrent
// coordinator replicas never race on the same key's bucket: HMGET the
// current tokens/timestamp, refill, attempt the withdrawal, HMSET back.
const tokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refillPerSec = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local data = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])
if tokens == nil then
  tokens = capacity
  ts = now
end

local elapsed = math.max(0, now - ts)
tokens = math.min(capacity, tokens + elapsed * refillPerSec)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HMSET", key, "tokens", tokens, "ts", now)
redis.call("EXPIRE", key, math.ceil(capacity / refillPerSec) + 1)

return {allowed, tokens}
`

// Redis is the production-profile Limiter: bucket state lives in Redis
// so every coordinator replica enforces the same budget per key.
type Redis struct {
	client *redis.Client
}

func NewRedis(addr string) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (l *Redis) Allow(key string, tokens int, refillPerSec float64) (bool, time.Duration, error) {
	now := float64(time.Now().UnixNano()) / 1e9
	res, err := l.client.Eval(tokenBucketScript, []string{"ratelimit:" + key},
		tokens, refillPerSec, now).Result()
	if err != nil {
		return false, 0, err
	}
	vals := res.([]interface{})
	allowed := vals[0].(int64) == 1
	if allowed {
		return true, 0, nil
	}
	remaining := vals[1].(int64)
	deficit := 1 - float64(remaining)
	retryAfter := time.Duration(deficit/refillPerSec*1000) * time.Millisecond
	return false, retryAfter, nil
}

func (l *Redis) Close() error {
	return l.client.Close()
}
