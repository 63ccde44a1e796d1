// Package ratelimit throttles outbound call placements so a burst of due
// tasks cannot flood the call platform.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PlacementLimiter is a Redis-backed token bucket keyed per owner agent, so
// one agent's backlog does not starve the others. State lives in Redis because
// multiple scheduler instances may place calls concurrently.
type PlacementLimiter struct {
	client   *redis.Client
	capacity int
	refill   float64 // tokens per second
	ttl      time.Duration
}

func NewPlacementLimiter(client *redis.Client, capacity int, refillPerSecond float64, ttl time.Duration) *PlacementLimiter {
	return &PlacementLimiter{
		client:   client,
		capacity: capacity,
		refill:   refillPerSecond,
		ttl:      ttl,
	}
}

// Allow consumes one placement token for the agent if available. A denied
// placement is not an error; the task stays pending and a later tick retries.
func (l *PlacementLimiter) Allow(ctx context.Context, agentID string) (bool, error) {
	key := "callrate:" + agentID
	now := time.Now().UnixMilli()
	res, err := bucketScript.Run(ctx, l.client, []string{key},
		l.capacity, l.refill, now, l.ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("placement limiter: %w", err)
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 1 {
		return false, fmt.Errorf("placement limiter: unexpected script result %T", res)
	}
	allowed, ok := arr[0].(int64)
	if !ok {
		return false, fmt.Errorf("placement limiter: unexpected allowed flag %T", arr[0])
	}
	return allowed == 1, nil
}

// The refill clock comes from the caller, not Redis, so all instances share
// one timeline even across Redis failovers.
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(data[1])
local last = tonumber(data[2])
if tokens == nil then tokens = capacity end
if last == nil then last = now end

local elapsed = math.max(0, now - last)
tokens = math.min(capacity, tokens + elapsed / 1000 * refill)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('HMSET', key, 'tokens', tokens, 'last_ms', now)
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return {allowed}
`)
