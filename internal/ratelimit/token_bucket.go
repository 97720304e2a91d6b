package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// KEYS[1] bucket hash. ARGV: refill per second, burst, idle ttl in ms.
// Replies {allowed, remaining tokens, retry after ms}. Remaining is a string
// because redis truncates Lua numbers to integers.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])

local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "at")
local tokens = tonumber(state[1]) or burst
local at = tonumber(state[2]) or now
if now > at then
  tokens = math.min(burst, tokens + (now - at) * rate / 1000)
end

local allowed = 0
local wait = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait = math.ceil((1 - tokens) * 1000 / rate)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "at", now)
redis.call("PEXPIRE", KEYS[1], ARGV[3])

return {allowed, tostring(tokens), wait}
`

var (
	ErrNotConfigured = errors.New("rate limiter not configured")
	ErrEmptyKey      = errors.New("rate limiter key is empty")
	ErrInvalidRate   = errors.New("rate limiter rate must be positive")
)

// TokenBucket is a redis-backed bucket shared by every portal replica.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

// Allow takes one token from key. perSecond is the refill rate.
func (t *TokenBucket) Allow(ctx context.Context, key string, perSecond float64, burst int) (*RateLimitResult, error) {
	switch {
	case t == nil || t.client == nil:
		return &RateLimitResult{}, ErrNotConfigured
	case key == "":
		return &RateLimitResult{}, ErrEmptyKey
	case perSecond <= 0 || burst <= 0:
		return &RateLimitResult{}, ErrInvalidRate
	}

	idle := idleTTL(perSecond, burst)
	reply, err := t.script.Run(ctx, t.client, []string{key}, perSecond, burst, idle.Milliseconds()).Slice()
	if err != nil {
		return &RateLimitResult{}, err
	}
	return parseBucketReply(reply, burst)
}

func parseBucketReply(reply []any, burst int) (*RateLimitResult, error) {
	if len(reply) != 3 {
		return &RateLimitResult{}, fmt.Errorf("token bucket: unexpected reply of %d values", len(reply))
	}
	allowed, _ := reply[0].(int64)
	waitMS, _ := reply[2].(int64)
	raw, _ := reply[1].(string)
	remaining, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return &RateLimitResult{}, fmt.Errorf("token bucket: remaining %q: %w", raw, err)
	}
	return &RateLimitResult{
		Allowed:    allowed == 1,
		Limit:      burst,
		Remaining:  int(math.Floor(remaining)),
		RetryAfter: time.Duration(waitMS) * time.Millisecond,
	}, nil
}

// idleTTL keeps an untouched bucket for twice the time a full refill takes.
func idleTTL(perSecond float64, burst int) time.Duration {
	seconds := math.Ceil(float64(burst) / perSecond * 2)
	return time.Duration(math.Max(seconds, 1)) * time.Second
}
