package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// bucketIdleTTL drops a bucket that has not been touched for this long. A
// fresh bucket starts full, so expiry never makes a client worse off.
const bucketIdleTTL = 5 * time.Minute

// RateLimitResult reports one bucket decision.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// takeToken refills the bucket for the elapsed milliseconds and tries to take
// one token. Returns {allowed, retry_after_ms, remaining}.
var takeToken = redis.NewScript(`
local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local per_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])

local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now_ms
if now_ms > ts then
	tokens = math.min(capacity, tokens + (now_ms - ts) * per_ms)
end

local allowed = 0
local wait_ms = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
else
	wait_ms = math.ceil((1 - tokens) / per_ms)
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', now_ms)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {allowed, wait_ms, math.floor(tokens)}
`)

// CheckIPRateLimit spends one token from the bucket for ip within scope
// ("auth", "purchase_requests"). Only a hash of the address reaches Redis.
// A Redis failure lets the request through.
func (c *Cache) CheckIPRateLimit(ctx context.Context, scope, ip string, ratePerMinute, burst int) (*RateLimitResult, error) {
	now := time.Now()
	if ratePerMinute <= 0 {
		return unlimited(now, burst), nil
	}

	perMs := float64(ratePerMinute) / float64(time.Minute/time.Millisecond)
	res, err := takeToken.Run(ctx, c.client,
		[]string{key("ratelimit", scope, hashIP(ip))},
		perMs, burst, now.UnixMilli(), bucketIdleTTL.Milliseconds(),
	).Int64Slice()
	if err != nil || len(res) != 3 {
		return unlimited(now, burst), nil
	}

	refill := time.Duration(float64(time.Millisecond) / perMs)
	return &RateLimitResult{
		Allowed:    res[0] == 1,
		Remaining:  res[2],
		ResetAt:    now.Add(refill),
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
	}, nil
}

func unlimited(now time.Time, burst int) *RateLimitResult {
	return &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: now.Add(time.Minute)}
}

// hashIP returns the first 8 bytes of the SHA-256 of ip, hex encoded.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
