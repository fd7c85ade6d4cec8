package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRedisUnavailable = errors.New("redis unavailable")

// tokenBucketScript performs the refill and debit of a bucket atomically.
// The bucket is stored as a hash with the fields tokens and last (unix ms).
// A missing bucket is a full bucket, so the key expires once it would
// have been refilled completely. A missing bucket counts its intervals
// from the creation of the RedisBucket.
//
// KEYS[1]: bucket key
// ARGV: capacity, refill, interval (ms), now (unix ms), created (unix ms)
var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local created = tonumber(ARGV[5])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'last')
local tokens = capacity
local last = now
if now >= created then
  last = created + math.floor((now - created) / interval) * interval
end
if state[1] and state[2] then
  tokens = tonumber(state[1])
  last = tonumber(state[2])
end

local elapsed = now - last
if elapsed >= interval then
  local intervals = math.floor(elapsed / interval)
  tokens = math.min(capacity, tokens + intervals * refill)
  last = last + intervals * interval
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'last', last)

local ttl = math.ceil((capacity - tokens) / refill) * interval + interval
redis.call('PEXPIRE', KEYS[1], ttl)

return allowed
`)

// RedisBucket is a token bucket shared by every process that uses the
// same redis key.
type RedisBucket struct {
	client redis.UniversalClient
	key    string
	cfg    BucketConfig

	// Created is when the bucket was created, intervals are counted from it.
	// Exposed for testing purposes.
	Created time.Time

	// NowFunc is used to get the current time. Processes sharing a
	// bucket should have reasonably synchronized clocks.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

// NewRedisBucket creates a bucket stored under key. A bucket that does not
// exist yet starts full.
func NewRedisBucket(client redis.UniversalClient, key string, cfg BucketConfig) (*RedisBucket, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &RedisBucket{
		client:  client,
		key:     key,
		cfg:     cfg,
		Created: time.Now(),
		NowFunc: time.Now,
	}, nil
}

func (b *RedisBucket) TryAcquire(ctx context.Context) (bool, error) {
	allowed, err := tokenBucketScript.Run(ctx, b.client, []string{b.key},
		b.cfg.Capacity,
		b.cfg.Refill,
		b.cfg.Interval.Milliseconds(),
		b.NowFunc().UnixMilli(),
		b.Created.UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}

	return allowed == 1, nil
}
