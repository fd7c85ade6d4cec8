package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Limiter guards endpoint classes with one bucket each. Buckets are shared
// by every caller, there is no per identity tracking.
type Limiter struct {
	buckets map[BucketID]Bucket
}

func New(buckets map[BucketID]Bucket) *Limiter {
	return &Limiter{
		buckets: buckets,
	}
}

// NewMemory creates a Limiter with in-process buckets.
func NewMemory(cfgs map[BucketID]BucketConfig) (*Limiter, error) {
	buckets := make(map[BucketID]Bucket, len(cfgs))
	for id, cfg := range cfgs {
		b, err := NewMemoryBucket(cfg)
		if err != nil {
			return nil, fmt.Errorf("bucket %s: %w", id, err)
		}
		buckets[id] = b
	}

	return New(buckets), nil
}

// NewRedis creates a Limiter with buckets stored in redis, under keys
// prefixed with keyPrefix.
func NewRedis(client redis.UniversalClient, keyPrefix string, cfgs map[BucketID]BucketConfig) (*Limiter, error) {
	buckets := make(map[BucketID]Bucket, len(cfgs))
	for id, cfg := range cfgs {
		b, err := NewRedisBucket(client, keyPrefix+string(id), cfg)
		if err != nil {
			return nil, fmt.Errorf("bucket %s: %w", id, err)
		}
		buckets[id] = b
	}

	return New(buckets), nil
}

// TryAcquire takes a token from the bucket with the given id. It returns
// ErrRateLimited if the bucket is empty.
func (l *Limiter) TryAcquire(ctx context.Context, id BucketID) error {
	b, ok := l.buckets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBucket, id)
	}

	allowed, err := b.TryAcquire(ctx)
	if err != nil {
		return err
	}

	if !allowed {
		return ErrRateLimited
	}

	return nil
}
