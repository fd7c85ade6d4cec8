package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrRateLimited   = errors.New("rate limited")
	ErrUnknownBucket = errors.New("unknown bucket")
	ErrInvalidConfig = errors.New("invalid bucket config")
)

// BucketID identifies the endpoint class a bucket protects.
type BucketID string

const (
	BucketLogin          BucketID = "login"
	BucketForgotPassword BucketID = "forgot-password"
)

// BucketConfig configures a token bucket: it holds at most Capacity tokens,
// and Refill tokens are added every full Interval.
type BucketConfig struct {
	Capacity int
	Refill   int
	Interval time.Duration
}

func (c BucketConfig) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("%w: capacity must be at least 1, got %d", ErrInvalidConfig, c.Capacity)
	}

	if c.Refill < 1 {
		return fmt.Errorf("%w: refill must be at least 1, got %d", ErrInvalidConfig, c.Refill)
	}

	if c.Interval < time.Millisecond {
		return fmt.Errorf("%w: interval must be at least 1ms, got %s", ErrInvalidConfig, c.Interval)
	}

	return nil
}

// DefaultConfigs returns the bucket configuration for every endpoint class.
// Capacity exceeds the refill rate to absorb bursts, the refill rate caps
// the sustained throughput.
func DefaultConfigs() map[BucketID]BucketConfig {
	return map[BucketID]BucketConfig{
		BucketLogin: {
			Capacity: 100,
			Refill:   5,
			Interval: time.Minute,
		},
		BucketForgotPassword: {
			Capacity: 100,
			Refill:   3,
			Interval: time.Hour,
		},
	}
}

// Bucket is a token bucket. TryAcquire debits a single token and reports
// true if one was available, it never debits when it reports false.
type Bucket interface {
	TryAcquire(ctx context.Context) (bool, error)
}

// MemoryBucket is a token bucket for a single process. It's safe for
// concurrent use.
type MemoryBucket struct {
	cfg BucketConfig

	mu         sync.Mutex
	tokens     int
	lastRefill time.Time

	// Created is when the bucket was created, intervals are counted from it.
	// Exposed for testing purposes, set it before the first TryAcquire.
	Created time.Time

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

// NewMemoryBucket creates a bucket that starts full.
func NewMemoryBucket(cfg BucketConfig) (*MemoryBucket, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &MemoryBucket{
		cfg:     cfg,
		tokens:  cfg.Capacity,
		Created: time.Now(),
		NowFunc: time.Now,
	}, nil
}

func (b *MemoryBucket) TryAcquire(_ context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(b.NowFunc())

	if b.tokens < 1 {
		return false, nil
	}

	b.tokens--
	return true, nil
}

// refill adds Refill tokens for every full interval since the last refill.
// The last refill moves forward by whole intervals only, so a partial
// interval is carried over to the next call.
func (b *MemoryBucket) refill(now time.Time) {
	if b.lastRefill.IsZero() {
		b.lastRefill = b.Created
	}

	elapsed := now.Sub(b.lastRefill)
	if elapsed < b.cfg.Interval {
		return
	}

	intervals := int64(elapsed / b.cfg.Interval)
	b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * b.cfg.Interval)

	missing := int64(b.cfg.Capacity - b.tokens)
	if intervals >= missing || intervals*int64(b.cfg.Refill) >= missing {
		b.tokens = b.cfg.Capacity
		return
	}

	b.tokens += int(intervals) * b.cfg.Refill
}
