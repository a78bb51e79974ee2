package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const limiterTimeout = 5 * time.Second

// redisCounter is the slice of the Redis API the limiter needs.
type redisCounter interface {
	Incr(ctx context.Context, key string) *goredis.IntCmd
	Expire(ctx context.Context, key string, ttl time.Duration) *goredis.BoolCmd
}

// RedisLimiter is a fixed-window counter backed by Redis: INCR the window
// key, arming its expiry on creation. Chosen over sliding windows for its
// round-trip economy; bursts at window edges are acceptable for channel
// operations.
type RedisLimiter struct {
	client redisCounter
	window time.Duration
	max    int
}

// NewRedisLimiter creates a Redis-backed fixed-window limiter.
func NewRedisLimiter(client goredis.UniversalClient, window time.Duration, max int) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		window: window,
		max:    max,
	}
}

// Allow consumes one request under key. Store calls are bounded so a slow
// Redis never hangs the authorization path.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, limiterTimeout)
	defer cancel()

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit store: %w", err)
	}

	// Only the request that creates the key arms the expiry. Re-arming it
	// on every call would keep the key alive under sustained traffic and
	// turn the window counter into a lifetime counter.
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("rate limit store: %w", err)
		}
	}

	return count <= int64(l.max), nil
}

// MemoryLimiter is an in-process fixed-window counter for single-node
// deployments and tests.
type MemoryLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	now     func() time.Time
	buckets map[string]*windowBucket
}

type windowBucket struct {
	count   int
	resetAt time.Time
}

// MemoryLimiterOption configures optional MemoryLimiter behaviour.
type MemoryLimiterOption func(*MemoryLimiter)

// WithLimiterClock overrides the limiter clock.
func WithLimiterClock(now func() time.Time) MemoryLimiterOption {
	return func(l *MemoryLimiter) {
		l.now = now
	}
}

// NewMemoryLimiter creates an in-memory fixed-window limiter.
func NewMemoryLimiter(window time.Duration, max int, opts ...MemoryLimiterOption) *MemoryLimiter {
	l := &MemoryLimiter{
		window:  window,
		max:     max,
		now:     time.Now,
		buckets: make(map[string]*windowBucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow consumes one request under key.
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	bucket, ok := l.buckets[key]
	if !ok || now.After(bucket.resetAt) {
		bucket = &windowBucket{resetAt: now.Add(l.window)}
		l.buckets[key] = bucket
	}

	bucket.count++
	return bucket.count <= l.max, nil
}
