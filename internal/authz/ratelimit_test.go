package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type fakeCounterStore struct {
	counts  map[string]int64
	armed   map[string]int
	incrErr error
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{
		counts: make(map[string]int64),
		armed:  make(map[string]int),
	}
}

func (f *fakeCounterStore) Incr(ctx context.Context, key string) *goredis.IntCmd {
	if f.incrErr != nil {
		return goredis.NewIntResult(0, f.incrErr)
	}
	f.counts[key]++
	return goredis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCounterStore) Expire(ctx context.Context, key string, ttl time.Duration) *goredis.BoolCmd {
	f.armed[key]++
	return goredis.NewBoolResult(true, nil)
}

// expire mimics Redis dropping the key when its TTL lapses.
func (f *fakeCounterStore) expire(key string) {
	delete(f.counts, key)
}

func TestRedisLimiterWindowResets(t *testing.T) {
	store := newFakeCounterStore()
	limiter := &RedisLimiter{client: store, window: time.Minute, max: 2}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "k")
		if err != nil || !allowed {
			t.Fatalf("request %d: allowed=%v err=%v", i+1, allowed, err)
		}
	}
	if allowed, _ := limiter.Allow(ctx, "k"); allowed {
		t.Fatal("third request in window should be rejected")
	}

	// Only the request that created the key may arm the expiry; re-arming
	// on every call would keep the counter alive forever under steady
	// traffic.
	if store.armed["k"] != 1 {
		t.Fatalf("expiry armed %d times, want 1", store.armed["k"])
	}

	// Once the key lapses a new window starts fresh and is re-armed.
	store.expire("k")
	allowed, err := limiter.Allow(ctx, "k")
	if err != nil || !allowed {
		t.Fatalf("post-window request: allowed=%v err=%v", allowed, err)
	}
	if store.armed["k"] != 2 {
		t.Fatalf("expiry armed %d times after reset, want 2", store.armed["k"])
	}
}

func TestRedisLimiterStoreError(t *testing.T) {
	store := newFakeCounterStore()
	store.incrErr = errors.New("connection refused")
	limiter := &RedisLimiter{client: store, window: time.Minute, max: 2}

	allowed, err := limiter.Allow(context.Background(), "k")
	if allowed || err == nil {
		t.Fatalf("store failure must surface: allowed=%v err=%v", allowed, err)
	}
}

func TestMemoryLimiterWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	limiter := NewMemoryLimiter(time.Minute, 2, WithLimiterClock(clock))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "k")
		if err != nil || !allowed {
			t.Fatalf("request %d: allowed=%v err=%v", i+1, allowed, err)
		}
	}

	allowed, err := limiter.Allow(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("third request in window should be rejected")
	}

	// A new window starts fresh.
	now = now.Add(61 * time.Second)
	allowed, err = limiter.Allow(ctx, "k")
	if err != nil || !allowed {
		t.Fatalf("post-window request: allowed=%v err=%v", allowed, err)
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewMemoryLimiter(time.Minute, 1)
	ctx := context.Background()

	if allowed, _ := limiter.Allow(ctx, "a"); !allowed {
		t.Fatal("first request on key a rejected")
	}
	if allowed, _ := limiter.Allow(ctx, "a"); allowed {
		t.Fatal("second request on key a should be rejected")
	}
	if allowed, _ := limiter.Allow(ctx, "b"); !allowed {
		t.Fatal("key b must not share key a's budget")
	}
}
