//go:build !integration

package redis

import (
	"context"
	"testing"
	"time"
)

type fakeRedisClient struct {
	counts  map[string]int64
	expires map[string]time.Duration
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (f *fakeRedisClient) Ping(ctx context.Context) error { return nil }
func (f *fakeRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return nil
}
func (f *fakeRedisClient) Get(ctx context.Context, key string) (string, error) { return "", nil }
func (f *fakeRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	f.counts[key]++
	return f.counts[key], nil
}
func (f *fakeRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	f.expires[key] = expiration
	return nil
}
func (f *fakeRedisClient) Del(ctx context.Context, keys ...string) error { return nil }
func (f *fakeRedisClient) Close() error                                  { return nil }

func TestRateLimiterAllow(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedisClient()
	rl := NewRateLimiter(fake)
	key := RetryKey("admin-1")

	t.Run("should allow up to the limit inside a window", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			ok, err := rl.Allow(ctx, key, 3, time.Minute)
			if err != nil {
				t.Fatalf("Allow returned error: %v", err)
			}
			if !ok {
				t.Fatalf("expected call %d to be allowed", i+1)
			}
		}
	})

	t.Run("should reject once the limit is exceeded", func(t *testing.T) {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		if err != nil {
			t.Fatalf("Allow returned error: %v", err)
		}
		if ok {
			t.Error("expected fourth call to be rejected")
		}
	})

	t.Run("should set the expiry on the first increment only", func(t *testing.T) {
		if d, set := fake.expires[key]; !set || d != time.Minute {
			t.Errorf("expected one-minute expiry on the window key, got %v (set=%v)", d, set)
		}
	})

	t.Run("keys should be per requester", func(t *testing.T) {
		other := RetryKey("admin-2")
		ok, err := rl.Allow(ctx, other, 3, time.Minute)
		if err != nil {
			t.Fatalf("Allow returned error: %v", err)
		}
		if !ok {
			t.Error("expected a fresh requester to be allowed")
		}
	})
}
