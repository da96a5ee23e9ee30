//go:build !integration

package web

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"storyloom/internal/domain/ports/repository"
	"storyloom/internal/infra/redis"
	"storyloom/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

type mockStatsUC struct {
	JobCountsFunc func(ctx context.Context) (map[string]map[string]int, error)
}

func (m *mockStatsUC) JobCounts(ctx context.Context) (map[string]map[string]int, error) {
	if m.JobCountsFunc != nil {
		return m.JobCountsFunc(ctx)
	}
	return map[string]map[string]int{
		"pending":    {"story": 2},
		"processing": {},
	}, nil
}

type mockRetryUC struct {
	mu      sync.Mutex
	filters []repository.FailedJobFilter

	RetryFailedFunc func(ctx context.Context, f repository.FailedJobFilter) (*usecase.RetryReport, error)
}

func (m *mockRetryUC) RetryFailed(ctx context.Context, f repository.FailedJobFilter) (*usecase.RetryReport, error) {
	m.mu.Lock()
	m.filters = append(m.filters, f)
	m.mu.Unlock()
	if m.RetryFailedFunc != nil {
		return m.RetryFailedFunc(ctx, f)
	}
	return &usecase.RetryReport{Retried: []string{"job-1"}, Deleted: []string{}, Skipped: []usecase.SkippedJob{}}, nil
}

func (m *mockRetryUC) calls() []repository.FailedJobFilter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]repository.FailedJobFilter(nil), m.filters...)
}

// fakeRedisClient backs the rate limiter with an in-memory counter.
type fakeRedisClient struct {
	mu     sync.Mutex
	counts map[string]int64

	incrErr error
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{counts: map[string]int64{}}
}

func (f *fakeRedisClient) Ping(ctx context.Context) error { return nil }
func (f *fakeRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return nil
}
func (f *fakeRedisClient) Get(ctx context.Context, key string) (string, error) { return "", nil }

func (f *fakeRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incrErr != nil {
		return 0, f.incrErr
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (f *fakeRedisClient) Del(ctx context.Context, keys ...string) error { return nil }
func (f *fakeRedisClient) Close() error                                  { return nil }

type serverFixture struct {
	stats  *mockStatsUC
	retry  *mockRetryUC
	redis  *fakeRedisClient
	auth   *AuthManager
	server *Server
}

func newServerFixture() *serverFixture {
	f := &serverFixture{
		stats: &mockStatsUC{},
		retry: &mockRetryUC{},
		redis: newFakeRedisClient(),
		auth:  NewAuthManager("test-ops-jwt-secret-please-change", false, "", time.Minute),
	}
	f.server = NewServer(0, f.stats, f.retry, redis.NewRateLimiter(f.redis), f.auth, newTestLogger())
	return f
}
