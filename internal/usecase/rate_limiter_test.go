package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/auction-registry/internal/repository/memory"
)

type failingRateLimitStore struct {
	*memory.RateLimitStore
	err error
}

func (s failingRateLimitStore) CountAttempts(context.Context, string, time.Duration, time.Time) (int, error) {
	return 0, s.err
}

func TestRateLimiterFailsClosedOnStoreError(t *testing.T) {
	boom := errors.New("redis unavailable")
	limiter := NewRateLimiter(failingRateLimitStore{RateLimitStore: memory.NewRateLimitStore(), err: boom}, RateLimitPolicy{})

	err := limiter.Check(context.Background(), LoginRateLimitKey("alice", "127.0.0.1"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error to surface, got %v", err)
	}
}

func TestRateLimiterDefaultsAndClear(t *testing.T) {
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(memory.NewRateLimitStore(), RateLimitPolicy{}).WithClock(func() time.Time { return now })
	ctx := context.Background()
	key := LoginRateLimitKey("  Alice ", "127.0.0.1")
	if key != "login:alice:127.0.0.1" {
		t.Fatalf("unexpected key %q", key)
	}

	for i := 0; i < defaultLoginMaxAttempts; i++ {
		if err := limiter.Check(ctx, key); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if err := limiter.Hit(ctx, key); err != nil {
			t.Fatalf("hit: %v", err)
		}
	}

	err := limiter.Check(ctx, key)
	var throttled *TooManyAttemptsError
	if !errors.As(err, &throttled) || throttled.RetryAfter != defaultLoginWindow {
		t.Fatalf("expected full-window retry-after, got %v", err)
	}

	if err := limiter.Clear(ctx, key); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := limiter.Check(ctx, key); err != nil {
		t.Fatalf("clear must reset the window, got %v", err)
	}
}
