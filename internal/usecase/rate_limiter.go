package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arklim/auction-registry/internal/core/port"
)

const (
	loginRateLimitScope = "login"

	defaultLoginMaxAttempts = 5
	defaultLoginWindow      = time.Minute
)

// RateLimitPolicy configures the attempt ceiling within a sliding window.
type RateLimitPolicy struct {
	MaxAttempts int
	Window      time.Duration
}

// RateLimiter throttles attempt volume per key using a sliding window in a RateLimitStore.
// It fails closed: store errors are returned to the caller.
type RateLimiter struct {
	store  port.RateLimitStore
	scope  string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter constructs a limiter. Zero policy values fall back to five attempts per minute.
func NewRateLimiter(store port.RateLimitStore, policy RateLimitPolicy) *RateLimiter {
	l := &RateLimiter{
		store:  store,
		scope:  loginRateLimitScope,
		limit:  policy.MaxAttempts,
		window: policy.Window,
		now:    time.Now,
	}
	if l.limit <= 0 {
		l.limit = defaultLoginMaxAttempts
	}
	if l.window <= 0 {
		l.window = defaultLoginWindow
	}
	return l
}

// WithClock overrides the clock, primarily for deterministic testing.
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		l.now = now
	}
	return l
}

// LoginRateLimitKey builds the limiter key for an identifier and request origin.
func LoginRateLimitKey(identifier, origin string) string {
	return fmt.Sprintf("%s:%s:%s", loginRateLimitScope, strings.ToLower(strings.TrimSpace(identifier)), strings.TrimSpace(origin))
}

// Check fails with *TooManyAttemptsError once the ceiling is reached inside the window.
func (l *RateLimiter) Check(ctx context.Context, key string) error {
	now := l.now().UTC()

	if err := l.store.TrimWindow(ctx, key, l.window, now); err != nil {
		return fmt.Errorf("trim rate limit window: %w", err)
	}

	count, err := l.store.CountAttempts(ctx, key, l.window, now)
	if err != nil {
		return fmt.Errorf("count rate limit attempts: %w", err)
	}
	if count < l.limit {
		return nil
	}

	retryAfter := l.window
	oldest, ok, err := l.store.OldestAttempt(ctx, key, l.window, now)
	if err != nil {
		return fmt.Errorf("lookup oldest rate limit attempt: %w", err)
	}
	if ok {
		retryAfter = 0
		if reset := oldest.Add(l.window); reset.After(now) {
			retryAfter = reset.Sub(now)
		}
	}
	return &TooManyAttemptsError{Scope: l.scope, RetryAfter: retryAfter}
}

// Hit records one attempt against key.
func (l *RateLimiter) Hit(ctx context.Context, key string) error {
	if err := l.store.RecordAttempt(ctx, key, l.now().UTC()); err != nil {
		return fmt.Errorf("record rate limit attempt: %w", err)
	}
	return nil
}

// Clear forgets every attempt recorded against key.
func (l *RateLimiter) Clear(ctx context.Context, key string) error {
	if err := l.store.ClearAttempts(ctx, key); err != nil {
		return fmt.Errorf("clear rate limit attempts: %w", err)
	}
	return nil
}
