package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/core/port"
	"github.com/arklim/auction-registry/internal/repository"
)

const defaultLockoutDuration = 15 * time.Minute

// LockoutPolicy configures the failed-attempt threshold and lockout length.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// LoginAttemptTracker drives the per-principal lockout state machine.
// Every transition runs through LoginStateRepository.MutateLoginState, which
// serializes concurrent attempts against the same principal.
type LoginAttemptTracker struct {
	states    port.LoginStateRepository
	threshold int
	lockout   time.Duration
	now       func() time.Time
}

// NewLoginAttemptTracker constructs a tracker. Zero policy values fall back to
// three failures and a fifteen minute lockout.
func NewLoginAttemptTracker(states port.LoginStateRepository, policy LockoutPolicy) *LoginAttemptTracker {
	t := &LoginAttemptTracker{
		states:    states,
		threshold: policy.Threshold,
		lockout:   policy.Duration,
		now:       time.Now,
	}
	if t.threshold <= 0 {
		t.threshold = domain.DefaultLockoutThreshold
	}
	if t.lockout <= 0 {
		t.lockout = defaultLockoutDuration
	}
	return t
}

// WithClock overrides the clock, primarily for deterministic testing.
func (t *LoginAttemptTracker) WithClock(now func() time.Time) *LoginAttemptTracker {
	if now != nil {
		t.now = now
	}
	return t
}

// Check expires an elapsed lockout and fails with *AccountLockedError while one is active.
func (t *LoginAttemptTracker) Check(ctx context.Context, principalID string) (domain.LoginSecurityState, error) {
	now := t.now().UTC()
	state, err := t.mutate(ctx, principalID, func(state *domain.LoginSecurityState) error {
		state.Refresh(now)
		return nil
	})
	if err != nil {
		return state, err
	}
	if state.IsLocked(now) {
		return state, &AccountLockedError{Until: *state.LockedUntil}
	}
	return state, nil
}

// RecordFailure counts a verified bad credential. It reports whether this failure engaged the lockout.
func (t *LoginAttemptTracker) RecordFailure(ctx context.Context, principalID string) (domain.LoginSecurityState, bool, error) {
	now := t.now().UTC()
	var locked bool
	state, err := t.mutate(ctx, principalID, func(state *domain.LoginSecurityState) error {
		locked = state.RegisterFailure(now, t.threshold, t.lockout)
		return nil
	})
	if err != nil {
		return state, false, err
	}
	return state, locked, nil
}

// RecordSuccess resets the counter after a successful authentication. A lockout engaged
// since Check by a concurrent failure is left in place and reported as *AccountLockedError.
func (t *LoginAttemptTracker) RecordSuccess(ctx context.Context, principalID string) error {
	now := t.now().UTC()
	_, err := t.mutate(ctx, principalID, func(state *domain.LoginSecurityState) error {
		state.Refresh(now)
		if state.IsLocked(now) {
			return &AccountLockedError{Until: *state.LockedUntil}
		}
		state.Reset()
		return nil
	})
	return err
}

// AdminReset clears the counter and any lockout.
func (t *LoginAttemptTracker) AdminReset(ctx context.Context, principalID string) error {
	_, err := t.mutate(ctx, principalID, func(state *domain.LoginSecurityState) error {
		state.Reset()
		return nil
	})
	return err
}

func (t *LoginAttemptTracker) mutate(ctx context.Context, principalID string, fn func(state *domain.LoginSecurityState) error) (domain.LoginSecurityState, error) {
	state, err := t.states.MutateLoginState(ctx, principalID, fn)
	if err != nil {
		var locked *AccountLockedError
		if errors.As(err, &locked) {
			return state, locked
		}
		if errors.Is(err, repository.ErrNotFound) {
			return state, ErrPrincipalNotFound
		}
		return state, fmt.Errorf("update login state: %w", err)
	}
	return state, nil
}
