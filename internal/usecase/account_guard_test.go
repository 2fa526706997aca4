package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/repository/memory"
)

// fakeHasher salts every hash with a counter so equal passwords never produce equal hashes.
type fakeHasher struct {
	mu sync.Mutex
	n  int
}

func (h *fakeHasher) Hash(password string) (string, error) {
	h.mu.Lock()
	h.n++
	n := h.n
	h.mu.Unlock()
	return fmt.Sprintf("salt%d$%s", n, password), nil
}

func (h *fakeHasher) Verify(password, encoded string) (bool, error) {
	i := strings.Index(encoded, "$")
	if i < 0 {
		return false, errors.New("malformed hash")
	}
	return encoded[i+1:] == password, nil
}

type stubPolicy struct {
	err error
}

func (p stubPolicy) Validate(string, ...string) error { return p.err }

type stubSessions struct{}

func (stubSessions) Issue(_ context.Context, principal domain.Principal, at time.Time) (domain.Session, error) {
	return domain.Session{
		ID:          "sess-" + principal.ID,
		PrincipalID: principal.ID,
		Token:       "token-" + principal.ID,
		IssuedAt:    at,
		ExpiresAt:   at.Add(time.Hour),
	}, nil
}

type recordingSecurityEvents struct {
	mu       sync.Mutex
	locked   []domain.AccountLockedEvent
	password []domain.PasswordChangedEvent
}

func (r *recordingSecurityEvents) PublishAccountLocked(_ context.Context, e domain.AccountLockedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = append(r.locked, e)
	return nil
}

func (r *recordingSecurityEvents) PublishPasswordChanged(_ context.Context, e domain.PasswordChangedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.password = append(r.password, e)
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type guardFixture struct {
	guard      *AccountSecurityGuard
	principals *memory.PrincipalStore
	limits     *memory.RateLimitStore
	hasher     *fakeHasher
	events     *recordingSecurityEvents
	clock      *testClock
	policy     *stubPolicy
}

const (
	alicePassword = "correct horse battery staple"
	origin        = "203.0.113.7"
)

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	hasher := &fakeHasher{}
	principals := memory.NewPrincipalStore()
	limits := memory.NewRateLimitStore()
	events := &recordingSecurityEvents{}
	policy := &stubPolicy{}

	hash, _ := hasher.Hash(alicePassword)
	principals.Put(domain.Principal{ID: "p-alice", Identifier: "Alice", PasswordHash: hash, Active: true})
	principals.Put(domain.Principal{ID: "p-admin", Identifier: "admin", Active: true, Capabilities: []string{"security.admin"}})

	tracker := NewLoginAttemptTracker(principals, LockoutPolicy{Threshold: 3, Duration: 15 * time.Minute}).WithClock(clock.Now)
	limiter := NewRateLimiter(limits, RateLimitPolicy{MaxAttempts: 5, Window: time.Minute}).WithClock(clock.Now)

	guard := NewAccountSecurityGuard(GuardDependencies{
		Principals:  principals,
		Credentials: principals,
		Tracker:     tracker,
		Limiter:     limiter,
		History:     NewPasswordHistoryValidator(hasher, 10),
		Hasher:      hasher,
		Policy:      policy,
		Sessions:    stubSessions{},
	}).
		WithAudit(principals).
		WithEvents(events).
		WithCapabilities(principals).
		WithClock(clock.Now)

	return &guardFixture{
		guard:      guard,
		principals: principals,
		limits:     limits,
		hasher:     hasher,
		events:     events,
		clock:      clock,
		policy:     policy,
	}
}

func (f *guardFixture) login(password string) (*domain.Session, error) {
	return f.guard.Authenticate(context.Background(), AuthenticateInput{Identifier: "alice", Password: password, Origin: origin})
}

func (f *guardFixture) state(t *testing.T) domain.LoginSecurityState {
	t.Helper()
	p, err := f.principals.GetByID(context.Background(), "p-alice")
	if err != nil {
		t.Fatalf("load principal: %v", err)
	}
	return p.LoginState
}

// The third consecutive failure engages the lock; the fourth attempt is the first one rejected
// as locked, even with the correct password.
func TestAuthenticateLocksOnThirdFailureAndRejectsFourthAttempt(t *testing.T) {
	f := newGuardFixture(t)

	for i := 1; i <= 3; i++ {
		if _, err := f.login("wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("failure %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	state := f.state(t)
	if state.FailedAttempts != 3 || state.LockedUntil == nil {
		t.Fatalf("expected lock after third failure, got %+v", state)
	}
	lockedUntil := *state.LockedUntil
	if len(f.events.locked) != 1 {
		t.Fatalf("expected one lockout event, got %d", len(f.events.locked))
	}

	_, err := f.login(alicePassword)
	var lockedErr *AccountLockedError
	if !errors.As(err, &lockedErr) || !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("fourth attempt: expected AccountLocked, got %v", err)
	}
	if !lockedErr.Until.Equal(lockedUntil) {
		t.Fatalf("expected lock until %s, got %s", lockedUntil, lockedErr.Until)
	}

	f.clock.Advance(5 * time.Minute)
	if _, err := f.login("wrong"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("attempt while locked: expected AccountLocked, got %v", err)
	}
	state = f.state(t)
	if state.FailedAttempts != 3 || !state.LockedUntil.Equal(lockedUntil) {
		t.Fatalf("locked attempts must not move the counter or extend the lock, got %+v", state)
	}

	f.clock.Advance(10 * time.Minute)
	session, err := f.login(alicePassword)
	if err != nil {
		t.Fatalf("login after lock expiry: %v", err)
	}
	if session.PrincipalID != "p-alice" || session.Token == "" {
		t.Fatalf("unexpected session %+v", session)
	}
	state = f.state(t)
	if state.FailedAttempts != 0 || state.LockedUntil != nil {
		t.Fatalf("successful login must reset state, got %+v", state)
	}
}

func TestAuthenticateThrottlesUnknownIdentifierOnSixthAttempt(t *testing.T) {
	f := newGuardFixture(t)
	ctx := context.Background()
	in := AuthenticateInput{Identifier: "ghost@example.com", Password: "guess", Origin: origin}

	for i := 1; i <= 5; i++ {
		if _, err := f.guard.Authenticate(ctx, in); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
		f.clock.Advance(time.Second)
	}

	_, err := f.guard.Authenticate(ctx, in)
	var throttled *TooManyAttemptsError
	if !errors.As(err, &throttled) || !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("sixth attempt: expected TooManyAttempts, got %v", err)
	}
	if throttled.RetryAfter != 55*time.Second {
		t.Fatalf("expected 55s retry-after, got %s", throttled.RetryAfter)
	}

	other := in
	other.Origin = "198.51.100.2"
	if _, err := f.guard.Authenticate(ctx, other); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("another origin must not be throttled, got %v", err)
	}

	f.clock.Advance(time.Minute)
	if _, err := f.guard.Authenticate(ctx, in); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("window expiry must lift the throttle, got %v", err)
	}
}

func TestAuthenticateThrottleDoesNotTouchLockout(t *testing.T) {
	f := newGuardFixture(t)
	key := LoginRateLimitKey("alice", origin)
	for i := 0; i < 5; i++ {
		if err := f.limits.RecordAttempt(context.Background(), key, f.clock.Now()); err != nil {
			t.Fatalf("seed attempt: %v", err)
		}
	}

	if _, err := f.login(alicePassword); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected TooManyAttempts, got %v", err)
	}
	if state := f.state(t); state.FailedAttempts != 0 || state.LockedUntil != nil {
		t.Fatalf("throttled attempts must not touch login state, got %+v", state)
	}
}

func TestAuthenticateDeactivatedAccountKeepsCounters(t *testing.T) {
	f := newGuardFixture(t)
	if _, err := f.login("wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	p, _ := f.principals.GetByID(context.Background(), "p-alice")
	p.Active = false
	f.principals.Put(*p)

	if _, err := f.login(alicePassword); !errors.Is(err, ErrAccountDeactivated) {
		t.Fatalf("expected ErrAccountDeactivated, got %v", err)
	}
	if state := f.state(t); state.FailedAttempts != 1 {
		t.Fatalf("deactivated login must not reset counters, got %+v", state)
	}
	count, _ := f.limits.CountAttempts(context.Background(), LoginRateLimitKey("alice", origin), time.Minute, f.clock.Now())
	if count != 1 {
		t.Fatalf("deactivated login must not clear the limiter, got %d", count)
	}
}

func TestAuthenticateSuccessClearsLimiterAndAudits(t *testing.T) {
	f := newGuardFixture(t)
	for i := 0; i < 2; i++ {
		if _, err := f.login("wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
	if _, err := f.login(alicePassword); err != nil {
		t.Fatalf("login: %v", err)
	}

	count, _ := f.limits.CountAttempts(context.Background(), LoginRateLimitKey("alice", origin), time.Minute, f.clock.Now())
	if count != 0 {
		t.Fatalf("success must clear the limiter, got %d", count)
	}

	attempts := f.principals.Attempts()
	if len(attempts) != 3 {
		t.Fatalf("expected three audited attempts, got %d", len(attempts))
	}
	if attempts[2].Outcome != domain.LoginSucceeded || attempts[2].PrincipalID == nil || *attempts[2].PrincipalID != "p-alice" {
		t.Fatalf("unexpected audit entry %+v", attempts[2])
	}
	if attempts[0].Outcome != domain.LoginFailed || attempts[0].Origin != origin {
		t.Fatalf("unexpected audit entry %+v", attempts[0])
	}
}

func TestAuthenticateConcurrentFailuresLockExactlyAtThreshold(t *testing.T) {
	f := newGuardFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.guard.Authenticate(context.Background(), AuthenticateInput{
				Identifier: "alice",
				Password:   "wrong",
				Origin:     fmt.Sprintf("10.0.0.%d", i),
			})
			if !errors.Is(err, ErrInvalidCredentials) && !errors.Is(err, ErrAccountLocked) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	state := f.state(t)
	if state.FailedAttempts != 3 || state.LockedUntil == nil {
		t.Fatalf("expected counter to stop at threshold with lock engaged, got %+v", state)
	}
	if len(f.events.locked) != 1 {
		t.Fatalf("lock must engage exactly once, got %d events", len(f.events.locked))
	}
}

func TestChangePasswordRejectsRecentReuse(t *testing.T) {
	f := newGuardFixture(t)
	ctx := context.Background()

	current := alicePassword
	for i := 1; i <= 10; i++ {
		next := fmt.Sprintf("P%d-long-enough-secret", i)
		if _, err := f.guard.ChangePassword(ctx, ChangePasswordInput{PrincipalID: "p-alice", CurrentPassword: current, NewPassword: next}); err != nil {
			t.Fatalf("change to %s: %v", next, err)
		}
		current = next
		f.clock.Advance(time.Minute)
	}

	before, _ := f.principals.GetByID(ctx, "p-alice")
	_, err := f.guard.ChangePassword(ctx, ChangePasswordInput{PrincipalID: "p-alice", CurrentPassword: current, NewPassword: "P5-long-enough-secret"})
	if !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("expected ErrPasswordReused, got %v", err)
	}
	after, _ := f.principals.GetByID(ctx, "p-alice")
	if after.PasswordHash != before.PasswordHash {
		t.Fatalf("reuse rejection must not persist anything")
	}
	history, _ := f.principals.ListRecent(ctx, "p-alice", 0)
	if len(history) != 10 {
		t.Fatalf("expected 10 history entries, got %d", len(history))
	}

	if _, err := f.guard.ChangePassword(ctx, ChangePasswordInput{PrincipalID: "p-alice", CurrentPassword: current, NewPassword: "P11-long-enough-secret"}); err != nil {
		t.Fatalf("change to P11: %v", err)
	}
	history, _ = f.principals.ListRecent(ctx, "p-alice", 0)
	if len(history) != 10 {
		t.Fatalf("history must be pruned to depth, got %d", len(history))
	}
	if ok, _ := f.hasher.Verify("P11-long-enough-secret", history[0].PasswordHash); !ok {
		t.Fatalf("newest history entry should be P11")
	}
	if len(f.events.password) != 11 {
		t.Fatalf("expected 11 password events, got %d", len(f.events.password))
	}

	if _, err := f.guard.ChangePassword(ctx, ChangePasswordInput{PrincipalID: "p-alice", CurrentPassword: "P11-long-enough-secret", NewPassword: "P11-long-enough-secret"}); !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("current password must count as reuse, got %v", err)
	}
}

func TestChangePasswordEnforcesPolicyAndCurrentPassword(t *testing.T) {
	f := newGuardFixture(t)
	ctx := context.Background()

	f.policy.err = errors.New("too guessable")
	if _, err := f.guard.ChangePassword(ctx, ChangePasswordInput{PrincipalID: "p-alice", CurrentPassword: alicePassword, NewPassword: "password"}); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}

	f.policy.err = nil
	if _, err := f.guard.ChangePassword(ctx, ChangePasswordInput{PrincipalID: "p-alice", CurrentPassword: "nope", NewPassword: "a fresh passphrase"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if history, _ := f.principals.ListRecent(ctx, "p-alice", 0); len(history) != 0 {
		t.Fatalf("failed changes must not append history, got %d", len(history))
	}
}

func TestUnlockAccountRequiresAdminCapability(t *testing.T) {
	f := newGuardFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = f.login("wrong")
	}

	if err := f.guard.UnlockAccount(ctx, "p-alice", "p-alice"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if err := f.guard.UnlockAccount(ctx, "p-admin", "p-missing"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
	if err := f.guard.UnlockAccount(ctx, "p-admin", "p-alice"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if state := f.state(t); state.FailedAttempts != 0 || state.LockedUntil != nil {
		t.Fatalf("admin reset must clear both fields, got %+v", state)
	}
	if _, err := f.login(alicePassword); err != nil {
		t.Fatalf("login after unlock: %v", err)
	}
}

func TestResetPasswordSkipsCurrentPasswordForAdmins(t *testing.T) {
	f := newGuardFixture(t)
	ctx := context.Background()

	_, err := f.guard.ResetPassword(ctx, ResetPasswordInput{ActorID: "p-alice", PrincipalID: "p-alice", NewPassword: "a fresh passphrase"})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if _, err := f.guard.ResetPassword(ctx, ResetPasswordInput{ActorID: "p-admin", PrincipalID: "p-missing", NewPassword: "a fresh passphrase"}); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}

	result, err := f.guard.ResetPassword(ctx, ResetPasswordInput{ActorID: "p-admin", PrincipalID: "p-alice", NewPassword: "a fresh passphrase"})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if result.PrincipalID != "p-alice" || !result.ChangedAt.Equal(f.clock.Now()) {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, err := f.login("a fresh passphrase"); err != nil {
		t.Fatalf("login with reset password: %v", err)
	}
	if len(f.events.password) != 1 {
		t.Fatalf("expected one password event, got %d", len(f.events.password))
	}

	if _, err := f.guard.ResetPassword(ctx, ResetPasswordInput{ActorID: "p-admin", PrincipalID: "p-alice", NewPassword: "a fresh passphrase"}); !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("reset must still reject reuse, got %v", err)
	}
}
