package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/core/port"
	"github.com/arklim/auction-registry/internal/infra/logger"
	"github.com/arklim/auction-registry/internal/keylock"
	"github.com/arklim/auction-registry/internal/repository"
)

const (
	passwordChangeSucceeded = "succeeded"
	passwordChangeReused    = "reused"
	passwordChangeRejected  = "rejected"

	dummyPassword = "dummy-password-for-unknown-identifiers"
)

// AccountSecurityGuard composes the lockout tracker, rate limiter and password history
// into the authentication and credential change flows.
type AccountSecurityGuard struct {
	principals   port.PrincipalRepository
	credentials  port.CredentialUnitOfWork
	tracker      *LoginAttemptTracker
	limiter      *RateLimiter
	history      *PasswordHistoryValidator
	hasher       port.PasswordHasher
	policy       port.PasswordPolicyValidator
	sessions     port.SessionIssuer
	audit        port.LoginAuditRepository
	events       port.SecurityEventPublisher
	capabilities port.CapabilityLookup
	metrics      GuardMetrics
	locks        *keylock.Mutex
	logger       *zap.Logger
	now          func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// GuardDependencies groups the collaborators required by AccountSecurityGuard.
type GuardDependencies struct {
	Principals  port.PrincipalRepository
	Credentials port.CredentialUnitOfWork
	Tracker     *LoginAttemptTracker
	Limiter     *RateLimiter
	History     *PasswordHistoryValidator
	Hasher      port.PasswordHasher
	Policy      port.PasswordPolicyValidator
	Sessions    port.SessionIssuer
}

// AuthenticateInput carries a login attempt.
type AuthenticateInput struct {
	Identifier string
	Password   string
	Origin     string
}

// ChangePasswordInput carries a credential change for an authenticated principal.
type ChangePasswordInput struct {
	PrincipalID     string
	CurrentPassword string
	NewPassword     string
}

// ResetPasswordInput carries an administrator-initiated credential replacement.
// The target's current password is not required.
type ResetPasswordInput struct {
	ActorID     string
	PrincipalID string
	NewPassword string
}

// PasswordChangeResult summarizes a completed credential change.
type PasswordChangeResult struct {
	PrincipalID string
	ChangedAt   time.Time
}

// NewAccountSecurityGuard constructs the guard.
func NewAccountSecurityGuard(deps GuardDependencies) *AccountSecurityGuard {
	return &AccountSecurityGuard{
		principals:  deps.Principals,
		credentials: deps.Credentials,
		tracker:     deps.Tracker,
		limiter:     deps.Limiter,
		history:     deps.History,
		hasher:      deps.Hasher,
		policy:      deps.Policy,
		sessions:    deps.Sessions,
		locks:       keylock.New(),
		logger:      zap.NewNop(),
		now:         time.Now,
	}
}

// WithAudit records every attempt to the login audit trail.
func (g *AccountSecurityGuard) WithAudit(audit port.LoginAuditRepository) *AccountSecurityGuard {
	g.audit = audit
	return g
}

// WithEvents publishes lockout and password change events.
func (g *AccountSecurityGuard) WithEvents(events port.SecurityEventPublisher) *AccountSecurityGuard {
	g.events = events
	return g
}

// WithCapabilities enforces the admin capability on UnlockAccount and ResetPassword.
func (g *AccountSecurityGuard) WithCapabilities(capabilities port.CapabilityLookup) *AccountSecurityGuard {
	g.capabilities = capabilities
	return g
}

// WithMetrics wires telemetry observers.
func (g *AccountSecurityGuard) WithMetrics(metrics GuardMetrics) *AccountSecurityGuard {
	if metrics != nil {
		g.metrics = metrics
	}
	return g
}

// WithLogger attaches a structured logger.
func (g *AccountSecurityGuard) WithLogger(l *zap.Logger) *AccountSecurityGuard {
	if l != nil {
		g.logger = l
	}
	return g
}

// WithClock overrides the clock used for audit and credential timestamps.
func (g *AccountSecurityGuard) WithClock(now func() time.Time) *AccountSecurityGuard {
	if now != nil {
		g.now = now
	}
	return g
}

// Authenticate runs a login attempt through the rate limiter and lockout tracker before verifying the credential.
func (g *AccountSecurityGuard) Authenticate(ctx context.Context, in AuthenticateInput) (*domain.Session, error) {
	identifier := strings.TrimSpace(in.Identifier)
	if identifier == "" {
		return nil, ErrIdentifierRequired
	}
	origin := strings.TrimSpace(in.Origin)
	key := LoginRateLimitKey(identifier, origin)

	release := g.locks.Lock(key)
	defer release()

	attempt := domain.LoginAttempt{Identifier: identifier, Origin: origin}

	if err := g.limiter.Check(ctx, key); err != nil {
		if errors.Is(err, ErrTooManyAttempts) {
			g.recordAttempt(ctx, attempt, domain.LoginThrottled)
		}
		return nil, err
	}

	principal, err := g.principals.GetByIdentifier(ctx, identifier)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lookup principal: %w", err)
		}
		g.verifyDummy(in.Password)
		g.hit(ctx, key)
		g.recordAttempt(ctx, attempt, domain.LoginFailed)
		return nil, ErrInvalidCredentials
	}
	attempt.PrincipalID = &principal.ID

	if _, err := g.tracker.Check(ctx, principal.ID); err != nil {
		if errors.Is(err, ErrAccountLocked) {
			g.recordAttempt(ctx, attempt, domain.LoginLocked)
		}
		return nil, err
	}

	ok, err := g.hasher.Verify(in.Password, principal.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify credential: %w", err)
	}
	if !ok {
		state, locked, err := g.tracker.RecordFailure(ctx, principal.ID)
		if err != nil {
			return nil, err
		}
		if locked {
			g.lockedOut(ctx, principal.ID, state)
		}
		g.hit(ctx, key)
		g.recordAttempt(ctx, attempt, domain.LoginFailed)
		return nil, ErrInvalidCredentials
	}

	if !principal.Active {
		g.recordAttempt(ctx, attempt, domain.LoginDeactivated)
		return nil, ErrAccountDeactivated
	}

	if err := g.tracker.RecordSuccess(ctx, principal.ID); err != nil {
		if errors.Is(err, ErrAccountLocked) {
			g.recordAttempt(ctx, attempt, domain.LoginLocked)
		}
		return nil, err
	}
	if err := g.limiter.Clear(ctx, key); err != nil {
		g.logger.Warn("login rate limit clear failed", zap.String("identifier", logger.MaskIdentifier(identifier)), zap.Error(err))
	}

	session, err := g.sessions.Issue(ctx, *principal, g.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	g.recordAttempt(ctx, attempt, domain.LoginSucceeded)
	return &session, nil
}

// ChangePassword replaces the caller's own credential after verifying the current one.
func (g *AccountSecurityGuard) ChangePassword(ctx context.Context, in ChangePasswordInput) (*PasswordChangeResult, error) {
	principalID := strings.TrimSpace(in.PrincipalID)
	if principalID == "" {
		return nil, ErrActorRequired
	}
	return g.replacePassword(ctx, principalID, in.NewPassword, &in.CurrentPassword)
}

// ResetPassword replaces principal's credential on behalf of a security administrator.
// Policy and reuse checks still apply.
func (g *AccountSecurityGuard) ResetPassword(ctx context.Context, in ResetPasswordInput) (*PasswordChangeResult, error) {
	actorID := strings.TrimSpace(in.ActorID)
	if actorID == "" {
		return nil, ErrActorRequired
	}
	principalID := strings.TrimSpace(in.PrincipalID)
	if principalID == "" {
		return nil, ErrPrincipalNotFound
	}
	if err := g.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	result, err := g.replacePassword(ctx, principalID, in.NewPassword, nil)
	if err != nil {
		return nil, err
	}
	g.logger.Info("password reset", zap.String("principal_id", principalID), zap.String("actor_id", actorID))
	return result, nil
}

// replacePassword runs policy and reuse checks before anything is persisted; the hash update
// and history append commit together. A nil currentPassword skips verification.
func (g *AccountSecurityGuard) replacePassword(ctx context.Context, principalID, newPassword string, currentPassword *string) (*PasswordChangeResult, error) {
	if newPassword == "" {
		return nil, fmt.Errorf("%w: new password is required", ErrPasswordPolicy)
	}

	principal, err := g.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("lookup principal: %w", err)
	}

	if g.policy != nil {
		if err := g.policy.Validate(newPassword, principal.Identifier, principal.DisplayName); err != nil {
			g.passwordChangeOutcome(passwordChangeRejected)
			return nil, fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
	}

	hash, err := g.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash new password: %w", err)
	}

	changedAt := g.now().UTC()
	err = g.credentials.Do(ctx, principalID, func(ctx context.Context, scope port.CredentialScope) error {
		current, err := scope.Principals().GetByID(ctx, principalID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrPrincipalNotFound
			}
			return fmt.Errorf("lookup principal: %w", err)
		}

		if currentPassword != nil {
			matches, err := g.hasher.Verify(*currentPassword, current.PasswordHash)
			if err != nil {
				return fmt.Errorf("verify current password: %w", err)
			}
			if !matches {
				return ErrInvalidCredentials
			}
		}

		if err := g.history.AssertNotReused(ctx, scope.History(), *current, newPassword); err != nil {
			return err
		}

		if err := scope.Principals().UpdatePasswordHash(ctx, principalID, hash, changedAt); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		return g.history.Record(ctx, scope.History(), principalID, hash, changedAt)
	})
	if err != nil {
		if errors.Is(err, ErrPasswordReused) {
			g.passwordChangeOutcome(passwordChangeReused)
		}
		return nil, err
	}

	g.passwordChangeOutcome(passwordChangeSucceeded)
	if g.events != nil {
		event := domain.PasswordChangedEvent{EventID: uuid.NewString(), PrincipalID: principalID, ChangedAt: changedAt}
		if err := g.events.PublishPasswordChanged(ctx, event); err != nil {
			g.logger.Warn("publish password changed event failed", zap.String("principal_id", principalID), zap.Error(err))
		}
	}

	return &PasswordChangeResult{PrincipalID: principalID, ChangedAt: changedAt}, nil
}

// UnlockAccount clears the lockout of principalID on behalf of actorID.
func (g *AccountSecurityGuard) UnlockAccount(ctx context.Context, actorID, principalID string) error {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return ErrActorRequired
	}
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return ErrPrincipalNotFound
	}

	if err := g.requireAdmin(ctx, actorID); err != nil {
		return err
	}

	if err := g.tracker.AdminReset(ctx, principalID); err != nil {
		return err
	}
	g.logger.Info("account unlocked", zap.String("principal_id", principalID), zap.String("actor_id", actorID))
	return nil
}

func (g *AccountSecurityGuard) requireAdmin(ctx context.Context, actorID string) error {
	if g.capabilities == nil {
		return nil
	}
	ok, err := g.capabilities.HasCapability(ctx, actorID, domain.CapabilitySecurityAdmin)
	if err != nil {
		return fmt.Errorf("check capability %s: %w", domain.CapabilitySecurityAdmin, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s required", ErrPermissionDenied, domain.CapabilitySecurityAdmin)
	}
	return nil
}

// verifyDummy spends a verification on unknown identifiers so response timing matches known ones.
func (g *AccountSecurityGuard) verifyDummy(password string) {
	g.dummyOnce.Do(func() {
		hash, err := g.hasher.Hash(dummyPassword)
		if err != nil {
			g.logger.Warn("dummy hash generation failed", zap.Error(err))
			return
		}
		g.dummyHash = hash
	})
	if g.dummyHash == "" {
		return
	}
	_, _ = g.hasher.Verify(password, g.dummyHash)
}

func (g *AccountSecurityGuard) hit(ctx context.Context, key string) {
	if err := g.limiter.Hit(ctx, key); err != nil {
		g.logger.Warn("login rate limit hit failed", zap.Error(err))
	}
}

func (g *AccountSecurityGuard) lockedOut(ctx context.Context, principalID string, state domain.LoginSecurityState) {
	if g.metrics != nil {
		g.metrics.IncLockout()
	}
	if state.LockedUntil == nil {
		return
	}
	g.logger.Warn("account locked after repeated failures",
		zap.String("principal_id", principalID),
		zap.Time("locked_until", *state.LockedUntil),
	)
	if g.events == nil {
		return
	}
	event := domain.AccountLockedEvent{
		EventID:     uuid.NewString(),
		PrincipalID: principalID,
		LockedUntil: *state.LockedUntil,
		OccurredAt:  g.now().UTC(),
	}
	if err := g.events.PublishAccountLocked(ctx, event); err != nil {
		g.logger.Warn("publish account locked event failed", zap.String("principal_id", principalID), zap.Error(err))
	}
}

func (g *AccountSecurityGuard) recordAttempt(ctx context.Context, attempt domain.LoginAttempt, outcome domain.LoginOutcome) {
	if g.metrics != nil {
		g.metrics.IncLoginOutcome(outcome)
	}
	if g.audit == nil {
		return
	}
	attempt.ID = uuid.NewString()
	attempt.Outcome = outcome
	attempt.CreatedAt = g.now().UTC()
	if err := g.audit.RecordAttempt(ctx, attempt); err != nil {
		g.logger.Warn("record login attempt failed",
			zap.String("identifier", logger.MaskIdentifier(attempt.Identifier)),
			zap.String("origin", logger.MaskIP(attempt.Origin)),
			zap.Error(err),
		)
	}
}

func (g *AccountSecurityGuard) passwordChangeOutcome(outcome string) {
	if g.metrics != nil {
		g.metrics.IncPasswordChange(outcome)
	}
}
