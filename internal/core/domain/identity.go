package domain

import "time"

// DefaultLockoutThreshold is the number of consecutive failures that locks an account.
const DefaultLockoutThreshold = 3

// LoginSecurityState is the per-principal lockout counter.
// FailedAttempts never goes negative and LockedUntil is either nil or in the future
// relative to the last transition that set it.
type LoginSecurityState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// Refresh lazily expires a lockout whose deadline has passed, clearing the counter.
// It reports whether the state changed.
func (s *LoginSecurityState) Refresh(now time.Time) bool {
	if s.LockedUntil == nil || now.Before(*s.LockedUntil) {
		return false
	}
	s.LockedUntil = nil
	s.FailedAttempts = 0
	return true
}

// IsLocked reports whether the account is currently locked.
func (s LoginSecurityState) IsLocked(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// RegisterFailure applies one failed attempt. Attempts made while locked are ignored.
// It reports whether this failure engaged the lock.
func (s *LoginSecurityState) RegisterFailure(now time.Time, threshold int, lockout time.Duration) bool {
	s.Refresh(now)
	if s.IsLocked(now) {
		return false
	}
	s.FailedAttempts++
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if s.FailedAttempts >= threshold {
		until := now.Add(lockout)
		s.LockedUntil = &until
		return true
	}
	return false
}

// Reset clears both the counter and any lock.
func (s *LoginSecurityState) Reset() {
	s.FailedAttempts = 0
	s.LockedUntil = nil
}

// Principal is an authenticating account.
type Principal struct {
	ID           string
	Identifier   string
	DisplayName  string
	PasswordHash string
	Active       bool
	LoginState   LoginSecurityState
	Capabilities []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PasswordHistoryEntry stores one previously used credential hash.
type PasswordHistoryEntry struct {
	ID           string
	PrincipalID  string
	PasswordHash string
	SetAt        time.Time
}

// Session is the artifact issued after a successful authentication.
type Session struct {
	ID          string
	PrincipalID string
	Token       string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// LoginOutcome classifies an authentication attempt for the audit trail.
type LoginOutcome string

const (
	LoginSucceeded   LoginOutcome = "succeeded"
	LoginFailed      LoginOutcome = "failed"
	LoginLocked      LoginOutcome = "locked"
	LoginThrottled   LoginOutcome = "throttled"
	LoginDeactivated LoginOutcome = "deactivated"
)

// LoginAttempt records an authentication attempt for audit.
type LoginAttempt struct {
	ID          string
	PrincipalID *string
	Identifier  string
	Origin      string
	Outcome     LoginOutcome
	CreatedAt   time.Time
}
