package port

import (
	"context"
	"time"

	"github.com/arklim/auction-registry/internal/core/domain"
)

// PrincipalRepository exposes persistence behavior for principals.
type PrincipalRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Principal, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Principal, error)
	UpdatePasswordHash(ctx context.Context, id string, passwordHash string, changedAt time.Time) error
}

// LoginStateRepository serializes lockout transitions per principal.
type LoginStateRepository interface {
	// MutateLoginState loads the state under an exclusive lock, applies fn and persists the result.
	MutateLoginState(ctx context.Context, principalID string, fn func(state *domain.LoginSecurityState) error) (domain.LoginSecurityState, error)
}

// PasswordHistoryRepository stores previously used credential hashes.
type PasswordHistoryRepository interface {
	ListRecent(ctx context.Context, principalID string, limit int) ([]domain.PasswordHistoryEntry, error)
	Append(ctx context.Context, entry domain.PasswordHistoryEntry) error
	// Prune deletes all but the keep most recent entries.
	Prune(ctx context.Context, principalID string, keep int) error
}

// CredentialScope exposes the repositories bound to a credential change transaction.
type CredentialScope interface {
	Principals() PrincipalRepository
	History() PasswordHistoryRepository
}

// CredentialUnitOfWork runs a credential change atomically.
type CredentialUnitOfWork interface {
	Do(ctx context.Context, principalID string, fn func(ctx context.Context, scope CredentialScope) error) error
}

// LoginAuditRepository appends authentication attempts to the audit trail.
type LoginAuditRepository interface {
	RecordAttempt(ctx context.Context, attempt domain.LoginAttempt) error
}

// CapabilityLookup resolves capabilities held by principals.
type CapabilityLookup interface {
	HasCapability(ctx context.Context, principalID string, capability domain.Capability) (bool, error)
	ListHolders(ctx context.Context, capability domain.Capability) ([]string, error)
}
