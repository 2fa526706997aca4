package port

import (
	"context"
	"time"

	"github.com/arklim/auction-registry/internal/core/domain"
)

// PasswordHasher hashes and verifies secrets using the configured algorithm.
// Hashes are salted, so equality must be decided by Verify.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// PasswordPolicyValidator enforces password strength requirements.
type PasswordPolicyValidator interface {
	Validate(password string, userInputs ...string) error
}

// SessionIssuer mints sessions for authenticated principals.
type SessionIssuer interface {
	Issue(ctx context.Context, principal domain.Principal, at time.Time) (domain.Session, error)
}
