package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/core/port"
)

const defaultPasswordHistoryDepth = 10

// PasswordHistoryValidator blocks reuse of the most recent credentials.
// Stored hashes are salted, so a candidate is matched by verifying it against each entry.
type PasswordHistoryValidator struct {
	hasher port.PasswordHasher
	depth  int
}

// NewPasswordHistoryValidator constructs a validator retaining depth entries (ten when zero).
func NewPasswordHistoryValidator(hasher port.PasswordHasher, depth int) *PasswordHistoryValidator {
	if depth <= 0 {
		depth = defaultPasswordHistoryDepth
	}
	return &PasswordHistoryValidator{hasher: hasher, depth: depth}
}

// Depth returns how many entries are compared and retained.
func (v *PasswordHistoryValidator) Depth() int {
	return v.depth
}

// AssertNotReused fails with ErrPasswordReused when candidate matches the current hash
// or any of the last depth history entries.
func (v *PasswordHistoryValidator) AssertNotReused(ctx context.Context, history port.PasswordHistoryRepository, principal domain.Principal, candidate string) error {
	entries, err := history.ListRecent(ctx, principal.ID, v.depth)
	if err != nil {
		return fmt.Errorf("list password history: %w", err)
	}

	hashes := make([]string, 0, len(entries)+1)
	if principal.PasswordHash != "" {
		hashes = append(hashes, principal.PasswordHash)
	}
	for _, entry := range entries {
		if entry.PasswordHash != principal.PasswordHash {
			hashes = append(hashes, entry.PasswordHash)
		}
	}

	for _, hash := range hashes {
		reused, err := v.hasher.Verify(candidate, hash)
		if err != nil {
			return fmt.Errorf("compare password history: %w", err)
		}
		if reused {
			return ErrPasswordReused
		}
	}
	return nil
}

// Record appends the new hash and prunes the history down to depth entries.
func (v *PasswordHistoryValidator) Record(ctx context.Context, history port.PasswordHistoryRepository, principalID, hash string, at time.Time) error {
	entry := domain.PasswordHistoryEntry{
		PrincipalID:  principalID,
		PasswordHash: hash,
		SetAt:        at.UTC(),
	}
	if err := history.Append(ctx, entry); err != nil {
		return fmt.Errorf("store password history: %w", err)
	}
	if err := history.Prune(ctx, principalID, v.depth); err != nil {
		return fmt.Errorf("trim password history: %w", err)
	}
	return nil
}
