package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/core/port"
	"github.com/arklim/auction-registry/internal/repository"
)

var principalColumns = []string{
	"id",
	"identifier",
	"display_name",
	"password_hash",
	"active",
	"failed_attempts",
	"locked_until",
	"created_at",
	"updated_at",
}

// PrincipalRepository persists principals, their lockout counters and capabilities.
type PrincipalRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPrincipalRepository constructs the repository from a generic executor.
func NewPrincipalRepository(exec pgExecutor) *PrincipalRepository {
	return &PrincipalRepository{exec: exec, builder: newBuilder()}
}

// WithTx binds the repository to execute statements within the supplied transaction.
func (r *PrincipalRepository) WithTx(tx pgx.Tx) *PrincipalRepository {
	if tx == nil {
		return r
	}
	return &PrincipalRepository{exec: tx, builder: r.builder}
}

// GetByID loads a principal together with its capabilities.
func (r *PrincipalRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	stmt, args, err := r.builder.Select(principalColumns...).
		From("registry.principals").
		Where(squirrel.Eq{"id": strings.TrimSpace(id)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select principal sql: %w", err)
	}
	return r.load(ctx, stmt, args...)
}

// GetByIdentifier loads a principal by its case-insensitive login identifier.
func (r *PrincipalRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.Principal, error) {
	stmt, args, err := r.builder.Select(principalColumns...).
		From("registry.principals").
		Where("lower(identifier) = ?", strings.ToLower(strings.TrimSpace(identifier))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select principal by identifier sql: %w", err)
	}
	return r.load(ctx, stmt, args...)
}

// UpdatePasswordHash stores the new credential hash.
func (r *PrincipalRepository) UpdatePasswordHash(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("registry.principals").
		Set("password_hash", passwordHash).
		Set("updated_at", changedAt.UTC()).
		Where(squirrel.Eq{"id": strings.TrimSpace(id)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MutateLoginState locks the principal row, applies fn and writes the counter back in one transaction.
func (r *PrincipalRepository) MutateLoginState(ctx context.Context, principalID string, fn func(state *domain.LoginSecurityState) error) (domain.LoginSecurityState, error) {
	principalID = strings.TrimSpace(principalID)
	var result domain.LoginSecurityState

	err := inTx(ctx, r.exec, func(tx pgx.Tx) error {
		stmt := `
        SELECT failed_attempts, locked_until
          FROM registry.principals
         WHERE id = $1
         FOR UPDATE
    `
		var state domain.LoginSecurityState
		if err := tx.QueryRow(ctx, stmt, principalID).Scan(&state.FailedAttempts, &state.LockedUntil); err != nil {
			if isNoRows(err) {
				return repository.ErrNotFound
			}
			return fmt.Errorf("select login state: %w", err)
		}

		if err := fn(&state); err != nil {
			return err
		}
		if state.FailedAttempts < 0 {
			state.FailedAttempts = 0
		}

		if _, err := tx.Exec(ctx, `
        UPDATE registry.principals
           SET failed_attempts = $2,
               locked_until = $3
         WHERE id = $1
    `, principalID, state.FailedAttempts, optionalTime(state.LockedUntil)); err != nil {
			return fmt.Errorf("update login state: %w", err)
		}
		result = state
		return nil
	})
	if err != nil {
		return domain.LoginSecurityState{}, err
	}
	return result, nil
}

// HasCapability reports whether an active principal holds capability.
func (r *PrincipalRepository) HasCapability(ctx context.Context, principalID string, capability domain.Capability) (bool, error) {
	stmt := `
        SELECT EXISTS (
            SELECT 1
              FROM registry.principal_capabilities c
              JOIN registry.principals p ON p.id = c.principal_id
             WHERE c.principal_id = $1
               AND c.capability = $2
               AND p.active
        )
    `
	var held bool
	if err := r.exec.QueryRow(ctx, stmt, strings.TrimSpace(principalID), string(capability)).Scan(&held); err != nil {
		return false, fmt.Errorf("query capability: %w", err)
	}
	return held, nil
}

// ListHolders returns the ids of active principals holding capability, sorted.
func (r *PrincipalRepository) ListHolders(ctx context.Context, capability domain.Capability) ([]string, error) {
	stmt := `
        SELECT p.id
          FROM registry.principals p
          JOIN registry.principal_capabilities c ON c.principal_id = p.id
         WHERE c.capability = $1
           AND p.active
         ORDER BY p.id
    `
	rows, err := r.exec.Query(ctx, stmt, string(capability))
	if err != nil {
		return nil, fmt.Errorf("query capability holders: %w", err)
	}
	defer rows.Close()

	holders := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan capability holder: %w", err)
		}
		holders = append(holders, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate capability holders: %w", err)
	}
	return holders, nil
}

func (r *PrincipalRepository) load(ctx context.Context, stmt string, args ...any) (*domain.Principal, error) {
	var principal domain.Principal
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&principal.ID,
		&principal.Identifier,
		&principal.DisplayName,
		&principal.PasswordHash,
		&principal.Active,
		&principal.LoginState.FailedAttempts,
		&principal.LoginState.LockedUntil,
		&principal.CreatedAt,
		&principal.UpdatedAt,
	); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan principal: %w", err)
	}

	capabilities, err := r.capabilities(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	principal.Capabilities = capabilities
	return &principal, nil
}

func (r *PrincipalRepository) capabilities(ctx context.Context, principalID string) ([]string, error) {
	stmt, args, err := r.builder.Select("capability").
		From("registry.principal_capabilities").
		Where(squirrel.Eq{"principal_id": principalID}).
		OrderBy("capability").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select capabilities sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query capabilities: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var capability string
		if err := rows.Scan(&capability); err != nil {
			return nil, fmt.Errorf("scan capability: %w", err)
		}
		out = append(out, capability)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate capabilities: %w", err)
	}
	return out, nil
}

var (
	_ port.PrincipalRepository  = (*PrincipalRepository)(nil)
	_ port.LoginStateRepository = (*PrincipalRepository)(nil)
	_ port.CapabilityLookup     = (*PrincipalRepository)(nil)
)
