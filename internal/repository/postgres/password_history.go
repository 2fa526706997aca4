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
)

// PasswordHistoryRepository stores previously used credential hashes.
type PasswordHistoryRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPasswordHistoryRepository constructs the repository from a generic executor.
func NewPasswordHistoryRepository(exec pgExecutor) *PasswordHistoryRepository {
	return &PasswordHistoryRepository{exec: exec, builder: newBuilder()}
}

// WithTx binds the repository to execute statements within the supplied transaction.
func (r *PasswordHistoryRepository) WithTx(tx pgx.Tx) *PasswordHistoryRepository {
	if tx == nil {
		return r
	}
	return &PasswordHistoryRepository{exec: tx, builder: r.builder}
}

// ListRecent retrieves the most recent hashes, newest first. A non-positive limit returns all.
func (r *PasswordHistoryRepository) ListRecent(ctx context.Context, principalID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	trimmedID := strings.TrimSpace(principalID)
	if trimmedID == "" {
		return nil, fmt.Errorf("principal id is required")
	}

	builder := r.builder.Select("id", "principal_id", "password_hash", "set_at").
		From("registry.password_history").
		Where(squirrel.Eq{"principal_id": trimmedID}).
		OrderBy("set_at DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select password history sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query password history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.PasswordHistoryEntry, 0)
	for rows.Next() {
		var entry domain.PasswordHistoryEntry
		if err := rows.Scan(&entry.ID, &entry.PrincipalID, &entry.PasswordHash, &entry.SetAt); err != nil {
			return nil, fmt.Errorf("scan password history: %w", err)
		}
		history = append(history, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate password history: %w", err)
	}

	return history, nil
}

// Append inserts a hash into the history table.
func (r *PasswordHistoryRepository) Append(ctx context.Context, entry domain.PasswordHistoryEntry) error {
	principalID := strings.TrimSpace(entry.PrincipalID)
	if principalID == "" {
		return fmt.Errorf("principal id is required")
	}
	if strings.TrimSpace(entry.PasswordHash) == "" {
		return fmt.Errorf("password hash is required")
	}

	setAt := entry.SetAt
	if setAt.IsZero() {
		setAt = time.Now().UTC()
	}

	builder := r.builder.Insert("registry.password_history")
	if entry.ID != "" {
		builder = builder.Columns("id", "principal_id", "password_hash", "set_at").
			Values(entry.ID, principalID, entry.PasswordHash, setAt)
	} else {
		builder = builder.Columns("principal_id", "password_hash", "set_at").
			Values(principalID, entry.PasswordHash, setAt)
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build insert password history sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert password history: %w", err)
	}

	return nil
}

// Prune keeps only the keep most recent hashes.
func (r *PasswordHistoryRepository) Prune(ctx context.Context, principalID string, keep int) error {
	if keep <= 0 {
		return nil
	}

	trimmedID := strings.TrimSpace(principalID)
	if trimmedID == "" {
		return fmt.Errorf("principal id is required")
	}

	stmt := `
		DELETE FROM registry.password_history
		 WHERE principal_id = $1
		   AND id NOT IN (
				SELECT id
				  FROM registry.password_history
				 WHERE principal_id = $1
				 ORDER BY set_at DESC
				 LIMIT $2
		   )
	`

	if _, err := r.exec.Exec(ctx, stmt, trimmedID, keep); err != nil {
		return fmt.Errorf("prune password history: %w", err)
	}

	return nil
}

var _ port.PasswordHistoryRepository = (*PasswordHistoryRepository)(nil)
