package postgres

import (
	"context"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/core/port"
)

// LoginAttemptRepository appends authentication attempts to the audit trail.
type LoginAttemptRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewLoginAttemptRepository constructs the repository.
func NewLoginAttemptRepository(exec pgExecutor) *LoginAttemptRepository {
	return &LoginAttemptRepository{exec: exec, builder: newBuilder()}
}

// RecordAttempt inserts one audit row.
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt domain.LoginAttempt) error {
	stmt, args, err := r.builder.Insert("registry.login_attempts").
		Columns("id", "principal_id", "identifier", "origin", "outcome", "created_at").
		Values(
			attempt.ID,
			optionalString(attempt.PrincipalID),
			strings.ToLower(strings.TrimSpace(attempt.Identifier)),
			attempt.Origin,
			string(attempt.Outcome),
			attempt.CreatedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert login attempt sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert login attempt: %w", err)
	}
	return nil
}

var _ port.LoginAuditRepository = (*LoginAttemptRepository)(nil)
