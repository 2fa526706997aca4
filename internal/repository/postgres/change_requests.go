package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/core/port"
	"github.com/arklim/auction-registry/internal/repository"
)

var changeRequestColumns = []string{
	"id",
	"requested_by",
	"decided_by",
	"target_type",
	"target_id",
	"operation",
	"proposed_data",
	"status",
	"decision_notes",
	"created_at",
	"decided_at",
	"applied_target_id",
}

// ChangeRequestRepository persists change requests in PostgreSQL.
type ChangeRequestRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewChangeRequestRepository constructs the repository from a generic executor.
func NewChangeRequestRepository(exec pgExecutor) *ChangeRequestRepository {
	return &ChangeRequestRepository{
		exec:    exec,
		builder: newBuilder(),
	}
}

// WithTx binds the repository to execute statements within the supplied transaction.
func (r *ChangeRequestRepository) WithTx(tx pgx.Tx) *ChangeRequestRepository {
	if tx == nil {
		return r
	}
	return &ChangeRequestRepository{exec: tx, builder: r.builder}
}

// Create inserts a pending change request.
func (r *ChangeRequestRepository) Create(ctx context.Context, request domain.ChangeRequest) error {
	payload, err := encodeProposedData(request.ProposedData)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert("registry.change_requests").
		Columns(changeRequestColumns...).
		Values(
			request.ID,
			request.RequestedBy,
			optionalString(request.DecidedBy),
			string(request.TargetType),
			optionalString(request.TargetID),
			string(request.Operation),
			payload,
			string(request.Status),
			optionalString(request.DecisionNotes),
			request.CreatedAt.UTC(),
			optionalTime(request.DecidedAt),
			optionalString(request.AppliedID),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert change request sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert change request: %w", err)
	}
	return nil
}

// Get loads a change request by id.
func (r *ChangeRequestRepository) Get(ctx context.Context, id string) (*domain.ChangeRequest, error) {
	stmt, args, err := r.builder.Select(changeRequestColumns...).
		From("registry.change_requests").
		Where(squirrel.Eq{"id": strings.TrimSpace(id)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select change request sql: %w", err)
	}
	return r.queryOne(ctx, stmt, args...)
}

// GetForUpdate loads a change request and locks its row until the transaction ends.
func (r *ChangeRequestRepository) GetForUpdate(ctx context.Context, id string) (*domain.ChangeRequest, error) {
	stmt, args, err := r.builder.Select(changeRequestColumns...).
		From("registry.change_requests").
		Where(squirrel.Eq{"id": strings.TrimSpace(id)}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select change request for update sql: %w", err)
	}
	return r.queryOne(ctx, stmt, args...)
}

// List returns change requests matching the filter, newest first.
func (r *ChangeRequestRepository) List(ctx context.Context, filter domain.ChangeRequestFilter) ([]domain.ChangeRequest, error) {
	builder := r.builder.Select(changeRequestColumns...).
		From("registry.change_requests").
		OrderBy("created_at DESC", "id DESC")

	if filter.Status != "" {
		builder = builder.Where(squirrel.Eq{"status": string(filter.Status)})
	}
	if filter.TargetType != "" {
		builder = builder.Where(squirrel.Eq{"target_type": string(filter.TargetType)})
	}
	if requester := strings.TrimSpace(filter.RequestedBy); requester != "" {
		builder = builder.Where(squirrel.Eq{"requested_by": requester})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list change requests sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query change requests: %w", err)
	}
	defer rows.Close()

	requests := make([]domain.ChangeRequest, 0)
	for rows.Next() {
		request, err := scanChangeRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change requests: %w", err)
	}
	return requests, nil
}

// MarkDecided writes the terminal fields. A request that is no longer pending reports repository.ErrConflict.
func (r *ChangeRequestRepository) MarkDecided(ctx context.Context, decision domain.ChangeRequestDecision) error {
	builder := r.builder.Update("registry.change_requests").
		Set("status", string(decision.Status)).
		Set("decided_by", decision.DecidedBy).
		Set("decision_notes", optionalString(decision.Notes)).
		Set("decided_at", decision.DecidedAt.UTC())
	if decision.AppliedID != nil {
		builder = builder.Set("applied_target_id", *decision.AppliedID)
	}

	stmt, args, err := builder.
		Where(squirrel.Eq{"id": decision.ID, "status": string(domain.ChangeRequestPending)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build decide change request sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update change request decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}
	return nil
}

func (r *ChangeRequestRepository) queryOne(ctx context.Context, stmt string, args ...any) (*domain.ChangeRequest, error) {
	request, err := scanChangeRequest(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return request, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChangeRequest(row rowScanner) (*domain.ChangeRequest, error) {
	var (
		request    domain.ChangeRequest
		decidedBy  sql.NullString
		targetID   sql.NullString
		notes      sql.NullString
		targetType string
		operation  string
		status     string
		payload    []byte
		decidedAt  *time.Time
		appliedID  sql.NullString
	)

	if err := row.Scan(
		&request.ID,
		&request.RequestedBy,
		&decidedBy,
		&targetType,
		&targetID,
		&operation,
		&payload,
		&status,
		&notes,
		&request.CreatedAt,
		&decidedAt,
		&appliedID,
	); err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan change request: %w", err)
	}

	data, err := decodeProposedData(payload)
	if err != nil {
		return nil, err
	}

	request.TargetType = domain.TargetType(targetType)
	request.Operation = domain.Operation(operation)
	request.Status = domain.ChangeRequestStatus(status)
	request.DecidedBy = nullableString(decidedBy)
	request.TargetID = nullableString(targetID)
	request.AppliedID = nullableString(appliedID)
	request.DecisionNotes = nullableString(notes)
	request.ProposedData = data
	request.DecidedAt = decidedAt
	return &request, nil
}

func encodeProposedData(data map[string]any) (any, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode proposed data: %w", err)
	}
	return string(raw), nil
}

// decodeProposedData keeps numbers as json.Number so that integer fields survive the round trip.
func decodeProposedData(raw []byte) (map[string]any, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var data map[string]any
	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("decode proposed data: %w", err)
	}
	return data, nil
}

var _ port.ChangeRequestRepository = (*ChangeRequestRepository)(nil)
