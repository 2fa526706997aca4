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

var recordMetaColumns = []string{"id", "created_at", "updated_at", "deleted_at"}

// recordTable describes how one record type maps onto its table. values and targets
// must list the data columns in the same order as columns.
type recordTable[T any] struct {
	name    string
	columns []string
	values  func(record *T) []any
	targets func(record *T) []any
}

// RecordStore persists one registry record type with soft deletes.
type RecordStore[T any, PT domain.RecordPointer[T]] struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	table   recordTable[T]
}

func newRecordStore[T any, PT domain.RecordPointer[T]](exec pgExecutor, table recordTable[T]) *RecordStore[T, PT] {
	return &RecordStore[T, PT]{exec: exec, builder: newBuilder(), table: table}
}

// NewSecurityStore persists securities.
func NewSecurityStore(exec pgExecutor) *RecordStore[domain.Security, *domain.Security] {
	return newRecordStore[domain.Security, *domain.Security](exec, recordTable[domain.Security]{
		name:    "registry.securities",
		columns: []string{"isin", "name", "issuer", "product_type", "currency", "coupon_rate", "maturity_date", "nominal_value"},
		values: func(s *domain.Security) []any {
			return []any{s.ISIN, s.Name, s.Issuer, s.ProductType, s.Currency, s.CouponRate, s.MaturityDate.UTC(), s.NominalValue}
		},
		targets: func(s *domain.Security) []any {
			return []any{&s.ISIN, &s.Name, &s.Issuer, &s.ProductType, &s.Currency, &s.CouponRate, &s.MaturityDate, &s.NominalValue}
		},
	})
}

// NewAuctionResultStore persists auction results.
func NewAuctionResultStore(exec pgExecutor) *RecordStore[domain.AuctionResult, *domain.AuctionResult] {
	return newRecordStore[domain.AuctionResult, *domain.AuctionResult](exec, recordTable[domain.AuctionResult]{
		name:    "registry.auction_results",
		columns: []string{"security_id", "auction_date", "settlement_date", "offered_amount", "accepted_amount", "weighted_average_yield", "bid_to_cover"},
		values: func(a *domain.AuctionResult) []any {
			return []any{a.SecurityID, a.AuctionDate.UTC(), a.SettlementDate.UTC(), a.OfferedAmount, a.AcceptedAmount, a.WeightedAverageYield, a.BidToCover}
		},
		targets: func(a *domain.AuctionResult) []any {
			return []any{&a.SecurityID, &a.AuctionDate, &a.SettlementDate, &a.OfferedAmount, &a.AcceptedAmount, &a.WeightedAverageYield, &a.BidToCover}
		},
	})
}

// NewProductTypeStore persists product types.
func NewProductTypeStore(exec pgExecutor) *RecordStore[domain.ProductType, *domain.ProductType] {
	return newRecordStore[domain.ProductType, *domain.ProductType](exec, recordTable[domain.ProductType]{
		name:    "registry.product_types",
		columns: []string{"code", "name", "description"},
		values: func(p *domain.ProductType) []any {
			return []any{p.Code, p.Name, p.Description}
		},
		targets: func(p *domain.ProductType) []any {
			return []any{&p.Code, &p.Name, &p.Description}
		},
	})
}

// WithTx binds the store to execute statements within the supplied transaction.
func (s *RecordStore[T, PT]) WithTx(tx pgx.Tx) *RecordStore[T, PT] {
	if tx == nil {
		return s
	}
	return &RecordStore[T, PT]{exec: tx, builder: s.builder, table: s.table}
}

// Get loads a record. Tombstoned rows are only returned when includeDeleted is set.
func (s *RecordStore[T, PT]) Get(ctx context.Context, id string, includeDeleted bool) (*T, error) {
	builder := s.builder.Select(append(append([]string{}, recordMetaColumns...), s.table.columns...)...).
		From(s.table.name).
		Where(squirrel.Eq{"id": strings.TrimSpace(id)})
	if !includeDeleted {
		builder = builder.Where("deleted_at IS NULL")
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select %s sql: %w", s.table.name, err)
	}

	record := new(T)
	meta := PT(record).Metadata()
	dest := append([]any{&meta.ID, &meta.CreatedAt, &meta.UpdatedAt, &meta.DeletedAt}, s.table.targets(record)...)
	if err := s.exec.QueryRow(ctx, stmt, args...).Scan(dest...); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan %s: %w", s.table.name, err)
	}
	return record, nil
}

// Insert stores a new record. A duplicate id or natural key reports repository.ErrConflict.
func (s *RecordStore[T, PT]) Insert(ctx context.Context, record T) error {
	meta := PT(&record).Metadata()
	values := append([]any{meta.ID, meta.CreatedAt.UTC(), meta.UpdatedAt.UTC(), optionalTime(meta.DeletedAt)}, s.table.values(&record)...)

	stmt, args, err := s.builder.Insert(s.table.name).
		Columns(append(append([]string{}, recordMetaColumns...), s.table.columns...)...).
		Values(values...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert %s sql: %w", s.table.name, err)
	}

	if _, err := s.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert %s: %w", s.table.name, err)
	}
	return nil
}

// Replace overwrites the data columns of a live record.
func (s *RecordStore[T, PT]) Replace(ctx context.Context, record T) error {
	meta := PT(&record).Metadata()
	builder := s.builder.Update(s.table.name).Set("updated_at", meta.UpdatedAt.UTC())
	values := s.table.values(&record)
	for i, column := range s.table.columns {
		builder = builder.Set(column, values[i])
	}

	stmt, args, err := builder.
		Where(squirrel.Eq{"id": meta.ID}).
		Where("deleted_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build update %s sql: %w", s.table.name, err)
	}

	tag, err := s.exec.Exec(ctx, stmt, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("update %s: %w", s.table.name, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SoftDelete tombstones a live record.
func (s *RecordStore[T, PT]) SoftDelete(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := s.builder.Update(s.table.name).
		Set("deleted_at", at.UTC()).
		Set("updated_at", at.UTC()).
		Where(squirrel.Eq{"id": strings.TrimSpace(id)}).
		Where("deleted_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build soft delete %s sql: %w", s.table.name, err)
	}

	tag, err := s.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("soft delete %s: %w", s.table.name, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var (
	_ port.RecordStore[domain.Security]      = (*RecordStore[domain.Security, *domain.Security])(nil)
	_ port.RecordStore[domain.AuctionResult] = (*RecordStore[domain.AuctionResult, *domain.AuctionResult])(nil)
	_ port.RecordStore[domain.ProductType]   = (*RecordStore[domain.ProductType, *domain.ProductType])(nil)
)
