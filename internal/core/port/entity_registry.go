package port

import (
	"context"
	"time"

	"github.com/arklim/auction-registry/internal/core/domain"
)

// EntityRegistry maps each supported target type to its backing store and field contract.
type EntityRegistry interface {
	Supports(targetType domain.TargetType) bool
	Fields(targetType domain.TargetType) ([]string, error)
	// Normalize checks proposed data against the field contract and returns its canonical form.
	// current is the live record for updates and nil for creates.
	Normalize(targetType domain.TargetType, op domain.Operation, current *domain.Entity, data map[string]any) (map[string]any, error)
	Resolve(ctx context.Context, targetType domain.TargetType, id string, includeSoftDeleted bool) (*domain.Entity, error)
	Create(ctx context.Context, targetType domain.TargetType, data map[string]any, at time.Time) (*domain.Entity, error)
	Update(ctx context.Context, targetType domain.TargetType, id string, data map[string]any, at time.Time) (*domain.Entity, error)
	Delete(ctx context.Context, targetType domain.TargetType, id string, at time.Time) error
}

// RecordStore persists one record type. Reads without includeDeleted skip tombstoned rows,
// and SoftDelete of a missing or already deleted record reports repository.ErrNotFound.
type RecordStore[T any] interface {
	Get(ctx context.Context, id string, includeDeleted bool) (*T, error)
	Insert(ctx context.Context, record T) error
	Replace(ctx context.Context, record T) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}
