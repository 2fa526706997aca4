// Package registry binds the closed set of change request target types to their stores
// and enforces each type's field contract.
package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/core/port"
)

// Binding connects one target type to its typed store.
type Binding interface {
	TargetType() domain.TargetType
	fieldNames() []string
	normalize(v *validator.Validate, op domain.Operation, current *domain.Entity, data map[string]any) (map[string]any, error)
	resolve(ctx context.Context, id string, includeDeleted bool) (*domain.Entity, error)
	create(ctx context.Context, v *validator.Validate, id string, data map[string]any, at time.Time) (*domain.Entity, error)
	update(ctx context.Context, v *validator.Validate, id string, data map[string]any, at time.Time) (*domain.Entity, error)
	delete(ctx context.Context, id string, at time.Time) error
}

// Registry implements port.EntityRegistry over a fixed set of bindings.
type Registry struct {
	bindings map[domain.TargetType]Binding
	validate *validator.Validate
	newID    func() string
}

// New constructs a registry. Binding the same type twice keeps the last binding.
func New(validate *validator.Validate, bindings ...Binding) *Registry {
	if validate == nil {
		validate = NewValidator()
	}
	r := &Registry{
		bindings: make(map[domain.TargetType]Binding, len(bindings)),
		validate: validate,
		newID:    uuid.NewString,
	}
	for _, b := range bindings {
		if b == nil {
			continue
		}
		r.bindings[b.TargetType()] = b
	}
	return r
}

// NewValidator builds a validator that reports field names using their wire tags.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Supports reports whether the target type is bound.
func (r *Registry) Supports(targetType domain.TargetType) bool {
	_, ok := r.bindings[targetType]
	return ok
}

// Types lists the bound target types in a stable order.
func (r *Registry) Types() []domain.TargetType {
	out := make([]domain.TargetType, 0, len(r.bindings))
	for t := range r.bindings {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Fields returns the field contract of the target type in sorted order.
func (r *Registry) Fields(targetType domain.TargetType) ([]string, error) {
	b, err := r.binding(targetType)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), b.fieldNames()...), nil
}

// Normalize validates proposed data and returns the canonical values of the proposed fields.
func (r *Registry) Normalize(targetType domain.TargetType, op domain.Operation, current *domain.Entity, data map[string]any) (map[string]any, error) {
	b, err := r.binding(targetType)
	if err != nil {
		return nil, err
	}
	return b.normalize(r.validate, op, current, data)
}

// Resolve loads a record snapshot.
func (r *Registry) Resolve(ctx context.Context, targetType domain.TargetType, id string, includeSoftDeleted bool) (*domain.Entity, error) {
	b, err := r.binding(targetType)
	if err != nil {
		return nil, err
	}
	return b.resolve(ctx, id, includeSoftDeleted)
}

// Create inserts a new record built from data.
func (r *Registry) Create(ctx context.Context, targetType domain.TargetType, data map[string]any, at time.Time) (*domain.Entity, error) {
	b, err := r.binding(targetType)
	if err != nil {
		return nil, err
	}
	return b.create(ctx, r.validate, r.newID(), data, at)
}

// Update merges data over the live record and persists it.
func (r *Registry) Update(ctx context.Context, targetType domain.TargetType, id string, data map[string]any, at time.Time) (*domain.Entity, error) {
	b, err := r.binding(targetType)
	if err != nil {
		return nil, err
	}
	return b.update(ctx, r.validate, id, data, at)
}

// Delete tombstones the live record.
func (r *Registry) Delete(ctx context.Context, targetType domain.TargetType, id string, at time.Time) error {
	b, err := r.binding(targetType)
	if err != nil {
		return err
	}
	return b.delete(ctx, id, at)
}

func (r *Registry) binding(targetType domain.TargetType) (Binding, error) {
	b, ok := r.bindings[targetType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTargetType, targetType)
	}
	return b, nil
}

var _ port.EntityRegistry = (*Registry)(nil)
