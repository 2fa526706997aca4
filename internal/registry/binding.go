package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/core/port"
)

type typedBinding[T any, PT domain.RecordPointer[T]] struct {
	targetType domain.TargetType
	store      port.RecordStore[T]
	fields     []string
}

// Bind registers store as the backing store of targetType.
func Bind[T any, PT domain.RecordPointer[T]](targetType domain.TargetType, store port.RecordStore[T]) Binding {
	var zero T
	names := make([]string, 0)
	for name := range PT(&zero).Fields() {
		names = append(names, name)
	}
	sort.Strings(names)

	return &typedBinding[T, PT]{
		targetType: targetType,
		store:      store,
		fields:     names,
	}
}

func (b *typedBinding[T, PT]) TargetType() domain.TargetType {
	return b.targetType
}

func (b *typedBinding[T, PT]) fieldNames() []string {
	return b.fields
}

func (b *typedBinding[T, PT]) normalize(v *validator.Validate, op domain.Operation, current *domain.Entity, data map[string]any) (map[string]any, error) {
	switch op {
	case domain.OperationCreate:
		record, err := b.build(v, data)
		if err != nil {
			return nil, err
		}
		return PT(record).Fields(), nil
	case domain.OperationUpdate:
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: update must change at least one field", domain.ErrInvalidRecord)
		}
		if current == nil {
			return nil, fmt.Errorf("%w: update requires the current record", domain.ErrInvalidRecord)
		}
		record, err := b.build(v, merge(current.Fields, data))
		if err != nil {
			return nil, err
		}
		canonical := PT(record).Fields()
		out := make(map[string]any, len(data))
		for key := range data {
			out[key] = canonical[key]
		}
		return out, nil
	case domain.OperationDelete:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unsupported operation %q", domain.ErrInvalidRecord, op)
	}
}

func (b *typedBinding[T, PT]) resolve(ctx context.Context, id string, includeDeleted bool) (*domain.Entity, error) {
	record, err := b.store.Get(ctx, id, includeDeleted)
	if err != nil {
		return nil, err
	}
	return b.snapshot(record), nil
}

func (b *typedBinding[T, PT]) create(ctx context.Context, v *validator.Validate, id string, data map[string]any, at time.Time) (*domain.Entity, error) {
	record, err := b.build(v, data)
	if err != nil {
		return nil, err
	}

	meta := PT(record).Metadata()
	meta.ID = id
	meta.CreatedAt = at.UTC()
	meta.UpdatedAt = at.UTC()
	meta.DeletedAt = nil

	if err := b.store.Insert(ctx, *record); err != nil {
		return nil, err
	}
	return b.snapshot(record), nil
}

func (b *typedBinding[T, PT]) update(ctx context.Context, v *validator.Validate, id string, data map[string]any, at time.Time) (*domain.Entity, error) {
	current, err := b.store.Get(ctx, id, false)
	if err != nil {
		return nil, err
	}

	record, err := b.build(v, merge(PT(current).Fields(), data))
	if err != nil {
		return nil, err
	}

	meta := PT(record).Metadata()
	*meta = *PT(current).Metadata()
	meta.UpdatedAt = at.UTC()

	if err := b.store.Replace(ctx, *record); err != nil {
		return nil, err
	}
	return b.snapshot(record), nil
}

func (b *typedBinding[T, PT]) delete(ctx context.Context, id string, at time.Time) error {
	return b.store.SoftDelete(ctx, id, at.UTC())
}

func (b *typedBinding[T, PT]) build(v *validator.Validate, data map[string]any) (*T, error) {
	record := new(T)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           record,
		TagName:          "mapstructure",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(domain.DateLayout),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("build %s decoder: %w", b.targetType, err)
	}
	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRecord, err)
	}

	if err := v.Struct(record); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidRecord, describe(verrs))
		}
		return nil, fmt.Errorf("validate %s: %w", b.targetType, err)
	}
	return record, nil
}

func (b *typedBinding[T, PT]) snapshot(record *T) *domain.Entity {
	meta := PT(record).Metadata()
	return &domain.Entity{
		Type:      b.targetType,
		ID:        meta.ID,
		Fields:    PT(record).Fields(),
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
		DeletedAt: meta.DeletedAt,
	}
}

func merge(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func describe(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
