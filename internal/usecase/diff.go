package usecase

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/arklim/auction-registry/internal/core/domain"
)

// computeDiff builds the reviewer preview. current is nil for creates.
func computeDiff(request domain.ChangeRequest, current *domain.Entity) []domain.FieldChange {
	switch request.Operation {
	case domain.OperationCreate:
		out := make([]domain.FieldChange, 0, len(request.ProposedData))
		for _, field := range sortedKeys(request.ProposedData) {
			out = append(out, domain.FieldChange{
				Field:  field,
				Kind:   domain.DiffAdded,
				New:    request.ProposedData[field],
				HasNew: true,
			})
		}
		return out
	case domain.OperationUpdate:
		out := make([]domain.FieldChange, 0, len(request.ProposedData))
		for _, field := range sortedKeys(request.ProposedData) {
			change := domain.FieldChange{
				Field:  field,
				Kind:   domain.DiffChanged,
				New:    request.ProposedData[field],
				HasNew: true,
			}
			if current != nil {
				if old, ok := current.Fields[field]; ok {
					change.Old = old
					change.HasOld = true
					if sameValue(old, change.New) {
						change.Kind = domain.DiffUnchanged
					}
				}
			}
			out = append(out, change)
		}
		return out
	case domain.OperationDelete:
		if current == nil {
			return []domain.FieldChange{}
		}
		out := make([]domain.FieldChange, 0, len(current.Fields))
		for _, field := range sortedKeys(current.Fields) {
			out = append(out, domain.FieldChange{
				Field:  field,
				Kind:   domain.DiffRemoved,
				Old:    current.Fields[field],
				HasOld: true,
			})
		}
		return out
	default:
		return []domain.FieldChange{}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sameValue compares canonical field values. Numbers compare by value so that data
// round-tripped through JSON matches the typed record.
func sameValue(a, b any) bool {
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			return x == y
		}
	}
	return reflect.DeepEqual(a, b)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
