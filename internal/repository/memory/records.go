// Package memory holds in-process repository implementations for single-node
// development and tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/core/port"
	"github.com/arklim/auction-registry/internal/repository"
)

// RecordStore keeps registry records of one type in a map.
type RecordStore[T any, PT domain.RecordPointer[T]] struct {
	mu      sync.RWMutex
	records map[string]T
}

// NewRecordStore constructs an empty store.
func NewRecordStore[T any, PT domain.RecordPointer[T]]() *RecordStore[T, PT] {
	return &RecordStore[T, PT]{records: make(map[string]T)}
}

// Get returns a copy of the record.
func (s *RecordStore[T, PT]) Get(_ context.Context, id string, includeDeleted bool) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[strings.TrimSpace(id)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !includeDeleted && PT(&record).Metadata().DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return &record, nil
}

// Insert stores a new record.
func (s *RecordStore[T, PT]) Insert(ctx context.Context, record T) error {
	id := PT(&record).Metadata().ID
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; exists {
		return repository.ErrConflict
	}
	if s.keyTaken(id, record) {
		return repository.ErrConflict
	}
	s.records[id] = record
	var zero T
	s.rememberPrevious(ctx, id, zero, false)
	return nil
}

// Replace overwrites a live record.
func (s *RecordStore[T, PT]) Replace(ctx context.Context, record T) error {
	id := PT(&record).Metadata().ID
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[id]
	if !ok || PT(&existing).Metadata().DeletedAt != nil {
		return repository.ErrNotFound
	}
	if s.keyTaken(id, record) {
		return repository.ErrConflict
	}
	s.records[id] = record
	s.rememberPrevious(ctx, id, existing, true)
	return nil
}

// SoftDelete sets the tombstone on a live record.
func (s *RecordStore[T, PT]) SoftDelete(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	previous := record
	meta := PT(&record).Metadata()
	if meta.DeletedAt != nil {
		return repository.ErrNotFound
	}
	deletedAt := at.UTC()
	meta.DeletedAt = &deletedAt
	meta.UpdatedAt = deletedAt
	s.records[id] = record
	s.rememberPrevious(ctx, id, previous, true)
	return nil
}

// keyTaken reports whether another live record already holds the natural key of record.
// Must be called with mu held.
func (s *RecordStore[T, PT]) keyTaken(id string, record T) bool {
	keyed, ok := any(record).(domain.UniquelyKeyed)
	if !ok {
		return false
	}
	key := keyed.UniqueKey()
	for otherID, other := range s.records {
		if otherID == id || PT(&other).Metadata().DeletedAt != nil {
			continue
		}
		if any(other).(domain.UniquelyKeyed).UniqueKey() == key {
			return true
		}
	}
	return false
}

func (s *RecordStore[T, PT]) rememberPrevious(ctx context.Context, id string, previous T, existed bool) {
	remember(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.records[id] = previous
			return
		}
		delete(s.records, id)
	})
}

var _ port.RecordStore[domain.Security] = (*RecordStore[domain.Security, *domain.Security])(nil)
