package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/core/port"
	"github.com/arklim/auction-registry/internal/repository"
)

// ChangeRequestStore keeps change requests in a map.
type ChangeRequestStore struct {
	mu       sync.RWMutex
	requests map[string]domain.ChangeRequest
}

// NewChangeRequestStore constructs an empty store.
func NewChangeRequestStore() *ChangeRequestStore {
	return &ChangeRequestStore{requests: make(map[string]domain.ChangeRequest)}
}

// Create stores a new change request.
func (s *ChangeRequestStore) Create(ctx context.Context, request domain.ChangeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[request.ID]; exists {
		return repository.ErrConflict
	}
	s.requests[request.ID] = cloneRequest(request)
	remember(ctx, func() {
		s.mu.Lock()
		delete(s.requests, request.ID)
		s.mu.Unlock()
	})
	return nil
}

// Get returns a copy of the change request.
func (s *ChangeRequestStore) Get(_ context.Context, id string) (*domain.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	request, ok := s.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneRequest(request)
	return &out, nil
}

// GetForUpdate behaves like Get; exclusivity comes from the enclosing UnitOfWork.
func (s *ChangeRequestStore) GetForUpdate(ctx context.Context, id string) (*domain.ChangeRequest, error) {
	return s.Get(ctx, id)
}

// List returns requests matching filter, newest first.
func (s *ChangeRequestStore) List(_ context.Context, filter domain.ChangeRequestFilter) ([]domain.ChangeRequest, error) {
	s.mu.RLock()
	out := make([]domain.ChangeRequest, 0, len(s.requests))
	for _, request := range s.requests {
		if filter.Status != "" && request.Status != filter.Status {
			continue
		}
		if filter.TargetType != "" && request.TargetType != filter.TargetType {
			continue
		}
		if filter.RequestedBy != "" && request.RequestedBy != filter.RequestedBy {
			continue
		}
		out = append(out, cloneRequest(request))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []domain.ChangeRequest{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// MarkDecided writes the terminal fields of a pending request.
func (s *ChangeRequestStore) MarkDecided(ctx context.Context, decision domain.ChangeRequestDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[decision.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if !request.IsPending() {
		return repository.ErrConflict
	}

	previous := cloneRequest(request)
	decidedBy := decision.DecidedBy
	decidedAt := decision.DecidedAt.UTC()
	request.Status = decision.Status
	request.DecidedBy = &decidedBy
	request.DecidedAt = &decidedAt
	request.DecisionNotes = cloneString(decision.Notes)
	request.AppliedID = cloneString(decision.AppliedID)
	s.requests[decision.ID] = request
	remember(ctx, func() {
		s.mu.Lock()
		s.requests[previous.ID] = previous
		s.mu.Unlock()
	})
	return nil
}

func cloneRequest(in domain.ChangeRequest) domain.ChangeRequest {
	out := in
	out.DecidedBy = cloneString(in.DecidedBy)
	out.TargetID = cloneString(in.TargetID)
	out.AppliedID = cloneString(in.AppliedID)
	out.DecisionNotes = cloneString(in.DecisionNotes)
	if in.DecidedAt != nil {
		at := *in.DecidedAt
		out.DecidedAt = &at
	}
	if in.ProposedData != nil {
		out.ProposedData = make(map[string]any, len(in.ProposedData))
		for k, v := range in.ProposedData {
			out.ProposedData[k] = v
		}
	}
	return out
}

func cloneString(in *string) *string {
	if in == nil {
		return nil
	}
	v := *in
	return &v
}

var _ port.ChangeRequestRepository = (*ChangeRequestStore)(nil)
