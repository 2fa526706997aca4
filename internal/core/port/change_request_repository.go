package port

import (
	"context"

	"github.com/arklim/auction-registry/internal/core/domain"
)

// ChangeRequestRepository persists change requests.
type ChangeRequestRepository interface {
	Create(ctx context.Context, request domain.ChangeRequest) error
	Get(ctx context.Context, id string) (*domain.ChangeRequest, error)
	// GetForUpdate loads the request and holds it exclusively until the enclosing unit of work ends.
	GetForUpdate(ctx context.Context, id string) (*domain.ChangeRequest, error)
	List(ctx context.Context, filter domain.ChangeRequestFilter) ([]domain.ChangeRequest, error)
	MarkDecided(ctx context.Context, decision domain.ChangeRequestDecision) error
}

// ApprovalScope exposes the repositories bound to a single unit of work.
type ApprovalScope interface {
	ChangeRequests() ChangeRequestRepository
	Entities() EntityRegistry
}

// UnitOfWork runs fn atomically. Work sharing the same key is serialized and
// nothing fn wrote survives when it returns an error.
type UnitOfWork interface {
	Do(ctx context.Context, key string, fn func(ctx context.Context, scope ApprovalScope) error) error
}
