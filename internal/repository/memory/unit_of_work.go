package memory

import (
	"context"

	"github.com/arklim/auction-registry/internal/core/port"
	"github.com/arklim/auction-registry/internal/keylock"
)

// UnitOfWork serializes approval work per key and undoes every journaled write when fn fails.
type UnitOfWork struct {
	locks    *keylock.Mutex
	requests *ChangeRequestStore
	entities port.EntityRegistry
}

// NewUnitOfWork binds the change request store and the registry whose stores live in this package.
func NewUnitOfWork(requests *ChangeRequestStore, entities port.EntityRegistry) *UnitOfWork {
	return &UnitOfWork{locks: keylock.New(), requests: requests, entities: entities}
}

// Do runs fn while holding the lock for key.
func (u *UnitOfWork) Do(ctx context.Context, key string, fn func(ctx context.Context, scope port.ApprovalScope) error) error {
	release := u.locks.Lock(key)
	defer release()

	if err := ctx.Err(); err != nil {
		return err
	}

	txCtx, j := withJournal(ctx)
	if err := fn(txCtx, approvalScope{requests: u.requests, entities: u.entities}); err != nil {
		j.rollback()
		return err
	}
	return nil
}

type approvalScope struct {
	requests port.ChangeRequestRepository
	entities port.EntityRegistry
}

func (s approvalScope) ChangeRequests() port.ChangeRequestRepository { return s.requests }
func (s approvalScope) Entities() port.EntityRegistry                { return s.entities }

var _ port.UnitOfWork = (*UnitOfWork)(nil)
