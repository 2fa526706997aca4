package postgres

import (
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/auction-registry/internal/registry"
)

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	ChangeRequests  *ChangeRequestRepository
	Principals      *PrincipalRepository
	PasswordHistory *PasswordHistoryRepository
	LoginAttempts   *LoginAttemptRepository
	Registry        *registry.Registry
	Approvals       *UnitOfWork
	Credentials     *CredentialUnitOfWork
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool, validate *validator.Validate) *Repositories {
	if validate == nil {
		validate = registry.NewValidator()
	}
	return &Repositories{
		ChangeRequests:  NewChangeRequestRepository(pool),
		Principals:      NewPrincipalRepository(pool),
		PasswordHistory: NewPasswordHistoryRepository(pool),
		LoginAttempts:   NewLoginAttemptRepository(pool),
		Registry:        NewRegistry(pool, validate),
		Approvals:       NewUnitOfWork(pool, validate),
		Credentials:     NewCredentialUnitOfWork(pool),
	}
}
