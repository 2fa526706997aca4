package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/core/port"
	"github.com/arklim/auction-registry/internal/registry"
	"github.com/arklim/auction-registry/internal/repository"
)

// NewRegistry binds every target type to its table on exec.
func NewRegistry(exec pgExecutor, validate *validator.Validate) *registry.Registry {
	return registry.New(validate,
		registry.Bind[domain.Security, *domain.Security](domain.TargetSecurity, NewSecurityStore(exec)),
		registry.Bind[domain.AuctionResult, *domain.AuctionResult](domain.TargetAuctionResult, NewAuctionResultStore(exec)),
		registry.Bind[domain.ProductType, *domain.ProductType](domain.TargetProductType, NewProductTypeStore(exec)),
	)
}

// UnitOfWork runs approval work in a transaction. Work sharing a key is serialized
// with a transaction scoped advisory lock.
type UnitOfWork struct {
	db       txBeginner
	validate *validator.Validate
}

// NewUnitOfWork constructs the unit of work over a pool.
func NewUnitOfWork(db txBeginner, validate *validator.Validate) *UnitOfWork {
	if validate == nil {
		validate = registry.NewValidator()
	}
	return &UnitOfWork{db: db, validate: validate}
}

// Do runs fn inside one transaction and rolls back every write when fn fails.
func (u *UnitOfWork) Do(ctx context.Context, key string, fn func(ctx context.Context, scope port.ApprovalScope) error) error {
	return inTx(ctx, u.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, strings.TrimSpace(key)); err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		return fn(ctx, approvalScope{
			requests: NewChangeRequestRepository(tx),
			entities: NewRegistry(tx, u.validate),
		})
	})
}

type approvalScope struct {
	requests port.ChangeRequestRepository
	entities port.EntityRegistry
}

func (s approvalScope) ChangeRequests() port.ChangeRequestRepository { return s.requests }
func (s approvalScope) Entities() port.EntityRegistry                { return s.entities }

// CredentialUnitOfWork runs credential changes in a transaction holding the principal row lock.
type CredentialUnitOfWork struct {
	db txBeginner
}

// NewCredentialUnitOfWork constructs the unit of work over a pool.
func NewCredentialUnitOfWork(db txBeginner) *CredentialUnitOfWork {
	return &CredentialUnitOfWork{db: db}
}

// Do locks the principal and runs fn in the same transaction.
func (u *CredentialUnitOfWork) Do(ctx context.Context, principalID string, fn func(ctx context.Context, scope port.CredentialScope) error) error {
	return inTx(ctx, u.db, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `
        SELECT id
          FROM registry.principals
         WHERE id = $1
         FOR UPDATE
    `, strings.TrimSpace(principalID)).Scan(&id)
		if err != nil {
			if isNoRows(err) {
				return repository.ErrNotFound
			}
			return fmt.Errorf("lock principal: %w", err)
		}
		return fn(ctx, credentialScope{
			principals: NewPrincipalRepository(tx),
			history:    NewPasswordHistoryRepository(tx),
		})
	})
}

type credentialScope struct {
	principals port.PrincipalRepository
	history    port.PasswordHistoryRepository
}

func (s credentialScope) Principals() port.PrincipalRepository    { return s.principals }
func (s credentialScope) History() port.PasswordHistoryRepository { return s.history }

var (
	_ port.UnitOfWork           = (*UnitOfWork)(nil)
	_ port.CredentialUnitOfWork = (*CredentialUnitOfWork)(nil)
)
