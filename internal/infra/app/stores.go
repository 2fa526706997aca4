package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/core/port"
	"github.com/arklim/auction-registry/internal/infra/config"
	"github.com/arklim/auction-registry/internal/infra/database"
	"github.com/arklim/auction-registry/internal/infra/logger"
	"github.com/arklim/auction-registry/internal/registry"
	"github.com/arklim/auction-registry/internal/repository/memory"
	postgresrepo "github.com/arklim/auction-registry/internal/repository/postgres"
)

// stores is the persistence surface the usecases are built on.
type stores struct {
	requests     port.ChangeRequestRepository
	entities     port.EntityRegistry
	approvals    port.UnitOfWork
	principals   port.PrincipalRepository
	loginStates  port.LoginStateRepository
	credentials  port.CredentialUnitOfWork
	audit        port.LoginAuditRepository
	capabilities port.CapabilityLookup

	pool *pgxpool.Pool
}

func openStores(ctx context.Context, cfg *config.AppConfig, hasher port.PasswordHasher, log *zap.Logger) (*stores, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memoryStores(cfg.Bootstrap, hasher, log)
	case config.StorePostgres:
		return postgresStores(ctx, cfg.Postgres, log)
	default:
		return nil, fmt.Errorf("unsupported store %q", cfg.Store)
	}
}

func postgresStores(ctx context.Context, cfg config.PostgresSettings, log *zap.Logger) (*stores, error) {
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if cfg.AutoMigrate {
		if err := database.Migrate(cfg, log); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}

	repos := postgresrepo.NewRepositories(pool, registry.NewValidator())
	return &stores{
		requests:     repos.ChangeRequests,
		entities:     repos.Registry,
		approvals:    repos.Approvals,
		principals:   repos.Principals,
		loginStates:  repos.Principals,
		credentials:  repos.Credentials,
		audit:        repos.LoginAttempts,
		capabilities: repos.Principals,
		pool:         pool,
	}, nil
}

func memoryStores(bootstrap config.BootstrapSettings, hasher port.PasswordHasher, log *zap.Logger) (*stores, error) {
	entities := registry.New(registry.NewValidator(),
		registry.Bind[domain.Security](domain.TargetSecurity, memory.NewRecordStore[domain.Security]()),
		registry.Bind[domain.AuctionResult](domain.TargetAuctionResult, memory.NewRecordStore[domain.AuctionResult]()),
		registry.Bind[domain.ProductType](domain.TargetProductType, memory.NewRecordStore[domain.ProductType]()),
	)
	requests := memory.NewChangeRequestStore()
	principals := memory.NewPrincipalStore()

	if err := seedPrincipal(principals, bootstrap, hasher, log); err != nil {
		return nil, err
	}

	log.Warn("using in-memory store, data is lost on restart")
	return &stores{
		requests:     requests,
		entities:     entities,
		approvals:    memory.NewUnitOfWork(requests, entities),
		principals:   principals,
		loginStates:  principals,
		credentials:  principals,
		audit:        principals,
		capabilities: principals,
	}, nil
}

// seedPrincipal adds a principal holding every capability.
func seedPrincipal(principals *memory.PrincipalStore, bootstrap config.BootstrapSettings, hasher port.PasswordHasher, log *zap.Logger) error {
	identifier := strings.TrimSpace(bootstrap.Identifier)
	if identifier == "" {
		return nil
	}
	if bootstrap.Password == "" {
		return fmt.Errorf("bootstrap.password is required with bootstrap.identifier")
	}

	hash, err := hasher.Hash(bootstrap.Password)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}

	now := time.Now().UTC()
	principals.Put(domain.Principal{
		ID:           uuid.NewString(),
		Identifier:   identifier,
		DisplayName:  bootstrap.DisplayName,
		PasswordHash: hash,
		Active:       true,
		Capabilities: []string{
			string(domain.CapabilitySubmitChanges),
			string(domain.CapabilityApproveChanges),
			string(domain.CapabilitySecurityAdmin),
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
	log.Info("bootstrap principal seeded", zap.String("identifier", logger.MaskIdentifier(identifier)))
	return nil
}
