package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/auction-registry/internal/core/port"
	"github.com/arklim/auction-registry/internal/infra/config"
	kafkainfra "github.com/arklim/auction-registry/internal/infra/kafka"
	"github.com/arklim/auction-registry/internal/infra/logger"
	redisinfra "github.com/arklim/auction-registry/internal/infra/redis"
	"github.com/arklim/auction-registry/internal/infra/security"
	"github.com/arklim/auction-registry/internal/infra/telemetry"
	"github.com/arklim/auction-registry/internal/repository/memory"
	redisrepo "github.com/arklim/auction-registry/internal/repository/redis"
	"github.com/arklim/auction-registry/internal/transport/http/middleware"
	"github.com/arklim/auction-registry/internal/transport/http/routes"
	"github.com/arklim/auction-registry/internal/usecase"
)

// Version is stamped at build time.
var Version = "dev"

type Application struct {
	cfg       *config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	stores    *stores
	redis     *redisinfra.Client
	producer  *kafkainfra.Producer
	telemetry *telemetry.Provider
}

type publisher interface {
	port.NotificationDispatcher
	port.SecurityEventPublisher
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env, cfg.App.Name)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	ok := false
	defer func() {
		if !ok {
			a.release(context.Background())
		}
	}()

	a.telemetry, err = telemetry.Attach(ctx, cfg, Version, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	hasher, err := newHasher(cfg.Argon2)
	if err != nil {
		return nil, fmt.Errorf("init password hasher: %w", err)
	}

	a.stores, err = openStores(ctx, cfg, hasher, log)
	if err != nil {
		return nil, err
	}

	var limiterStore port.RateLimitStore = memory.NewRateLimitStore().WithTTL(cfg.Security.LoginWindow)
	if cfg.Redis.Enabled {
		a.redis, err = redisinfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		limiterStore = redisrepo.NewRateLimitRepository(a.redis.Client(), redisrepo.SlidingWindowConfig{
			KeyPrefix: cfg.Redis.RateLimitPrefix,
			TTL:       cfg.Redis.RateLimitTTL,
		})
	}

	events := a.newPublisher(cfg, log)

	tokens, err := newSessionTokens(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("init session tokens: %w", err)
	}

	policyCfg := security.DefaultPasswordPolicyConfig()
	policyCfg.MinLength = cfg.Security.PasswordMinLength
	policyCfg.MinScore = cfg.Security.PasswordMinScore
	policy := security.NewPasswordPolicy(policyCfg)

	guard := usecase.NewAccountSecurityGuard(usecase.GuardDependencies{
		Principals:  a.stores.principals,
		Credentials: a.stores.credentials,
		Tracker: usecase.NewLoginAttemptTracker(a.stores.loginStates, usecase.LockoutPolicy{
			Threshold: cfg.Security.LockoutThreshold,
			Duration:  cfg.Security.LockoutDuration,
		}),
		Limiter: usecase.NewRateLimiter(limiterStore, usecase.RateLimitPolicy{
			MaxAttempts: cfg.Security.LoginMaxAttempts,
			Window:      cfg.Security.LoginWindow,
		}),
		History:  usecase.NewPasswordHistoryValidator(hasher, cfg.Security.PasswordHistoryDepth),
		Hasher:   hasher,
		Policy:   policy,
		Sessions: tokens,
	}).
		WithAudit(a.stores.audit).
		WithEvents(events).
		WithCapabilities(a.stores.capabilities).
		WithMetrics(a.telemetry.Guard).
		WithLogger(log)

	approvals := usecase.NewApprovalEngine(a.stores.requests, a.stores.entities, a.stores.approvals, events).
		WithCapabilities(a.stores.capabilities).
		WithMetrics(a.telemetry.Approval).
		WithReporter(a.telemetry.Reporter).
		WithLogger(log)

	deps := routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Tokens:   tokens,
		Reporter: a.telemetry.Reporter,
		Throttle: middleware.NewThrottle(cfg.Throttle.RequestsPerSecond, cfg.Throttle.Burst, middleware.ClientIPIdentifier(), log),
		Services: routes.ServiceSet{
			Accounts:  guard,
			Approvals: approvals,
		},
	}
	if cfg.Telemetry.MetricsEnabled {
		deps.HTTPMetrics, err = middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: a.telemetry.Registry})
		if err != nil {
			return nil, fmt.Errorf("init http metrics: %w", err)
		}
		deps.MetricsHandler = a.telemetry.MetricsHandler()
	}
	if a.stores.pool != nil {
		deps.Database = a.stores.pool
	}
	if a.redis != nil {
		deps.Cache = a.redis
	}

	a.engine = routes.Register(deps)
	ok = true
	return a, nil
}

func newHasher(cfg config.Argon2Settings) (*security.Argon2Hasher, error) {
	argonCfg := security.DefaultArgon2Config()
	if cfg.Memory > 0 {
		argonCfg.Memory = cfg.Memory
	}
	if cfg.Iterations > 0 {
		argonCfg.Iterations = cfg.Iterations
	}
	if cfg.Parallelism > 0 {
		argonCfg.Parallelism = cfg.Parallelism
	}
	if cfg.SaltLength > 0 {
		argonCfg.SaltLength = cfg.SaltLength
	}
	if cfg.KeyLength > 0 {
		argonCfg.KeyLength = cfg.KeyLength
	}
	return security.NewArgon2Hasher(argonCfg)
}

// newSessionTokens generates an ephemeral secret in development when none is configured.
func newSessionTokens(cfg *config.AppConfig, log *zap.Logger) (*security.SessionTokens, error) {
	secret := cfg.Session.Secret
	if secret == "" && cfg.App.Env == "development" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		log.Warn("session.secret not set, sessions will not survive a restart")
	}
	return security.NewSessionTokens(secret, cfg.Session.Issuer, cfg.Session.TTL)
}

func (a *Application) newPublisher(cfg *config.AppConfig, log *zap.Logger) publisher {
	if !cfg.Kafka.Enabled {
		log.Info("kafka disabled, using stub publisher")
		return kafkainfra.NewStubPublisher(log)
	}
	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log)
	}
	a.producer = producer
	return kafkainfra.NewEventPublisher(producer, cfg.App, log)
}

// Handler exposes the configured HTTP engine.
func (a *Application) Handler() http.Handler {
	return a.engine
}

func (a *Application) Run(ctx context.Context) error {
	defer a.release(context.Background())

	srv := &http.Server{
		Addr:              net.JoinHostPort(a.cfg.App.Host, strconv.Itoa(a.cfg.App.Port)),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auction registry API",
		zap.String("env", a.cfg.App.Env),
		zap.String("store", a.cfg.Store),
		zap.String("address", srv.Addr),
		zap.String("version", Version),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		timeout := a.cfg.App.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		a.logger.Info("shutting down", zap.Duration("timeout", timeout))
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// release closes backends in reverse order of acquisition.
func (a *Application) release(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("kafka producer close failed", zap.Error(err))
		}
		a.producer = nil
	}
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
	if a.stores != nil && a.stores.pool != nil {
		a.stores.pool.Close()
		a.stores.pool = nil
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
		a.telemetry = nil
	}
	_ = a.logger.Sync()
}
