package routes

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/auction-registry/internal/infra/config"
	"github.com/arklim/auction-registry/internal/transport/http/handlers"
	"github.com/arklim/auction-registry/internal/transport/http/middleware"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Accounts  handlers.AccountService
	Approvals handlers.ChangeRequestService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config         *config.AppConfig
	Logger         *zap.Logger
	Services       ServiceSet
	Tokens         middleware.TokenVerifier
	Throttle       *middleware.Throttle
	HTTPMetrics    *middleware.HTTPMetrics
	MetricsHandler http.Handler
	Reporter       middleware.ErrorReporter
	Database       DatabaseChecker
	Cache          CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config != nil && deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Recovery(deps.Logger))
	if deps.Reporter != nil {
		r.Use(middleware.ReportServerErrors(deps.Reporter))
	}
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	if deps.Tokens == nil {
		return r
	}

	api := r.Group("/api/v1")
	if deps.Throttle != nil {
		api.Use(deps.Throttle.Handler())
	}
	requireAuth := middleware.RequireAuth(deps.Tokens)

	if deps.Services.Accounts != nil {
		authHandler := handlers.NewAuthHandler(deps.Services.Accounts)
		authHandler.RegisterRoutes(api.Group("/auth"), requireAuth)
		authHandler.RegisterAdminRoutes(api.Group("/admin", requireAuth))
	}

	if deps.Services.Approvals != nil {
		changeHandler := handlers.NewChangeRequestHandler(deps.Services.Approvals)
		changeHandler.RegisterRoutes(api.Group("/change-requests", requireAuth))
	}

	return r
}
