package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/auction-registry/internal/infra/config"
	"github.com/arklim/auction-registry/internal/usecase"
)

// Provider bundles the collectors, tracer and error reporter of a running service.
type Provider struct {
	Registry *prometheus.Registry
	Approval *ApprovalCollectors
	Guard    *GuardCollectors
	Reporter usecase.ErrorReporter

	tracer *TracerProvider
	sentry bool
	logger *zap.Logger
}

// Attach configures metrics, tracing and error reporting from cfg.
// Tracing is skipped without an OTLP endpoint and Sentry without a DSN.
func Attach(ctx context.Context, cfg *config.AppConfig, version string, logger *zap.Logger) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	approval, err := NewApprovalCollectors(registry)
	if err != nil {
		return nil, err
	}
	guard, err := NewGuardCollectors(registry)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		Registry: registry,
		Approval: approval,
		Guard:    guard,
		Reporter: NopReporter{},
		logger:   logger,
	}

	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err := NewTracerProvider(ctx, cfg.Telemetry, version, logger)
		if err != nil {
			return nil, err
		}
		p.tracer = tracer
	}

	enabled, err := InitSentry(cfg.Telemetry.SentryDSN, cfg.App.Env, version)
	if err != nil {
		return nil, fmt.Errorf("init sentry: %w", err)
	}
	if enabled {
		p.sentry = true
		p.Reporter = NewSentryReporter(nil)
		logger.Info("Sentry error reporting enabled", zap.String("environment", cfg.App.Env))
	}

	return p, nil
}

// MetricsHandler serves the provider's registry in the Prometheus exposition format.
func (p *Provider) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{Registry: p.Registry})
}

// SentryEnabled reports whether a DSN was configured.
func (p *Provider) SentryEnabled() bool {
	return p != nil && p.sentry
}

// Shutdown flushes spans and buffered error reports.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tracer != nil {
		if err := p.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if p.sentry {
		FlushSentry()
	}
	return errors.Join(errs...)
}
