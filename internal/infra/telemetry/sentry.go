package telemetry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/arklim/auction-registry/internal/usecase"
)

// InitSentry configures the global Sentry client. An empty DSN leaves reporting disabled.
func InitSentry(dsn, environment, release string) (bool, error) {
	if dsn == "" {
		return false, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// FlushSentry waits briefly for buffered events to be delivered.
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// SentryReporter forwards unexpected failures to Sentry with tags.
type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter reports through hub, or the current hub when hub is nil.
func NewSentryReporter(hub *sentry.Hub) *SentryReporter {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentryReporter{hub: hub}
}

// Report implements usecase.ErrorReporter. A hub bound to ctx takes precedence.
func (r *SentryReporter) Report(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}

	hub := r.hub
	if ctx != nil {
		if bound := sentry.GetHubFromContext(ctx); bound != nil {
			hub = bound
		}
	}

	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		hub.CaptureException(err)
	})
}

// NopReporter discards reports.
type NopReporter struct{}

// Report implements usecase.ErrorReporter.
func (NopReporter) Report(context.Context, error, map[string]string) {}

var (
	_ usecase.ErrorReporter = (*SentryReporter)(nil)
	_ usecase.ErrorReporter = NopReporter{}
)
