package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, subjectID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("subject_id", subjectID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// DispatchChangeRequest logs change_request.* events.
func (p *StubPublisher) DispatchChangeRequest(_ context.Context, event domain.ChangeRequestEvent) error {
	eventType, err := changeRequestEventType(event.Kind)
	if err != nil {
		return err
	}
	p.logEvent(eventType, event.ChangeRequestID, event.OccurredAt, newChangeRequestPayload(event))
	return nil
}

// PublishAccountLocked logs account.locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	payload := map[string]any{
		"principal_id": event.PrincipalID,
		"locked_until": event.LockedUntil,
	}
	p.logEvent(EventAccountLocked, event.PrincipalID, event.OccurredAt, payload)
	return nil
}

// PublishPasswordChanged logs account.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	payload := map[string]any{
		"principal_id": event.PrincipalID,
		"changed_at":   event.ChangedAt,
	}
	p.logEvent(EventPasswordChanged, event.PrincipalID, event.ChangedAt, payload)
	return nil
}

var (
	_ port.NotificationDispatcher = (*StubPublisher)(nil)
	_ port.SecurityEventPublisher = (*StubPublisher)(nil)
)
