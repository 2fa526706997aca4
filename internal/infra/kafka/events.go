package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/core/port"
	"github.com/arklim/auction-registry/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types published by the registry.
const (
	EventChangeRequestSubmitted = "change_request.submitted"
	EventChangeRequestApproved  = "change_request.approved"
	EventChangeRequestRejected  = "change_request.rejected"
	EventAccountLocked          = "account.locked"
	EventPasswordChanged        = "account.password.changed"
)

// EventPublisher delivers change request notifications and account security events to Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	SubjectID string           `json:"subject_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

// publish keys the message by subjectID so events about one subject stay ordered on a partition.
func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, subjectID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		SubjectID: subjectID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(subjectID),
		Value: sarama.ByteEncoder(bytes),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
		},
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type changeRequestPayload struct {
	ChangeRequestID string    `json:"change_request_id"`
	Kind            string    `json:"kind"`
	RequesterID     string    `json:"requester_id"`
	ApproverID      *string   `json:"approver_id,omitempty"`
	Recipients      []string  `json:"recipients"`
	TargetType      string    `json:"target_type"`
	TargetID        *string   `json:"target_id,omitempty"`
	AppliedID       *string   `json:"applied_target_id,omitempty"`
	Operation       string    `json:"operation"`
	Notes           *string   `json:"notes,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func newChangeRequestPayload(event domain.ChangeRequestEvent) changeRequestPayload {
	recipients := event.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	return changeRequestPayload{
		ChangeRequestID: event.ChangeRequestID,
		Kind:            string(event.Kind),
		RequesterID:     event.RequesterID,
		ApproverID:      event.ApproverID,
		Recipients:      recipients,
		TargetType:      string(event.TargetType),
		TargetID:        event.TargetID,
		AppliedID:       event.AppliedID,
		Operation:       string(event.Operation),
		Notes:           event.Notes,
		OccurredAt:      event.OccurredAt.UTC(),
	}
}

// changeRequestEventType maps a transition to its topic suffix.
func changeRequestEventType(kind domain.ChangeRequestEventKind) (string, error) {
	switch kind {
	case domain.ChangeRequestSubmittedEvent:
		return EventChangeRequestSubmitted, nil
	case domain.ChangeRequestApprovedEvent:
		return EventChangeRequestApproved, nil
	case domain.ChangeRequestRejectedEvent:
		return EventChangeRequestRejected, nil
	default:
		return "", fmt.Errorf("unknown change request event kind %q", kind)
	}
}

// DispatchChangeRequest publishes change_request.* events.
func (p *EventPublisher) DispatchChangeRequest(ctx context.Context, event domain.ChangeRequestEvent) error {
	eventType, err := changeRequestEventType(event.Kind)
	if err != nil {
		return err
	}
	return p.publish(ctx, event.EventID, eventType, event.ChangeRequestID, event.OccurredAt, newChangeRequestPayload(event))
}

// PublishAccountLocked publishes account.locked events.
func (p *EventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	payload := struct {
		PrincipalID string    `json:"principal_id"`
		LockedUntil time.Time `json:"locked_until"`
		OccurredAt  time.Time `json:"occurred_at"`
	}{
		PrincipalID: event.PrincipalID,
		LockedUntil: event.LockedUntil.UTC(),
		OccurredAt:  event.OccurredAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventAccountLocked, event.PrincipalID, event.OccurredAt, payload)
}

// PublishPasswordChanged publishes account.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		PrincipalID string    `json:"principal_id"`
		ChangedAt   time.Time `json:"changed_at"`
	}{
		PrincipalID: event.PrincipalID,
		ChangedAt:   event.ChangedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventPasswordChanged, event.PrincipalID, event.ChangedAt, payload)
}

var (
	_ port.NotificationDispatcher = (*EventPublisher)(nil)
	_ port.SecurityEventPublisher = (*EventPublisher)(nil)
)
