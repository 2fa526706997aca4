package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/infra/config"
)

type fakeAsyncProducer struct {
	input     chan *sarama.ProducerMessage
	errors    chan *sarama.ProducerError
	closeOnce sync.Once
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 4),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() { _ = f.Close() }

func (f *fakeAsyncProducer) Close() error {
	f.closeOnce.Do(func() { close(f.errors) })
	return nil
}

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T) (*EventPublisher, *fakeAsyncProducer) {
	t.Helper()

	asyncProducer := newFakeAsyncProducer()
	producer := newProducer(asyncProducer, config.KafkaSettings{TopicPrefix: "registry"}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = producer.Close() })

	publisher := NewEventPublisher(producer, config.AppSettings{
		Name: "auction-registry",
		Env:  "test",
	}, zaptest.NewLogger(t))
	return publisher, asyncProducer
}

func receive(t *testing.T, asyncProducer *fakeAsyncProducer) (*sarama.ProducerMessage, map[string]any) {
	t.Helper()

	select {
	case msg := <-asyncProducer.input:
		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}
		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}
		return msg, envelope
	case <-time.After(time.Second):
		t.Fatal("expected message to be published")
	}
	return nil, nil
}

func TestDispatchChangeRequestSubmitted(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	occurredAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	event := domain.ChangeRequestEvent{
		EventID:         "event-1",
		Kind:            domain.ChangeRequestSubmittedEvent,
		ChangeRequestID: "cr-1",
		RequesterID:     "maker",
		Recipients:      []string{"checker", "checker-2"},
		TargetType:      domain.TargetSecurity,
		Operation:       domain.OperationCreate,
		OccurredAt:      occurredAt,
	}

	if err := publisher.DispatchChangeRequest(context.Background(), event); err != nil {
		t.Fatalf("DispatchChangeRequest returned error: %v", err)
	}

	msg, envelope := receive(t, asyncProducer)
	if msg.Topic != "registry.change_request.submitted" {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
	key, err := msg.Key.Encode()
	if err != nil || string(key) != "cr-1" {
		t.Fatalf("expected message keyed by change request id, got %q (%v)", key, err)
	}
	if got := envelope["event_id"]; got != "event-1" {
		t.Fatalf("unexpected event_id: %v", got)
	}
	if got := envelope["timestamp"]; got != occurredAt.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected timestamp: %v", got)
	}

	payload, ok := envelope["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload not an object: %T", envelope["payload"])
	}
	recipients, ok := payload["recipients"].([]any)
	if !ok || len(recipients) != 2 || recipients[0] != "checker" {
		t.Fatalf("unexpected recipients: %v", payload["recipients"])
	}
	if _, present := payload["approver_id"]; present {
		t.Fatalf("submitted events must not carry an approver")
	}

	metadata, ok := envelope["metadata"].(map[string]any)
	if !ok || metadata["service"] != "auction-registry" {
		t.Fatalf("unexpected metadata: %v", envelope["metadata"])
	}
}

func TestDispatchChangeRequestRejectsUnknownKind(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	err := publisher.DispatchChangeRequest(context.Background(), domain.ChangeRequestEvent{Kind: "archived"})
	if err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if len(asyncProducer.input) != 0 {
		t.Fatalf("nothing should be published for unknown kinds")
	}
}

func TestPublishAccountLockedCarriesTraceID(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	err := publisher.PublishAccountLocked(ctx, domain.AccountLockedEvent{
		PrincipalID: "p-1",
		LockedUntil: now.Add(15 * time.Minute),
		OccurredAt:  now,
	})
	if err != nil {
		t.Fatalf("PublishAccountLocked returned error: %v", err)
	}

	msg, envelope := receive(t, asyncProducer)
	if msg.Topic != "registry.account.locked" {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
	if envelope["event_id"] == "" {
		t.Fatalf("expected generated event id")
	}
	metadata := envelope["metadata"].(map[string]any)
	if metadata["trace_id"] != traceID.String() {
		t.Fatalf("expected trace id %s, got %v", traceID, metadata["trace_id"])
	}
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)
	for i := 0; i < cap(asyncProducer.input); i++ {
		asyncProducer.input <- &sarama.ProducerMessage{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := publisher.PublishPasswordChanged(ctx, domain.PasswordChangedEvent{PrincipalID: "p-1", ChangedAt: time.Now()})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStubPublisherAcceptsEveryEvent(t *testing.T) {
	stub := NewStubPublisher(zaptest.NewLogger(t))
	ctx := context.Background()

	if err := stub.DispatchChangeRequest(ctx, domain.ChangeRequestEvent{Kind: domain.ChangeRequestApprovedEvent, ChangeRequestID: "cr-1"}); err != nil {
		t.Fatalf("DispatchChangeRequest returned error: %v", err)
	}
	if err := stub.PublishAccountLocked(ctx, domain.AccountLockedEvent{PrincipalID: "p-1"}); err != nil {
		t.Fatalf("PublishAccountLocked returned error: %v", err)
	}
	if err := stub.PublishPasswordChanged(ctx, domain.PasswordChangedEvent{PrincipalID: "p-1"}); err != nil {
		t.Fatalf("PublishPasswordChanged returned error: %v", err)
	}
}

func TestProducerCountsDeliveryFailures(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	producer := newProducer(asyncProducer, config.KafkaSettings{}, zaptest.NewLogger(t))

	asyncProducer.errors <- &sarama.ProducerError{Msg: &sarama.ProducerMessage{Topic: "registry.account.locked"}, Err: errors.New("broker down")}

	if err := producer.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if got := producer.Failures(); got != 1 {
		t.Fatalf("expected one failure, got %d", got)
	}
	if err := producer.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}
}

func TestSaramaConfigFlushesSynchronouslyWhenAsyncDisabled(t *testing.T) {
	async := SaramaConfig(config.KafkaSettings{Async: true})
	if async.Producer.Flush.Messages != 100 || async.Producer.Flush.Frequency == 0 {
		t.Fatalf("unexpected async flush settings: %+v", async.Producer.Flush)
	}
	if !async.Producer.Idempotent || async.Producer.RequiredAcks != sarama.WaitForAll {
		t.Fatalf("producer must be idempotent with all acks")
	}

	flushed := SaramaConfig(config.KafkaSettings{Async: false})
	if flushed.Producer.Flush.Messages != 1 {
		t.Fatalf("expected single message flushes, got %d", flushed.Producer.Flush.Messages)
	}
	if err := flushed.Validate(); err != nil {
		t.Fatalf("config must validate: %v", err)
	}
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(config.KafkaSettings{}, nil); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

func TestTopicName(t *testing.T) {
	producer := &Producer{cfg: config.KafkaSettings{TopicPrefix: "registry"}}
	if got := producer.TopicName("account.locked"); got != "registry.account.locked" {
		t.Fatalf("unexpected topic: %s", got)
	}
	if got := producer.TopicName("registry.account.locked"); got != "registry.account.locked" {
		t.Fatalf("prefix must not be applied twice: %s", got)
	}
}
