package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/core/port"
	"github.com/arklim/auction-registry/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ApprovalEngine runs the maker-checker workflow over registry records.
type ApprovalEngine struct {
	requests     port.ChangeRequestRepository
	registry     port.EntityRegistry
	uow          port.UnitOfWork
	notifier     port.NotificationDispatcher
	capabilities port.CapabilityLookup
	metrics      ApprovalMetrics
	reporter     ErrorReporter
	logger       *zap.Logger
	now          func() time.Time
	newID        func() string
}

// SubmitInput describes a proposed mutation.
type SubmitInput struct {
	RequesterID  string
	TargetType   string
	Operation    string
	TargetID     string
	ProposedData map[string]any
}

// DecideInput describes a checker's decision on a pending request.
type DecideInput struct {
	ApproverID      string
	ChangeRequestID string
	Decision        string
	Notes           string
}

// NewApprovalEngine constructs an ApprovalEngine. notifier may be nil.
func NewApprovalEngine(requests port.ChangeRequestRepository, registry port.EntityRegistry, uow port.UnitOfWork, notifier port.NotificationDispatcher) *ApprovalEngine {
	return &ApprovalEngine{
		requests: requests,
		registry: registry,
		uow:      uow,
		notifier: notifier,
		logger:   zap.NewNop(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithCapabilities enforces submit and approve capabilities and addresses submitted events to approvers.
func (e *ApprovalEngine) WithCapabilities(capabilities port.CapabilityLookup) *ApprovalEngine {
	e.capabilities = capabilities
	return e
}

// WithMetrics wires telemetry observers for approval operations.
func (e *ApprovalEngine) WithMetrics(metrics ApprovalMetrics) *ApprovalEngine {
	if metrics != nil {
		e.metrics = metrics
	}
	return e
}

// WithReporter forwards apply failures to an error tracker.
func (e *ApprovalEngine) WithReporter(reporter ErrorReporter) *ApprovalEngine {
	if reporter != nil {
		e.reporter = reporter
	}
	return e
}

// WithLogger attaches a structured logger.
func (e *ApprovalEngine) WithLogger(logger *zap.Logger) *ApprovalEngine {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// WithClock overrides the clock, primarily for deterministic testing.
func (e *ApprovalEngine) WithClock(now func() time.Time) *ApprovalEngine {
	if now != nil {
		e.now = now
	}
	return e
}

// WithIDGenerator overrides change request id allocation.
func (e *ApprovalEngine) WithIDGenerator(newID func() string) *ApprovalEngine {
	if newID != nil {
		e.newID = newID
	}
	return e
}

// Submit validates and persists a pending change request, then notifies eligible approvers.
func (e *ApprovalEngine) Submit(ctx context.Context, in SubmitInput) (*domain.ChangeRequest, error) {
	requester := strings.TrimSpace(in.RequesterID)
	if requester == "" {
		return nil, ErrActorRequired
	}

	targetType, err := domain.ParseTargetType(in.TargetType)
	if err != nil {
		return nil, err
	}
	if !e.registry.Supports(targetType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, targetType)
	}

	op, ok := domain.ParseOperation(in.Operation)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOperation, in.Operation)
	}

	targetID := strings.TrimSpace(in.TargetID)
	switch {
	case op == domain.OperationCreate && targetID != "":
		return nil, ErrTargetIDForbidden
	case op != domain.OperationCreate && targetID == "":
		return nil, ErrTargetIDRequired
	}

	if err := e.authorize(ctx, requester, domain.CapabilitySubmitChanges); err != nil {
		return nil, err
	}

	request := domain.ChangeRequest{
		ID:          e.newID(),
		RequestedBy: requester,
		TargetType:  targetType,
		Operation:   op,
		Status:      domain.ChangeRequestPending,
		CreatedAt:   e.now().UTC(),
	}
	if targetID != "" {
		request.TargetID = &targetID
	}

	err = e.uow.Do(ctx, request.ID, func(ctx context.Context, scope port.ApprovalScope) error {
		var current *domain.Entity
		if op != domain.OperationCreate {
			current, err = scope.Entities().Resolve(ctx, targetType, targetID, true)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return fmt.Errorf("%w: %s %s", ErrTargetNotFound, targetType, targetID)
				}
				return fmt.Errorf("resolve target: %w", err)
			}
		}

		normalized, err := scope.Entities().Normalize(targetType, op, current, in.ProposedData)
		if err != nil {
			return err
		}
		request.ProposedData = normalized

		if err := scope.ChangeRequests().Create(ctx, request); err != nil {
			return fmt.Errorf("store change request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.IncSubmitted(targetType, op)
	}

	event := e.buildEvent(domain.ChangeRequestSubmittedEvent, request, nil)
	event.Recipients = e.approvers(ctx, requester)
	e.dispatch(ctx, event)

	return &request, nil
}

// Get returns a single change request.
func (e *ApprovalEngine) Get(ctx context.Context, id string) (*domain.ChangeRequest, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrChangeRequestNotFound
	}
	request, err := e.requests.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrChangeRequestNotFound
		}
		return nil, fmt.Errorf("load change request: %w", err)
	}
	return request, nil
}

// List returns change requests matching filter, newest first.
func (e *ApprovalEngine) List(ctx context.Context, filter domain.ChangeRequestFilter) ([]domain.ChangeRequest, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.TargetType != "" {
		t, err := domain.ParseTargetType(string(filter.TargetType))
		if err != nil {
			return nil, err
		}
		filter.TargetType = t
	}

	requests, err := e.requests.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list change requests: %w", err)
	}
	return requests, nil
}

// Diff previews the effect of a change request against the current target state.
func (e *ApprovalEngine) Diff(ctx context.Context, id string) ([]domain.FieldChange, error) {
	request, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var current *domain.Entity
	if request.Operation != domain.OperationCreate {
		if request.TargetID == nil {
			return nil, ErrTargetIDRequired
		}
		current, err = e.registry.Resolve(ctx, request.TargetType, *request.TargetID, true)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s %s", ErrTargetNotFound, request.TargetType, *request.TargetID)
			}
			return nil, fmt.Errorf("resolve target: %w", err)
		}
	}

	return computeDiff(*request, current), nil
}

// Decide records the checker's decision. Approval applies the mutation in the same unit of work;
// when the apply fails the request stays pending and an *ApplyFailedError is returned.
func (e *ApprovalEngine) Decide(ctx context.Context, in DecideInput) (*domain.ChangeRequest, error) {
	approver := strings.TrimSpace(in.ApproverID)
	if approver == "" {
		return nil, ErrActorRequired
	}
	id := strings.TrimSpace(in.ChangeRequestID)
	if id == "" {
		return nil, ErrChangeRequestNotFound
	}
	decision, ok := domain.ParseDecision(in.Decision)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, in.Decision)
	}
	notes := strings.TrimSpace(in.Notes)
	if decision == domain.DecisionReject && notes == "" {
		return nil, ErrNotesRequired
	}

	if err := e.authorize(ctx, approver, domain.CapabilityApproveChanges); err != nil {
		return nil, err
	}

	var decided domain.ChangeRequest
	err := e.uow.Do(ctx, id, func(ctx context.Context, scope port.ApprovalScope) error {
		request, err := scope.ChangeRequests().GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrChangeRequestNotFound
			}
			return fmt.Errorf("lock change request: %w", err)
		}
		if !request.IsPending() {
			return ErrAlreadyDecided
		}
		if request.RequestedBy == approver {
			return ErrSelfApprovalForbidden
		}

		now := e.now().UTC()
		record := domain.ChangeRequestDecision{
			ID:        request.ID,
			DecidedBy: approver,
			DecidedAt: now,
		}
		if notes != "" {
			record.Notes = &notes
		}

		switch decision {
		case domain.DecisionReject:
			record.Status = domain.ChangeRequestRejected
		case domain.DecisionApprove:
			createdID, err := e.apply(ctx, scope.Entities(), *request, now)
			if err != nil {
				return &ApplyFailedError{ChangeRequestID: request.ID, Cause: err}
			}
			record.Status = domain.ChangeRequestApproved
			record.AppliedID = createdID
		}

		if err := scope.ChangeRequests().MarkDecided(ctx, record); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrAlreadyDecided
			}
			return fmt.Errorf("mark change request decided: %w", err)
		}

		decided = *request
		decided.Status = record.Status
		decided.DecidedBy = &record.DecidedBy
		decided.DecidedAt = &now
		decided.DecisionNotes = record.Notes
		decided.AppliedID = record.AppliedID
		return nil
	})
	if err != nil {
		var applyErr *ApplyFailedError
		if errors.As(err, &applyErr) {
			e.applyFailed(ctx, applyErr)
		}
		return nil, err
	}

	kind := domain.ChangeRequestApprovedEvent
	outcome := DecisionOutcomeApproved
	if decided.Status == domain.ChangeRequestRejected {
		kind = domain.ChangeRequestRejectedEvent
		outcome = DecisionOutcomeRejected
	}
	if e.metrics != nil {
		e.metrics.IncDecided(decided.TargetType, outcome)
	}

	event := e.buildEvent(kind, decided, &approver)
	event.Recipients = []string{decided.RequestedBy}
	e.dispatch(ctx, event)

	return &decided, nil
}

// apply dispatches the approved mutation to the registry and returns the id of a created record.
func (e *ApprovalEngine) apply(ctx context.Context, registry port.EntityRegistry, request domain.ChangeRequest, at time.Time) (*string, error) {
	switch request.Operation {
	case domain.OperationCreate:
		entity, err := registry.Create(ctx, request.TargetType, request.ProposedData, at)
		if err != nil {
			return nil, err
		}
		return &entity.ID, nil
	case domain.OperationUpdate:
		if request.TargetID == nil {
			return nil, ErrTargetIDRequired
		}
		_, err := registry.Update(ctx, request.TargetType, *request.TargetID, request.ProposedData, at)
		return nil, err
	case domain.OperationDelete:
		if request.TargetID == nil {
			return nil, ErrTargetIDRequired
		}
		return nil, registry.Delete(ctx, request.TargetType, *request.TargetID, at)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidOperation, request.Operation)
	}
}

func (e *ApprovalEngine) applyFailed(ctx context.Context, err *ApplyFailedError) {
	e.logger.Warn("change request apply failed",
		zap.String("change_request_id", err.ChangeRequestID),
		zap.Error(err.Cause),
	)
	if e.metrics != nil {
		if request, getErr := e.requests.Get(ctx, err.ChangeRequestID); getErr == nil {
			e.metrics.IncDecided(request.TargetType, DecisionOutcomeApplyFailed)
		}
	}
	if e.reporter != nil {
		e.reporter.Report(ctx, err, map[string]string{"change_request_id": err.ChangeRequestID})
	}
}

func (e *ApprovalEngine) authorize(ctx context.Context, principalID string, capability domain.Capability) error {
	if e.capabilities == nil {
		return nil
	}
	ok, err := e.capabilities.HasCapability(ctx, principalID, capability)
	if err != nil {
		return fmt.Errorf("check capability %s: %w", capability, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s required", ErrPermissionDenied, capability)
	}
	return nil
}

// approvers lists capability holders other than the requester. Lookup failures yield no recipients.
func (e *ApprovalEngine) approvers(ctx context.Context, requester string) []string {
	if e.capabilities == nil {
		return nil
	}
	holders, err := e.capabilities.ListHolders(ctx, domain.CapabilityApproveChanges)
	if err != nil {
		e.logger.Warn("list approvers failed", zap.Error(err))
		return nil
	}
	out := make([]string, 0, len(holders))
	for _, id := range holders {
		if id != requester {
			out = append(out, id)
		}
	}
	return out
}

func (e *ApprovalEngine) buildEvent(kind domain.ChangeRequestEventKind, request domain.ChangeRequest, approver *string) domain.ChangeRequestEvent {
	return domain.ChangeRequestEvent{
		EventID:         uuid.NewString(),
		Kind:            kind,
		ChangeRequestID: request.ID,
		RequesterID:     request.RequestedBy,
		ApproverID:      approver,
		TargetType:      request.TargetType,
		TargetID:        request.TargetID,
		AppliedID:       request.AppliedID,
		Operation:       request.Operation,
		Notes:           request.DecisionNotes,
		OccurredAt:      e.now().UTC(),
	}
}

func (e *ApprovalEngine) dispatch(ctx context.Context, event domain.ChangeRequestEvent) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.DispatchChangeRequest(ctx, event); err != nil {
		e.logger.Warn("dispatch change request event failed",
			zap.String("kind", string(event.Kind)),
			zap.String("change_request_id", event.ChangeRequestID),
			zap.Error(err),
		)
	}
}
