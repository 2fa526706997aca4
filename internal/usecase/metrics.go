package usecase

import (
	"context"

	"github.com/arklim/auction-registry/internal/core/domain"
)

// Decision outcomes reported to ApprovalMetrics.
const (
	DecisionOutcomeApproved    = "approved"
	DecisionOutcomeRejected    = "rejected"
	DecisionOutcomeApplyFailed = "apply_failed"
)

// ApprovalMetrics captures telemetry hooks for the approval workflow.
type ApprovalMetrics interface {
	IncSubmitted(targetType domain.TargetType, op domain.Operation)
	IncDecided(targetType domain.TargetType, outcome string)
}

// GuardMetrics captures telemetry hooks for authentication and credential changes.
type GuardMetrics interface {
	IncLoginOutcome(outcome domain.LoginOutcome)
	IncLockout()
	IncPasswordChange(outcome string)
}

// ErrorReporter forwards unexpected failures to an external error tracker.
type ErrorReporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}
