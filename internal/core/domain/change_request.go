package domain

import (
	"strings"
	"time"
)

// ChangeRequestStatus enumerates the lifecycle states of a change request.
type ChangeRequestStatus string

const (
	ChangeRequestPending  ChangeRequestStatus = "pending"
	ChangeRequestApproved ChangeRequestStatus = "approved"
	ChangeRequestRejected ChangeRequestStatus = "rejected"
)

// Operation describes what a change request does to its target record.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// ParseOperation normalizes the supplied operation name.
func ParseOperation(raw string) (Operation, bool) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(raw))); op {
	case OperationCreate, OperationUpdate, OperationDelete:
		return op, true
	default:
		return "", false
	}
}

// Decision is the outcome a checker records against a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision normalizes the supplied decision name.
func ParseDecision(raw string) (Decision, bool) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(raw))); d {
	case DecisionApprove, DecisionReject:
		return d, true
	default:
		return "", false
	}
}

// ChangeRequest is a proposed mutation awaiting a checker's decision.
// Once Status leaves pending the request is immutable. TargetID is never set for a create;
// the record an approved create allocates is kept in AppliedID.
type ChangeRequest struct {
	ID            string
	RequestedBy   string
	DecidedBy     *string
	TargetType    TargetType
	TargetID      *string
	AppliedID     *string
	Operation     Operation
	ProposedData  map[string]any
	Status        ChangeRequestStatus
	DecisionNotes *string
	CreatedAt     time.Time
	DecidedAt     *time.Time
}

// IsPending reports whether the request can still be decided.
func (r ChangeRequest) IsPending() bool {
	return r.Status == ChangeRequestPending
}

// ChangeRequestFilter narrows change request listings.
type ChangeRequestFilter struct {
	Status      ChangeRequestStatus
	TargetType  TargetType
	RequestedBy string
	Limit       int
	Offset      int
}

// ChangeRequestDecision captures the terminal fields written when a request is decided.
type ChangeRequestDecision struct {
	ID        string
	Status    ChangeRequestStatus
	DecidedBy string
	Notes     *string
	DecidedAt time.Time
	// AppliedID is set when an approved create allocates the new record identifier.
	AppliedID *string
}

// DiffKind classifies a single field in a change preview.
type DiffKind string

const (
	DiffAdded     DiffKind = "added"
	DiffChanged   DiffKind = "changed"
	DiffUnchanged DiffKind = "unchanged"
	DiffRemoved   DiffKind = "removed"
)

// FieldChange is one row of a change preview.
type FieldChange struct {
	Field  string
	Kind   DiffKind
	Old    any
	New    any
	HasOld bool
	HasNew bool
}
