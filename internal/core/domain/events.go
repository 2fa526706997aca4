package domain

import "time"

// ChangeRequestEventKind names the notification emitted for a change request transition.
type ChangeRequestEventKind string

const (
	ChangeRequestSubmittedEvent ChangeRequestEventKind = "submitted"
	ChangeRequestApprovedEvent  ChangeRequestEventKind = "approved"
	ChangeRequestRejectedEvent  ChangeRequestEventKind = "rejected"
)

// ChangeRequestEvent is dispatched after a change request transition commits.
type ChangeRequestEvent struct {
	EventID         string
	Kind            ChangeRequestEventKind
	ChangeRequestID string
	RequesterID     string
	ApproverID      *string
	Recipients      []string
	TargetType      TargetType
	TargetID        *string
	AppliedID       *string
	Operation       Operation
	Notes           *string
	OccurredAt      time.Time
}

// PasswordChangedEvent is dispatched after a credential change commits.
type PasswordChangedEvent struct {
	EventID     string
	PrincipalID string
	ChangedAt   time.Time
}

// AccountLockedEvent is dispatched when a failed attempt engages the lockout.
type AccountLockedEvent struct {
	EventID     string
	PrincipalID string
	LockedUntil time.Time
	OccurredAt  time.Time
}
