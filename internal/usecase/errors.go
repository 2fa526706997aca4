package usecase

import (
	"errors"
	"fmt"
	"time"

	"github.com/arklim/auction-registry/internal/core/domain"
)

var (
	// ErrUnknownEntityType indicates a target type the registry does not support.
	ErrUnknownEntityType = domain.ErrUnknownTargetType
	// ErrInvalidProposedData indicates proposed data that violates the target's field contract.
	ErrInvalidProposedData = domain.ErrInvalidRecord
	// ErrTargetNotFound indicates the target record of an update or delete does not exist.
	ErrTargetNotFound = errors.New("target record not found")
	// ErrTargetIDRequired indicates an update or delete without a target identifier.
	ErrTargetIDRequired = errors.New("target id is required for update and delete")
	// ErrTargetIDForbidden indicates a create that names an existing record.
	ErrTargetIDForbidden = errors.New("target id is not allowed for create")
	// ErrInvalidOperation indicates an operation outside create, update and delete.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrChangeRequestNotFound indicates the change request does not exist.
	ErrChangeRequestNotFound = errors.New("change request not found")
	// ErrAlreadyDecided indicates the change request has left the pending state.
	ErrAlreadyDecided = errors.New("change request already decided")
	// ErrSelfApprovalForbidden indicates the requester tried to decide their own change request.
	ErrSelfApprovalForbidden = errors.New("requester cannot decide their own change request")
	// ErrApplyFailed indicates the approved mutation could not be applied.
	ErrApplyFailed = errors.New("change request apply failed")
	// ErrInvalidDecision indicates a decision outside approve and reject.
	ErrInvalidDecision = errors.New("invalid decision")
	// ErrNotesRequired indicates a rejection without notes.
	ErrNotesRequired = errors.New("decision notes are required when rejecting")
	// ErrActorRequired indicates the acting principal is missing.
	ErrActorRequired = errors.New("actor is required")
	// ErrPermissionDenied indicates the actor lacks the required capability.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrAccountLocked indicates the account is temporarily locked after repeated failures.
	ErrAccountLocked = errors.New("account locked")
	// ErrTooManyAttempts indicates the identifier and origin exceeded the attempt ceiling.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrInvalidCredentials indicates the identifier or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDeactivated indicates the credentials are valid but the account is disabled.
	ErrAccountDeactivated = errors.New("account deactivated")
	// ErrPasswordReused indicates the new password matches a recent one.
	ErrPasswordReused = errors.New("password was used recently")
	// ErrPasswordPolicy indicates the new password does not satisfy the strength policy.
	ErrPasswordPolicy = errors.New("password does not satisfy policy")
	// ErrPrincipalNotFound indicates the principal does not exist.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrIdentifierRequired indicates a login without an identifier.
	ErrIdentifierRequired = errors.New("identifier is required")
)

// TooManyAttemptsError carries the wait before the next attempt is accepted.
type TooManyAttemptsError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *TooManyAttemptsError) Error() string {
	if e.RetryAfter <= 0 {
		return ErrTooManyAttempts.Error()
	}
	return fmt.Sprintf("%s: retry after %s", ErrTooManyAttempts, e.RetryAfter.Round(time.Second))
}

// Is matches ErrTooManyAttempts.
func (e *TooManyAttemptsError) Is(target error) bool {
	return target == ErrTooManyAttempts
}

// AccountLockedError carries the end of the lockout.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("%s until %s", ErrAccountLocked, e.Until.UTC().Format(time.RFC3339))
}

// Is matches ErrAccountLocked.
func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// RetryAfter reports how long the lockout still lasts at now.
func (e *AccountLockedError) RetryAfter(now time.Time) time.Duration {
	if d := e.Until.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ApplyFailedError reports that an approval could not be applied. The request stays pending.
type ApplyFailedError struct {
	ChangeRequestID string
	Cause           error
}

func (e *ApplyFailedError) Error() string {
	return fmt.Sprintf("%s for %s: %v", ErrApplyFailed, e.ChangeRequestID, e.Cause)
}

// Is matches ErrApplyFailed.
func (e *ApplyFailedError) Is(target error) bool {
	return target == ErrApplyFailed
}

func (e *ApplyFailedError) Unwrap() error {
	return e.Cause
}
