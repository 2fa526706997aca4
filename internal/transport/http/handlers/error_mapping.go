package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/auction-registry/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
// An empty Message echoes the error text.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
// Fallback errors are attached to the context for logging and reporting.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	setRetryAfter(c, err)

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			_ = c.Error(err).SetType(gin.ErrorTypePublic)
			message := cs.Message
			if message == "" {
				message = err.Error()
			}
			c.JSON(cs.Status, NewErrorResponse(c, message))
			return
		}
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

// setRetryAfter adds a Retry-After header for throttled or locked attempts.
func setRetryAfter(c *gin.Context, err error) {
	var wait time.Duration

	var throttled *usecase.TooManyAttemptsError
	var locked *usecase.AccountLockedError
	switch {
	case errors.As(err, &throttled):
		wait = throttled.RetryAfter
	case errors.As(err, &locked):
		wait = locked.RetryAfter(time.Now())
	default:
		return
	}

	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
}

var changeRequestErrorCases = []ErrorCase{
	{Err: usecase.ErrActorRequired, Status: http.StatusUnauthorized, Message: "authentication required"},
	{Err: usecase.ErrPermissionDenied, Status: http.StatusForbidden, Message: "insufficient permissions"},
	{Err: usecase.ErrSelfApprovalForbidden, Status: http.StatusForbidden, Message: "requester cannot decide their own change request"},
	{Err: usecase.ErrChangeRequestNotFound, Status: http.StatusNotFound, Message: "change request not found"},
	{Err: usecase.ErrTargetNotFound, Status: http.StatusNotFound, Message: "target record not found"},
	{Err: usecase.ErrAlreadyDecided, Status: http.StatusConflict, Message: "change request already decided"},
	{Err: usecase.ErrApplyFailed, Status: http.StatusConflict, Message: "change could not be applied; the request remains pending"},
	{Err: usecase.ErrUnknownEntityType, Status: http.StatusUnprocessableEntity},
	{Err: usecase.ErrInvalidOperation, Status: http.StatusUnprocessableEntity},
	{Err: usecase.ErrInvalidDecision, Status: http.StatusUnprocessableEntity},
	{Err: usecase.ErrTargetIDRequired, Status: http.StatusUnprocessableEntity},
	{Err: usecase.ErrTargetIDForbidden, Status: http.StatusUnprocessableEntity},
	{Err: usecase.ErrNotesRequired, Status: http.StatusUnprocessableEntity},
	{Err: usecase.ErrInvalidProposedData, Status: http.StatusUnprocessableEntity},
}

var accountErrorCases = []ErrorCase{
	{Err: usecase.ErrIdentifierRequired, Status: http.StatusBadRequest, Message: "identifier is required"},
	{Err: usecase.ErrTooManyAttempts, Status: http.StatusTooManyRequests, Message: "too many attempts"},
	{Err: usecase.ErrAccountLocked, Status: http.StatusLocked, Message: "account locked"},
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
	{Err: usecase.ErrAccountDeactivated, Status: http.StatusForbidden, Message: "account deactivated"},
	{Err: usecase.ErrActorRequired, Status: http.StatusUnauthorized, Message: "authentication required"},
	{Err: usecase.ErrPermissionDenied, Status: http.StatusForbidden, Message: "insufficient permissions"},
	{Err: usecase.ErrPrincipalNotFound, Status: http.StatusNotFound, Message: "principal not found"},
	{Err: usecase.ErrPasswordReused, Status: http.StatusUnprocessableEntity, Message: "password was used recently"},
	{Err: usecase.ErrPasswordPolicy, Status: http.StatusUnprocessableEntity},
}
