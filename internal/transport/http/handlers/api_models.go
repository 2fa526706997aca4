package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/transport/http/middleware"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: middleware.GetTraceID(c),
	}
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports the state of each dependency.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// LoginResponse describes the response returned for a successful login.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	SessionID   string    `json:"session_id"`
	PrincipalID string    `json:"principal_id"`
}

// PasswordChangeRequest carries a credential change for the caller.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// PasswordResetRequest carries an administrator-issued credential.
type PasswordResetRequest struct {
	NewPassword string `json:"new_password" binding:"required"`
}

// PasswordChangeResponse confirms a credential change.
type PasswordChangeResponse struct {
	PrincipalID string    `json:"principal_id"`
	ChangedAt   time.Time `json:"changed_at"`
}

// SubmitChangeRequest is the maker's proposed mutation.
type SubmitChangeRequest struct {
	TargetType   string         `json:"target_type" binding:"required"`
	Operation    string         `json:"operation" binding:"required"`
	TargetID     string         `json:"target_id"`
	ProposedData map[string]any `json:"proposed_data"`
}

// DecisionRequest is the checker's verdict on a pending change request.
type DecisionRequest struct {
	Decision string `json:"decision" binding:"required"`
	Notes    string `json:"notes"`
}

// ChangeRequestResponse is the API view of a change request.
type ChangeRequestResponse struct {
	ID            string         `json:"id"`
	RequestedBy   string         `json:"requested_by"`
	DecidedBy     *string        `json:"decided_by,omitempty"`
	TargetType    string         `json:"target_type"`
	TargetID      *string        `json:"target_id,omitempty"`
	AppliedID     *string        `json:"applied_target_id,omitempty"`
	Operation     string         `json:"operation"`
	ProposedData  map[string]any `json:"proposed_data,omitempty"`
	Status        string         `json:"status"`
	DecisionNotes *string        `json:"decision_notes,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	DecidedAt     *time.Time     `json:"decided_at,omitempty"`
}

// ChangeRequestListResponse wraps a page of change requests.
type ChangeRequestListResponse struct {
	Items  []ChangeRequestResponse `json:"items"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
}

// FieldChangeResponse is one row of a change preview. Old and New are omitted when absent.
type FieldChangeResponse struct {
	Field string `json:"field"`
	Kind  string `json:"kind"`
	Old   any    `json:"old,omitempty"`
	New   any    `json:"new,omitempty"`
}

// DiffResponse wraps a change preview.
type DiffResponse struct {
	ChangeRequestID string                `json:"change_request_id"`
	Changes         []FieldChangeResponse `json:"changes"`
}

func newChangeRequestResponse(r domain.ChangeRequest) ChangeRequestResponse {
	return ChangeRequestResponse{
		ID:            r.ID,
		RequestedBy:   r.RequestedBy,
		DecidedBy:     r.DecidedBy,
		TargetType:    string(r.TargetType),
		TargetID:      r.TargetID,
		AppliedID:     r.AppliedID,
		Operation:     string(r.Operation),
		ProposedData:  r.ProposedData,
		Status:        string(r.Status),
		DecisionNotes: r.DecisionNotes,
		CreatedAt:     r.CreatedAt.UTC(),
		DecidedAt:     r.DecidedAt,
	}
}

func newFieldChangeResponses(changes []domain.FieldChange) []FieldChangeResponse {
	out := make([]FieldChangeResponse, 0, len(changes))
	for _, ch := range changes {
		row := FieldChangeResponse{Field: ch.Field, Kind: string(ch.Kind)}
		if ch.HasOld {
			row.Old = ch.Old
		}
		if ch.HasNew {
			row.New = ch.New
		}
		out = append(out, row)
	}
	return out
}
