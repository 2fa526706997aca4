package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/transport/http/middleware"
	"github.com/arklim/auction-registry/internal/usecase"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ChangeRequestService is the approval workflow surface the HTTP layer depends on.
type ChangeRequestService interface {
	Submit(ctx context.Context, in usecase.SubmitInput) (*domain.ChangeRequest, error)
	Get(ctx context.Context, id string) (*domain.ChangeRequest, error)
	List(ctx context.Context, filter domain.ChangeRequestFilter) ([]domain.ChangeRequest, error)
	Diff(ctx context.Context, id string) ([]domain.FieldChange, error)
	Decide(ctx context.Context, in usecase.DecideInput) (*domain.ChangeRequest, error)
}

// ChangeRequestHandler exposes the maker-checker endpoints.
type ChangeRequestHandler struct {
	approvals ChangeRequestService
}

// NewChangeRequestHandler constructs ChangeRequestHandler.
func NewChangeRequestHandler(approvals ChangeRequestService) *ChangeRequestHandler {
	return &ChangeRequestHandler{approvals: approvals}
}

// RegisterRoutes binds change request routes. The group must already require authentication.
func (h *ChangeRequestHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", middleware.RequireCapability(domain.CapabilitySubmitChanges), h.submit)
	r.GET("", h.list)
	r.GET("/:id", h.get)
	r.GET("/:id/diff", h.diff)
	r.POST("/:id/decision", middleware.RequireCapability(domain.CapabilityApproveChanges), h.decide)
}

func (h *ChangeRequestHandler) submit(c *gin.Context) {
	principalID, ok := middleware.GetAuthenticatedPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req SubmitChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid change request payload"))
		return
	}

	request, err := h.approvals.Submit(c.Request.Context(), usecase.SubmitInput{
		RequesterID:  principalID,
		TargetType:   req.TargetType,
		Operation:    req.Operation,
		TargetID:     strings.TrimSpace(req.TargetID),
		ProposedData: req.ProposedData,
	})
	if err != nil {
		RespondWithMappedError(c, err, changeRequestErrorCases, http.StatusInternalServerError, "failed to submit change request")
		return
	}

	c.JSON(http.StatusCreated, newChangeRequestResponse(*request))
}

func (h *ChangeRequestHandler) list(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil || limit <= 0 || limit > maxListLimit {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "limit must be between 1 and 200"))
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "offset must be a non-negative integer"))
		return
	}

	filter := domain.ChangeRequestFilter{
		RequestedBy: strings.TrimSpace(c.Query("requested_by")),
		Limit:       limit,
		Offset:      offset,
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := domain.ChangeRequestStatus(strings.ToLower(raw))
		switch status {
		case domain.ChangeRequestPending, domain.ChangeRequestApproved, domain.ChangeRequestRejected:
			filter.Status = status
		default:
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown status filter"))
			return
		}
	}
	if raw := strings.TrimSpace(c.Query("target_type")); raw != "" {
		targetType, err := domain.ParseTargetType(raw)
		if err != nil {
			RespondWithMappedError(c, err, changeRequestErrorCases, http.StatusBadRequest, "unknown target type")
			return
		}
		filter.TargetType = targetType
	}

	requests, err := h.approvals.List(c.Request.Context(), filter)
	if err != nil {
		RespondWithMappedError(c, err, changeRequestErrorCases, http.StatusInternalServerError, "failed to list change requests")
		return
	}

	items := make([]ChangeRequestResponse, 0, len(requests))
	for _, r := range requests {
		items = append(items, newChangeRequestResponse(r))
	}
	c.JSON(http.StatusOK, ChangeRequestListResponse{Items: items, Limit: limit, Offset: offset})
}

func (h *ChangeRequestHandler) get(c *gin.Context) {
	request, err := h.approvals.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, changeRequestErrorCases, http.StatusInternalServerError, "failed to load change request")
		return
	}
	c.JSON(http.StatusOK, newChangeRequestResponse(*request))
}

func (h *ChangeRequestHandler) diff(c *gin.Context) {
	id := c.Param("id")
	changes, err := h.approvals.Diff(c.Request.Context(), id)
	if err != nil {
		RespondWithMappedError(c, err, changeRequestErrorCases, http.StatusInternalServerError, "failed to compute diff")
		return
	}
	c.JSON(http.StatusOK, DiffResponse{ChangeRequestID: id, Changes: newFieldChangeResponses(changes)})
}

func (h *ChangeRequestHandler) decide(c *gin.Context) {
	principalID, ok := middleware.GetAuthenticatedPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid decision payload"))
		return
	}

	request, err := h.approvals.Decide(c.Request.Context(), usecase.DecideInput{
		ApproverID:      principalID,
		ChangeRequestID: c.Param("id"),
		Decision:        req.Decision,
		Notes:           req.Notes,
	})
	if err != nil {
		RespondWithMappedError(c, err, changeRequestErrorCases, http.StatusInternalServerError, "failed to record decision")
		return
	}

	c.JSON(http.StatusOK, newChangeRequestResponse(*request))
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
