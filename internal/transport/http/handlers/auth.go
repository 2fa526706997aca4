package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/transport/http/middleware"
	"github.com/arklim/auction-registry/internal/usecase"
)

// AccountService is the account security surface the HTTP layer depends on.
type AccountService interface {
	Authenticate(ctx context.Context, in usecase.AuthenticateInput) (*domain.Session, error)
	ChangePassword(ctx context.Context, in usecase.ChangePasswordInput) (*usecase.PasswordChangeResult, error)
	ResetPassword(ctx context.Context, in usecase.ResetPasswordInput) (*usecase.PasswordChangeResult, error)
	UnlockAccount(ctx context.Context, actorID, principalID string) error
}

// AuthHandler exposes authentication and credential endpoints.
type AuthHandler struct {
	accounts AccountService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(accounts AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// RegisterRoutes binds authentication routes, applying optional middleware ahead of the login handler.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, requireAuth gin.HandlerFunc, loginMiddlewares ...gin.HandlerFunc) {
	chain := append([]gin.HandlerFunc{}, loginMiddlewares...)
	chain = append(chain, h.login)
	r.POST("/login", chain...)

	r.POST("/password", requireAuth, h.changePassword)
}

// RegisterAdminRoutes binds account administration routes. The group must already require authentication.
func (h *AuthHandler) RegisterAdminRoutes(r *gin.RouterGroup) {
	admin := middleware.RequireCapability(domain.CapabilitySecurityAdmin)
	r.POST("/principals/:id/unlock", admin, h.unlock)
	r.POST("/principals/:id/password", admin, h.resetPassword)
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	session, err := h.accounts.Authenticate(c.Request.Context(), usecase.AuthenticateInput{
		Identifier: strings.TrimSpace(req.Identifier),
		Password:   req.Password,
		Origin:     c.ClientIP(),
	})
	if err != nil {
		RespondWithMappedError(c, err, accountErrorCases, http.StatusInternalServerError, "authentication failed")
		return
	}

	expiresIn := int(session.ExpiresAt.Sub(session.IssuedAt).Seconds())
	c.JSON(http.StatusOK, LoginResponse{
		AccessToken: session.Token,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
		ExpiresAt:   session.ExpiresAt.UTC(),
		SessionID:   session.ID,
		PrincipalID: session.PrincipalID,
	})
}

func (h *AuthHandler) changePassword(c *gin.Context) {
	principalID, ok := middleware.GetAuthenticatedPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid password change payload"))
		return
	}

	result, err := h.accounts.ChangePassword(c.Request.Context(), usecase.ChangePasswordInput{
		PrincipalID:     principalID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		RespondWithMappedError(c, err, accountErrorCases, http.StatusInternalServerError, "failed to change password")
		return
	}

	c.JSON(http.StatusOK, PasswordChangeResponse{
		PrincipalID: result.PrincipalID,
		ChangedAt:   result.ChangedAt.UTC(),
	})
}

func (h *AuthHandler) resetPassword(c *gin.Context) {
	actorID, ok := middleware.GetAuthenticatedPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid password reset payload"))
		return
	}

	result, err := h.accounts.ResetPassword(c.Request.Context(), usecase.ResetPasswordInput{
		ActorID:     actorID,
		PrincipalID: strings.TrimSpace(c.Param("id")),
		NewPassword: req.NewPassword,
	})
	if err != nil {
		RespondWithMappedError(c, err, accountErrorCases, http.StatusInternalServerError, "failed to reset password")
		return
	}

	c.JSON(http.StatusOK, PasswordChangeResponse{
		PrincipalID: result.PrincipalID,
		ChangedAt:   result.ChangedAt.UTC(),
	})
}

func (h *AuthHandler) unlock(c *gin.Context) {
	actorID, ok := middleware.GetAuthenticatedPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.accounts.UnlockAccount(c.Request.Context(), actorID, strings.TrimSpace(c.Param("id"))); err != nil {
		RespondWithMappedError(c, err, accountErrorCases, http.StatusInternalServerError, "failed to unlock account")
		return
	}

	c.Status(http.StatusNoContent)
}
