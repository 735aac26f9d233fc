package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/paperquiz-backend/internal/middleware"
	"github.com/stemsi/paperquiz-backend/internal/response"
)

// SessionRevoker publishes sign-out events for a user.
type SessionRevoker interface {
	RevokeSessions(ctx context.Context, userID string) (int64, error)
}

// AuthHandler handles auth-session endpoints. Tokens are issued elsewhere.
type AuthHandler struct {
	auth SessionRevoker
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth SessionRevoker) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Revoke godoc
// POST /api/v1/auth/revoke
// Signs the caller out of every live attempt. Attempts are closed, not submitted.
func (h *AuthHandler) Revoke(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	receivers, err := h.auth.RevokeSessions(c.Request.Context(), claims.UserID())
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked_sessions": receivers})
}
