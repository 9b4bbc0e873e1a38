package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/gymdesk/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponsePayload struct {
	Username  string `json:"username"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Username) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.creds.VerifyPassword(request.Username, request.Password); err != nil {
		if errors.Is(err, auth.ErrLoginDisabled) {
			c.JSON(http.StatusForbidden, gin.H{"error": "login_disabled"})
			return
		}
		h.logger.Info("admin login rejected", zap.String("username", request.Username))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		return
	}

	token, expiresAt, err := h.sessions.IssueSessionToken(c.Request.Context(), request.Username)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.validator.CookieName(), token, maxAge, "/", "", h.secure, true)
	h.logger.Info("admin logged in", zap.String("username", strings.TrimSpace(request.Username)))
	c.JSON(http.StatusOK, sessionResponsePayload{
		Username:  strings.TrimSpace(request.Username),
		ExpiresAt: formatExpiry(expiresAt),
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.validator.CookieName(), "", -1, "/", "", h.secure, true)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleSession(c *gin.Context) {
	c.JSON(http.StatusOK, sessionResponsePayload{Username: c.GetString(adminSubjectContextKey)})
}
