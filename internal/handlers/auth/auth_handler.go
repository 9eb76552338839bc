// internal/handlers/auth/auth_handler.go
package auth

import (
	"net/http"
	"time"

	"identity-service/internal/domain/auth"
	"identity-service/internal/middleware"
	"identity-service/internal/pkg/response"
	authUsecase "identity-service/internal/service/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const refreshCookieName = "refresh_token"

type AuthHandler struct {
	authService *authUsecase.AuthService
	refreshTTL  time.Duration
	logger      *zap.Logger
}

func NewAuthHandler(authService *authUsecase.AuthService, refreshTTL time.Duration, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		refreshTTL:  refreshTTL,
		logger:      logger,
	}
}

// Login handles first-factor authentication. MFA-enabled owners get a pending
// challenge back instead of tokens.
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	req.IPAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	loginResp, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		h.logger.Warn("login failed",
			zap.String("ip", req.IPAddress),
			zap.Error(err),
		)
		response.FromError(c, err)
		return
	}

	if loginResp.Tokens != nil {
		h.setRefreshCookie(c, loginResp.Tokens)
	}
	response.Success(c, http.StatusOK, "login successful", loginResp)
}

// VerifyMFA completes a pending challenge with a second-factor code.
func (h *AuthHandler) VerifyMFA(c *gin.Context) {
	var req auth.MFAVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	req.IPAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	pair, err := h.authService.VerifyMFA(c.Request.Context(), req)
	if err != nil {
		h.logger.Warn("mfa verification failed",
			zap.String("challenge_id", req.ChallengeID),
			zap.Error(err),
		)
		response.FromError(c, err)
		return
	}

	h.setRefreshCookie(c, pair)
	response.Success(c, http.StatusOK, "verification successful", auth.LoginResponse{Tokens: pair})
}

// Refresh rotates the presented refresh token for a fresh pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken := h.refreshTokenFromRequest(c)
	if refreshToken == "" {
		response.Unauthorized(c, "missing refresh token")
		return
	}

	pair, err := h.authService.Rotate(c.Request.Context(), refreshToken, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	h.setRefreshCookie(c, pair)
	response.Success(c, http.StatusOK, "token refreshed", auth.LoginResponse{Tokens: pair})
}

// Logout revokes the session behind the refresh token. Succeeds even when the
// token is unknown or already revoked.
func (h *AuthHandler) Logout(c *gin.Context) {
	refreshToken := h.refreshTokenFromRequest(c)

	if err := h.authService.Revoke(c.Request.Context(), refreshToken); err != nil {
		response.FromError(c, err)
		return
	}

	h.clearRefreshCookie(c)
	response.Success(c, http.StatusOK, "logged out", nil)
}

// ChangePassword rotates the caller's password after re-verifying the current
// one.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	ownerID := middleware.MustGetOwnerID(c)

	var req auth.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), ownerID, req.CurrentPassword, req.NewPassword); err != nil {
		h.logger.Warn("password change failed", zap.String("owner_id", ownerID), zap.Error(err))
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "password changed", nil)
}

// Sessions lists the caller's active sessions.
func (h *AuthHandler) Sessions(c *gin.Context) {
	ownerID := middleware.MustGetOwnerID(c)

	summaries, err := h.authService.Sessions(c.Request.Context(), ownerID, h.refreshTokenFromRequest(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "active sessions", summaries)
}

// RevokeSession kills one of the caller's sessions by id.
func (h *AuthHandler) RevokeSession(c *gin.Context) {
	ownerID := middleware.MustGetOwnerID(c)

	if err := h.authService.RevokeSession(c.Request.Context(), ownerID, c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "session revoked", nil)
}

// RevokeOtherSessions kills every session of the caller except the current one.
func (h *AuthHandler) RevokeOtherSessions(c *gin.Context) {
	ownerID := middleware.MustGetOwnerID(c)

	if err := h.authService.RevokeOtherSessions(c.Request.Context(), ownerID, h.refreshTokenFromRequest(c)); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "other sessions revoked", nil)
}

// refreshTokenFromRequest reads the refresh token from the cookie first, then
// falls back to the JSON body for non-browser clients.
func (h *AuthHandler) refreshTokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(refreshCookieName); err == nil && cookie != "" {
		return cookie
	}

	var req auth.RefreshRequest
	if err := c.ShouldBindJSON(&req); err == nil {
		return req.RefreshToken
	}

	return ""
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, pair *auth.TokenPair) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, pair.RefreshToken, int(h.refreshTTL.Seconds()), "/api/v1/auth", "", true, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, "", -1, "/api/v1/auth", "", true, true)
}
