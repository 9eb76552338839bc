// internal/app/router.go
package app

import (
	"identity-service/internal/domain/identity"
	accountHandler "identity-service/internal/handlers/account"
	authHandler "identity-service/internal/handlers/auth"
	serviceHandler "identity-service/internal/handlers/service"
	"identity-service/internal/middleware"
	"identity-service/internal/service/guard"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	AuthHandler     *authHandler.AuthHandler
	LinkHandler     *accountHandler.LinkHandler
	RecordsHandler  *serviceHandler.RecordsHandler
	AuthMiddleware  *middleware.AuthMiddleware
	GuardMiddleware *middleware.GuardMiddleware
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Public Auth Routes ====================
	authPublic := api.Group("/auth")
	{
		authPublic.POST("/login", h.AuthHandler.Login)
		authPublic.POST("/login/mfa", h.AuthHandler.VerifyMFA)
		authPublic.POST("/refresh", h.AuthHandler.Refresh)
		authPublic.POST("/logout", h.AuthHandler.Logout)
	}

	// ==================== Authenticated Auth Routes ====================
	authProtected := api.Group("/auth")
	authProtected.Use(h.AuthMiddleware.Auth())
	{
		authProtected.POST("/change-password", h.AuthHandler.ChangePassword)
		authProtected.GET("/sessions", h.AuthHandler.Sessions)
		authProtected.DELETE("/sessions", h.AuthHandler.RevokeOtherSessions)
		authProtected.DELETE("/sessions/:id", h.AuthHandler.RevokeSession)
	}

	// ==================== Account Linking ====================
	accounts := api.Group("/accounts/me")
	accounts.Use(h.AuthMiddleware.Auth())
	{
		accounts.POST("/link-account", h.LinkHandler.RequestLink)
		accounts.POST("/accept-link", h.LinkHandler.AcceptLink)
		accounts.GET("/linked-accounts", h.LinkHandler.LinkedAccounts)
		accounts.DELETE("/linked-accounts/:id", h.LinkHandler.Unlink)
		accounts.GET("/link-candidates", h.LinkHandler.Candidates)
	}

	// ==================== Guarded Service Resources ====================
	services := api.Group("/services")
	services.Use(h.AuthMiddleware.Auth())
	{
		services.GET("/:service/records",
			h.GuardMiddleware.RequireFunc(serviceRecordRequirements),
			h.RecordsHandler.List,
		)
	}
}

// serviceRecordRequirements builds the guard chain for per-service record
// reads: the service comes from the URL, the country from the X-Country
// header when the client scopes the request to one market.
func serviceRecordRequirements(c *gin.Context) []guard.Requirement {
	slug := c.Param("service")

	requirements := []guard.Requirement{
		guard.RequireKind(identity.KindUser, identity.KindAdmin, identity.KindOperator),
		guard.RequirePermission(slug + ":read"),
		guard.RequireService(slug),
	}
	if country := c.GetHeader("X-Country"); country != "" {
		requirements = append(requirements, guard.RequireCountryConsent(slug, country))
	}

	return requirements
}
