// internal/app/router_test.go
package app

import (
	"testing"
	"time"

	accountHandler "identity-service/internal/handlers/account"
	authHandler "identity-service/internal/handlers/auth"
	serviceHandler "identity-service/internal/handlers/service"
	"identity-service/internal/middleware"
	"identity-service/internal/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRouterRegistersSessionRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tokens, err := token.NewManager(token.Config{
		Secret:     "test-secret-test-secret-test-secret",
		Issuer:     "identity-service",
		Audience:   "identity-clients",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 720 * time.Hour,
	})
	require.NoError(t, err)

	engine := gin.New()
	SetupRouter(engine, &Handlers{
		AuthHandler:     authHandler.NewAuthHandler(nil, 720*time.Hour, zap.NewNop()),
		LinkHandler:     accountHandler.NewLinkHandler(nil, zap.NewNop()),
		RecordsHandler:  serviceHandler.NewRecordsHandler(),
		AuthMiddleware:  middleware.NewAuthMiddleware(tokens),
		GuardMiddleware: middleware.NewGuardMiddleware(zap.NewNop()),
	})

	registered := make(map[string]bool)
	for _, r := range engine.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	// Bulk revocation is DELETE on the collection, next to the single-session
	// delete.
	require.True(t, registered["DELETE /api/v1/auth/sessions"])
	require.True(t, registered["DELETE /api/v1/auth/sessions/:id"])
	require.True(t, registered["GET /api/v1/auth/sessions"])
	require.True(t, registered["POST /api/v1/auth/login"])
	require.True(t, registered["POST /api/v1/auth/refresh"])
}
