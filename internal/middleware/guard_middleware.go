// internal/middleware/guard_middleware.go
package middleware

import (
	"identity-service/internal/pkg/response"
	"identity-service/internal/service/guard"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type GuardMiddleware struct {
	logger *zap.Logger
}

func NewGuardMiddleware(logger *zap.Logger) *GuardMiddleware {
	return &GuardMiddleware{logger: logger}
}

// Require evaluates a fixed requirement set against the authenticated claims.
// MUST be used after Auth().
func (m *GuardMiddleware) Require(requirements ...guard.Requirement) gin.HandlerFunc {
	return m.RequireFunc(func(*gin.Context) []guard.Requirement {
		return requirements
	})
}

// RequireFunc builds the requirement set per request, for routes where the
// guarded service or country comes from the URL or headers.
func (m *GuardMiddleware) RequireFunc(build func(c *gin.Context) []guard.Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			response.Unauthorized(c, "authentication required")
			return
		}

		if err := guard.Evaluate(claims, build(c)); err != nil {
			m.logger.Info("request blocked by guard",
				zap.String("owner_id", claims.OwnerID()),
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			response.FromError(c, err)
			return
		}

		c.Next()
	}
}
