// internal/middleware/helpers.go
package middleware

import (
	"identity-service/internal/pkg/token"

	"github.com/gin-gonic/gin"
)

// GetClaims gets the verified access claims from context
func GetClaims(c *gin.Context) (*token.AccessClaims, bool) {
	value, exists := c.Get(claimsContextKey)
	if !exists {
		return nil, false
	}

	claims, ok := value.(*token.AccessClaims)
	return claims, ok
}

// MustGetClaims gets the verified access claims from context or panics
func MustGetClaims(c *gin.Context) *token.AccessClaims {
	claims, ok := GetClaims(c)
	if !ok {
		panic("access claims not found in context")
	}
	return claims
}

// MustGetOwnerID gets the authenticated owner id from context or panics
func MustGetOwnerID(c *gin.Context) string {
	return MustGetClaims(c).OwnerID()
}

// IsAuthenticated checks if request is authenticated
func IsAuthenticated(c *gin.Context) bool {
	_, ok := GetClaims(c)
	return ok
}
