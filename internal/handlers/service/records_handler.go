// internal/handlers/service/records_handler.go
package service

import (
	"net/http"

	"identity-service/internal/middleware"
	"identity-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// RecordsHandler serves per-service resources behind the full guard chain.
type RecordsHandler struct{}

func NewRecordsHandler() *RecordsHandler {
	return &RecordsHandler{}
}

// List returns the caller's view of one service. The guard already verified
// kind, permission, membership and country consent by the time this runs.
func (h *RecordsHandler) List(c *gin.Context) {
	claims := middleware.MustGetClaims(c)
	slug := c.Param("service")

	membership, _ := claims.Membership(slug)

	response.Success(c, http.StatusOK, "service records", gin.H{
		"service":   slug,
		"owner_id":  claims.OwnerID(),
		"countries": membership.Countries,
	})
}
