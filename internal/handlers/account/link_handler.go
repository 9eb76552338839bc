// internal/handlers/account/link_handler.go
package account

import (
	"net/http"

	"identity-service/internal/domain/link"
	"identity-service/internal/middleware"
	"identity-service/internal/pkg/response"
	"identity-service/internal/service/linking"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LinkHandler struct {
	linkingService *linking.LinkingService
	logger         *zap.Logger
}

func NewLinkHandler(linkingService *linking.LinkingService, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{
		linkingService: linkingService,
		logger:         logger,
	}
}

// RequestLink opens a pending link toward another account.
func (h *LinkHandler) RequestLink(c *gin.Context) {
	var req link.RequestLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	ownerID := middleware.MustGetOwnerID(c)
	l, err := h.linkingService.RequestLink(c.Request.Context(), ownerID, req.LinkedOwnerID)
	if err != nil {
		h.logger.Warn("link request failed",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "link requested", l)
}

// AcceptLink completes a pending link from the linked party's side.
func (h *LinkHandler) AcceptLink(c *gin.Context) {
	var req link.AcceptLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	ownerID := middleware.MustGetOwnerID(c)
	result, err := h.linkingService.AcceptLink(c.Request.Context(), ownerID, c.ClientIP(), c.GetHeader("User-Agent"), req)
	if err != nil {
		h.logger.Warn("link acceptance failed",
			zap.String("owner_id", ownerID),
			zap.String("link_id", req.LinkID),
			zap.Error(err),
		)
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "accounts linked", result)
}

// Unlink tears an active link down.
func (h *LinkHandler) Unlink(c *gin.Context) {
	ownerID := middleware.MustGetOwnerID(c)

	if err := h.linkingService.Unlink(c.Request.Context(), ownerID, c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "accounts unlinked", nil)
}

// LinkedAccounts lists the caller's links.
func (h *LinkHandler) LinkedAccounts(c *gin.Context) {
	accounts, err := h.linkingService.LinkedAccounts(c.Request.Context(), middleware.MustGetOwnerID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "linked accounts", accounts)
}

// Candidates lists other accounts sharing the caller's verified email.
func (h *LinkHandler) Candidates(c *gin.Context) {
	candidates, err := h.linkingService.Candidates(c.Request.Context(), middleware.MustGetOwnerID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "link candidates", candidates)
}
