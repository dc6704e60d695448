package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/internal/service"
	"github.com/linkforge/linkforge/pkg/logger"
)

// URLHandler handles the /api/v1/urls management surface
type URLHandler struct {
	service service.URLService
	logger  *logger.Logger
}

// NewURLHandler creates a new URL handler instance
func NewURLHandler(service service.URLService, logger *logger.Logger) *URLHandler {
	return &URLHandler{
		service: service,
		logger:  logger,
	}
}

// CreateURL handles POST /api/v1/urls
func (h *URLHandler) CreateURL(c *gin.Context) {
	var req domain.CreateURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidRequest,
			"Invalid request payload", gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.CreateURL(c.Request.Context(), PrincipalFrom(c), &req)
	if err != nil {
		if errors.Is(err, domain.ErrAliasTaken) {
			h.respondAliasTaken(c, req.Alias())
			return
		}
		writeError(c, h.logger, err)
		return
	}

	respond(c, http.StatusCreated, resp)
}

// respondAliasTaken enriches the conflict with alternative aliases so
// callers can offer them without a second round trip
func (h *URLHandler) respondAliasTaken(c *gin.Context, alias string) {
	details := gin.H{"alias": alias}
	if check, err := h.service.CheckAlias(c.Request.Context(), alias); err == nil {
		details["suggestions"] = check.Suggestions
	}
	respondError(c, http.StatusConflict, CodeAliasTaken,
		"This alias is already in use", details)
}

// ListURLs handles GET /api/v1/urls
func (h *URLHandler) ListURLs(c *gin.Context) {
	var req domain.ListURLsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidRequest,
			"Invalid query parameters", gin.H{"error": err.Error()})
		return
	}

	page, err := h.service.ListURLs(c.Request.Context(), PrincipalFrom(c), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	respondPage(c, page.Items, page.Pagination)
}

// GetURLInfo handles GET /api/v1/urls/:shortCode
func (h *URLHandler) GetURLInfo(c *gin.Context) {
	info, err := h.service.GetURLInfo(c.Request.Context(), c.Param("shortCode"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, info)
}

// UpdateExpiry handles PATCH /api/v1/urls/:shortCode/expiry
func (h *URLHandler) UpdateExpiry(c *gin.Context) {
	var req domain.UpdateExpiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidRequest,
			"Invalid request payload", gin.H{"error": err.Error()})
		return
	}

	info, err := h.service.UpdateExpiry(c.Request.Context(), PrincipalFrom(c), c.Param("shortCode"), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, info)
}

// DeleteURL handles DELETE /api/v1/urls/:shortCode
func (h *URLHandler) DeleteURL(c *gin.Context) {
	resp, err := h.service.DeleteURL(c.Request.Context(), PrincipalFrom(c), c.Param("shortCode"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

// BulkDelete handles POST /api/v1/urls/bulk-delete
func (h *URLHandler) BulkDelete(c *gin.Context) {
	var req domain.BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidRequest,
			"Invalid request payload", gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.BulkDelete(c.Request.Context(), PrincipalFrom(c), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

// CheckAlias handles GET /api/v1/urls/check-alias
func (h *URLHandler) CheckAlias(c *gin.Context) {
	alias := c.Query("alias")
	if alias == "" {
		respondError(c, http.StatusBadRequest, CodeInvalidRequest,
			"The alias query parameter is required", nil)
		return
	}

	resp, err := h.service.CheckAlias(c.Request.Context(), alias)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

// GetStats handles GET /api/v1/urls/:shortCode/stats
func (h *URLHandler) GetStats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context(), PrincipalFrom(c), c.Param("shortCode"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, stats)
}

// SendTestWebhook handles POST /api/v1/webhooks/test
func (h *URLHandler) SendTestWebhook(c *gin.Context) {
	if err := h.service.SendTestWebhook(c.Request.Context(), PrincipalFrom(c)); err != nil {
		writeError(c, h.logger, err)
		return
	}

	respond(c, http.StatusAccepted, gin.H{"status": "queued"})
}
