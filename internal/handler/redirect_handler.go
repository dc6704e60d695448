package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/internal/resolver"
	"github.com/linkforge/linkforge/pkg/logger"
)

// URLResolver is the hot-path lookup the redirect handler depends on
type URLResolver interface {
	Resolve(ctx context.Context, shortCode string, meta resolver.RequestMeta) (*domain.URLMapping, error)
}

// RedirectHandler serves GET /:shortCode, the redirect hot path
type RedirectHandler struct {
	resolver URLResolver
	status   int
	logger   *logger.Logger
}

// NewRedirectHandler creates a redirect handler issuing the given
// status code (301 or 302)
func NewRedirectHandler(r URLResolver, status int, logger *logger.Logger) *RedirectHandler {
	return &RedirectHandler{
		resolver: r,
		status:   status,
		logger:   logger,
	}
}

// Redirect resolves the short code and issues the redirect. Errors are
// served as plain text rather than the JSON envelope; the caller here
// is a browser, not an API client.
func (h *RedirectHandler) Redirect(c *gin.Context) {
	// Stale mappings must not outlive deletion or expiry in
	// intermediary caches
	c.Header("Cache-Control", "no-store")

	meta := resolver.RequestMeta{
		SourceIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referrer:  c.Request.Referer(),
	}

	mapping, err := h.resolver.Resolve(c.Request.Context(), c.Param("shortCode"), meta)
	if err != nil {
		h.errorPage(c, err)
		return
	}

	c.Redirect(h.status, mapping.LongURL)
}

func (h *RedirectHandler) errorPage(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrURLExpired):
		c.String(http.StatusGone, "This link has expired.")
	case errors.Is(err, domain.ErrURLNotFound):
		c.String(http.StatusNotFound, "This link does not exist.")
	default:
		h.logger.Errorw("Redirect lookup failed",
			"short_code", c.Param("shortCode"),
			"error", err,
		)
		c.String(http.StatusInternalServerError, "Something went wrong.")
	}
}
