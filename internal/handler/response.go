package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/pkg/logger"
)

// Stable machine-readable error codes. Clients switch on these, never
// on messages.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeInvalidURL       = "INVALID_URL"
	CodeInvalidAlias     = "INVALID_ALIAS"
	CodeAliasTaken       = "ALIAS_TAKEN"
	CodeNotFound         = "NOT_FOUND"
	CodeGone             = "GONE"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeInsufficientTier = "INSUFFICIENT_TIER"
	CodeGenerationFailed = "GENERATION_FAILED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL_ERROR"
)

// Meta is attached to every enveloped response
type Meta struct {
	Timestamp    time.Time `json:"timestamp"`
	ResponseTime string    `json:"responseTime,omitempty"`
}

// Envelope is the uniform JSON wrapper for the management API. The
// redirect host never wraps; it speaks raw HTTP.
type Envelope struct {
	Success    bool                   `json:"success"`
	Data       interface{}            `json:"data,omitempty"`
	Pagination *domain.PaginationMeta `json:"pagination,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Details    interface{}            `json:"details,omitempty"`
	Meta       Meta                   `json:"meta"`
}

func metaFor(c *gin.Context) Meta {
	m := Meta{Timestamp: time.Now().UTC()}
	if v, ok := c.Get(ctxKeyRequestStart); ok {
		if start, ok := v.(time.Time); ok {
			m.ResponseTime = time.Since(start).String()
		}
	}
	return m
}

// respond writes a success envelope
func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Envelope{
		Success: true,
		Data:    data,
		Meta:    metaFor(c),
	})
}

// respondPage writes one listing page with its pagination block
func respondPage(c *gin.Context, items interface{}, pagination domain.PaginationMeta) {
	c.JSON(http.StatusOK, Envelope{
		Success:    true,
		Data:       items,
		Pagination: &pagination,
		Meta:       metaFor(c),
	})
}

// respondError writes a failure envelope and aborts the chain
func respondError(c *gin.Context, status int, code, message string, details interface{}) {
	c.AbortWithStatusJSON(status, Envelope{
		Success: false,
		Error:   code,
		Message: message,
		Details: details,
		Meta:    metaFor(c),
	})
}

// writeError translates domain errors into the stable wire table
func writeError(c *gin.Context, log *logger.Logger, err error) {
	var aliasErr *domain.InvalidAliasError
	var appErr *domain.AppError

	switch {
	case errors.As(err, &aliasErr):
		respondError(c, http.StatusBadRequest, CodeInvalidAlias,
			"The requested alias is not allowed", gin.H{
				"alias": aliasErr.Alias,
				"kind":  string(aliasErr.Kind),
			})

	case errors.Is(err, domain.ErrAliasTaken):
		respondError(c, http.StatusConflict, CodeAliasTaken,
			"This alias is already in use", nil)

	case errors.Is(err, domain.ErrURLNotFound):
		respondError(c, http.StatusNotFound, CodeNotFound,
			"The requested URL was not found", nil)

	case errors.Is(err, domain.ErrURLExpired):
		respondError(c, http.StatusGone, CodeGone,
			"This URL has expired and is no longer available", nil)

	case errors.Is(err, domain.ErrUnauthenticated):
		respondError(c, http.StatusUnauthorized, CodeUnauthorized,
			"Authentication required", nil)

	case errors.Is(err, domain.ErrForbidden):
		respondError(c, http.StatusForbidden, CodeForbidden,
			"You do not have access to this URL", nil)

	case errors.Is(err, domain.ErrInsufficientTier):
		respondError(c, http.StatusForbidden, CodeInsufficientTier,
			"Your account tier does not allow this operation", nil)

	case errors.Is(err, domain.ErrGenerationExhausted):
		respondError(c, http.StatusServiceUnavailable, CodeGenerationFailed,
			"Could not allocate a short code, please retry", nil)

	case errors.Is(err, domain.ErrRateLimitExceeded):
		respondError(c, http.StatusTooManyRequests, CodeRateLimited,
			"Too many requests, please try again later", nil)

	case errors.As(err, &appErr):
		if appErr.Internal {
			log.Errorw("Internal server error", "error", appErr.Err)
			respondError(c, appErr.StatusCode, CodeInternal,
				"An internal error occurred", nil)
			return
		}
		respondError(c, appErr.StatusCode, CodeInvalidURL, appErr.Message, nil)

	default:
		log.Errorw("Unexpected error", "error", err)
		respondError(c, http.StatusInternalServerError, CodeInternal,
			"An unexpected error occurred", nil)
	}
}
