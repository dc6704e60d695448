package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/linkforge/linkforge/internal/auth"
	"github.com/linkforge/linkforge/internal/config"
	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/internal/metrics"
	"github.com/linkforge/linkforge/pkg/logger"
)

// Context keys set by the middleware chain
const (
	ctxKeyRequestStart = "requestStart"
	ctxKeyPrincipal    = "authPrincipal"
)

// RequestTimer stamps the request start for the responseTime meta
// field and feeds the latency histogram
func RequestTimer() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(ctxKeyRequestStart, start)

		c.Next()

		// The route template keeps the label cardinality bounded
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// LoggerMiddleware logs HTTP requests with structured logging
func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		log.Infow("HTTP request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"ip", c.ClientIP(),
			"latency", time.Since(start),
			"user_agent", c.Request.UserAgent(),
			"error", c.Errors.ByType(gin.ErrorTypePrivate).String(),
		)
	}
}

// CORSMiddleware handles Cross-Origin Resource Sharing
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Echo any origin in development; production fronts set the
		// allowed origins at the edge
		if cfg.IsDevelopment() && origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Content-Length, Accept-Encoding, Authorization, X-API-Key, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PATCH, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SecurityHeadersMiddleware adds security-related headers
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("X-XSS-Protection", "1; mode=block")
		c.Writer.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

		c.Next()
	}
}

// ipLimiters hands out one token bucket per client IP
type ipLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

func (l *ipLimiters) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMin)), l.perMin)
		l.limiters[ip] = limiter
	}
	return limiter
}

// RateLimitMiddleware implements IP-based rate limiting
func RateLimitMiddleware(requestsPerMinute int) gin.HandlerFunc {
	limiters := &ipLimiters{
		limiters: make(map[string]*rate.Limiter),
		perMin:   requestsPerMinute,
	}

	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP()).Allow() {
			respondError(c, http.StatusTooManyRequests, CodeRateLimited,
				"Too many requests, please try again later", nil)
			return
		}
		c.Next()
	}
}

// Authenticate resolves the caller's Principal from a bearer token or
// API key. Requests without credentials proceed as Anonymous; requests
// with bad credentials are rejected rather than downgraded.
func Authenticate(a *auth.Authenticator, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := resolvePrincipal(c, a)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.Set(ctxKeyPrincipal, p)
		c.Next()
	}
}

func resolvePrincipal(c *gin.Context, a *auth.Authenticator) (domain.Principal, error) {
	ctx := c.Request.Context()

	if header := c.GetHeader("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return domain.Principal{}, fmt.Errorf("%w: malformed Authorization header", domain.ErrUnauthenticated)
		}
		return a.AuthenticateToken(ctx, token)
	}

	if key := c.GetHeader("X-API-Key"); key != "" {
		return a.AuthenticateAPIKey(ctx, key)
	}

	return domain.Anonymous(), nil
}

// PrincipalFrom returns the Principal resolved by Authenticate, or
// Anonymous when the middleware did not run
func PrincipalFrom(c *gin.Context) domain.Principal {
	if v, ok := c.Get(ctxKeyPrincipal); ok {
		if p, ok := v.(domain.Principal); ok {
			return p
		}
	}
	return domain.Anonymous()
}

// RequireAuth rejects anonymous callers
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if PrincipalFrom(c).IsAnonymous() {
			respondError(c, http.StatusUnauthorized, CodeUnauthorized,
				"Authentication required", nil)
			return
		}
		c.Next()
	}
}

// RequireTier rejects callers below the given tier; admins pass
func RequireTier(required domain.Tier) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := PrincipalFrom(c)
		if p.IsAnonymous() {
			respondError(c, http.StatusUnauthorized, CodeUnauthorized,
				"Authentication required", nil)
			return
		}
		if !p.IsAdmin && !p.Tier.AtLeast(required) {
			respondError(c, http.StatusForbidden, CodeInsufficientTier,
				fmt.Sprintf("This operation requires the %s tier", required), nil)
			return
		}
		c.Next()
	}
}

// TimeoutMiddleware sets a deadline for request processing
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
