package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/internal/resolver"
	"github.com/linkforge/linkforge/pkg/logger"
)

// stubResolver answers a fixed mapping or error and records what it
// was asked
type stubResolver struct {
	mapping  *domain.URLMapping
	err      error
	code     string
	lastMeta resolver.RequestMeta
}

func (s *stubResolver) Resolve(ctx context.Context, shortCode string, meta resolver.RequestMeta) (*domain.URLMapping, error) {
	s.code = shortCode
	s.lastMeta = meta
	if s.err != nil {
		return nil, s.err
	}
	return s.mapping, nil
}

func newRedirectRouter(s *stubResolver, status int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewRedirectHandler(s, status, logger.NewLogger())

	router := gin.New()
	router.GET("/:shortCode", h.Redirect)
	return router
}

func TestRedirectIssuesLocationAndNoStore(t *testing.T) {
	s := &stubResolver{mapping: &domain.URLMapping{
		ShortCode: "abc1234",
		LongURL:   "https://example.com/landing?q=1",
	}}
	router := newRedirectRouter(s, http.StatusFound)

	req := httptest.NewRequest(http.MethodGet, "/abc1234", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Referer", "https://social.example")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com/landing?q=1", w.Header().Get("Location"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	assert.Equal(t, "abc1234", s.code)
	assert.Equal(t, "test-agent", s.lastMeta.UserAgent)
	assert.Equal(t, "https://social.example", s.lastMeta.Referrer)
}

func TestRedirectHonorsConfiguredStatus(t *testing.T) {
	s := &stubResolver{mapping: &domain.URLMapping{
		ShortCode: "abc1234",
		LongURL:   "https://example.com",
	}}
	router := newRedirectRouter(s, http.StatusMovedPermanently)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/abc1234", nil))

	assert.Equal(t, http.StatusMovedPermanently, w.Code)
}

func TestRedirectExpiredIsGone(t *testing.T) {
	s := &stubResolver{err: domain.ErrURLExpired}
	router := newRedirectRouter(s, http.StatusFound)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/abc1234", nil))

	assert.Equal(t, http.StatusGone, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
}

func TestRedirectUnknownIsNotFound(t *testing.T) {
	s := &stubResolver{err: domain.ErrURLNotFound}
	router := newRedirectRouter(s, http.StatusFound)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing1", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRedirectRepositoryFailureIsInternal(t *testing.T) {
	s := &stubResolver{err: domain.NewInternalError(assert.AnError)}
	router := newRedirectRouter(s, http.StatusFound)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/abc1234", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}
