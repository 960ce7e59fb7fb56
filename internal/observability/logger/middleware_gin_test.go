package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/nestbill/internal/auditcontext"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGinMiddlewarePropagatesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))

	var seen string
	r.GET("/health", func(c *gin.Context) {
		seen = auditcontext.RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, "req-123", seen)
	require.Equal(t, "req-123", w.Header().Get("X-Request-Id"))
}

func TestGinMiddlewareGeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestGinMiddlewareReplacesUnsafeRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "bad id\nwith newline")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	got := w.Header().Get("X-Request-Id")
	require.NotEmpty(t, got)
	require.NotEqual(t, "bad id\nwith newline", got)
	require.True(t, validRequestID(got))
	require.False(t, validRequestID(strings.Repeat("a", maxRequestIDLength+1)))
}

func TestGinMiddlewareLogsSubscriptionAndSignatureFailures(t *testing.T) {
	logs := observeGlobal(t)
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(err error) (string, string) { return err.Error(), err.Error() },
	}))
	r.GET("/v1/subscriptions/:id", func(c *gin.Context) {
		_ = c.Error(errors.New("conflict"))
		c.Status(http.StatusConflict)
	})
	r.POST("/webhooks/native", func(c *gin.Context) {
		_ = c.Error(errors.New("invalid_signature"))
		c.Status(http.StatusBadRequest)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/subscriptions/42", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhooks/native", nil))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 2)
	require.Equal(t, zap.WarnLevel, entries[0].Level)
	require.Equal(t, "42", entries[0].ContextMap()["subscription_id"])
	require.Equal(t, zap.WarnLevel, entries[1].Level)
	require.Equal(t, "invalid_signature", entries[1].ContextMap()["error_type"])
}
