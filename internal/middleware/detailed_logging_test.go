package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"chatbridge/internal/service"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detailedLoggingHandler(t *testing.T, config DetailedLoggingConfig, inner http.HandlerFunc) (http.Handler, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	mw := DetailedLoggingMiddleware(logger, config)
	return mw(inner), hook
}

func TestDetailedLoggingMiddlewareMasksSensitiveHeaders(t *testing.T) {
	handler, hook := detailedLoggingHandler(t, DefaultDetailedLoggingConfig(), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	require.NotEmpty(t, hook.Entries)
	headers, ok := hook.Entries[0].Data["request_headers"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "***MASKED***", headers["Authorization"])
	assert.Equal(t, "application/json", headers["Accept"])
}

func TestDetailedLoggingMiddlewareSkipsConfiguredEndpoints(t *testing.T) {
	handler, hook := detailedLoggingHandler(t, DefaultDetailedLoggingConfig(), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Empty(t, hook.Entries)
}

func TestDetailedLoggingMiddlewareCapturesResponse(t *testing.T) {
	config := DefaultDetailedLoggingConfig()
	config.LogResponseHeaders = true

	handler, hook := detailedLoggingHandler(t, config, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Custom", "yes")
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	// One entry for the request, one for the response.
	require.Len(t, hook.Entries, 2)
	resp := hook.Entries[1]
	assert.Equal(t, http.StatusTeapot, resp.Data[service.LogFieldStatusCode])

	headers, ok := resp.Data["response_headers"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "yes", headers["X-Custom"])
}
