package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLogging_LevelByStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		level  string
	}{
		{name: "success", status: http.StatusOK, level: "info"},
		{name: "client error", status: http.StatusNotFound, level: "warn"},
		{name: "server error", status: http.StatusBadGateway, level: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, logs := newObservedLogger(zap.DebugLevel)
			router := gin.New()
			router.Use(RequestID(), Logging(logger))
			router.GET("/api/v1/:service", func(c *gin.Context) { c.Status(tt.status) })

			req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?x=1", nil)
			req.Header.Set(HeaderXRequestID, "rid-1")
			router.ServeHTTP(httptest.NewRecorder(), req)

			entries := logs.FilterMessage("request completed").All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level.String())

			fields := entries[0].ContextMap()
			assert.Equal(t, "rid-1", fields["request_id"])
			assert.Equal(t, "orders", fields["service"])
			assert.Equal(t, "x=1", fields["query"])
			assert.EqualValues(t, tt.status, fields["status"])
		})
	}
}

func TestLoggingWithConfig_Skips(t *testing.T) {
	t.Parallel()

	logger, logs := newObservedLogger(zap.DebugLevel)
	router := gin.New()
	router.Use(LoggingWithConfig(LoggingConfig{
		Logger:          logger,
		SkipPaths:       []string{"/metrics"},
		SkipHealthCheck: true,
	}))
	for _, p := range []string{"/health", "/ready", "/metrics", "/"} {
		router.GET(p, func(c *gin.Context) { c.Status(http.StatusOK) })
	}

	for _, p := range []string{"/health", "/ready", "/metrics", "/"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "/", logs.All()[0].ContextMap()["path"])
}

func TestLogging_NilLogger(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.Use(Logging(nil))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}
