package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/svcgw/internal/registry"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newRegistry(t *testing.T, entries ...registry.Entry) *registry.Registry {
	t.Helper()

	reg, err := registry.New(entries...)
	require.NoError(t, err)
	return reg
}

func entry(t *testing.T, name, raw string, enabled, mtls bool) registry.Entry {
	t.Helper()

	u, err := url.Parse(raw)
	require.NoError(t, err)
	return registry.Entry{Name: name, BaseURL: u, Timeout: time.Second, Enabled: enabled, RequireMutualTLS: mtls}
}

func TestChecker_Health(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	now := start
	checker := NewChecker("1.2.3", WithClock(func() time.Time { return now }))
	now = start.Add(90 * time.Second)

	resp := checker.Health()
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "1m30s", resp.Uptime)
	assert.Equal(t, now, resp.Timestamp)
}

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		checks map[string]Status
		want   Status
	}{
		{name: "no checks", want: StatusHealthy},
		{name: "all healthy", checks: map[string]Status{"a": StatusHealthy, "b": StatusHealthy}, want: StatusHealthy},
		{name: "degraded wins over healthy", checks: map[string]Status{"a": StatusHealthy, "b": StatusDegraded}, want: StatusDegraded},
		{name: "unhealthy wins", checks: map[string]Status{"a": StatusDegraded, "b": StatusUnhealthy, "c": StatusHealthy}, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			checker := NewChecker("v")
			for name, status := range tt.checks {
				checker.RegisterCheck(name, func() Check { return Check{Status: status} })
			}

			resp := checker.Readiness()
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checks))
		})
	}
}

func TestChecker_UnregisterCheck(t *testing.T) {
	t.Parallel()

	checker := NewChecker("v")
	checker.RegisterCheck("bad", func() Check { return Check{Status: StatusUnhealthy} })
	assert.Equal(t, StatusUnhealthy, checker.Readiness().Status)

	checker.UnregisterCheck("bad")
	assert.Equal(t, StatusHealthy, checker.Readiness().Status)
}

func TestReadinessHandler_StatusCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status Status
		code   int
	}{
		{StatusHealthy, http.StatusOK},
		{StatusDegraded, http.StatusOK},
		{StatusUnhealthy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		checker := NewChecker("v")
		checker.RegisterCheck("x", func() Check { return Check{Status: tt.status, Message: "m"} })

		router := gin.New()
		router.GET("/ready", checker.ReadinessHandler())

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, tt.code, rec.Code, string(tt.status))

		var body ReadinessResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tt.status, body.Status)
		assert.Equal(t, "m", body.Checks["x"].Message)
	}
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.GET("/health", NewChecker("v").HealthHandler())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestMetrics_Recorded(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	checker := NewChecker("v", WithMetrics(m))
	checker.RegisterCheck("tls", func() Check { return Check{Status: StatusDegraded} })

	checker.Health()
	checker.Readiness()
	checker.Readiness()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.checksTotal.WithLabelValues("liveness")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.checksTotal.WithLabelValues("readiness")))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.checkStatus.WithLabelValues("tls")))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.checkStatus.WithLabelValues("overall")))
}
