package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/svcgw/internal/config"
	"github.com/vyrodovalexey/svcgw/internal/middleware"
	"github.com/vyrodovalexey/svcgw/internal/observability"
)

func writeConfigDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

func echoBackend(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, r.Method+" "+r.URL.RequestURI())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func observedLogger() (observability.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return observability.NewLoggerFromZap(zap.New(core)), logs
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, path, nil)
	handler.ServeHTTP(rec, req)
	return rec
}

func TestParseFlags_Defaults(t *testing.T) {
	t.Setenv("GATEWAY_CONFIG_DIR", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("GATEWAY_LOG_LEVEL", "")
	t.Setenv("GATEWAY_LOG_FORMAT", "")

	flags, err := parseFlags(nil, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "configs", flags.configDir)
	assert.Empty(t, flags.env)
	assert.Empty(t, flags.logLevel)
	assert.Empty(t, flags.logFormat)
	assert.False(t, flags.showVersion)
	assert.Empty(t, flags.hashKey)
	assert.Equal(t, "sha256", flags.hashAlgorithm)
}

func TestParseFlags_EnvironmentFallback(t *testing.T) {
	t.Setenv("GATEWAY_CONFIG_DIR", "/etc/svcgw")
	t.Setenv("APP_ENV", "production")
	t.Setenv("GATEWAY_LOG_LEVEL", "warn")
	t.Setenv("GATEWAY_LOG_FORMAT", "console")

	flags, err := parseFlags(nil, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "/etc/svcgw", flags.configDir)
	assert.Equal(t, "production", flags.env)
	assert.Equal(t, "warn", flags.logLevel)
	assert.Equal(t, "console", flags.logFormat)
}

func TestParseFlags_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("GATEWAY_CONFIG_DIR", "/etc/svcgw")
	t.Setenv("GATEWAY_LOG_LEVEL", "warn")

	flags, err := parseFlags([]string{
		"--config-dir", "/srv/conf",
		"--env=staging",
		"--log-level", "debug",
		"--log-format", "json",
		"--version",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "/srv/conf", flags.configDir)
	assert.Equal(t, "staging", flags.env)
	assert.Equal(t, "debug", flags.logLevel)
	assert.Equal(t, "json", flags.logFormat)
	assert.True(t, flags.showVersion)
}

func TestParseFlags_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown flag", args: []string{"--listen", ":80"}},
		{name: "positional argument", args: []string{"serve"}},
		{name: "missing value", args: []string{"--config-dir"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := parseFlags(tt.args, io.Discard)
			assert.Error(t, err)
		})
	}
}

func TestParseFlags_Help(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	_, err := parseFlags([]string{"--help"}, &out)

	assert.ErrorIs(t, err, pflag.ErrHelp)
	assert.Contains(t, out.String(), "--config-dir")
	assert.Contains(t, out.String(), "--hash-api-key")
}

func TestPrintVersion(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	printVersion(&out)

	assert.Contains(t, out.String(), "svcgw version "+version)
	assert.Contains(t, out.String(), "Build time: "+buildTime)
	assert.Contains(t, out.String(), "Git commit: "+gitCommit)
}

func TestPrintHash(t *testing.T) {
	t.Parallel()

	t.Run("sha256", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer
		require.NoError(t, printHash(&out, "secret", "sha256"))
		assert.Equal(t,
			"sha256:2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b\n",
			out.String())
	})

	t.Run("bcrypt output is accepted by the key gate", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer
		require.NoError(t, printHash(&out, "secret", "bcrypt"))

		hashed := strings.TrimSpace(out.String())
		assert.True(t, strings.HasPrefix(hashed, config.KeyPrefixBcrypt))

		keys, err := middleware.ParseKeySet([]string{hashed})
		require.NoError(t, err)
		assert.NoError(t, keys.Verify("secret"))
		assert.ErrorIs(t, keys.Verify("other"), middleware.ErrInvalidAPIKey)
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer
		assert.Error(t, printHash(&out, "secret", "md5"))
		assert.Empty(t, out.String())
	})
}

func TestResolveLogConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		flags    cliFlags
		fromFile config.LoggingConfig
		want     observability.LogConfig
	}{
		{
			name: "defaults",
			want: observability.LogConfig{Level: "info", Format: "json", Output: "stdout"},
		},
		{
			name:     "file settings",
			fromFile: config.LoggingConfig{Level: "debug", Format: "console", Output: "stderr"},
			want:     observability.LogConfig{Level: "debug", Format: "console", Output: "stderr"},
		},
		{
			name:     "flags win over file",
			flags:    cliFlags{logLevel: "error", logFormat: "json"},
			fromFile: config.LoggingConfig{Level: "debug", Format: "console", Output: "stderr"},
			want:     observability.LogConfig{Level: "error", Format: "json", Output: "stderr"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, resolveLogConfig(tt.flags, tt.fromFile))
		})
	}
}

func TestLoadConfig_MergesEnvironmentLayer(t *testing.T) {
	t.Parallel()

	dir := writeConfigDir(t, map[string]string{
		"base.yaml": `
app:
  name: svcgw
  api_prefix: /api/v1
services:
  orders:
    url: http://orders.internal:8080
    timeout: 30
  billing:
    url: http://billing.internal:8080
`,
		"staging.yaml": `
app:
  api_prefix: /gw
services:
  orders:
    timeout: 2
`,
	})

	cfg, err := loadConfig(cliFlags{configDir: dir, env: "staging"})
	require.NoError(t, err)

	assert.Equal(t, "/gw", cfg.App.APIPrefix)
	assert.Equal(t, "http://orders.internal:8080", cfg.Services["orders"].URL)
	assert.Equal(t, 2*time.Second, cfg.Services["orders"].EffectiveTimeout())
	assert.Equal(t, []string{"billing", "orders"}, cfg.ServiceNames())
}

func TestLoadConfig_SampleConfiguration(t *testing.T) {
	t.Parallel()

	dir := filepath.Join("..", "..", "configs")

	dev, err := loadConfig(cliFlags{configDir: dir, env: "development"})
	require.NoError(t, err)
	assert.Equal(t, []string{"billing", "orders", "users"}, dev.ServiceNames())
	assert.False(t, dev.Services["billing"].IsEnabled())
	assert.False(t, dev.MTLS.Enabled)

	prod, err := loadConfig(cliFlags{configDir: dir, env: "production"})
	require.NoError(t, err)
	assert.True(t, prod.Services["billing"].IsEnabled())
	assert.Equal(t, 1500*time.Millisecond, prod.Services["billing"].EffectiveTimeout())
	assert.True(t, prod.MTLS.Enabled)
	assert.True(t, prod.Security.InternalNetworkOnly)
	assert.Equal(t, "warn", prod.Observability.Logging.Level)
	assert.Equal(t, "json", prod.Observability.Logging.Format)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	t.Run("missing base file", func(t *testing.T) {
		t.Parallel()

		_, err := loadConfig(cliFlags{configDir: t.TempDir(), env: "development"})
		assert.Error(t, err)
	})

	t.Run("invalid service", func(t *testing.T) {
		t.Parallel()

		dir := writeConfigDir(t, map[string]string{
			"base.yaml": `
services:
  orders:
    url: ftp://orders.internal
`,
		})

		_, err := loadConfig(cliFlags{configDir: dir, env: "development"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestBuildApplication_ForwardsThroughGateway(t *testing.T) {
	t.Parallel()

	backend := echoBackend(t)
	dir := writeConfigDir(t, map[string]string{
		"base.yaml": fmt.Sprintf(`
server:
  host: 127.0.0.1
  port: 8000
observability:
  metrics:
    enabled: true
    port: 9464
services:
  echo:
    url: %s
`, backend.URL),
	})

	cfg, err := loadConfig(cliFlags{configDir: dir, env: "test"})
	require.NoError(t, err)

	logger, logs := observedLogger()
	app, err := buildApplication(cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, app.metricsListener)
	assert.Equal(t, "metrics", app.metricsListener.Name())
	assert.Equal(t, "127.0.0.1:9464", app.metricsListener.Addr())

	rec := get(t, app.gateway.Handler(), "/api/v1/echo/hello?x=1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GET /hello?x=1", rec.Body.String())

	rec = get(t, app.gateway.Handler(), "/api/v1/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, app.gateway.Handler(), "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	scrape := get(t, app.metrics.Handler(), "/metrics").Body.String()
	assert.Contains(t, scrape, "gateway_requests_total")
	assert.Contains(t, scrape, `service="echo"`)
	assert.Contains(t, scrape, "gateway_proxy_forward_total")
	assert.Contains(t, scrape, "gateway_build_info")

	assert.Equal(t, 1, logs.FilterMessage("mutual TLS disabled").Len())
}

func TestBuildApplication_SharedMetricsPort(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Observability.Metrics.Port = cfg.Server.Port
	cfg.Services = map[string]config.ServiceConfig{
		"echo": {URL: echoBackend(t).URL},
	}

	app, err := buildApplication(cfg, observability.NopLogger())
	require.NoError(t, err)

	assert.Nil(t, app.metricsListener)

	rec := get(t, app.gateway.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gateway_build_info")
}

func TestBuildApplication_MetricsDisabled(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Observability.Metrics.Enabled = false

	app, err := buildApplication(cfg, observability.NopLogger())
	require.NoError(t, err)

	assert.Nil(t, app.metricsListener)
	assert.Equal(t, http.StatusNotFound, get(t, app.gateway.Handler(), "/metrics").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, app.gateway.Handler(), "/ready").Code)
}

func TestBuildApplication_MutualTLSRequiredWithoutMaterial(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Observability.Metrics.Enabled = false
	cfg.Services = map[string]config.ServiceConfig{
		"secure": {URL: "https://secure.internal", RequireMTLS: true},
	}

	logger, logs := observedLogger()
	app, err := buildApplication(cfg, logger)
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage(
		"services requiring mutual TLS will be rejected until client credentials are available").Len())

	rec := get(t, app.gateway.Handler(), "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")

	rec = get(t, app.gateway.Handler(), "/api/v1/secure/x")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBuildApplication_InvalidServiceURL(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Services = map[string]config.ServiceConfig{
		"bad": {URL: "http://"},
	}

	_, err := buildApplication(cfg, observability.NopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build service registry")
}

func TestRun_StartsAndStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = config.Duration(5 * time.Second)
	cfg.Observability.Metrics.Port = 0
	cfg.Services = map[string]config.ServiceConfig{
		"echo": {URL: echoBackend(t).URL},
	}

	logger, logs := observedLogger()
	app, err := buildApplication(cfg, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, app) }()

	require.Eventually(t, app.gateway.IsRunning, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + app.gateway.Addr() + "/api/v1/echo/ping")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "GET /ping", string(body))

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancellation")
	}

	assert.False(t, app.gateway.IsRunning())
	assert.Equal(t, 1, logs.FilterMessage("svcgw stopped").Len())
}

func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestRun_ServesMetricsListener(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Observability.Metrics.Port = freePort(t)

	app, err := buildApplication(cfg, observability.NopLogger())
	require.NoError(t, err)
	require.NotNil(t, app.metricsListener)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, app) }()

	require.Eventually(t, app.metricsListener.IsRunning, 5*time.Second, 10*time.Millisecond)

	for path, want := range map[string]string{
		"/metrics": "gateway_build_info",
		"/health":  "healthy",
	} {
		resp, err := http.Get("http://" + app.metricsListener.Addr() + path)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, string(body), want, path)
	}

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
	assert.False(t, app.metricsListener.IsRunning())
}

func TestRun_StartFailure(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port
	cfg.Observability.Metrics.Enabled = false

	app, err := buildApplication(cfg, observability.NopLogger())
	require.NoError(t, err)

	err = run(context.Background(), app)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start gateway")
	assert.False(t, app.gateway.IsRunning())
}
