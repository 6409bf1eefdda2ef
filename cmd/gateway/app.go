package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/svcgw/internal/config"
	"github.com/vyrodovalexey/svcgw/internal/gateway"
	"github.com/vyrodovalexey/svcgw/internal/health"
	"github.com/vyrodovalexey/svcgw/internal/middleware"
	"github.com/vyrodovalexey/svcgw/internal/mtls"
	"github.com/vyrodovalexey/svcgw/internal/observability"
	"github.com/vyrodovalexey/svcgw/internal/proxy"
	"github.com/vyrodovalexey/svcgw/internal/registry"
)

const (
	metricsReadTimeout       = 10 * time.Second
	metricsReadHeaderTimeout = 5 * time.Second
	metricsWriteTimeout      = 10 * time.Second
)

// application holds all application components.
type application struct {
	config          *config.GatewayConfig
	logger          observability.Logger
	metrics         *observability.Metrics
	tracer          *observability.Tracer
	healthChecker   *health.Checker
	gateway         *gateway.Gateway
	metricsListener *gateway.Listener
}

// buildApplication wires registry, mutual TLS material, forwarding engine
// and HTTP surface from cfg. Missing client certificates are not fatal.
func buildApplication(cfg *config.GatewayConfig, logger observability.Logger) (*application, error) {
	metrics := observability.NewMetrics("gateway")
	metrics.SetBuildInfo(version, gitCommit, buildTime)

	tracing := cfg.Observability.Tracing
	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:    tracing.ServiceName,
		ServiceVersion: cfg.App.Version,
		OTLPEndpoint:   tracing.OTLPEndpoint,
		SamplingRate:   tracing.SamplingRate,
		Enabled:        tracing.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	reg, err := registry.FromConfig(cfg.Services)
	if err != nil {
		return nil, fmt.Errorf("failed to build service registry: %w", err)
	}

	engineOpts := []proxy.Option{
		proxy.WithLogger(logger),
		proxy.WithMetrics(proxy.NewMetrics(metrics.Registry())),
		proxy.WithTracerProvider(tracer.Provider()),
		proxy.WithTransportConfig(cfg.Transport),
	}
	material, err := mtls.TryLoad(cfg.MTLS, logger)
	switch {
	case err == nil:
		engineOpts = append(engineOpts, proxy.WithMutualTLSMaterial(material))
	case reg.RequiresMutualTLS():
		logger.Warn("services requiring mutual TLS will be rejected until client credentials are available",
			observability.Error(err),
		)
	}
	engine := proxy.New(reg, cfg.App.APIPrefix, engineOpts...)

	checker := health.NewChecker(cfg.App.Version, health.WithMetrics(health.NewMetrics(metrics.Registry())))
	checker.RegisterCheck(health.CheckRegistry, health.RegistryCheck(reg))
	checker.RegisterCheck(health.CheckMutualTLS, health.MutualTLSCheck(reg, engine.SecureTransportAvailable))

	gwOpts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithMetrics(metrics),
		gateway.WithHealthChecker(checker),
		gateway.WithTracerProvider(tracer.Provider()),
		gateway.WithShutdownTimeout(cfg.Server.ShutdownTimeout.Duration()),
	}

	obs := cfg.Observability.Metrics
	sharedPort := obs.Enabled && obs.Port == cfg.Server.Port
	if sharedPort {
		gwOpts = append(gwOpts, gateway.WithMetricsHandler(obs.Path, metrics.Handler()))
	}

	gw, err := gateway.New(cfg, engine, gwOpts...)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	app := &application{
		config:        cfg,
		logger:        logger,
		metrics:       metrics,
		tracer:        tracer,
		healthChecker: checker,
		gateway:       gw,
	}
	if obs.Enabled && !sharedPort {
		app.metricsListener = newMetricsListener(cfg, metrics, checker, logger)
	}

	return app, nil
}

// newMetricsListener serves Prometheus metrics and probes on their own
// port so scrapers never pass through the service gate.
func newMetricsListener(
	cfg *config.GatewayConfig,
	metrics *observability.Metrics,
	checker *health.Checker,
	logger observability.Logger,
) *gateway.Listener {
	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.GET(cfg.Observability.Metrics.Path, gin.WrapH(metrics.Handler()))
	router.GET("/health", checker.HealthHandler())
	router.GET("/ready", checker.ReadinessHandler())

	return gateway.NewListener(gateway.ListenerConfig{
		Name:              "metrics",
		Address:           net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Observability.Metrics.Port)),
		ReadTimeout:       metricsReadTimeout,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
		WriteTimeout:      metricsWriteTimeout,
	}, router, gateway.WithListenerLogger(logger))
}
