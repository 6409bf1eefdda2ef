package gateway

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/svcgw/internal/health"
	"github.com/vyrodovalexey/svcgw/internal/middleware"
)

// proxyMethods are the methods accepted on service routes.
var proxyMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
	http.MethodHead,
	http.MethodOptions,
}

// buildRouter assembles the middleware chain and routes. Gate middleware
// (IP allowlist, API key) only guards the service routes so probes keep
// working from anywhere.
func (g *Gateway) buildRouter() (*gin.Engine, error) {
	cfg := g.config

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.ContextWithFallback = true
	if err := router.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	registry := g.proxy.Registry()
	skip := []string{"/health", "/health/services", "/ready"}
	if g.metricsRoute != nil {
		skip = append(skip, g.metricsRoute.path)
	}

	router.Use(
		middleware.Recovery(g.logger),
		middleware.RequestID(),
		middleware.TracingWithConfig(middleware.TracingConfig{
			TracerProvider: g.tracerProvider,
			SkipPaths:      skip,
		}),
		middleware.LoggingWithConfig(middleware.LoggingConfig{
			Logger:          g.logger,
			SkipHealthCheck: true,
		}),
		middleware.Metrics(middleware.MetricsConfig{
			Metrics: g.metrics,
			IsService: func(name string) bool {
				_, err := registry.Lookup(name)
				return err == nil
			},
			SkipPaths: skip,
		}),
	)
	if cfg.CORS.Enabled() {
		router.Use(middleware.CORS(cfg.CORS))
	}

	router.NoRoute(func(c *gin.Context) {
		middleware.AbortWithDetail(c, http.StatusNotFound, middleware.DetailRouteNotFound)
	})
	router.NoMethod(func(c *gin.Context) {
		middleware.AbortWithDetail(c, http.StatusMethodNotAllowed, middleware.DetailMethodNotAllowed)
	})

	router.GET("/", g.handleInfo)
	router.GET("/health", g.checker.HealthHandler())
	router.GET("/health/services", health.ServicesHandler(registry))
	router.GET("/ready", g.checker.ReadinessHandler())
	if g.metricsRoute != nil {
		router.GET(g.metricsRoute.path, gin.WrapH(g.metricsRoute.handler))
	}

	gates, err := g.gateMiddleware()
	if err != nil {
		return nil, err
	}

	handler := &proxyHandler{
		engine:   g.proxy,
		maxBody:  cfg.Server.MaxBodyBytes,
		logger:   g.logger,
		services: health.ServicesHandler(registry),
	}

	group := router.Group(strings.TrimRight(cfg.App.APIPrefix, "/"), gates...)
	for _, method := range proxyMethods {
		group.Handle(method, "/:"+middleware.ServiceParam, handler.handle)
		group.Handle(method, "/:"+middleware.ServiceParam+"/*path", handler.handle)
	}

	return router, nil
}

func (g *Gateway) gateMiddleware() ([]gin.HandlerFunc, error) {
	sec := g.config.Security

	allowed, err := middleware.ParseNetworks(sec.EffectiveAllowedNetworks())
	if err != nil {
		return nil, fmt.Errorf("invalid allowed networks: %w", err)
	}
	extractor, err := middleware.NewClientIPExtractor(sec.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	keys, err := middleware.ParseKeySet(sec.APIKeys)
	if err != nil {
		return nil, fmt.Errorf("invalid api keys: %w", err)
	}

	return []gin.HandlerFunc{
		middleware.IPAllowlist(middleware.IPAllowlistConfig{
			Allowed:   allowed,
			Extractor: extractor,
			Logger:    g.logger,
		}),
		middleware.APIKeyAuth(middleware.APIKeyConfig{
			Keys:   keys,
			Header: sec.APIKeyHeader,
			Logger: g.logger,
		}),
	}, nil
}
