package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/svcgw/internal/config"
	"github.com/vyrodovalexey/svcgw/internal/health"
	"github.com/vyrodovalexey/svcgw/internal/observability"
	"github.com/vyrodovalexey/svcgw/internal/proxy"
)

// ginModeOnce ensures gin.SetMode is only called once to avoid races.
var ginModeOnce sync.Once

// State represents the gateway state.
type State int32

const (
	// StateStopped indicates the gateway is stopped.
	StateStopped State = iota
	// StateStarting indicates the gateway is starting.
	StateStarting
	// StateRunning indicates the gateway is running.
	StateRunning
	// StateStopping indicates the gateway is stopping.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Gateway binds the forwarding engine to an HTTP listener together with
// the health and info endpoints.
type Gateway struct {
	config         *config.GatewayConfig
	proxy          *proxy.Engine
	logger         observability.Logger
	metrics        *observability.Metrics
	checker        *health.Checker
	tracerProvider trace.TracerProvider
	metricsRoute   *mountedHandler
	now            func() time.Time

	router   *gin.Engine
	listener *Listener

	state           atomic.Int32
	startTime       time.Time
	shutdownTimeout time.Duration
}

type mountedHandler struct {
	path    string
	handler http.Handler
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the logger for the gateway.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithMetrics enables the request metrics middleware.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithHealthChecker replaces the default readiness checker.
func WithHealthChecker(checker *health.Checker) Option {
	return func(g *Gateway) {
		g.checker = checker
	}
}

// WithTracerProvider sets the provider for server spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(g *Gateway) {
		g.tracerProvider = tp
	}
}

// WithMetricsHandler mounts h on the gateway router at path, for setups
// that expose metrics on the main port.
func WithMetricsHandler(path string, h http.Handler) Option {
	return func(g *Gateway) {
		g.metricsRoute = &mountedHandler{path: path, handler: h}
	}
}

// WithShutdownTimeout sets the shutdown timeout.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		g.shutdownTimeout = timeout
	}
}

// WithClock overrides the time source used in responses.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// New creates a gateway and builds its router. cfg must already be
// validated.
func New(cfg *config.GatewayConfig, engine *proxy.Engine, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if engine == nil {
		return nil, ErrNilEngine
	}

	g := &Gateway{
		config:          cfg,
		proxy:           engine,
		logger:          observability.NopLogger(),
		shutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
		now:             time.Now,
	}
	if g.shutdownTimeout <= 0 {
		g.shutdownTimeout = config.DefaultShutdownTimeout
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.checker == nil {
		g.checker = health.NewChecker(cfg.App.Version)
		g.checker.RegisterCheck(health.CheckRegistry, health.RegistryCheck(engine.Registry()))
		g.checker.RegisterCheck(health.CheckMutualTLS,
			health.MutualTLSCheck(engine.Registry(), engine.SecureTransportAvailable))
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	router, err := g.buildRouter()
	if err != nil {
		return nil, err
	}
	g.router = router

	g.state.Store(int32(StateStopped))

	return g, nil
}

// Handler returns the HTTP handler serving all gateway routes.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Start binds the listener and begins serving.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrGatewayNotStopped
	}

	g.logger.Info("starting gateway",
		observability.String("name", g.config.App.Name),
		observability.String("api_prefix", g.config.App.APIPrefix),
		observability.Strings("services", g.proxy.Registry().Names()),
	)

	g.listener = NewListener(ListenerConfig{
		Name:           "http",
		Address:        net.JoinHostPort(g.config.Server.Host, strconv.Itoa(g.config.Server.Port)),
		ReadTimeout:    g.config.Server.ReadTimeout.Duration(),
		WriteTimeout:   g.config.EffectiveWriteTimeout(),
		IdleTimeout:    g.config.Server.IdleTimeout.Duration(),
		MaxHeaderBytes: g.config.Server.MaxHeaderBytes,
	}, g.router, WithListenerLogger(g.logger))

	if err := g.listener.Start(ctx); err != nil {
		g.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to start listener: %w", err)
	}

	g.startTime = g.now()
	g.state.Store(int32(StateRunning))

	g.logger.Info("gateway started",
		observability.String("address", g.listener.Addr()),
		observability.Bool("mutual_tls", g.proxy.SecureTransportAvailable()),
	)

	return nil
}

// Stop drains in-flight requests and closes idle backend connections.
// Without a deadline on ctx the configured shutdown timeout applies.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return ErrGatewayNotRunning
	}

	g.logger.Info("stopping gateway", observability.String("name", g.config.App.Name))

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.shutdownTimeout)
		defer cancel()
	}

	err := g.listener.Stop(ctx)
	g.proxy.Close()
	g.state.Store(int32(StateStopped))

	if err != nil {
		g.logger.Error("gateway stopped with error", observability.Error(err))
		return err
	}
	g.logger.Info("gateway stopped", observability.String("name", g.config.App.Name))
	return nil
}

// State returns the current gateway state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// IsRunning returns true if the gateway is running.
func (g *Gateway) IsRunning() bool {
	return g.State() == StateRunning
}

// Uptime returns the gateway uptime.
func (g *Gateway) Uptime() time.Duration {
	if g.startTime.IsZero() || !g.IsRunning() {
		return 0
	}
	return g.now().Sub(g.startTime)
}

// Addr returns the address the gateway listens on.
func (g *Gateway) Addr() string {
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr()
}

// Config returns the gateway configuration.
func (g *Gateway) Config() *config.GatewayConfig {
	return g.config
}
