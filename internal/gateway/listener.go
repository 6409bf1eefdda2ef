package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/svcgw/internal/observability"
)

// ListenerConfig holds the http.Server settings of a listener.
type ListenerConfig struct {
	Name              string
	Address           string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
}

// Listener serves one handler on one TCP address.
type Listener struct {
	config  ListenerConfig
	handler http.Handler
	logger  observability.Logger

	mu      sync.Mutex
	server  *http.Server
	addr    net.Addr
	running atomic.Bool
	done    chan struct{}
}

// ListenerOption is a functional option for configuring a listener.
type ListenerOption func(*Listener)

// WithListenerLogger sets the logger for the listener.
func WithListenerLogger(logger observability.Logger) ListenerOption {
	return func(l *Listener) {
		l.logger = logger
	}
}

// NewListener creates a new listener. Nothing is bound until Start.
func NewListener(cfg ListenerConfig, handler http.Handler, opts ...ListenerOption) *Listener {
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}

	l := &Listener{
		config:  cfg,
		handler: handler,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the listener name.
func (l *Listener) Name() string {
	return l.config.Name
}

// Addr returns the bound address once started, otherwise the configured
// one. Port 0 resolves to the kernel-assigned port.
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.addr != nil {
		return l.addr.String()
	}
	return l.config.Address
}

// Start binds the address and serves in the background.
func (l *Listener) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ErrListenerRunning, l.config.Name)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.config.Address)
	if err != nil {
		l.running.Store(false)
		return fmt.Errorf("failed to listen on %s: %w", l.config.Address, err)
	}

	server := &http.Server{
		Handler:           l.handler,
		ReadTimeout:       l.config.ReadTimeout,
		ReadHeaderTimeout: l.config.ReadHeaderTimeout,
		WriteTimeout:      l.config.WriteTimeout,
		IdleTimeout:       l.config.IdleTimeout,
		MaxHeaderBytes:    l.config.MaxHeaderBytes,
	}

	l.mu.Lock()
	l.server = server
	l.addr = ln.Addr()
	l.done = make(chan struct{})
	l.mu.Unlock()

	l.logger.Info("listener started",
		observability.String("name", l.config.Name),
		observability.String("address", ln.Addr().String()),
	)

	go l.serve(server, ln)

	return nil
}

func (l *Listener) serve(server *http.Server, ln net.Listener) {
	defer close(l.done)

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.logger.Error("listener error",
			observability.String("name", l.config.Name),
			observability.Error(err),
		)
	}
	l.running.Store(false)
}

// Stop shuts the server down, waiting for in-flight requests until ctx
// expires, then closes remaining connections.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	server, done := l.server, l.done
	l.mu.Unlock()

	if server == nil {
		return nil
	}

	l.logger.Info("stopping listener", observability.String("name", l.config.Name))

	if err := server.Shutdown(ctx); err != nil {
		if closeErr := server.Close(); closeErr != nil {
			return fmt.Errorf("failed to close listener: %w", closeErr)
		}
		return fmt.Errorf("failed to shutdown listener gracefully: %w", err)
	}
	<-done

	l.logger.Info("listener stopped", observability.String("name", l.config.Name))
	return nil
}

// IsRunning returns true if the listener is serving.
func (l *Listener) IsRunning() bool {
	return l.running.Load()
}
