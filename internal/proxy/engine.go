package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/svcgw/internal/config"
	"github.com/vyrodovalexey/svcgw/internal/mtls"
	"github.com/vyrodovalexey/svcgw/internal/observability"
	"github.com/vyrodovalexey/svcgw/internal/registry"
)

const tracerName = "github.com/vyrodovalexey/svcgw/internal/proxy"

// APIKeyHeader is set on outbound requests to services configured with an
// API key, replacing any inbound value.
const APIKeyHeader = "X-API-Key"

// strippedRequestHeaders are never copied to the outbound request.
var strippedRequestHeaders = []string{"Host", "Content-Length"}

// Engine forwards requests to registered services. It holds only
// read-only state and is safe for concurrent use.
type Engine struct {
	registry       *registry.Registry
	apiPrefix      string
	logger         observability.Logger
	metrics        *Metrics
	tracer         trace.Tracer
	transportCfg   config.TransportConfig
	material       *mtls.Material
	plain          TransportProvider
	secure         TransportProvider
	tracerProvider trace.TracerProvider
}

// Option is a functional option for configuring the engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracerProvider overrides the global OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		e.tracerProvider = tp
	}
}

// WithTransportConfig sets pool sizing for the default transports.
func WithTransportConfig(cfg config.TransportConfig) Option {
	return func(e *Engine) {
		e.transportCfg = cfg
	}
}

// WithMutualTLSMaterial enables the mutual-TLS transport. A nil material
// leaves it disabled.
func WithMutualTLSMaterial(m *mtls.Material) Option {
	return func(e *Engine) {
		e.material = m
	}
}

// WithPlainTransport replaces the default plain transport.
func WithPlainTransport(tp TransportProvider) Option {
	return func(e *Engine) {
		e.plain = tp
	}
}

// WithSecureTransport replaces the mutual-TLS transport.
func WithSecureTransport(tp TransportProvider) Option {
	return func(e *Engine) {
		e.secure = tp
	}
}

// New creates an engine over reg. apiPrefix is stripped from inbound
// paths before they are sent to backends.
func New(reg *registry.Registry, apiPrefix string, opts ...Option) *Engine {
	e := &Engine{
		registry:     reg,
		apiPrefix:    apiPrefix,
		logger:       observability.NopLogger(),
		transportCfg: config.DefaultConfig().Transport,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.plain == nil {
		e.plain = NewPlainTransport(e.transportCfg)
	}
	if e.secure == nil && e.material != nil {
		e.secure = NewMutualTLSTransport(e.transportCfg, e.material)
	}
	if e.tracerProvider == nil {
		e.tracerProvider = otel.GetTracerProvider()
	}
	e.tracer = e.tracerProvider.Tracer(tracerName)

	return e
}

// SecureTransportAvailable reports whether mutual-TLS services can be
// served.
func (e *Engine) SecureTransportAvailable() bool {
	return e.secure != nil
}

// Registry returns the registry the engine reads.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// APIPrefix returns the prefix stripped from inbound paths.
func (e *Engine) APIPrefix() string {
	return e.apiPrefix
}

// Close releases idle pooled connections.
func (e *Engine) Close() {
	e.plain.CloseIdleConnections()
	if e.secure != nil {
		e.secure.CloseIdleConnections()
	}
}

// Forward performs one proxied call. On failure the error is always a
// *ForwardError and the response is nil. Steps short-circuit in order;
// in particular a service that requires mutual TLS is never contacted
// when no client credentials are loaded.
func (e *Engine) Forward(ctx context.Context, req *ProxyRequest) (*ProxyResponse, error) {
	logger := e.logger.WithContext(ctx).With(
		observability.String("service", req.ServiceName),
		observability.String("method", req.Method),
	)

	entry, err := e.registry.Lookup(req.ServiceName)
	if err != nil {
		logger.Debug("service not found")
		e.metrics.recordOutcome(unknownService, KindServiceNotFound.String())
		return nil, newServiceNotFoundError(req.ServiceName, err)
	}

	transport := e.plain
	if entry.RequireMutualTLS {
		if e.secure == nil {
			logger.Error("service requires mutual TLS but no client credentials are loaded")
			e.metrics.recordOutcome(entry.Name, KindSecureTransportUnconfigured.String())
			return nil, newSecureTransportUnconfiguredError(entry.Name)
		}
		transport = e.secure
	}

	target := TargetURL(entry.BaseURL, ResolvePath(e.apiPrefix, entry.Name, req.Path), req.RawQuery)
	logger = logger.With(observability.String("target", target))

	callCtx, cancel := context.WithTimeout(ctx, entry.Timeout)
	defer cancel()

	callCtx, span := e.tracer.Start(callCtx, "proxy.forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gateway.service", entry.Name),
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", target),
			attribute.String("gateway.transport", transport.Name()),
		),
	)
	defer span.End()

	resp, ferr := e.roundTrip(ctx, callCtx, transport, entry, target, req)
	if ferr != nil {
		span.RecordError(ferr)
		span.SetStatus(codes.Error, ferr.Kind.String())
		e.logFailure(logger, ferr)
		e.metrics.recordOutcome(entry.Name, ferr.Kind.String())
		return nil, ferr
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	logger.Debug("request forwarded", observability.Int("status", resp.StatusCode))
	e.metrics.recordOutcome(entry.Name, outcomeSuccess)
	return resp, nil
}

func (e *Engine) roundTrip(
	parent, ctx context.Context,
	transport TransportProvider,
	entry registry.Entry,
	target string,
	req *ProxyRequest,
) (*ProxyResponse, *ForwardError) {
	outReq, err := http.NewRequestWithContext(ctx, req.Method, target, bytes.NewReader(req.Body))
	if err != nil {
		return nil, newUnexpectedFailureError(entry.Name, target, err)
	}
	outReq.Header = sanitizeHeaders(req.Header, entry.APIKey)
	observability.InjectTraceContext(ctx, outReq.Header)

	start := time.Now()
	defer func() {
		e.metrics.observeBackend(entry.Name, time.Since(start))
	}()

	httpResp, err := transport.Client().Do(outReq)
	if err != nil {
		return nil, classify(parent, ctx, entry.Name, target, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, classify(parent, ctx, entry.Name, target, err)
	}

	return &ProxyResponse{
		StatusCode:  httpResp.StatusCode,
		Header:      httpResp.Header.Clone(),
		Body:        body,
		ContentType: httpResp.Header.Get("Content-Type"),
	}, nil
}

// sanitizeHeaders copies in without Host and Content-Length and applies
// the service API key.
func sanitizeHeaders(in http.Header, apiKey string) http.Header {
	out := in.Clone()
	if out == nil {
		out = make(http.Header)
	}
	for _, h := range strippedRequestHeaders {
		out.Del(h)
	}
	if apiKey != "" {
		out.Set(APIKeyHeader, apiKey)
	}
	return out
}

// classify maps a transport error to a failure kind. parent is the
// inbound context; ctx is the per-call context carrying the service
// deadline.
func classify(parent, ctx context.Context, service, target string, err error) *ForwardError {
	if parent.Err() != nil {
		return newUnexpectedFailureError(service, target, err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return newUpstreamTimeoutError(service, target, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return newUpstreamTimeoutError(service, target, err)
		}
		return newUpstreamUnreachableError(service, target, err)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return newUpstreamUnreachableError(service, target, err)
	}
	return newUnexpectedFailureError(service, target, err)
}

func (e *Engine) logFailure(logger observability.Logger, ferr *ForwardError) {
	fields := []observability.Field{
		observability.String("kind", ferr.Kind.String()),
		observability.Error(ferr.Cause),
	}
	switch ferr.Kind {
	case KindUpstreamTimeout, KindUpstreamUnreachable:
		logger.Warn("forwarding failed", fields...)
	case KindUnexpectedFailure:
		if errors.Is(ferr.Cause, context.Canceled) {
			logger.Debug("client went away before the backend answered", fields...)
			return
		}
		logger.Error("forwarding failed", append(fields, observability.Stack("stack"))...)
	default:
		logger.Error("forwarding failed", fields...)
	}
}
