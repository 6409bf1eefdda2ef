// Package observability provides logging, metrics, and tracing
// functionality for the service gateway.
//
// # Logging
//
// The Logger interface wraps zap:
//
//	logger, err := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request forwarded",
//	    observability.String("service", "orders"),
//	    observability.Int("status", 200),
//	)
//
// # Metrics
//
// Metrics owns a dedicated Prometheus registry. Packages that define
// their own collectors register them on Metrics.Registry so a single
// handler serves everything:
//
//	metrics := observability.NewMetrics("gateway")
//	http.Handle("/metrics", metrics.Handler())
//
// # Tracing
//
// Tracer sets up an OpenTelemetry provider with an optional OTLP gRPC
// exporter and installs the W3C trace-context propagator.
package observability
