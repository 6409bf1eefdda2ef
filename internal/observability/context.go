package observability

import "context"

// logKey identifies a correlation value carried on a request context. Its
// String form is the log field name.
type logKey uint8

const (
	requestIDKey logKey = iota
	traceIDKey
	spanIDKey
)

var logKeyNames = [...]string{
	requestIDKey: "request_id",
	traceIDKey:   "trace_id",
	spanIDKey:    "span_id",
}

func (k logKey) String() string { return logKeyNames[k] }

func contextValue(ctx context.Context, key logKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// contextFields returns a field per non-empty correlation value, in
// request, trace, span order.
func contextFields(ctx context.Context) []Field {
	var fields []Field
	for key := range logKeyNames {
		if v := contextValue(ctx, logKey(key)); v != "" {
			fields = append(fields, String(logKey(key).String(), v))
		}
	}
	return fields
}

// ContextWithRequestID stores the gateway request ID.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID or "".
func RequestIDFromContext(ctx context.Context) string {
	return contextValue(ctx, requestIDKey)
}

// ContextWithTraceID stores the hex trace ID.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext returns the trace ID or "".
func TraceIDFromContext(ctx context.Context) string {
	return contextValue(ctx, traceIDKey)
}

// ContextWithSpanID stores the hex span ID.
func ContextWithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

// SpanIDFromContext returns the span ID or "".
func SpanIDFromContext(ctx context.Context) string {
	return contextValue(ctx, spanIDKey)
}
