package middleware

import "github.com/gin-gonic/gin"

// HTTP header constants.
const (
	// HeaderXRequestID is the X-Request-ID header name.
	HeaderXRequestID = "X-Request-ID"

	// HeaderXForwardedFor is the X-Forwarded-For header name.
	HeaderXForwardedFor = "X-Forwarded-For"

	// HeaderOrigin is the Origin header name.
	HeaderOrigin = "Origin"
)

// Context keys stored on the gin context.
const (
	// RequestIDKey is the gin context key holding the request ID.
	RequestIDKey = "requestID"

	// SpanKey is the gin context key holding the server span.
	SpanKey = "otel-span"

	// ServiceParam is the route parameter carrying the service name.
	ServiceParam = "service"
)

// Detail messages returned by the gate middleware.
const (
	DetailAccessDenied     = "Access denied"
	DetailNoAPIKey         = "No API key provided"
	DetailInvalidAPIKey    = "Invalid API key"
	DetailInternalError    = "Internal server error"
	DetailRequestTooLarge  = "Request body too large"
	DetailMethodNotAllowed = "Method not allowed"
	DetailRouteNotFound    = "Not found"

	detailKey = "detail"
)

// AbortWithDetail aborts the chain and writes {"detail": msg}.
func AbortWithDetail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{detailKey: msg})
}
