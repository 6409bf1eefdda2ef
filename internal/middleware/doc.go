// Package middleware provides the gin middleware chain placed in front of
// the service gateway routes.
//
// # Middleware Components
//
//   - Recovery: converts handler panics into a 500 detail response
//   - RequestID: propagates or generates X-Request-ID
//   - Logging: structured access logging
//   - Tracing: server spans continuing inbound W3C trace context
//   - Metrics: per-service request counters and latency histograms
//   - CORS: cross-origin headers and preflight handling
//   - IPAllowlist: CIDR allowlist on the trusted-proxy aware client IP
//   - APIKeyAuth: inbound API key gate (plain, sha256 or bcrypt keys)
//
// Rejections are written as {"detail": "..."} bodies, the same shape the
// forwarding handler uses for its own failures.
package middleware
