// Package gateway exposes the forwarding engine over HTTP.
//
// Routes:
//
//	GET  /                          service info
//	GET  /health                    liveness
//	GET  /health/services           configured services and their URLs
//	GET  /ready                     readiness (registry, mutual TLS)
//	ANY  {prefix}/{service}[/path]  forwarded to the service
//
// Failures on service routes are written as {"detail": "..."} with the
// status mapped from the forwarding error kind.
package gateway
