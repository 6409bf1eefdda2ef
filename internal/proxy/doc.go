// Package proxy implements the request-forwarding engine of the gateway.
//
// A call to Engine.Forward runs a fixed pipeline: look the service up in
// the registry, check the mutual-TLS precondition, rewrite the inbound
// path into a backend target URL, sanitize headers, pick a transport,
// issue the request under the service timeout and buffer the response.
// Every failure leaves the engine as a *ForwardError whose Kind maps to
// exactly one HTTP status:
//
//	ServiceNotFound              404
//	SecureTransportUnconfigured  500
//	UpstreamTimeout              504
//	UpstreamUnreachable          502
//	UnexpectedFailure            500
//
// # Usage
//
//	engine := proxy.New(reg, "/api/v1",
//	    proxy.WithLogger(logger),
//	    proxy.WithTransportConfig(cfg.Transport),
//	    proxy.WithMutualTLSMaterial(material),
//	    proxy.WithMetrics(proxy.NewMetrics(metrics.Registry())),
//	)
//	defer engine.Close()
//
//	resp, err := engine.Forward(ctx, req)
package proxy
