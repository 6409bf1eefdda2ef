package proxy

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors, one per failure kind. A *ForwardError matches the
// sentinel of its kind with errors.Is.
var (
	// ErrServiceNotFound indicates an unknown or disabled service.
	ErrServiceNotFound = errors.New("service not found")

	// ErrSecureTransportUnconfigured indicates a service requires mutual
	// TLS but no client credentials are loaded.
	ErrSecureTransportUnconfigured = errors.New("secure transport unconfigured")

	// ErrUpstreamTimeout indicates the service timeout elapsed.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrUpstreamUnreachable indicates a connection or protocol failure.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")

	// ErrUnexpectedFailure covers everything else.
	ErrUnexpectedFailure = errors.New("unexpected forwarding failure")

	// ErrBodyTooLarge is returned by NewProxyRequest when the inbound body
	// exceeds the configured limit.
	ErrBodyTooLarge = errors.New("request body too large")
)

// Kind classifies forwarding failures.
type Kind int

// Failure kinds.
const (
	KindUnexpectedFailure Kind = iota
	KindServiceNotFound
	KindSecureTransportUnconfigured
	KindUpstreamTimeout
	KindUpstreamUnreachable
)

// String returns the snake_case name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindServiceNotFound:
		return "service_not_found"
	case KindSecureTransportUnconfigured:
		return "secure_transport_unconfigured"
	case KindUpstreamTimeout:
		return "upstream_timeout"
	case KindUpstreamUnreachable:
		return "upstream_unreachable"
	default:
		return "unexpected_failure"
	}
}

// StatusCode returns the HTTP status reported to the caller.
func (k Kind) StatusCode() int {
	switch k {
	case KindServiceNotFound:
		return http.StatusNotFound
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case KindUpstreamUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindServiceNotFound:
		return ErrServiceNotFound
	case KindSecureTransportUnconfigured:
		return ErrSecureTransportUnconfigured
	case KindUpstreamTimeout:
		return ErrUpstreamTimeout
	case KindUpstreamUnreachable:
		return ErrUpstreamUnreachable
	default:
		return ErrUnexpectedFailure
	}
}

// genericDetail is reported for kinds whose cause must not leak.
const genericDetail = "Internal server error"

// ForwardError is the only error type returned by Engine.Forward.
type ForwardError struct {
	Kind    Kind
	Service string
	Target  string // target URL, empty when resolution did not get that far
	Detail  string // caller-facing message
	Cause   error
}

// Error implements the error interface.
func (e *ForwardError) Error() string {
	msg := fmt.Sprintf("forward error [%s] service=%s", e.Kind, e.Service)
	if e.Target != "" {
		msg += " target=" + e.Target
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ForwardError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel of this error's kind.
func (e *ForwardError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// StatusCode returns the HTTP status for this error.
func (e *ForwardError) StatusCode() int {
	return e.Kind.StatusCode()
}

// PublicDetail returns the message safe to send to the caller.
func (e *ForwardError) PublicDetail() string {
	if e.Detail == "" {
		return genericDetail
	}
	return e.Detail
}

// AsForwardError extracts a *ForwardError from err. Any other error is
// wrapped as UnexpectedFailure.
func AsForwardError(err error) *ForwardError {
	var fe *ForwardError
	if errors.As(err, &fe) {
		return fe
	}
	return &ForwardError{Kind: KindUnexpectedFailure, Cause: err}
}

func newServiceNotFoundError(service string, cause error) *ForwardError {
	return &ForwardError{
		Kind:    KindServiceNotFound,
		Service: service,
		Detail:  fmt.Sprintf("Service %s not found", service),
		Cause:   cause,
	}
}

func newSecureTransportUnconfiguredError(service string) *ForwardError {
	return &ForwardError{
		Kind:    KindSecureTransportUnconfigured,
		Service: service,
		Cause:   ErrSecureTransportUnconfigured,
	}
}

func newUpstreamTimeoutError(service, target string, cause error) *ForwardError {
	return &ForwardError{
		Kind:    KindUpstreamTimeout,
		Service: service,
		Target:  target,
		Detail:  fmt.Sprintf("Upstream service %s timed out", service),
		Cause:   cause,
	}
}

func newUpstreamUnreachableError(service, target string, cause error) *ForwardError {
	return &ForwardError{
		Kind:    KindUpstreamUnreachable,
		Service: service,
		Target:  target,
		Detail:  fmt.Sprintf("Error forwarding request to service: %v", cause),
		Cause:   cause,
	}
}

func newUnexpectedFailureError(service, target string, cause error) *ForwardError {
	return &ForwardError{
		Kind:    KindUnexpectedFailure,
		Service: service,
		Target:  target,
		Cause:   cause,
	}
}
