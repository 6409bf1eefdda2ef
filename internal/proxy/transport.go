package proxy

import (
	"net"
	"net/http"
	"time"

	"github.com/vyrodovalexey/svcgw/internal/config"
	"github.com/vyrodovalexey/svcgw/internal/mtls"
)

// TransportProvider hands out the shared client for one class of
// outbound connections. Clients carry no timeout of their own; the
// engine bounds each call with the service timeout through the request
// context.
type TransportProvider interface {
	Name() string
	Client() *http.Client
	CloseIdleConnections()
}

// PlainTransport serves http backends and https backends that only need
// server verification against the system roots.
type PlainTransport struct {
	client *http.Client
}

// NewPlainTransport creates a pooled transport without client credentials.
func NewPlainTransport(cfg config.TransportConfig) *PlainTransport {
	return &PlainTransport{client: newClient(newHTTPTransport(cfg))}
}

// Name implements TransportProvider.
func (t *PlainTransport) Name() string { return "plain" }

// Client implements TransportProvider.
func (t *PlainTransport) Client() *http.Client { return t.client }

// CloseIdleConnections implements TransportProvider.
func (t *PlainTransport) CloseIdleConnections() { t.client.CloseIdleConnections() }

// MutualTLSTransport presents the gateway's client certificate and
// verifies backends against the configured CA.
type MutualTLSTransport struct {
	client   *http.Client
	material *mtls.Material
}

// NewMutualTLSTransport creates a pooled transport using material.
func NewMutualTLSTransport(cfg config.TransportConfig, material *mtls.Material) *MutualTLSTransport {
	tr := newHTTPTransport(cfg)
	tr.TLSClientConfig = material.TLSConfig()
	return &MutualTLSTransport{client: newClient(tr), material: material}
}

// Name implements TransportProvider.
func (t *MutualTLSTransport) Name() string { return "mutual_tls" }

// Client implements TransportProvider.
func (t *MutualTLSTransport) Client() *http.Client { return t.client }

// CloseIdleConnections implements TransportProvider.
func (t *MutualTLSTransport) CloseIdleConnections() { t.client.CloseIdleConnections() }

// Material returns the client credentials in use.
func (t *MutualTLSTransport) Material() *mtls.Material { return t.material }

func newHTTPTransport(cfg config.TransportConfig) *http.Transport {
	dialTimeout := cfg.DialTimeout.Duration()
	if dialTimeout <= 0 {
		dialTimeout = config.DefaultDialTimeout
	}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout.Duration(),
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout.Duration(),
		ExpectContinueTimeout: 1 * time.Second,
		// bodies are relayed byte for byte, so never ask for gzip
		DisableCompression: true,
	}
}

func newClient(tr *http.Transport) *http.Client {
	return &http.Client{
		Transport: tr,
		// redirects are relayed to the caller, not followed
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
