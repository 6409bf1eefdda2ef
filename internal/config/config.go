package config

import (
	"sort"
	"time"
)

// Default values applied by DefaultConfig and ApplyDefaults.
const (
	DefaultAppName             = "svcgw"
	DefaultAppVersion          = "dev"
	DefaultAPIPrefix           = "/api/v1"
	DefaultHost                = "0.0.0.0"
	DefaultPort                = 8000
	DefaultServiceTimeout      = 30 * time.Second
	DefaultReadTimeout         = 30 * time.Second
	DefaultIdleTimeout         = 120 * time.Second
	DefaultShutdownTimeout     = 30 * time.Second
	DefaultWriteTimeoutSlack   = 5 * time.Second
	DefaultMaxHeaderBytes      = 1 << 20
	DefaultMaxBodyBytes        = 10 << 20
	DefaultAPIKeyHeader        = "X-API-Key"
	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 10
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultDialTimeout         = 10 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultMetricsPath         = "/metrics"
	DefaultMetricsPort         = 9090
	DefaultEnvironment         = "development"
)

// GatewayConfig is the root configuration document.
type GatewayConfig struct {
	App           AppConfig                `yaml:"app" json:"app"`
	Server        ServerConfig             `yaml:"server" json:"server"`
	CORS          CORSConfig               `yaml:"cors" json:"cors"`
	Security      SecurityConfig           `yaml:"security" json:"security"`
	MTLS          MTLSConfig               `yaml:"mtls" json:"mtls"`
	Transport     TransportConfig          `yaml:"transport" json:"transport"`
	Services      map[string]ServiceConfig `yaml:"services" json:"services"`
	Observability ObservabilityConfig      `yaml:"observability" json:"observability"`
}

// AppConfig describes the gateway itself.
type AppConfig struct {
	Name      string `yaml:"name" json:"name"`
	Version   string `yaml:"version" json:"version"`
	APIPrefix string `yaml:"api_prefix" json:"api_prefix"`
}

// ServerConfig configures the inbound HTTP listener.
type ServerConfig struct {
	Host            string   `yaml:"host" json:"host"`
	Port            int      `yaml:"port" json:"port"`
	ReadTimeout     Duration `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty"`
	// WriteTimeout of zero is derived from the longest service timeout.
	WriteTimeout    Duration `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`
	IdleTimeout     Duration `yaml:"idle_timeout,omitempty" json:"idle_timeout,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout,omitempty" json:"shutdown_timeout,omitempty"`
	MaxHeaderBytes  int      `yaml:"max_header_bytes,omitempty" json:"max_header_bytes,omitempty"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes,omitempty" json:"max_body_bytes,omitempty"`
}

// CORSConfig configures cross-origin resource sharing.
type CORSConfig struct {
	AllowOrigins     []string `yaml:"allow_origins,omitempty" json:"allow_origins,omitempty"`
	AllowMethods     []string `yaml:"allow_methods,omitempty" json:"allow_methods,omitempty"`
	AllowHeaders     []string `yaml:"allow_headers,omitempty" json:"allow_headers,omitempty"`
	ExposeHeaders    []string `yaml:"expose_headers,omitempty" json:"expose_headers,omitempty"`
	MaxAge           int      `yaml:"max_age,omitempty" json:"max_age,omitempty"`
	AllowCredentials bool     `yaml:"allow_credentials,omitempty" json:"allow_credentials,omitempty"`
}

// Enabled reports whether any origin is allowed.
func (c CORSConfig) Enabled() bool {
	return len(c.AllowOrigins) > 0
}

// SecurityConfig configures the inbound gate in front of the proxy routes.
type SecurityConfig struct {
	// APIKeys accepted on the inbound request. Entries are plaintext,
	// "sha256:<hex>" or "bcrypt:<hash>". Empty disables the check.
	APIKeys      []string `yaml:"api_keys,omitempty" json:"api_keys,omitempty"`
	APIKeyHeader string   `yaml:"api_key_header,omitempty" json:"api_key_header,omitempty"`
	// AllowedNetworks is a CIDR allowlist for client addresses.
	AllowedNetworks []string `yaml:"allowed_networks,omitempty" json:"allowed_networks,omitempty"`
	// InternalNetworkOnly adds the RFC 1918 ranges to AllowedNetworks.
	InternalNetworkOnly bool `yaml:"internal_network_only,omitempty" json:"internal_network_only,omitempty"`
	// TrustedProxies lists CIDRs whose X-Forwarded-For is honored.
	TrustedProxies []string `yaml:"trusted_proxies,omitempty" json:"trusted_proxies,omitempty"`
}

// PrivateNetworks are the RFC 1918 ranges used by InternalNetworkOnly.
var PrivateNetworks = []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}

// EffectiveAllowedNetworks returns the allowlist including the private
// ranges when InternalNetworkOnly is set.
func (c SecurityConfig) EffectiveAllowedNetworks() []string {
	nets := make([]string, 0, len(c.AllowedNetworks)+len(PrivateNetworks))
	nets = append(nets, c.AllowedNetworks...)
	if c.InternalNetworkOnly {
		nets = append(nets, PrivateNetworks...)
	}
	return nets
}

// MTLSConfig locates the client credentials presented to backends.
type MTLSConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	CertFile   string `yaml:"cert_file,omitempty" json:"cert_file,omitempty"`
	KeyFile    string `yaml:"key_file,omitempty" json:"key_file,omitempty"`
	CAFile     string `yaml:"ca_file,omitempty" json:"ca_file,omitempty"`
	MinVersion string `yaml:"min_version,omitempty" json:"min_version,omitempty"`
}

// TransportConfig tunes the shared outbound connection pools.
type TransportConfig struct {
	MaxIdleConns        int      `yaml:"max_idle_conns,omitempty" json:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost int      `yaml:"max_idle_conns_per_host,omitempty" json:"max_idle_conns_per_host,omitempty"`
	MaxConnsPerHost     int      `yaml:"max_conns_per_host,omitempty" json:"max_conns_per_host,omitempty"`
	IdleConnTimeout     Duration `yaml:"idle_conn_timeout,omitempty" json:"idle_conn_timeout,omitempty"`
	DialTimeout         Duration `yaml:"dial_timeout,omitempty" json:"dial_timeout,omitempty"`
	TLSHandshakeTimeout Duration `yaml:"tls_handshake_timeout,omitempty" json:"tls_handshake_timeout,omitempty"`
}

// ServiceConfig is one backend service as written in configuration.
type ServiceConfig struct {
	URL         string    `yaml:"url" json:"url"`
	Timeout     *Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Enabled     *bool     `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	APIKey      string    `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	RequireMTLS bool      `yaml:"require_mtls,omitempty" json:"require_mtls,omitempty"`
}

// EffectiveTimeout returns the configured timeout or DefaultServiceTimeout.
func (s ServiceConfig) EffectiveTimeout() time.Duration {
	if s.Timeout == nil {
		return DefaultServiceTimeout
	}
	return s.Timeout.Duration()
}

// IsEnabled returns the enabled flag, defaulting to true.
func (s ServiceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ObservabilityConfig groups logging, metrics and tracing.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
	Port    int    `yaml:"port,omitempty" json:"port,omitempty"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	SamplingRate float64 `yaml:"sampling_rate,omitempty" json:"sampling_rate,omitempty"`
	OTLPEndpoint string  `yaml:"otlp_endpoint,omitempty" json:"otlp_endpoint,omitempty"`
	ServiceName  string  `yaml:"service_name,omitempty" json:"service_name,omitempty"`
}

// DefaultConfig returns a configuration with all defaults populated and
// no services.
func DefaultConfig() *GatewayConfig {
	return &GatewayConfig{
		App: AppConfig{
			Name:      DefaultAppName,
			Version:   DefaultAppVersion,
			APIPrefix: DefaultAPIPrefix,
		},
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     Duration(DefaultReadTimeout),
			IdleTimeout:     Duration(DefaultIdleTimeout),
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
			MaxHeaderBytes:  DefaultMaxHeaderBytes,
			MaxBodyBytes:    DefaultMaxBodyBytes,
		},
		Security: SecurityConfig{
			APIKeyHeader: DefaultAPIKeyHeader,
		},
		MTLS: MTLSConfig{
			MinVersion: "TLS12",
		},
		Transport: TransportConfig{
			MaxIdleConns:        DefaultMaxIdleConns,
			MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
			IdleConnTimeout:     Duration(DefaultIdleConnTimeout),
			DialTimeout:         Duration(DefaultDialTimeout),
			TLSHandshakeTimeout: Duration(DefaultTLSHandshakeTimeout),
		},
		Services: map[string]ServiceConfig{},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
			Metrics: MetricsConfig{Enabled: true, Path: DefaultMetricsPath, Port: DefaultMetricsPort},
			Tracing: TracingConfig{SamplingRate: 1.0},
		},
	}
}

// ApplyDefaults fills zero values left by a partial document. It is
// idempotent.
func (c *GatewayConfig) ApplyDefaults() {
	d := DefaultConfig()

	setString(&c.App.Name, d.App.Name)
	setString(&c.App.Version, d.App.Version)
	setString(&c.App.APIPrefix, d.App.APIPrefix)

	setString(&c.Server.Host, d.Server.Host)
	setInt(&c.Server.Port, d.Server.Port)
	setDuration(&c.Server.ReadTimeout, d.Server.ReadTimeout)
	setDuration(&c.Server.IdleTimeout, d.Server.IdleTimeout)
	setDuration(&c.Server.ShutdownTimeout, d.Server.ShutdownTimeout)
	setInt(&c.Server.MaxHeaderBytes, d.Server.MaxHeaderBytes)
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = d.Server.MaxBodyBytes
	}

	setString(&c.Security.APIKeyHeader, d.Security.APIKeyHeader)
	setString(&c.MTLS.MinVersion, d.MTLS.MinVersion)

	setInt(&c.Transport.MaxIdleConns, d.Transport.MaxIdleConns)
	setInt(&c.Transport.MaxIdleConnsPerHost, d.Transport.MaxIdleConnsPerHost)
	setDuration(&c.Transport.IdleConnTimeout, d.Transport.IdleConnTimeout)
	setDuration(&c.Transport.DialTimeout, d.Transport.DialTimeout)
	setDuration(&c.Transport.TLSHandshakeTimeout, d.Transport.TLSHandshakeTimeout)

	if c.Services == nil {
		c.Services = map[string]ServiceConfig{}
	}

	setString(&c.Observability.Logging.Level, d.Observability.Logging.Level)
	setString(&c.Observability.Logging.Format, d.Observability.Logging.Format)
	setString(&c.Observability.Logging.Output, d.Observability.Logging.Output)
	setString(&c.Observability.Metrics.Path, d.Observability.Metrics.Path)
	setInt(&c.Observability.Metrics.Port, d.Observability.Metrics.Port)
	setString(&c.Observability.Tracing.ServiceName, c.App.Name)
}

// EffectiveWriteTimeout returns the server write timeout. When unset it is
// the longest enabled service timeout plus DefaultWriteTimeoutSlack, so
// the server never cuts off a response the gateway is still waiting for.
func (c *GatewayConfig) EffectiveWriteTimeout() time.Duration {
	if c.Server.WriteTimeout > 0 {
		return c.Server.WriteTimeout.Duration()
	}
	longest := DefaultServiceTimeout
	for _, svc := range c.Services {
		if svc.IsEnabled() && svc.EffectiveTimeout() > longest {
			longest = svc.EffectiveTimeout()
		}
	}
	return longest + DefaultWriteTimeoutSlack
}

// ServiceNames returns the configured service names in sorted order.
func (c *GatewayConfig) ServiceNames() []string {
	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequiresMTLS reports whether any enabled service requires mutual TLS.
func (c *GatewayConfig) RequiresMTLS() bool {
	for _, svc := range c.Services {
		if svc.IsEnabled() && svc.RequireMTLS {
			return true
		}
	}
	return false
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setDuration(dst *Duration, def Duration) {
	if *dst == 0 {
		*dst = def
	}
}
