package config

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// serviceNamePattern restricts service names to one unreserved URL path segment.
var serviceNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._~-]*$`)

// Key hash prefixes accepted in security.api_keys.
const (
	KeyPrefixSHA256 = "sha256:"
	KeyPrefixBcrypt = "bcrypt:"
)

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"json": true, "console": true}
	validTLSVersion = map[string]bool{"": true, "TLS12": true, "TLS13": true, "1.2": true, "1.3": true}
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates gateway configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// ValidateConfig validates a gateway configuration.
func ValidateConfig(config *GatewayConfig) error {
	return NewValidator().Validate(config)
}

// Validate validates the configuration and returns ValidationErrors when
// anything is wrong.
func (v *Validator) Validate(config *GatewayConfig) error {
	v.errors = make(ValidationErrors, 0)

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateApp(&config.App)
	v.validateServer(&config.Server)
	v.validateSecurity(&config.Security)
	v.validateMTLS(&config.MTLS)
	v.validateServices(config.Services)
	v.validateObservability(&config.Observability)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateApp(app *AppConfig) {
	if app.APIPrefix == "" {
		v.addError("app.api_prefix", "api prefix is required")
		return
	}
	if !strings.HasPrefix(app.APIPrefix, "/") {
		v.addError("app.api_prefix", "api prefix must start with '/'")
	}
	if strings.Contains(app.APIPrefix, "//") {
		v.addError("app.api_prefix", "api prefix must not contain empty segments")
	}
}

func (v *Validator) validateServer(server *ServerConfig) {
	if server.Port < 1 || server.Port > 65535 {
		v.addError("server.port", "port must be between 1 and 65535")
	}
	if server.ReadTimeout < 0 {
		v.addError("server.read_timeout", "must not be negative")
	}
	if server.WriteTimeout < 0 {
		v.addError("server.write_timeout", "must not be negative")
	}
	if server.MaxBodyBytes < 0 {
		v.addError("server.max_body_bytes", "must not be negative")
	}
}

func (v *Validator) validateSecurity(sec *SecurityConfig) {
	for i, key := range sec.APIKeys {
		v.validateAPIKey(key, fmt.Sprintf("security.api_keys[%d]", i))
	}
	for i, cidr := range sec.AllowedNetworks {
		v.validateCIDR(cidr, fmt.Sprintf("security.allowed_networks[%d]", i))
	}
	for i, cidr := range sec.TrustedProxies {
		v.validateCIDR(cidr, fmt.Sprintf("security.trusted_proxies[%d]", i))
	}
}

func (v *Validator) validateAPIKey(key, path string) {
	switch {
	case key == "":
		v.addError(path, "api key must not be empty")
	case strings.HasPrefix(key, KeyPrefixSHA256):
		digest := strings.TrimPrefix(key, KeyPrefixSHA256)
		if b, err := hex.DecodeString(digest); err != nil || len(b) != 32 {
			v.addError(path, "sha256 key must be 64 hex characters")
		}
	case strings.HasPrefix(key, KeyPrefixBcrypt):
		if !strings.HasPrefix(strings.TrimPrefix(key, KeyPrefixBcrypt), "$2") {
			v.addError(path, "bcrypt key must be a bcrypt hash")
		}
	}
}

func (v *Validator) validateCIDR(cidr, path string) {
	if strings.Contains(cidr, "/") {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			v.addError(path, fmt.Sprintf("invalid CIDR %q", cidr))
		}
		return
	}
	if net.ParseIP(cidr) == nil {
		v.addError(path, fmt.Sprintf("invalid IP or CIDR %q", cidr))
	}
}

func (v *Validator) validateMTLS(m *MTLSConfig) {
	if !validTLSVersion[m.MinVersion] {
		v.addError("mtls.min_version", "must be TLS12 or TLS13")
	}
	if !m.Enabled {
		return
	}
	if m.CertFile == "" {
		v.addError("mtls.cert_file", "required when mtls is enabled")
	}
	if m.KeyFile == "" {
		v.addError("mtls.key_file", "required when mtls is enabled")
	}
	if m.CAFile == "" {
		v.addError("mtls.ca_file", "required when mtls is enabled")
	}
}

func (v *Validator) validateServices(services map[string]ServiceConfig) {
	for name, svc := range services {
		path := "services." + name
		if !serviceNamePattern.MatchString(name) {
			v.addError(path, "service name must be a single URL path segment")
		}
		v.validateServiceURL(&svc, path)
		if svc.Timeout != nil && *svc.Timeout <= 0 {
			v.addError(path+".timeout", "timeout must be positive")
		}
	}
}

func (v *Validator) validateServiceURL(svc *ServiceConfig, path string) {
	if svc.URL == "" {
		v.addError(path+".url", "url is required")
		return
	}
	u, err := url.Parse(svc.URL)
	if err != nil {
		v.addError(path+".url", fmt.Sprintf("invalid url: %v", err))
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		v.addError(path+".url", "url scheme must be http or https")
	}
	if u.Host == "" {
		v.addError(path+".url", "url must include a host")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		v.addError(path+".url", "url must not carry a query or fragment")
	}
	if svc.RequireMTLS && u.Scheme != "https" {
		v.addError(path+".require_mtls", "mutual TLS requires an https url")
	}
}

func (v *Validator) validateObservability(obs *ObservabilityConfig) {
	if !validLogLevels[strings.ToLower(obs.Logging.Level)] {
		v.addError("observability.logging.level", "must be one of debug, info, warn, error")
	}
	if !validLogFormats[obs.Logging.Format] {
		v.addError("observability.logging.format", "must be json or console")
	}
	if obs.Metrics.Enabled {
		if obs.Metrics.Port < 1 || obs.Metrics.Port > 65535 {
			v.addError("observability.metrics.port", "port must be between 1 and 65535")
		}
		if !strings.HasPrefix(obs.Metrics.Path, "/") {
			v.addError("observability.metrics.path", "path must start with '/'")
		}
	}
	if obs.Tracing.SamplingRate < 0 || obs.Tracing.SamplingRate > 1 {
		v.addError("observability.tracing.sampling_rate", "must be between 0 and 1")
	}
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}
