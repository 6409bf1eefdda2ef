// Package mtls loads the client credentials the gateway presents to
// backends that require mutual TLS.
package mtls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/vyrodovalexey/svcgw/internal/config"
	"github.com/vyrodovalexey/svcgw/internal/observability"
)

// ErrUnavailable is returned by TryLoad whenever no usable client
// credentials could be produced. Callers treat it as "mutual TLS is off",
// not as a fatal condition.
var ErrUnavailable = errors.New("mutual TLS unavailable")

// secureCipherSuites are the TLS 1.2 suites offered to backends. TLS 1.3
// suites are not configurable.
var secureCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
}

// Paths locates the PEM files on disk.
type Paths struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// Material is loaded, validated client TLS material. It is read-only after
// TryLoad returns.
type Material struct {
	paths    Paths
	config   *tls.Config
	notAfter time.Time
	subject  string
}

// TryLoad builds client TLS material from cfg. It never panics or exits:
// a disabled configuration, a missing file or unparseable PEM all return
// an error wrapping ErrUnavailable after logging the reason.
func TryLoad(cfg config.MTLSConfig, logger observability.Logger) (*Material, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	if !cfg.Enabled {
		logger.Info("mutual TLS disabled")
		return nil, fmt.Errorf("%w: disabled in configuration", ErrUnavailable)
	}

	paths := Paths{CertFile: cfg.CertFile, KeyFile: cfg.KeyFile, CAFile: cfg.CAFile}
	if err := checkFilesExist(paths); err != nil {
		logger.Warn("mutual TLS material missing",
			observability.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	material, err := load(paths, cfg.MinVersion)
	if err != nil {
		logger.Error("mutual TLS material unusable",
			observability.String("cert_file", paths.CertFile),
			observability.String("ca_file", paths.CAFile),
			observability.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	logger.Info("mutual TLS material loaded",
		observability.String("cert_file", paths.CertFile),
		observability.String("subject", material.subject),
		observability.Time("not_after", material.notAfter),
	)

	return material, nil
}

func checkFilesExist(paths Paths) error {
	for _, f := range []struct{ kind, path string }{
		{"certificate", paths.CertFile},
		{"key", paths.KeyFile},
		{"CA", paths.CAFile},
	} {
		if f.path == "" {
			return fmt.Errorf("%s file not configured", f.kind)
		}
		if _, err := os.Stat(f.path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%s file %s does not exist", f.kind, f.path)
			}
			return fmt.Errorf("%s file %s: %w", f.kind, f.path, err)
		}
	}
	return nil
}

func load(paths Paths, minVersion string) (*Material, error) {
	version, err := ParseTLSVersion(minVersion)
	if err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(paths.CertFile, paths.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse client certificate: %w", err)
	}
	cert.Leaf = leaf

	caPEM, err := os.ReadFile(paths.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file %s: %w", paths.CAFile, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("failed to parse CA certificate from %s", paths.CAFile)
	}

	return &Material{
		paths: paths,
		config: &tls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      pool,
			MinVersion:   version,
			CipherSuites: secureCipherSuites,
		},
		notAfter: leaf.NotAfter,
		subject:  leaf.Subject.String(),
	}, nil
}

// TLSConfig returns a copy of the client TLS configuration. Server
// certificate and hostname verification are always on.
func (m *Material) TLSConfig() *tls.Config {
	return m.config.Clone()
}

// NotAfter is the expiry of the client certificate.
func (m *Material) NotAfter() time.Time {
	return m.notAfter
}

// Subject is the distinguished name of the client certificate.
func (m *Material) Subject() string {
	return m.subject
}

// Paths returns the files the material was loaded from.
func (m *Material) Paths() Paths {
	return m.paths
}

// ParseTLSVersion maps a configured version name to a crypto/tls constant.
// Empty defaults to TLS 1.2; versions below 1.2 are rejected.
func ParseTLSVersion(version string) (uint16, error) {
	switch version {
	case "", "TLS12", "1.2":
		return tls.VersionTLS12, nil
	case "TLS13", "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version: %s", version)
	}
}
