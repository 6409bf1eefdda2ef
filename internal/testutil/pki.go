// Package testutil provides helpers shared by package tests.
package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// PKI is a throwaway CA with one server and one client certificate, all
// written to a test temp dir.
type PKI struct {
	Dir string

	CACert     *x509.Certificate
	CACertPEM  []byte
	caKey      *ecdsa.PrivateKey
	ServerCert tls.Certificate
	ClientCert tls.Certificate

	CACertFile     string
	ClientCertFile string
	ClientKeyFile  string
}

// NewPKI generates a CA, a server certificate valid for localhost and
// 127.0.0.1, and a client certificate, and writes the client material and
// CA as PEM files.
func NewPKI(t testing.TB) *PKI {
	t.Helper()

	p := &PKI{Dir: t.TempDir()}

	caKey := newKey(t)
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "svcgw test CA", Organization: []string{"svcgw"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create CA: %v", err)
	}
	p.CACert, err = x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("parse CA: %v", err)
	}
	p.caKey = caKey
	p.CACertPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER})

	p.ServerCert, _, _ = p.issue(t, 2, "localhost", x509.ExtKeyUsageServerAuth)
	var clientCertPEM, clientKeyPEM []byte
	p.ClientCert, clientCertPEM, clientKeyPEM = p.issue(t, 3, "svcgw-client", x509.ExtKeyUsageClientAuth)

	p.CACertFile = p.WriteFile(t, "ca.pem", p.CACertPEM)
	p.ClientCertFile = p.WriteFile(t, "client.pem", clientCertPEM)
	p.ClientKeyFile = p.WriteFile(t, "client-key.pem", clientKeyPEM)

	return p
}

func newKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func (p *PKI) issue(t testing.TB, serial int64, cn string, usage x509.ExtKeyUsage) (tls.Certificate, []byte, []byte) {
	t.Helper()

	key := newKey(t)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: cn, Organization: []string{"svcgw"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{usage},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, p.CACert, &key.PublicKey, p.caKey)
	if err != nil {
		t.Fatalf("issue %s: %v", cn, err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("key pair %s: %v", cn, err)
	}
	return cert, certPEM, keyPEM
}

// WriteFile writes data under the PKI directory and returns its path.
func (p *PKI) WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(p.Dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// CAPool returns a pool holding only the test CA.
func (p *PKI) CAPool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(p.CACert)
	return pool
}

// ServerTLSConfig returns a server configuration that demands a client
// certificate signed by the test CA.
func (p *PKI) ServerTLSConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{p.ServerCert},
		ClientCAs:    p.CAPool(),
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}
}
