package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Networks is a set of CIDR prefixes.
type Networks []netip.Prefix

// ParseNetworks parses CIDRs or bare IP addresses (taken as /32 or /128).
func ParseNetworks(entries []string) (Networks, error) {
	nets := make(Networks, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			nets = append(nets, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid network %q: %w", entry, err)
		}
		nets = append(nets, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return nets, nil
}

// Contains reports whether ip (textual form) lies inside any prefix.
func (n Networks) Contains(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range n {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIPExtractor resolves the originating client address. With no
// trusted proxies only RemoteAddr is used, so X-Forwarded-For cannot be
// spoofed by direct clients.
type ClientIPExtractor struct {
	trusted Networks
}

// NewClientIPExtractor creates an extractor honoring X-Forwarded-For only
// when the direct peer lies inside trustedProxies.
func NewClientIPExtractor(trustedProxies []string) (*ClientIPExtractor, error) {
	nets, err := ParseNetworks(trustedProxies)
	if err != nil {
		return nil, err
	}
	return &ClientIPExtractor{trusted: nets}, nil
}

// Extract returns the client IP. Behind trusted proxies it walks
// X-Forwarded-For right-to-left and returns the first untrusted hop.
func (e *ClientIPExtractor) Extract(r *http.Request) string {
	remoteIP := stripPort(r.RemoteAddr)
	if len(e.trusted) == 0 || !e.trusted.Contains(remoteIP) {
		return remoteIP
	}

	xff := r.Header.Get(HeaderXForwardedFor)
	if xff == "" {
		return remoteIP
	}

	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !e.trusted.Contains(hop) {
			return hop
		}
	}

	return remoteIP
}

// stripPort handles both "192.168.1.1:8080" and "[::1]:8080".
func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
