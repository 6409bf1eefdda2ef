// Package registry holds the immutable mapping from service name to backend
// configuration that the forwarding engine reads on every request.
package registry

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/vyrodovalexey/svcgw/internal/config"
)

// Sentinel errors for registry operations.
var (
	// ErrServiceNotFound is returned by Lookup for unknown or disabled services.
	ErrServiceNotFound = errors.New("service not found")

	// ErrInvalidEntry is returned by New when an entry breaks an invariant.
	ErrInvalidEntry = errors.New("invalid service entry")
)

// Entry is the resolved configuration of one backend service.
type Entry struct {
	Name             string
	BaseURL          *url.URL
	Timeout          time.Duration
	APIKey           string
	RequireMutualTLS bool
	Enabled          bool
}

// ServiceInfo is the public view of an entry exposed by introspection
// endpoints. It never carries credentials.
type ServiceInfo struct {
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

// Registry maps service names to entries. It has no mutation API and is
// safe for concurrent use.
type Registry struct {
	entries map[string]Entry
}

// New validates entries and builds a registry.
func New(entries ...Entry) (*Registry, error) {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if err := validateEntry(e); err != nil {
			return nil, err
		}
		if _, dup := r.entries[e.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate service name %q", ErrInvalidEntry, e.Name)
		}
		u := *e.BaseURL
		e.BaseURL = &u
		r.entries[e.Name] = e
	}
	return r, nil
}

// FromConfig builds a registry from configured services.
func FromConfig(services map[string]config.ServiceConfig) (*Registry, error) {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]Entry, 0, len(services))
	for _, name := range names {
		svc := services[name]
		u, err := url.Parse(svc.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: service %q: invalid url: %v", ErrInvalidEntry, name, err)
		}
		entries = append(entries, Entry{
			Name:             name,
			BaseURL:          u,
			Timeout:          svc.EffectiveTimeout(),
			APIKey:           svc.APIKey,
			RequireMutualTLS: svc.RequireMTLS,
			Enabled:          svc.IsEnabled(),
		})
	}
	return New(entries...)
}

func validateEntry(e Entry) error {
	if e.Name == "" || strings.Contains(e.Name, "/") {
		return fmt.Errorf("%w: name %q must be a single non-empty path segment", ErrInvalidEntry, e.Name)
	}
	if e.Timeout <= 0 {
		return fmt.Errorf("%w: service %q: timeout must be positive", ErrInvalidEntry, e.Name)
	}
	if e.BaseURL == nil || e.BaseURL.Host == "" {
		return fmt.Errorf("%w: service %q: base url must include a host", ErrInvalidEntry, e.Name)
	}
	switch e.BaseURL.Scheme {
	case "http":
		if e.RequireMutualTLS {
			return fmt.Errorf("%w: service %q: mutual TLS requires an https url", ErrInvalidEntry, e.Name)
		}
	case "https":
	default:
		return fmt.Errorf("%w: service %q: unsupported scheme %q", ErrInvalidEntry, e.Name, e.BaseURL.Scheme)
	}
	return nil
}

// Lookup returns the enabled entry registered under name. The returned
// entry's BaseURL must not be modified.
func (r *Registry) Lookup(name string) (Entry, error) {
	e, ok := r.entries[name]
	if !ok || !e.Enabled {
		return Entry{}, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return e, nil
}

// Names returns the enabled service names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name, e := range r.entries {
		if e.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered entries, disabled ones included.
func (r *Registry) Len() int {
	return len(r.entries)
}

// RequiresMutualTLS reports whether any enabled entry requires mutual TLS.
func (r *Registry) RequiresMutualTLS() bool {
	for _, e := range r.entries {
		if e.Enabled && e.RequireMutualTLS {
			return true
		}
	}
	return false
}

// Snapshot returns name to {url, enabled} for every entry, disabled ones
// included. URL passwords are redacted.
func (r *Registry) Snapshot() map[string]ServiceInfo {
	out := make(map[string]ServiceInfo, len(r.entries))
	for name, e := range r.entries {
		out[name] = ServiceInfo{URL: e.BaseURL.Redacted(), Enabled: e.Enabled}
	}
	return out
}
