package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// ScopeConfig restricts a pipeline run to one domain boundary. It is read-only
// once built and shared by pointer across all workers of a run.
type ScopeConfig struct {
	BaseDomain        string
	IncludeSubdomains bool
}

// NewScope derives a scope from the seed URL's hostname.
func NewScope(seedURL string, includeSubdomains bool) (*ScopeConfig, error) {
	u, err := url.Parse(strings.TrimSpace(seedURL))
	if err != nil {
		return nil, fmt.Errorf("parse seed url: %w", err)
	}
	host := normalizeHost(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("seed url %q has no host", seedURL)
	}
	return &ScopeConfig{BaseDomain: host, IncludeSubdomains: includeSubdomains}, nil
}

// ContainsHost reports whether host is inside the scope. With subdomains
// enabled either side may be a dot-bounded suffix of the other, so
// "www.bar.com" and "bar.com" match in both directions.
func (s *ScopeConfig) ContainsHost(host string) bool {
	if s == nil {
		return false
	}
	host = normalizeHost(host)
	base := normalizeHost(s.BaseDomain)
	if host == "" || base == "" {
		return false
	}
	if host == base {
		return true
	}
	if !s.IncludeSubdomains {
		return false
	}
	if strings.HasSuffix(host, "."+base) {
		return true
	}
	// A bare public suffix such as "com" never widens the scope.
	return strings.Contains(host, ".") && strings.HasSuffix(base, "."+host)
}

// Contains reports whether the absolute URL is inside the scope.
func (s *ScopeConfig) Contains(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return s.ContainsHost(u.Hostname())
}

func normalizeHost(host string) string {
	return strings.TrimSuffix(strings.TrimSpace(strings.ToLower(host)), ".")
}
