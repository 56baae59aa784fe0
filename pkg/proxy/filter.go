package proxy

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FilterConfig defines include/exclude patterns selecting the traffic routed
// through the interceptor. Patterns are doublestar globs: * stays within one
// path segment, ** crosses segments.
type FilterConfig struct {
	IncludePaths []string // Intercept only if path matches (empty = all)
	ExcludePaths []string // Never intercept if path matches
	IncludeHosts []string // Intercept only these hosts (empty = all)
	ExcludeHosts []string // Never intercept these hosts
}

// NewFilterConfig creates an empty filter config (intercepts everything).
func NewFilterConfig() *FilterConfig {
	return &FilterConfig{}
}

// ShouldIntercept determines if a request is routed through the interceptor.
// Precedence:
// 1. If matches ANY exclude pattern → direct
// 2. If include patterns exist AND matches NONE → direct
// 3. Otherwise → intercepted
func (f *FilterConfig) ShouldIntercept(host, path string) bool {
	if f == nil {
		return true
	}
	host = stripPort(strings.ToLower(host))

	for _, pattern := range f.ExcludeHosts {
		if matchHost(pattern, host) {
			return false
		}
	}

	for _, pattern := range f.ExcludePaths {
		if matchGlob(pattern, path) {
			return false
		}
	}

	if len(f.IncludeHosts) > 0 {
		hostMatched := false
		for _, pattern := range f.IncludeHosts {
			if matchHost(pattern, host) {
				hostMatched = true
				break
			}
		}
		if !hostMatched {
			return false
		}
	}

	if len(f.IncludePaths) > 0 {
		for _, pattern := range f.IncludePaths {
			if matchGlob(pattern, path) {
				return true
			}
		}
		return false
	}

	return true
}

// matchGlob matches a path glob. Invalid patterns never match.
func matchGlob(pattern, s string) bool {
	ok, err := doublestar.Match(pattern, s)
	return err == nil && ok
}

// matchHost matches a host glob case-insensitively. Hosts contain no slashes,
// so * matches any run of characters including dots.
func matchHost(pattern, host string) bool {
	return matchGlob(strings.ToLower(pattern), host)
}

func stripPort(host string) string {
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
		return host[:i]
	}
	return host
}
