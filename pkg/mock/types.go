// Package mock defines the interception rule that maps an HTTP method and URL
// pattern to a synthetic response.
package mock

import (
	"maps"
	"net/http"
	"strings"
)

// Rule is a single interception rule.
//
// The JSON keys match the rule file written by the persistence side-channel,
// so url/response/delay are used on the wire rather than the Go field names.
type Rule struct {
	// ID is unique within an active rule set.
	ID string `json:"id" yaml:"id"`

	// URLPattern is compared against the outbound call URL (exact, suffix or substring).
	URLPattern string `json:"url" yaml:"url"`

	// Method is the uppercase HTTP verb the rule applies to.
	Method string `json:"method" yaml:"method"`

	// Response is the response template. It may embed generator and alias directives.
	Response any `json:"response" yaml:"response"`

	// Enabled reports whether the rule takes part in matching.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// DelayMs is the artificial latency applied before the response is delivered.
	DelayMs int `json:"delay" yaml:"delay"`

	// Status is the HTTP status code of the synthetic response.
	Status int `json:"status" yaml:"status"`

	// Headers are merged over the default Content-Type header.
	Headers map[string]string `json:"headers" yaml:"headers"`

	// Dynamic re-runs template expansion on Response for every served call.
	// When false the stored Response is served as a literal value.
	Dynamic bool `json:"dynamic,omitempty" yaml:"dynamic,omitempty"`
}

// Clone returns a copy of the rule that shares no mutable header state with r.
// Response is shared: templates are treated as immutable once published.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	c := *r
	c.Headers = maps.Clone(r.Headers)
	if c.Headers == nil {
		c.Headers = map[string]string{}
	}
	return &c
}

// NormalizedMethod returns the rule method in canonical uppercase form.
// An empty method is treated as GET.
func (r *Rule) NormalizedMethod() string {
	return NormalizeMethod(r.Method)
}

// NormalizeMethod uppercases an HTTP method, defaulting to GET.
func NormalizeMethod(method string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return http.MethodGet
	}
	return method
}

// DefaultRule returns the demo rule published when no rule set could be loaded.
func DefaultRule() *Rule {
	return &Rule{
		ID:         "demo-1",
		URLPattern: "/api/demo",
		Method:     http.MethodGet,
		Response:   map[string]any{"msg": "Hello from PocketMock default config"},
		Enabled:    true,
		DelayMs:    500,
		Status:     http.StatusOK,
		Headers:    map[string]string{},
	}
}

// CloneAll clones every rule in rules, preserving order.
func CloneAll(rules []*Rule) []*Rule {
	out := make([]*Rule, 0, len(rules))
	for _, r := range rules {
		if r == nil {
			continue
		}
		out = append(out, r.Clone())
	}
	return out
}
