package matching

import (
	"strings"

	"github.com/getmockd/pocketmock/pkg/mock"
)

// Match returns the first rule in rules that matches method and url,
// or nil when none does.
func Match(method, url string, rules []*mock.Rule) *mock.Rule {
	method = mock.NormalizeMethod(method)
	for _, r := range rules {
		if isCandidate(method, r) && URLMatches(url, r.URLPattern) {
			return r
		}
	}
	return nil
}

// Candidates returns every rule matching method and url, in list order.
// The first element, if any, is the rule Match would return.
func Candidates(method, url string, rules []*mock.Rule) []*mock.Rule {
	method = mock.NormalizeMethod(method)
	var out []*mock.Rule
	for _, r := range rules {
		if isCandidate(method, r) && URLMatches(url, r.URLPattern) {
			out = append(out, r)
		}
	}
	return out
}

// URLMatches reports whether url equals, ends with, or contains pattern.
// An empty pattern never matches.
func URLMatches(url, pattern string) bool {
	if pattern == "" {
		return false
	}
	return url == pattern ||
		strings.HasSuffix(url, pattern) ||
		strings.Contains(url, pattern)
}

func isCandidate(method string, r *mock.Rule) bool {
	return r != nil && r.Enabled && r.NormalizedMethod() == method
}
