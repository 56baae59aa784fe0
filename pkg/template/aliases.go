package template

import (
	"slices"
	"strings"
	"sync"
)

// aliasMarker is the optional prefix on alias names supplied to Register.
const aliasMarker = "@"

// Aliases is the custom rule registry: alias name to template value.
// It is safe for concurrent use.
type Aliases struct {
	mu    sync.RWMutex
	rules map[string]any
}

// NewAliases creates an empty alias registry.
func NewAliases() *Aliases {
	return &Aliases{rules: make(map[string]any)}
}

// normalizeAlias strips the leading marker and surrounding whitespace.
func normalizeAlias(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), aliasMarker)
}

// Register merges batch into the registry. Keys may be given with or without
// the leading @. Existing entries not named in batch are kept; named entries
// are overwritten. Values are deep-copied.
func (a *Aliases) Register(batch map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, tmpl := range batch {
		key := normalizeAlias(name)
		if key == "" {
			continue
		}
		a.rules[key] = cloneValue(tmpl)
	}
}

// Clear removes every alias.
func (a *Aliases) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.rules)
}

// Resolve returns the template registered under name.
// The returned value must be treated as read-only.
func (a *Aliases) Resolve(name string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	tmpl, ok := a.rules[normalizeAlias(name)]
	return tmpl, ok
}

// Names returns the registered alias names in sorted order.
func (a *Aliases) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.rules))
	for name := range a.rules {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered aliases.
func (a *Aliases) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.rules)
}

// cloneValue deep-copies JSON-like values. Other types are returned as is.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
