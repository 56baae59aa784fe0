// Package store holds the active interception rule set and defines the
// persistence contracts used to load and save it.
//
// The in-memory RuleStore is the single source of rules for the interceptor.
// Backends that read or write rule sets elsewhere implement Persister:
//   - pkg/store/file: a JSON or YAML rule file on disk
//   - pkg/devserver: the HTTP side-channel served by a dev server
package store

import (
	"context"
	"errors"

	"github.com/getmockd/pocketmock/pkg/mock"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
	ErrReadOnly = errors.New("store is read-only")
	ErrClosed   = errors.New("store is closed")
)

// DefaultRulesFile is the rule file name used when none is configured.
const DefaultRulesFile = "pocket-mock.json"

// RuleSource supplies the rule list consulted for each intercepted call.
type RuleSource interface {
	Snapshot() []*mock.Rule
}

// Persister loads and saves whole rule sets.
type Persister interface {
	// Load returns the persisted rules. A missing rule set yields an empty slice.
	Load(ctx context.Context) ([]*mock.Rule, error)

	// Save replaces the persisted rule set.
	Save(ctx context.Context, rules []*mock.Rule) error
}
