package authoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getmockd/pocketmock/internal/id"
	"github.com/getmockd/pocketmock/pkg/interceptor"
	"github.com/getmockd/pocketmock/pkg/logging"
	"github.com/getmockd/pocketmock/pkg/mock"
	"github.com/getmockd/pocketmock/pkg/store"
)

const (
	// DefaultSaveDebounce is the quiet period before edits are persisted.
	DefaultSaveDebounce = 500 * time.Millisecond

	// DefaultSaveTimeout bounds a single persist call.
	DefaultSaveTimeout = 10 * time.Second
)

// Editor edits the active rule set.
type Editor struct {
	rules     *store.RuleStore
	gate      *interceptor.Gate
	persister store.Persister
	log       *slog.Logger
	debounce  time.Duration
	timeout   time.Duration
	fallback  []*mock.Rule

	mu          sync.Mutex // serializes edits and load
	initialized atomic.Bool

	flushMu sync.Mutex // held for the duration of a save
	saveMu  sync.Mutex
	timer   *time.Timer
	pending bool
	closed  bool
}

// Option configures an Editor.
type Option func(*Editor)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Editor) {
		if log != nil {
			e.log = log
		}
	}
}

// WithSaveDebounce sets the quiet period before edits are persisted.
func WithSaveDebounce(d time.Duration) Option {
	return func(e *Editor) {
		if d >= 0 {
			e.debounce = d
		}
	}
}

// WithSaveTimeout bounds each persist call.
func WithSaveTimeout(d time.Duration) Option {
	return func(e *Editor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithFallback sets the rules published when the persisted set is empty or
// unreadable. Defaults to the demo rule. Call with no rules to publish an
// empty set instead.
func WithFallback(rules ...*mock.Rule) Option {
	return func(e *Editor) {
		e.fallback = mock.CloneAll(rules)
	}
}

// NewEditor creates an Editor publishing to rules and opening gate after the
// first Load. persister may be nil, in which case edits are never saved and
// Load publishes the fallback rules.
func NewEditor(rules *store.RuleStore, gate *interceptor.Gate, persister store.Persister, opts ...Option) *Editor {
	e := &Editor{
		rules:     rules,
		gate:      gate,
		persister: persister,
		log:       logging.Nop(),
		debounce:  DefaultSaveDebounce,
		timeout:   DefaultSaveTimeout,
		fallback:  []*mock.Rule{mock.DefaultRule()},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load publishes the persisted rule set, or the fallback rules when the set
// is empty or cannot be read, and then opens the gate. The returned error
// explains a fallback; the gate is open either way.
func (e *Editor) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var loadErr error
	var rules []*mock.Rule
	if e.persister != nil {
		rules, loadErr = e.persister.Load(ctx)
		if loadErr != nil {
			e.log.Warn("failed to load rules, using fallback", "error", loadErr)
		}
	}

	if loadErr == nil && len(rules) > 0 {
		e.rules.Replace(rules)
		e.log.Info("loaded rules", "count", len(rules))
	} else {
		e.rules.Replace(e.fallback)
		if loadErr == nil {
			e.log.Info("no saved rules, using fallback", "count", len(e.fallback))
		}
	}

	if e.gate != nil {
		e.gate.Open()
	}
	e.initialized.Store(true)
	return loadErr
}

// Initialized reports whether Load has completed.
func (e *Editor) Initialized() bool {
	return e.initialized.Load()
}

// Rules returns the active rule set.
func (e *Editor) Rules() []*mock.Rule {
	return e.rules.Snapshot()
}

// Add prepends a new enabled rule for method and url answering 200 with a
// greeting body, and returns a copy of it.
func (e *Editor) Add(url, method string) (*mock.Rule, error) {
	rule := &mock.Rule{
		ID:         id.Rule(),
		URLPattern: url,
		Method:     mock.NormalizeMethod(method),
		Response:   map[string]any{"message": "Hello PocketMock"},
		Enabled:    true,
		Status:     http.StatusOK,
		Headers:    map[string]string{},
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	current := e.rules.Snapshot()
	next := make([]*mock.Rule, 0, len(current)+1)
	next = append(next, rule)
	next = append(next, current...)
	e.rules.Replace(next)
	e.mu.Unlock()

	e.scheduleSave()
	return rule.Clone(), nil
}

// Toggle flips the enabled flag of the rule with the given id.
func (e *Editor) Toggle(ruleID string) error {
	return e.update(ruleID, func(r *mock.Rule) error {
		r.Enabled = !r.Enabled
		return nil
	})
}

// SetEnabled sets the enabled flag of the rule with the given id.
func (e *Editor) SetEnabled(ruleID string, enabled bool) error {
	return e.update(ruleID, func(r *mock.Rule) error {
		r.Enabled = enabled
		return nil
	})
}

// SetDynamic sets whether the rule re-expands its response per call.
func (e *Editor) SetDynamic(ruleID string, dynamic bool) error {
	return e.update(ruleID, func(r *mock.Rule) error {
		r.Dynamic = dynamic
		return nil
	})
}

// Delete removes the rule with the given id.
func (e *Editor) Delete(ruleID string) error {
	e.mu.Lock()
	current := e.rules.Snapshot()
	next := make([]*mock.Rule, 0, len(current))
	for _, r := range current {
		if r.ID != ruleID {
			next = append(next, r)
		}
	}
	if len(next) == len(current) {
		e.mu.Unlock()
		return fmt.Errorf("rule %s: %w", ruleID, store.ErrNotFound)
	}
	e.rules.Replace(next)
	e.mu.Unlock()

	e.scheduleSave()
	return nil
}

// UpdateResponse replaces the response template with the parsed JSON text.
// It returns false, leaving the rule unchanged, when text is not valid JSON
// or no rule has the id.
func (e *Editor) UpdateResponse(ruleID, text string) bool {
	var response any
	if err := json.Unmarshal([]byte(text), &response); err != nil {
		e.log.Warn("invalid response JSON", "rule", ruleID, "error", err)
		return false
	}
	if err := e.update(ruleID, func(r *mock.Rule) error {
		r.Response = response
		return nil
	}); err != nil {
		e.log.Warn("response not updated", "rule", ruleID, "error", err)
		return false
	}
	return true
}

// UpdateHeaders replaces the response headers with the parsed JSON object of
// strings. It returns false, leaving the rule unchanged, when text is not
// such an object, names an invalid header, or no rule has the id.
func (e *Editor) UpdateHeaders(ruleID, text string) bool {
	var headers map[string]string
	if err := json.Unmarshal([]byte(text), &headers); err != nil {
		e.log.Warn("invalid headers JSON", "rule", ruleID, "error", err)
		return false
	}
	if headers == nil {
		headers = map[string]string{}
	}
	if err := e.update(ruleID, func(r *mock.Rule) error {
		r.Headers = headers
		return nil
	}); err != nil {
		e.log.Warn("headers not updated", "rule", ruleID, "error", err)
		return false
	}
	return true
}

// UpdateDelay sets the artificial latency in milliseconds.
func (e *Editor) UpdateDelay(ruleID string, delayMs int) error {
	return e.update(ruleID, func(r *mock.Rule) error {
		r.DelayMs = delayMs
		return nil
	})
}

// UpdateStatus sets the response status code.
func (e *Editor) UpdateStatus(ruleID string, status int) error {
	return e.update(ruleID, func(r *mock.Rule) error {
		r.Status = status
		return nil
	})
}

// UpdateURL sets the URL pattern.
func (e *Editor) UpdateURL(ruleID, url string) error {
	return e.update(ruleID, func(r *mock.Rule) error {
		r.URLPattern = url
		return nil
	})
}

// UpdateMethod sets the HTTP method.
func (e *Editor) UpdateMethod(ruleID, method string) error {
	return e.update(ruleID, func(r *mock.Rule) error {
		r.Method = mock.NormalizeMethod(method)
		return nil
	})
}

// update applies fn to a copy of the rule, validates it and publishes a new
// rule set with the copy in place.
func (e *Editor) update(ruleID string, fn func(*mock.Rule) error) error {
	e.mu.Lock()
	current := e.rules.Snapshot()
	idx := -1
	for i, r := range current {
		if r.ID == ruleID {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return fmt.Errorf("rule %s: %w", ruleID, store.ErrNotFound)
	}

	edited := current[idx].Clone()
	if err := fn(edited); err != nil {
		e.mu.Unlock()
		return err
	}
	if err := edited.Validate(); err != nil {
		e.mu.Unlock()
		return err
	}

	next := make([]*mock.Rule, len(current))
	copy(next, current)
	next[idx] = edited
	e.rules.Replace(next)
	e.mu.Unlock()

	e.scheduleSave()
	return nil
}
