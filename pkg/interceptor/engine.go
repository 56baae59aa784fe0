package interceptor

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/getmockd/pocketmock/internal/id"
	"github.com/getmockd/pocketmock/internal/matching"
	"github.com/getmockd/pocketmock/pkg/logging"
	"github.com/getmockd/pocketmock/pkg/mock"
	"github.com/getmockd/pocketmock/pkg/requestlog"
	"github.com/getmockd/pocketmock/pkg/store"
)

// DefaultBootstrapPrefix is the reserved path prefix of the persistence
// side-channel. Calls under it are never gated or matched.
const DefaultBootstrapPrefix = "/__pocket_mock"

// Expander expands a response template. *template.Engine implements it.
type Expander interface {
	Expand(tmpl any) (any, error)
}

// Engine decides, per outbound call, whether to serve a synthetic response
// or pass the call through to the original transport.
// An Engine is immutable after New and safe for concurrent use.
type Engine struct {
	rules          store.RuleSource
	gate           *Gate
	original       http.RoundTripper
	sink           requestlog.Sink
	expander       Expander
	log            *slog.Logger
	prefix         string
	bypass         []string
	logPassthrough bool
	now            func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithTransport sets the original transport used for pass-through calls.
// Defaults to http.DefaultTransport.
func WithTransport(rt http.RoundTripper) Option {
	return func(e *Engine) {
		if rt != nil {
			e.original = rt
		}
	}
}

// WithSink sets the request log sink.
func WithSink(s requestlog.Sink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithExpander enables per-call expansion for rules marked Dynamic.
func WithExpander(x Expander) Option {
	return func(e *Engine) { e.expander = x }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithBootstrapPrefix overrides the reserved bootstrap prefix.
func WithBootstrapPrefix(prefix string) Option {
	return func(e *Engine) {
		if prefix = strings.TrimRight(prefix, "/"); prefix != "" {
			e.prefix = prefix
		}
	}
}

// WithBypass adds doublestar globs; calls whose path (or host plus path)
// matches one skip the gate and matching, like bootstrap calls.
// Invalid patterns are ignored.
func WithBypass(globs ...string) Option {
	return func(e *Engine) {
		for _, g := range globs {
			if g != "" && doublestar.ValidatePattern(g) {
				e.bypass = append(e.bypass, g)
			}
		}
	}
}

// WithPassthroughLogging also records pass-through calls (IsMock false).
func WithPassthroughLogging() Option {
	return func(e *Engine) { e.logPassthrough = true }
}

// New creates an Engine reading rules from rules and gated by gate.
// A nil gate is treated as already open.
func New(rules store.RuleSource, gate *Gate, opts ...Option) *Engine {
	if gate == nil {
		gate = OpenGate()
	}
	e := &Engine{
		rules:    rules,
		gate:     gate,
		original: http.DefaultTransport,
		sink:     requestlog.Nop(),
		log:      logging.Nop(),
		prefix:   DefaultBootstrapPrefix,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BootstrapPrefix returns the reserved prefix.
func (e *Engine) BootstrapPrefix() string {
	return e.prefix
}

// Transport returns the single-shot surface: a RoundTripper that passes
// unmatched calls to the engine's original transport.
func (e *Engine) Transport() http.RoundTripper {
	return &Transport{engine: e, original: e.original}
}

// Install replaces c's transport with an intercepting one. The client's
// previous transport (or http.DefaultTransport) is used for pass-through.
// restore puts the previous transport back.
func (e *Engine) Install(c *http.Client) (restore func()) {
	prev := c.Transport
	if t, ok := prev.(*Transport); ok && t.engine == e {
		return func() {}
	}
	original := prev
	if original == nil {
		original = e.original
	}
	c.Transport = &Transport{engine: e, original: original}
	return func() { c.Transport = prev }
}

// InstallDefault installs the engine into http.DefaultClient.
func (e *Engine) InstallDefault() (restore func()) {
	return e.Install(http.DefaultClient)
}

// NewRequest returns a lifecycle request bound to this engine.
func (e *Engine) NewRequest() *Request {
	return newRequest(e, e.original)
}

// bypassed reports whether a call skips gating and matching.
func (e *Engine) bypassed(u *url.URL, raw string) bool {
	if u != nil {
		if u.Path == e.prefix || strings.HasPrefix(u.Path, e.prefix+"/") {
			return true
		}
		for _, g := range e.bypass {
			if ok, _ := doublestar.Match(g, u.Path); ok {
				return true
			}
			if ok, _ := doublestar.Match(g, u.Host+u.Path); ok {
				return true
			}
		}
	}
	return strings.Contains(raw, e.prefix+"/")
}

// decision is the outcome of gating and matching one call.
type decision struct {
	bypass bool
	rule   *mock.Rule
	start  time.Time
}

// decide runs the bypass check, gate wait and rule match for one call.
func (e *Engine) decide(ctx context.Context, method string, u *url.URL, raw string) (decision, error) {
	if e.bypassed(u, raw) {
		return decision{bypass: true, start: e.now()}, nil
	}
	if err := e.gate.Wait(ctx); err != nil {
		return decision{}, err
	}
	start := e.now()
	var rules []*mock.Rule
	if e.rules != nil {
		rules = e.rules.Snapshot()
	}
	return decision{rule: matching.Match(method, raw, rules), start: start}, nil
}

// record submits a request log record for a completed call.
func (e *Engine) record(method, raw string, status int, start time.Time, rule *mock.Rule) {
	end := e.now()
	rec := requestlog.Record{
		ID:          id.Record(),
		Method:      mock.NormalizeMethod(method),
		URL:         raw,
		Status:      status,
		TimestampMs: end.UnixMilli(),
		DurationMs:  end.Sub(start).Round(time.Millisecond).Milliseconds(),
		IsMock:      rule != nil,
	}
	if rule != nil {
		rec.RuleID = rule.ID
	}
	e.sink.Add(rec)
}
