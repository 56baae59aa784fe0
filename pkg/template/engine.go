package template

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"

	"github.com/getmockd/pocketmock/pkg/generator"
)

// DefaultMaxDepth is the default limit on nested alias resolution.
const DefaultMaxDepth = 32

// ErrDepthExceeded is returned when alias resolution nests deeper than the
// engine's limit, typically because an alias references itself.
var ErrDepthExceeded = errors.New("template: alias nesting depth exceeded")

// DepthError reports the alias whose resolution crossed the depth limit.
type DepthError struct {
	Alias string
	Limit int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("template: resolving @%s exceeds max alias depth %d", e.Alias, e.Limit)
}

func (e *DepthError) Unwrap() error {
	return ErrDepthExceeded
}

// DefaultMaxRepeat is the default limit on the items a single name|count key
// may produce.
const DefaultMaxRepeat = 10000

// ErrRepeatExceeded is returned when a repeat key asks for more items than
// the engine allows.
var ErrRepeatExceeded = errors.New("template: repeat count exceeded")

// RepeatError reports the repeat key whose count crossed the limit.
type RepeatError struct {
	Key   string
	Count int
	Limit int
}

func (e *RepeatError) Error() string {
	return fmt.Sprintf("template: %s|%d exceeds max repeat %d", e.Key, e.Count, e.Limit)
}

func (e *RepeatError) Unwrap() error {
	return ErrRepeatExceeded
}

var (
	// directivePattern matches a whole-string directive: @name or @name(args).
	directivePattern = regexp.MustCompile(`^@([A-Za-z_][A-Za-z0-9_]*)(?:\((.*)\))?$`)

	// repeatKeyPattern matches object keys of the form name|count.
	repeatKeyPattern = regexp.MustCompile(`^(.+)\|(\d+)$`)
)

// Engine expands templates against a generator registry and an alias registry.
// It is safe for concurrent use.
type Engine struct {
	generators *generator.Registry
	aliases    *Aliases
	maxDepth   int
	maxRepeat  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithGenerators sets the generator registry. Defaults to generator.Default().
func WithGenerators(r *generator.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.generators = r
		}
	}
}

// WithAliases sets the alias registry. Defaults to a new empty registry.
func WithAliases(a *Aliases) Option {
	return func(e *Engine) {
		if a != nil {
			e.aliases = a
		}
	}
}

// WithMaxDepth sets the alias nesting limit. Values below 1 keep the default.
func WithMaxDepth(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// WithMaxRepeat sets the item limit for repeat keys. Values below 1 keep
// the default.
func WithMaxRepeat(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRepeat = n
		}
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{maxDepth: DefaultMaxDepth, maxRepeat: DefaultMaxRepeat}
	for _, opt := range opts {
		opt(e)
	}
	if e.generators == nil {
		e.generators = generator.Default()
	}
	if e.aliases == nil {
		e.aliases = NewAliases()
	}
	return e
}

// Aliases returns the engine's alias registry.
func (e *Engine) Aliases() *Aliases {
	return e.aliases
}

// Expand resolves tmpl into concrete data. tmpl is never modified.
// A root directive whose generator yields no value expands to nil.
func (e *Engine) Expand(tmpl any) (any, error) {
	return e.expand(tmpl, 0)
}

// ExpandJSON decodes a JSON template, expands it and re-encodes the result.
// Numbers are carried through without loss of precision.
func (e *Engine) ExpandJSON(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tmpl any
	if err := dec.Decode(&tmpl); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	out, err := e.Expand(tmpl)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode expanded template: %w", err)
	}
	return encoded, nil
}

// expand resolves v. depth counts the alias resolutions on the current path.
func (e *Engine) expand(v any, depth int) (any, error) {
	switch t := v.(type) {
	case string:
		out, _, err := e.resolve(t, depth)
		return out, err
	case []any:
		return e.expandSequence(t, depth)
	case map[string]any:
		return e.expandObject(t, depth)
	default:
		return v, nil
	}
}

// resolve expands a string. defined is false only when a generator produced
// no value, which callers treat as an absent key inside objects.
func (e *Engine) resolve(s string, depth int) (out any, defined bool, err error) {
	m := directivePattern.FindStringSubmatch(s)
	if m == nil {
		return s, true, nil
	}
	name, args := m[1], m[2]

	if e.generators.Has(name) {
		value, _ := e.generators.Invoke(name, args)
		return value, value != nil, nil
	}

	tmpl, ok := e.aliases.Resolve(name)
	if !ok {
		return s, true, nil
	}
	if depth >= e.maxDepth {
		return nil, false, &DepthError{Alias: name, Limit: e.maxDepth}
	}
	out, err = e.expand(tmpl, depth+1)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (e *Engine) expandSequence(seq []any, depth int) ([]any, error) {
	out := make([]any, len(seq))
	for i, item := range seq {
		v, err := e.expand(item, depth)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *Engine) expandObject(obj map[string]any, depth int) (map[string]any, error) {
	out := make(map[string]any, len(obj))

	// Sorted keys keep seeded expansions reproducible.
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	type repeat struct {
		key   string
		count int
		value any
	}
	var repeats []repeat

	for _, k := range keys {
		if m := repeatKeyPattern.FindStringSubmatch(k); m != nil {
			n, err := strconv.Atoi(m[2])
			if err != nil || n > e.maxRepeat {
				// Digits only fail to parse when out of range; Atoi clamps n.
				return nil, &RepeatError{Key: m[1], Count: n, Limit: e.maxRepeat}
			}
			repeats = append(repeats, repeat{key: m[1], count: n, value: obj[k]})
			continue
		}

		if s, ok := obj[k].(string); ok {
			v, defined, err := e.resolve(s, depth)
			if err != nil {
				return nil, err
			}
			if defined {
				out[k] = v
			}
			continue
		}

		v, err := e.expand(obj[k], depth)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}

	for _, r := range repeats {
		items, err := e.expandRepeat(r.key, r.value, r.count, depth)
		if err != nil {
			return nil, err
		}
		out[r.key] = items
	}
	return out, nil
}

// expandRepeat runs count passes over value. A sequence value is expanded
// whole on every pass and the passes are concatenated. The concatenation is
// bounded by the same limit as the count.
func (e *Engine) expandRepeat(key string, value any, count, depth int) ([]any, error) {
	if seq, ok := value.([]any); ok {
		if len(seq) > 0 && count > e.maxRepeat/len(seq) {
			return nil, &RepeatError{Key: key, Count: count, Limit: e.maxRepeat}
		}
		out := make([]any, 0, count*len(seq))
		for range count {
			pass, err := e.expandSequence(seq, depth)
			if err != nil {
				return nil, err
			}
			out = append(out, pass...)
		}
		return out, nil
	}

	out := make([]any, 0, count)
	for range count {
		v, err := e.expand(value, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
