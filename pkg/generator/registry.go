package generator

import (
	mathrand "math/rand/v2"
	"slices"
	"sync"
)

// Func produces a mock value from an optional argument string.
// A nil result means the generator produced no value.
type Func func(args string) any

// Registry is an immutable catalog of named generators.
// It is safe for concurrent use.
type Registry struct {
	funcs map[string]Func
	src   *source
}

// Option configures a Registry.
type Option func(*Registry)

// WithRand makes every generator draw from rng, producing reproducible
// output for a fixed seed. Intended for tests.
func WithRand(rng *mathrand.Rand) Option {
	return func(r *Registry) {
		r.src = &source{rng: rng}
	}
}

// New builds a registry populated with the built-in generators.
func New(opts ...Option) *Registry {
	r := &Registry{src: &source{}}
	for _, opt := range opts {
		opt(r)
	}
	r.funcs = builtins(r.src)
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry backed by the global random source.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = New()
	})
	return defaultRegistry
}

// Lookup returns the generator registered under name.
func (r *Registry) Lookup(name string) (Func, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// Has reports whether name is a built-in generator.
func (r *Registry) Has(name string) bool {
	_, ok := r.funcs[name]
	return ok
}

// Invoke runs the named generator. ok is false when no generator has that name.
func (r *Registry) Invoke(name, args string) (value any, ok bool) {
	fn, ok := r.funcs[name]
	if !ok {
		return nil, false
	}
	return fn(args), true
}

// Names returns the generator names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
