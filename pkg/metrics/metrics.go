package metrics

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// ErrLabelCountMismatch is returned when the number of label values doesn't match the defined labels.
var ErrLabelCountMismatch = errors.New("label count mismatch")

// ErrDuplicateMetric is returned when registering a metric with a name that is already registered.
var ErrDuplicateMetric = errors.New("duplicate metric name")

// MetricType represents the type of a metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Metric is the interface implemented by all metric types.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	// Collect returns all samples for exposition, in a stable order.
	Collect() []Sample
}

// Sample is a single exposed value.
type Sample struct {
	Name   string
	Labels []Label
	Value  float64
}

// Label is one name="value" pair of a sample.
type Label struct {
	Name  string
	Value string
}

// series holds the label values of one labelled child, keyed by joined values.
type series[T any] struct {
	mu       sync.Mutex
	names    []string
	children map[string]*T
	order    []string
	labels   map[string][]Label
}

func newSeries[T any](names []string) series[T] {
	return series[T]{
		names:    names,
		children: make(map[string]*T),
		labels:   make(map[string][]Label),
	}
}

// get returns the child for values, creating it with mk when absent.
func (s *series[T]) get(metric string, values []string, mk func() *T) (*T, error) {
	if len(values) != len(s.names) {
		return nil, fmt.Errorf("%w: %s expected %d labels, got %d", ErrLabelCountMismatch, metric, len(s.names), len(values))
	}
	key := strings.Join(values, "\x00")
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.children[key]; ok {
		return c, nil
	}
	c := mk()
	s.children[key] = c
	s.order = append(s.order, key)
	labels := make([]Label, len(values))
	for i, v := range values {
		labels[i] = Label{Name: s.names[i], Value: v}
	}
	s.labels[key] = labels
	return c, nil
}

// each visits children in label-sorted order.
func (s *series[T]) each(fn func(labels []Label, child *T)) {
	s.mu.Lock()
	keys := slices.Clone(s.order)
	s.mu.Unlock()
	slices.Sort(keys)
	for _, k := range keys {
		s.mu.Lock()
		c, labels := s.children[k], s.labels[k]
		s.mu.Unlock()
		fn(labels, c)
	}
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name, help string
	series     series[counterValue]
}

type counterValue struct {
	mu    sync.Mutex
	value float64
}

func (c *Counter) Name() string     { return c.name }
func (c *Counter) Help() string     { return c.help }
func (c *Counter) Type() MetricType { return MetricTypeCounter }

// WithLabels returns the child for the given label values.
func (c *Counter) WithLabels(values ...string) (*CounterChild, error) {
	v, err := c.series.get(c.name, values, func() *counterValue { return &counterValue{} })
	if err != nil {
		return nil, err
	}
	return &CounterChild{v: v}, nil
}

// Collect returns all metric samples.
func (c *Counter) Collect() []Sample {
	var out []Sample
	c.series.each(func(labels []Label, v *counterValue) {
		v.mu.Lock()
		out = append(out, Sample{Name: c.name, Labels: labels, Value: v.value})
		v.mu.Unlock()
	})
	return out
}

// CounterChild is one label combination of a Counter.
type CounterChild struct {
	v *counterValue
}

// Inc increments the counter by 1.
func (c *CounterChild) Inc() { c.Add(1) }

// Add adds delta to the counter. Negative deltas are ignored.
func (c *CounterChild) Add(delta float64) {
	if delta < 0 {
		return
	}
	c.v.mu.Lock()
	c.v.value += delta
	c.v.mu.Unlock()
}

// Histogram tracks the distribution of observed values.
type Histogram struct {
	name, help string
	buckets    []float64
	series     series[histogramValue]
}

type histogramValue struct {
	mu     sync.Mutex
	counts []uint64
	sum    float64
	count  uint64
}

func (h *Histogram) Name() string     { return h.name }
func (h *Histogram) Help() string     { return h.help }
func (h *Histogram) Type() MetricType { return MetricTypeHistogram }

// WithLabels returns the child for the given label values.
func (h *Histogram) WithLabels(values ...string) (*HistogramChild, error) {
	v, err := h.series.get(h.name, values, func() *histogramValue {
		return &histogramValue{counts: make([]uint64, len(h.buckets))}
	})
	if err != nil {
		return nil, err
	}
	return &HistogramChild{h: h, v: v}, nil
}

// Collect returns cumulative bucket samples followed by _sum and _count.
func (h *Histogram) Collect() []Sample {
	var out []Sample
	h.series.each(func(labels []Label, v *histogramValue) {
		v.mu.Lock()
		defer v.mu.Unlock()
		var cumulative uint64
		for i, bound := range h.buckets {
			cumulative += v.counts[i]
			le := Label{Name: "le", Value: formatFloat(bound)}
			out = append(out, Sample{
				Name:   h.name + "_bucket",
				Labels: append(slices.Clone(labels), le),
				Value:  float64(cumulative),
			})
		}
		out = append(out,
			Sample{Name: h.name + "_sum", Labels: labels, Value: v.sum},
			Sample{Name: h.name + "_count", Labels: labels, Value: float64(v.count)},
		)
	})
	return out
}

// HistogramChild is one label combination of a Histogram.
type HistogramChild struct {
	h *Histogram
	v *histogramValue
}

// Observe records a value.
func (c *HistogramChild) Observe(value float64) {
	c.v.mu.Lock()
	defer c.v.mu.Unlock()
	for i, bound := range c.h.buckets {
		if value <= bound {
			c.v.counts[i]++
			break
		}
	}
	c.v.sum += value
	c.v.count++
}

// GaugeFunc is a gauge whose value is read when scraped.
type GaugeFunc struct {
	name, help string
	fn         func() float64
}

func (g *GaugeFunc) Name() string     { return g.name }
func (g *GaugeFunc) Help() string     { return g.help }
func (g *GaugeFunc) Type() MetricType { return MetricTypeGauge }

// Collect returns the current value.
func (g *GaugeFunc) Collect() []Sample {
	return []Sample{{Name: g.name, Value: g.fn()}}
}

// Registry holds all registered metrics.
type Registry struct {
	mu      sync.RWMutex
	metrics []Metric
	names   map[string]struct{}
}

// NewRegistry creates a new metric registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// NewCounter creates and registers a new counter.
func (r *Registry) NewCounter(name, help string, labels ...string) *Counter {
	c := &Counter{name: name, help: help, series: newSeries[counterValue](labels)}
	r.register(c)
	return c
}

// NewHistogram creates and registers a new histogram. A +Inf bucket is
// appended when missing.
func (r *Registry) NewHistogram(name, help string, buckets []float64, labels ...string) *Histogram {
	sorted := slices.Clone(buckets)
	slices.Sort(sorted)
	if len(sorted) == 0 || !math.IsInf(sorted[len(sorted)-1], 1) {
		sorted = append(sorted, math.Inf(1))
	}
	h := &Histogram{name: name, help: help, buckets: sorted, series: newSeries[histogramValue](labels)}
	r.register(h)
	return h
}

// NewGaugeFunc creates and registers a gauge reporting fn().
func (r *Registry) NewGaugeFunc(name, help string, fn func() float64) *GaugeFunc {
	g := &GaugeFunc{name: name, help: help, fn: fn}
	r.register(g)
	return g
}

// register panics on a duplicate name, since duplicates produce invalid output.
func (r *Registry) register(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[m.Name()]; exists {
		panic(fmt.Sprintf("%s: %s", ErrDuplicateMetric, m.Name()))
	}
	r.names[m.Name()] = struct{}{}
	r.metrics = append(r.metrics, m)
}

// WriteTo writes every metric with samples in text exposition format.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	r.mu.RLock()
	metrics := slices.Clone(r.metrics)
	r.mu.RUnlock()

	var sb strings.Builder
	for _, m := range metrics {
		samples := m.Collect()
		if len(samples) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "# HELP %s %s\n", m.Name(), escapeHelp(m.Help()))
		fmt.Fprintf(&sb, "# TYPE %s %s\n", m.Name(), m.Type())
		for _, s := range samples {
			sb.WriteString(s.Name)
			if len(s.Labels) > 0 {
				sb.WriteByte('{')
				for i, l := range s.Labels {
					if i > 0 {
						sb.WriteByte(',')
					}
					fmt.Fprintf(&sb, "%s=\"%s\"", l.Name, escapeLabelValue(l.Value))
				}
				sb.WriteByte('}')
			}
			sb.WriteByte(' ')
			sb.WriteString(formatFloat(s.Value))
			sb.WriteByte('\n')
		}
	}
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// Handler returns an http.Handler serving the registry.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = r.WriteTo(w)
	})
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func escapeHelp(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

func escapeLabelValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return strings.ReplaceAll(s, "\n", `\n`)
}
