package metrics

import (
	"strconv"

	"github.com/getmockd/pocketmock/pkg/requestlog"
)

// DurationBuckets are the call duration buckets in seconds. Configured delays
// dominate mocked durations, so the range reaches well past typical latency.
var DurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// RuleCounter reports the number of active rules. *store.RuleStore implements it.
type RuleCounter interface {
	Len() int
}

// Interception counts intercepted calls. It implements requestlog.Sink.
type Interception struct {
	registry *Registry
	calls    *Counter
	duration *Histogram
	rules    *GaugeFunc
}

var _ requestlog.Sink = (*Interception)(nil)

// NewInterception registers the interception metrics on a fresh registry.
// rules may be nil.
func NewInterception(rules RuleCounter) *Interception {
	r := NewRegistry()
	m := &Interception{
		registry: r,
		calls: r.NewCounter("pocketmock_calls_total",
			"Intercepted calls by method, outcome and response status.",
			"method", "outcome", "status"),
		duration: r.NewHistogram("pocketmock_call_duration_seconds",
			"Time from interception to delivery, including configured delay.",
			DurationBuckets, "outcome"),
	}
	if rules != nil {
		m.rules = r.NewGaugeFunc("pocketmock_rules",
			"Rules in the active rule set.",
			func() float64 { return float64(rules.Len()) })
	}
	return m
}

// Add records one call.
func (m *Interception) Add(rec requestlog.Record) {
	outcome := "passthrough"
	if rec.IsMock {
		outcome = "mock"
	}
	if c, err := m.calls.WithLabels(rec.Method, outcome, strconv.Itoa(rec.Status)); err == nil {
		c.Inc()
	}
	if h, err := m.duration.WithLabels(outcome); err == nil {
		h.Observe(float64(rec.DurationMs) / 1000)
	}
}

// Registry returns the underlying registry.
func (m *Interception) Registry() *Registry {
	return m.registry
}
