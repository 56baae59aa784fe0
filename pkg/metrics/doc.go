// Package metrics exposes interception counters in the Prometheus text
// exposition format (text/plain; version=0.0.4).
//
// Supported metric types:
//   - Counter: monotonically increasing value, with optional labels
//   - Histogram: distribution of observed values over fixed buckets
//   - GaugeFunc: a value read at scrape time
//
// Interception wires a Registry to the interceptor: it is a request log sink,
// so every logged call is counted without touching the call path.
//
//	m := metrics.NewInterception(rules)
//	engine := interceptor.New(rules, gate, interceptor.WithSink(requestlog.Multi(logs, m)))
//	mux.Handle("/metrics", m.Handler())
package metrics
