// Package requestlog captures one record per observed outbound call so users
// can inspect what was intercepted, which rule answered, and how long it took.
// It is distinct from operational logging, which uses log/slog.
//
// # Core Types
//
// Record is a single observed call. Sink is the write-only contract the
// interceptor submits records to; it must never block the caller.
//
// # Implementations
//
//   - MemoryStore: bounded ring buffer with filtering and live subscriptions
//   - SQLiteStore: durable archive backed by modernc.org/sqlite
//   - Async: decouples any Sink from the caller, dropping records when saturated
//   - Multi: fans a record out to several sinks
//
// # Usage
//
//	mem := requestlog.NewMemoryStore(1000)
//	sink := requestlog.NewAsync(requestlog.Multi(mem, archive), 256)
//	defer sink.Close()
//	sink.Add(requestlog.Record{Method: "GET", URL: "/api/demo", Status: 200, IsMock: true})
//
// # Package Design
//
// This is a leaf package with no internal dependencies, allowing it to be
// imported by any package without creating import cycles.
package requestlog
