// Package devserver serves the persistence side-channel that a development
// server exposes next to the application, and provides a client for it.
//
// Routes live under a reserved prefix (default /__pocket_mock) that the
// interceptor never gates or matches:
//
//	GET    <prefix>/rules        current rule file as a JSON array ([] when absent)
//	POST   <prefix>/save         validate and persist a rule set
//	GET    <prefix>/logs         request log records, newest first
//	GET    <prefix>/logs/{id}    one request log record
//	DELETE <prefix>/logs         clear the request log
//	GET    <prefix>/logs/stream  live request log over a websocket
//	GET    <prefix>/health       liveness probe
//
// Client talks to these routes and implements store.Persister, so an editor
// can load and save rules through any running dev server.
package devserver
