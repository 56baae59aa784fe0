// Package interceptor redirects outbound HTTP calls to synthetic responses
// defined by rules, without changing the code that issues the calls.
//
// Two call surfaces are covered:
//
//   - single-shot: Engine.Transport returns an http.RoundTripper, and
//     Engine.Install swaps it into an existing *http.Client
//   - lifecycle: Engine.NewRequest returns a Request driven through
//     Open, SetRequestHeader and Send, reporting progress through
//     readystatechange, load, error and abort events
//
// Every call runs the same pipeline. Calls under the reserved bootstrap
// prefix (and configured bypass globs) go straight to the original
// transport. All others wait for the readiness Gate, are matched against
// the current rule snapshot, and are either answered from the first matching
// rule (after its delay) or passed through unchanged. Each synthesized
// response is reported to the request log sink with IsMock set.
//
// The rule list is read once per call, so a call that straddles a rule
// update is matched against whichever generation it observed.
package interceptor
