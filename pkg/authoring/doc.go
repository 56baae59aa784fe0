// Package authoring implements the rule editing operations behind a mock
// control panel: add, toggle, delete and update rules, with the edited set
// published to the interceptor immediately and persisted after a short
// quiet period.
//
// An Editor starts by loading the persisted rule set. Whatever it ends up
// publishing, persisted rules or the demo rule, it then opens the readiness
// gate so intercepted calls stop waiting. Saves are only issued after that
// first load, so an editor never overwrites a rule file it has not read.
package authoring
