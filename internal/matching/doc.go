// Package matching selects the interception rule for an outbound call.
//
// A rule is a candidate when it is enabled and its method equals the call
// method, compared case-insensitively. A candidate matches when the call URL
// equals the rule's URL pattern, ends with it, or contains it. The first
// matching candidate in list order wins, so list order is the priority.
package matching
