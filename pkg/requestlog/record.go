package requestlog

import "time"

// Record describes one observed outbound call.
// The JSON keys match the records shown by the browser log viewer.
type Record struct {
	// ID is a unique identifier for the record. Stores assign one when empty.
	ID string `json:"id"`

	// Method is the uppercase HTTP method of the call.
	Method string `json:"method"`

	// URL is the call target as issued by the application.
	URL string `json:"url"`

	// Status is the response status delivered to the application.
	Status int `json:"status"`

	// TimestampMs is the Unix time in milliseconds when the response was delivered.
	TimestampMs int64 `json:"timestamp"`

	// DurationMs is the elapsed time from interception to delivery, including delay.
	DurationMs int64 `json:"duration"`

	// IsMock reports whether the response was synthesized from a rule.
	IsMock bool `json:"isMock"`

	// RuleID is the id of the rule that answered, empty for pass-through calls.
	RuleID string `json:"ruleId,omitempty"`
}

// Time returns the record timestamp as a time.Time.
func (r Record) Time() time.Time {
	return time.UnixMilli(r.TimestampMs)
}
