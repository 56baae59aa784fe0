package requestlog

import "strings"

// Store defines the interface for queryable request history.
// Store embeds Sink, so any Store can be handed to the interceptor.
type Store interface {
	Sink

	// Get retrieves a record by ID.
	Get(id string) (Record, bool)

	// List returns records newest first, optionally filtered.
	List(filter *Filter) []Record

	// Clear removes all records.
	Clear()

	// Count returns the number of records.
	Count() int
}

// Filter defines criteria for filtering request records.
type Filter struct {
	// Method filters by HTTP method.
	Method string

	// URL filters by substring of the call URL.
	URL string

	// RuleID filters by the answering rule.
	RuleID string

	// Status filters by response status code.
	Status int

	// IsMock filters mocked (true) or pass-through (false) calls.
	IsMock *bool

	// Limit is the maximum number of records to return.
	Limit int

	// Offset is the number of records to skip.
	Offset int
}

// Matches reports whether rec satisfies every set criterion of f.
func (f *Filter) Matches(rec Record) bool {
	if f == nil {
		return true
	}
	if f.Method != "" && !strings.EqualFold(rec.Method, f.Method) {
		return false
	}
	if f.URL != "" && !strings.Contains(rec.URL, f.URL) {
		return false
	}
	if f.RuleID != "" && rec.RuleID != f.RuleID {
		return false
	}
	if f.Status != 0 && rec.Status != f.Status {
		return false
	}
	if f.IsMock != nil && rec.IsMock != *f.IsMock {
		return false
	}
	return true
}

// page applies Offset and Limit to an already filtered slice.
func (f *Filter) page(recs []Record) []Record {
	if f == nil {
		return recs
	}
	if f.Offset > 0 {
		if f.Offset >= len(recs) {
			return []Record{}
		}
		recs = recs[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(recs) {
		recs = recs[:f.Limit]
	}
	return recs
}

// Subscriber is a channel that receives new records.
// Used for real-time updates in streaming APIs.
type Subscriber chan Record
