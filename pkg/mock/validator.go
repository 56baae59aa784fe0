package mock

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidRule is wrapped by every rule validation failure.
var ErrInvalidRule = errors.New("invalid rule")

// ValidationError represents a validation failure with context.
type ValidationError struct {
	RuleID  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("validation error on rule %s field %s: %s", e.RuleID, e.Field, e.Message)
	}
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// Unwrap lets callers test for ErrInvalidRule with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidRule
}

// methodTokenRegex validates HTTP method tokens (RFC 7230).
var methodTokenRegex = regexp.MustCompile(`^[A-Z!#$%&'*+\-.^_\x60|~0-9]+$`)

// headerNameRegex validates HTTP header names (RFC 7230).
var headerNameRegex = regexp.MustCompile(`^[A-Za-z0-9!#$%&'*+\-.^_\x60|~]+$`)

// Validate checks that the rule can be matched and served.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Message: "id is required"}
	}
	if r.URLPattern == "" {
		return &ValidationError{RuleID: r.ID, Field: "url", Message: "url pattern is required"}
	}
	if !methodTokenRegex.MatchString(r.NormalizedMethod()) {
		return &ValidationError{RuleID: r.ID, Field: "method", Message: fmt.Sprintf("invalid method %q", r.Method)}
	}
	if r.DelayMs < 0 {
		return &ValidationError{RuleID: r.ID, Field: "delay", Message: "delay must not be negative"}
	}
	if r.Status < 100 || r.Status > 599 {
		return &ValidationError{RuleID: r.ID, Field: "status", Message: fmt.Sprintf("status %d out of range 100-599", r.Status)}
	}
	for name := range r.Headers {
		if !headerNameRegex.MatchString(name) {
			return &ValidationError{RuleID: r.ID, Field: "headers", Message: fmt.Sprintf("invalid header name %q", name)}
		}
	}
	return nil
}

// ValidateAll validates every rule and enforces id uniqueness across the set.
func ValidateAll(rules []*Rule) error {
	seen := make(map[string]struct{}, len(rules))
	for i, r := range rules {
		if r == nil {
			return &ValidationError{Field: fmt.Sprintf("rules[%d]", i), Message: "rule is null"}
		}
		if err := r.Validate(); err != nil {
			return err
		}
		if _, dup := seen[r.ID]; dup {
			return &ValidationError{RuleID: r.ID, Field: "id", Message: "duplicate id"}
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}
