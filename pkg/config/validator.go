package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/getmockd/pocketmock/pkg/proxy"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Unwrap lets callers test for ErrInvalidConfig with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// Validate checks the configuration for values that cannot be served.
func (c *Config) Validate() error {
	if err := validateAddr(c.Listen, "listen", false); err != nil {
		return err
	}
	if err := validateAddr(c.ProxyListen, "proxyListen", true); err != nil {
		return err
	}
	if _, err := proxy.ParseMode(c.ProxyMode); err != nil {
		return &ValidationError{Field: "proxyMode", Message: err.Error()}
	}
	if c.RulesFile == "" {
		return &ValidationError{Field: "rulesFile", Message: "is required"}
	}
	if !strings.HasPrefix(c.BootstrapPrefix, "/") || strings.TrimRight(c.BootstrapPrefix, "/") == "" {
		return &ValidationError{Field: "bootstrapPrefix", Message: fmt.Sprintf("must be a non-root path starting with /, got %q", c.BootstrapPrefix)}
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Field: "log.level", Message: fmt.Sprintf("unknown level %q", c.Log.Level)}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return &ValidationError{Field: "log.format", Message: fmt.Sprintf("unknown format %q", c.Log.Format)}
	}
	if c.RequestLog.MaxEntries < 1 {
		return &ValidationError{Field: "requestLog.maxEntries", Message: "must be at least 1"}
	}
	if c.Template.MaxDepth < 1 {
		return &ValidationError{Field: "template.maxDepth", Message: "must be at least 1"}
	}
	if c.Template.MaxRepeat < 1 {
		return &ValidationError{Field: "template.maxRepeat", Message: "must be at least 1"}
	}
	for i, g := range c.Bypass {
		if g == "" || !doublestar.ValidatePattern(g) {
			return &ValidationError{Field: fmt.Sprintf("bypass[%d]", i), Message: fmt.Sprintf("invalid glob %q", g)}
		}
	}
	return nil
}

func validateAddr(addr, field string, optional bool) error {
	if addr == "" {
		if optional {
			return nil
		}
		return &ValidationError{Field: field, Message: "is required"}
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return &ValidationError{Field: field, Message: err.Error()}
	}
	return nil
}
