package interceptor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/getmockd/pocketmock/pkg/mock"
)

// synthetic is a response built from a rule, independent of the call surface.
type synthetic struct {
	status int
	header http.Header
	body   []byte
}

// synthesize waits out the rule delay, then builds the response.
// The delay ends early with ctx's error when ctx is done first.
func (e *Engine) synthesize(ctx context.Context, rule *mock.Rule) (*synthetic, error) {
	if rule.DelayMs > 0 {
		e.log.Debug("delaying mock response", "rule", rule.ID, "delay_ms", rule.DelayMs)
		timer := time.NewTimer(time.Duration(rule.DelayMs) * time.Millisecond)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	body, err := e.responseBody(rule)
	if err != nil {
		return nil, err
	}
	status := rule.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &synthetic{
		status: status,
		header: mergedHeader(rule.Headers),
		body:   body,
	}, nil
}

// responseBody serializes the rule response. Dynamic rules are expanded
// first; if expansion fails the literal template is served.
func (e *Engine) responseBody(rule *mock.Rule) ([]byte, error) {
	value := rule.Response
	if rule.Dynamic && e.expander != nil {
		expanded, err := e.expander.Expand(rule.Response)
		if err != nil {
			e.log.Warn("template expansion failed, serving literal response", "rule", rule.ID, "error", err)
		} else {
			value = expanded
		}
	}
	body, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding response for rule %s: %w", rule.ID, err)
	}
	return body, nil
}

// mergedHeader is Content-Type: application/json overlaid with the rule headers.
// Names are canonicalized, so rule headers win regardless of case.
func mergedHeader(ruleHeaders map[string]string) http.Header {
	h := make(http.Header, len(ruleHeaders)+1)
	h.Set("Content-Type", "application/json")
	for name, value := range ruleHeaders {
		h.Set(name, value)
	}
	return h
}

// httpResponse renders s for the single-shot surface.
func (s *synthetic) httpResponse(req *http.Request) *http.Response {
	text := http.StatusText(s.status)
	status := strconv.Itoa(s.status)
	if text != "" {
		status += " " + text
	}
	return &http.Response{
		Status:        status,
		StatusCode:    s.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        s.header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(s.body)),
		ContentLength: int64(len(s.body)),
		Request:       req,
	}
}

// lifecycleStatusText is the status text reported by the lifecycle surface
// for synthetic responses.
func lifecycleStatusText(status int) string {
	if status == http.StatusOK {
		return "OK"
	}
	return "Error"
}

// formatHeaders renders h in the lifecycle header-block format: lowercase
// names, sorted, one "name: value" line per header terminated by CRLF.
// Multiple values are joined with ", ".
func formatHeaders(h http.Header) string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(strings.ToLower(name))
		sb.WriteString(": ")
		sb.WriteString(strings.Join(h[name], ", "))
		sb.WriteString("\r\n")
	}
	return sb.String()
}
