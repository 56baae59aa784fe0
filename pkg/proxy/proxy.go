// Package proxy provides a forward HTTP proxy whose upstream transport is an
// interceptor, so applications that honor HTTP_PROXY get mocked responses
// without any code change.
//
// Plain HTTP requests are routed through the interceptor and therefore
// matched against the active rules and logged like any intercepted call.
// CONNECT requests are tunneled to their target unchanged.
package proxy

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getmockd/pocketmock/pkg/logging"
)

// Mode selects whether filtered traffic reaches the interceptor.
type Mode string

const (
	// ModeIntercept routes filtered traffic through the interceptor.
	ModeIntercept Mode = "intercept"
	// ModePassthrough forwards all traffic directly.
	ModePassthrough Mode = "passthrough"
)

// ParseMode returns the Mode named by s. The empty string is ModeIntercept.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeIntercept:
		return ModeIntercept, nil
	case ModePassthrough:
		return ModePassthrough, nil
	}
	return "", fmt.Errorf("unknown proxy mode %q", s)
}

// Options configures proxy behavior.
type Options struct {
	// Mode defaults to ModeIntercept.
	Mode Mode
	// Filter selects the traffic routed through the interceptor.
	Filter *FilterConfig
	// Intercept is the intercepting transport, typically Engine.Transport().
	Intercept http.RoundTripper
	// Direct forwards traffic that is not intercepted. Defaults to http.DefaultTransport.
	Direct http.RoundTripper
	Logger *slog.Logger
}

// Proxy is a forward HTTP proxy server.
type Proxy struct {
	mode      Mode
	filter    *FilterConfig
	intercept http.RoundTripper
	direct    http.RoundTripper
	log       *slog.Logger
}

// New creates a new Proxy with the given options.
func New(opts Options) *Proxy {
	p := &Proxy{
		mode:      opts.Mode,
		filter:    opts.Filter,
		intercept: opts.Intercept,
		direct:    opts.Direct,
		log:       opts.Logger,
	}
	if p.mode == "" {
		p.mode = ModeIntercept
	}
	if p.filter == nil {
		p.filter = NewFilterConfig()
	}
	if p.direct == nil {
		p.direct = http.DefaultTransport
	}
	if p.intercept == nil {
		p.intercept = p.direct
	}
	if p.log == nil {
		p.log = logging.Nop()
	}
	return p
}

// Mode returns the operating mode.
func (p *Proxy) Mode() Mode {
	return p.mode
}

// ServeHTTP implements http.Handler for the proxy.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		p.tunnelConnect(w, r)
	} else {
		p.handleHTTP(w, r)
	}
}

// transportFor picks the upstream transport for a request to host and path.
func (p *Proxy) transportFor(host, path string) (http.RoundTripper, bool) {
	if p.mode == ModeIntercept && p.filter.ShouldIntercept(host, path) {
		return p.intercept, true
	}
	return p.direct, false
}
