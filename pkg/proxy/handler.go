package proxy

import (
	"context"
	"io"
	"net/http"
	"time"
)

// DefaultMaxBodySize is the default maximum request body size forwarded (10MB).
const DefaultMaxBodySize = 10 * 1024 * 1024

// handleHTTP handles regular HTTP proxy requests.
func (p *Proxy) handleHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	outReq, err := p.outgoingRequest(r.Context(), r)
	if err != nil {
		p.log.Warn("bad proxy request", "error", err)
		http.Error(w, "Bad proxy request", http.StatusBadRequest)
		return
	}

	rt, intercepted := p.transportFor(outReq.URL.Host, outReq.URL.Path)
	resp, err := rt.RoundTrip(outReq)
	if err != nil {
		p.log.Warn("error forwarding request", "method", r.Method, "url", outReq.URL.String(), "error", err)
		http.Error(w, "Error forwarding request: "+err.Error(), http.StatusBadGateway)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	removeHopByHopHeaders(resp.Header)
	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.log.Debug("error copying response body", "error", err)
	}

	p.log.Debug("proxied request",
		"method", r.Method,
		"url", outReq.URL.String(),
		"status", resp.StatusCode,
		"intercepted", intercepted,
		"duration", time.Since(start))
}

// outgoingRequest builds the upstream request for a proxied request.
func (p *Proxy) outgoingRequest(ctx context.Context, r *http.Request) (*http.Request, error) {
	// Construct the target URL
	targetURL := r.URL.String()
	if r.URL.Host == "" {
		targetURL = "http://" + r.Host + r.URL.RequestURI()
	}

	var body io.Reader
	if r.Body != nil && r.Body != http.NoBody {
		body = http.MaxBytesReader(nil, r.Body, DefaultMaxBodySize)
	}

	outReq, err := http.NewRequestWithContext(ctx, r.Method, targetURL, body)
	if err != nil {
		return nil, err
	}
	outReq.ContentLength = r.ContentLength

	copyHeaders(outReq.Header, r.Header)
	removeHopByHopHeaders(outReq.Header)

	outReq.Header.Set("X-Forwarded-For", r.RemoteAddr)
	outReq.Header.Set("X-Forwarded-Host", r.Host)
	return outReq, nil
}

// copyHeaders copies headers from src to dst.
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// removeHopByHopHeaders removes headers that should not be forwarded.
func removeHopByHopHeaders(h http.Header) {
	hopByHopHeaders := []string{
		"Connection",
		"Keep-Alive",
		"Proxy-Authenticate",
		"Proxy-Authorization",
		"Proxy-Connection",
		"TE",
		"Trailers",
		"Transfer-Encoding",
		"Upgrade",
	}

	for _, header := range hopByHopHeaders {
		h.Del(header)
	}
}
