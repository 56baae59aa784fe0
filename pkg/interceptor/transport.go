package interceptor

import (
	"net/http"
)

// Transport is the single-shot surface of an Engine.
type Transport struct {
	engine   *Engine
	original http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	e := t.engine
	raw := req.URL.String()

	d, err := e.decide(req.Context(), req.Method, req.URL, raw)
	if err != nil {
		closeBody(req)
		return nil, err
	}
	if d.bypass {
		return t.original.RoundTrip(req)
	}

	if d.rule == nil {
		resp, err := t.original.RoundTrip(req)
		if err == nil && e.logPassthrough {
			e.record(req.Method, raw, resp.StatusCode, d.start, nil)
		}
		return resp, err
	}

	// The request body is never read for synthetic responses.
	closeBody(req)

	syn, err := e.synthesize(req.Context(), d.rule)
	if err != nil {
		return nil, err
	}
	e.log.Debug("served mock response",
		"method", req.Method, "url", raw, "rule", d.rule.ID, "status", syn.status)
	e.record(req.Method, raw, syn.status, d.start, d.rule)
	return syn.httpResponse(req), nil
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
