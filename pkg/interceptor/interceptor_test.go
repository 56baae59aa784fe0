package interceptor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/pocketmock/pkg/mock"
	"github.com/getmockd/pocketmock/pkg/requestlog"
	"github.com/getmockd/pocketmock/pkg/store"
	"github.com/getmockd/pocketmock/pkg/template"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// fakeNetwork answers every call with 200 "real:<path>" and counts calls.
type fakeNetwork struct {
	calls atomic.Int32
}

func (n *fakeNetwork) RoundTrip(r *http.Request) (*http.Response, error) {
	n.calls.Add(1)
	body := "real:" + r.URL.Path
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"text/plain"}, "X-Real": {"yes"}},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       r,
	}, nil
}

func xRule() *mock.Rule {
	return &mock.Rule{
		ID:         "rule-x",
		URLPattern: "/api/x",
		Method:     "GET",
		Response:   map[string]any{"ok": true},
		Enabled:    true,
		Status:     201,
		Headers:    map[string]string{},
	}
}

type harness struct {
	rules  *store.RuleStore
	gate   *Gate
	logs   *requestlog.MemoryStore
	net    *fakeNetwork
	engine *Engine
	client *http.Client
}

func newHarness(t *testing.T, gate *Gate, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		rules: store.NewRuleStore(xRule()),
		gate:  gate,
		logs:  requestlog.NewMemoryStore(100),
		net:   &fakeNetwork{},
	}
	opts = append([]Option{WithTransport(h.net), WithSink(h.logs)}, opts...)
	h.engine = New(h.rules, gate, opts...)
	h.client = &http.Client{Transport: h.engine.Transport()}
	return h
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestTransport_EndToEnd(t *testing.T) {
	h := newHarness(t, OpenGate())

	resp, err := h.client.Get("http://app.test/api/x")
	require.NoError(t, err)

	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "201 Created", resp.Status)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, `{"ok":true}`, readBody(t, resp))
	assert.Equal(t, int64(len(`{"ok":true}`)), resp.ContentLength)
	assert.Zero(t, h.net.calls.Load(), "network untouched")

	recs := h.logs.List(nil)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].IsMock)
	assert.Equal(t, "GET", recs[0].Method)
	assert.Equal(t, "http://app.test/api/x", recs[0].URL)
	assert.Equal(t, 201, recs[0].Status)
	assert.Equal(t, "rule-x", recs[0].RuleID)
	assert.NotEmpty(t, recs[0].ID)
}

func TestTransport_PassThroughUnmatched(t *testing.T) {
	h := newHarness(t, OpenGate())

	resp, err := h.client.Post("http://app.test/api/x", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "real:/api/x", readBody(t, resp), "method mismatch goes to the network")

	resp, err = h.client.Get("http://app.test/api/other")
	require.NoError(t, err)
	assert.Equal(t, "real:/api/other", readBody(t, resp))

	assert.Equal(t, int32(2), h.net.calls.Load())
	assert.Zero(t, h.logs.Count(), "pass-through calls are not logged by default")
}

func TestTransport_PassThroughLogging(t *testing.T) {
	h := newHarness(t, OpenGate(), WithPassthroughLogging())

	resp, err := h.client.Get("http://app.test/api/other")
	require.NoError(t, err)
	readBody(t, resp)

	recs := h.logs.List(nil)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].IsMock)
	assert.Equal(t, 200, recs[0].Status)
	assert.Empty(t, recs[0].RuleID)
}

func TestTransport_BootstrapBypassesPendingGate(t *testing.T) {
	h := newHarness(t, NewGate())
	h.rules.Replace([]*mock.Rule{{ID: "greedy", URLPattern: "/", Method: "GET", Enabled: true, Status: 200}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://app.test/__pocket_mock/rules", nil)

	resp, err := h.client.Do(req)
	require.NoError(t, err, "bootstrap call must not wait for the gate")
	assert.Equal(t, "real:/__pocket_mock/rules", readBody(t, resp), "bootstrap call is never matched")
	assert.False(t, h.gate.Ready())
	assert.Zero(t, h.logs.Count())
}

func TestTransport_BypassGlobs(t *testing.T) {
	h := newHarness(t, NewGate(), WithBypass("/static/**", "cdn.test/**", "[invalid"))

	for _, u := range []string{"http://app.test/static/js/app.js", "https://cdn.test/lib/x.css"} {
		resp, err := h.client.Get(u)
		require.NoError(t, err, u)
		readBody(t, resp)
	}
	assert.Equal(t, int32(2), h.net.calls.Load())
}

func TestTransport_CustomBootstrapPrefix(t *testing.T) {
	h := newHarness(t, NewGate(), WithBootstrapPrefix("/_mock/"))
	assert.Equal(t, "/_mock", h.engine.BootstrapPrefix())

	resp, err := h.client.Get("http://app.test/_mock/rules")
	require.NoError(t, err)
	readBody(t, resp)
}

func TestTransport_WaitsForGate(t *testing.T) {
	h := newHarness(t, NewGate())

	done := make(chan *http.Response, 1)
	go func() {
		resp, err := h.client.Get("http://app.test/api/x")
		if err == nil {
			done <- resp
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("call completed before the gate opened")
	case <-time.After(50 * time.Millisecond):
	}

	h.gate.Open()
	select {
	case resp, ok := <-done:
		require.True(t, ok, "call failed")
		assert.Equal(t, 201, resp.StatusCode)
		readBody(t, resp)
	case <-time.After(2 * time.Second):
		t.Fatal("call still blocked after the gate opened")
	}
}

func TestTransport_GateWaitHonorsContext(t *testing.T) {
	h := newHarness(t, NewGate())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://app.test/api/x", nil)
	_, err := h.client.Do(req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, h.logs.Count())
}

func TestTransport_Delay(t *testing.T) {
	h := newHarness(t, OpenGate())
	r := xRule()
	r.DelayMs = 80
	h.rules.Replace([]*mock.Rule{r})

	start := time.Now()
	resp, err := h.client.Get("http://app.test/api/x")
	require.NoError(t, err)
	readBody(t, resp)

	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	recs := h.logs.List(nil)
	require.Len(t, recs, 1)
	assert.GreaterOrEqual(t, recs[0].DurationMs, int64(80))
}

func TestTransport_DelayCancelled(t *testing.T) {
	h := newHarness(t, OpenGate())
	r := xRule()
	r.DelayMs = 5000
	h.rules.Replace([]*mock.Rule{r})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://app.test/api/x", nil)

	start := time.Now()
	_, err := h.client.Do(req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Zero(t, h.logs.Count(), "cancelled calls are not logged")
}

func TestTransport_RuleHeadersOverrideContentType(t *testing.T) {
	h := newHarness(t, OpenGate())
	r := xRule()
	r.Headers = map[string]string{"content-type": "text/plain", "X-Mock": "1"}
	h.rules.Replace([]*mock.Rule{r})

	resp, err := h.client.Get("http://app.test/api/x")
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, []string{"text/plain"}, resp.Header.Values("Content-Type"))
	assert.Equal(t, "1", resp.Header.Get("X-Mock"))
}

func TestTransport_MissingStatusServes200(t *testing.T) {
	h := newHarness(t, OpenGate())
	r := xRule()
	r.Status = 0
	h.rules.Replace([]*mock.Rule{r})

	resp, err := h.client.Get("http://app.test/api/x")
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, http.StatusOK, h.logs.List(nil)[0].Status)
}

func TestTransport_LiteralAndDynamicResponses(t *testing.T) {
	h := newHarness(t, OpenGate(), WithExpander(template.New()))

	literal := xRule()
	literal.Response = map[string]any{"id": "@guid"}
	dynamic := xRule()
	dynamic.ID = "rule-dyn"
	dynamic.URLPattern = "/api/dyn"
	dynamic.Response = map[string]any{"id": "@guid", "items|2": "@integer(1,5)"}
	dynamic.Dynamic = true
	h.rules.Replace([]*mock.Rule{literal, dynamic})

	resp, err := h.client.Get("http://app.test/api/x")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"@guid"}`, readBody(t, resp), "templates are served literally by default")

	ids := map[string]bool{}
	for range 2 {
		resp, err := h.client.Get("http://app.test/api/dyn")
		require.NoError(t, err)
		var got struct {
			ID    string `json:"id"`
			Items []int  `json:"items"`
		}
		require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &got))
		assert.Len(t, got.ID, 36)
		assert.Len(t, got.Items, 2)
		ids[got.ID] = true
	}
	assert.Len(t, ids, 2, "dynamic rules re-expand per call")
}

func TestTransport_DynamicExpansionFailureServesLiteral(t *testing.T) {
	expander := template.New()
	expander.Aliases().Register(map[string]any{"@loop": "@loop"})
	h := newHarness(t, OpenGate(), WithExpander(expander))

	r := xRule()
	r.Response = map[string]any{"v": "@loop"}
	r.Dynamic = true
	h.rules.Replace([]*mock.Rule{r})

	resp, err := h.client.Get("http://app.test/api/x")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":"@loop"}`, readBody(t, resp))
}

func TestTransport_OversizedRepeatServesLiteral(t *testing.T) {
	h := newHarness(t, OpenGate(), WithExpander(template.New()))

	r := xRule()
	r.Response = map[string]any{"items|4611686018427387905": []any{"a", "b"}}
	r.Dynamic = true
	h.rules.Replace([]*mock.Rule{r})

	resp, err := h.client.Get("http://app.test/api/x")
	require.NoError(t, err)
	assert.JSONEq(t, `{"items|4611686018427387905":["a","b"]}`, readBody(t, resp))
}

func TestTransport_ReplaceTakesEffectImmediately(t *testing.T) {
	h := newHarness(t, OpenGate())

	resp, err := h.client.Get("http://app.test/api/x")
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
	readBody(t, resp)

	r := xRule()
	r.Enabled = false
	h.rules.Replace([]*mock.Rule{r})

	resp, err = h.client.Get("http://app.test/api/x")
	require.NoError(t, err)
	assert.Equal(t, "real:/api/x", readBody(t, resp))
}

func TestTransport_FirstRuleWins(t *testing.T) {
	h := newHarness(t, OpenGate())
	first := xRule()
	first.ID, first.URLPattern, first.Status = "broad", "/api", 202
	h.rules.Replace([]*mock.Rule{first, xRule()})

	resp, err := h.client.Get("http://app.test/api/x")
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, 202, resp.StatusCode)
}

func TestInstall_RestoresPreviousTransport(t *testing.T) {
	h := newHarness(t, OpenGate())
	own := &fakeNetwork{}
	client := &http.Client{Transport: own}

	restore := h.engine.Install(client)
	noop := h.engine.Install(client)
	noop()

	resp, err := client.Get("http://app.test/api/x")
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
	readBody(t, resp)

	resp, err = client.Get("http://app.test/api/other")
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, int32(1), own.calls.Load(), "pass-through uses the client's own transport")
	assert.Zero(t, h.net.calls.Load())

	restore()
	assert.Same(t, own, client.Transport)
}

func TestInstallDefault(t *testing.T) {
	h := newHarness(t, OpenGate())
	prev := http.DefaultClient.Transport
	restore := h.engine.InstallDefault()
	t.Cleanup(restore)

	resp, err := http.Get("http://app.test/api/x")
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, 201, resp.StatusCode)

	restore()
	assert.Equal(t, prev, http.DefaultClient.Transport)
}

func TestTransport_PropagatesNetworkErrors(t *testing.T) {
	boom := errors.New("connection refused")
	e := New(store.NewRuleStore(), OpenGate(), WithTransport(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, boom
	})))
	_, err := (&http.Client{Transport: e.Transport()}).Get("http://app.test/anything")
	assert.ErrorIs(t, err, boom)
}
