package interceptor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// ReadyState is the lifecycle state of a Request.
type ReadyState int

// Lifecycle states. Values follow the progressive request convention.
const (
	Unsent          ReadyState = 0
	Opened          ReadyState = 1
	HeadersReceived ReadyState = 2
	Loading         ReadyState = 3
	Done            ReadyState = 4
)

func (s ReadyState) String() string {
	switch s {
	case Unsent:
		return "UNSENT"
	case Opened:
		return "OPENED"
	case HeadersReceived:
		return "HEADERS_RECEIVED"
	case Loading:
		return "LOADING"
	case Done:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// EventType names a lifecycle notification.
type EventType string

// Lifecycle notifications.
const (
	EventReadyStateChange EventType = "readystatechange"
	EventLoad             EventType = "load"
	EventError            EventType = "error"
	EventAbort            EventType = "abort"
)

// Event is delivered to listeners registered with AddEventListener.
type Event struct {
	Type       EventType
	ReadyState ReadyState
	Request    *Request
}

// Listener handles a lifecycle event. Listeners run on the goroutine that
// called Send and must not call Send themselves.
type Listener func(Event)

var (
	// ErrInvalidState is returned when a method is called out of order.
	ErrInvalidState = errors.New("interceptor: invalid request state")

	// ErrAborted is returned by Send when Abort ended the request.
	ErrAborted = errors.New("interceptor: request aborted")
)

// Request is the lifecycle surface: a progressive request object that is
// opened, configured and sent, and reports completion through events.
//
// A matched request completes from its rule without touching the network.
// Otherwise it is performed with the original transport. Either way the
// observable fields are read-only from the outside and change only as the
// request advances.
type Request struct {
	engine   *Engine
	original http.RoundTripper

	mu         sync.Mutex
	method     string
	rawURL     string
	reqHeader  http.Header
	state      ReadyState
	sent       bool
	aborted    bool
	cancel     context.CancelFunc
	status     int
	statusText string
	respHeader http.Header
	body       []byte
	respURL    string
	err        error
	done       chan struct{}
	listeners  map[EventType][]Listener
}

func newRequest(e *Engine, original http.RoundTripper) *Request {
	return &Request{
		engine:    e,
		original:  original,
		listeners: make(map[EventType][]Listener),
		done:      make(chan struct{}),
	}
}

// AddEventListener registers fn for events of type typ.
func (r *Request) AddEventListener(typ EventType, fn Listener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners[typ] = append(r.listeners[typ], fn)
	r.mu.Unlock()
}

// Open initializes the request. It may be called again after the previous
// send has completed; it fails while a send is in flight.
func (r *Request) Open(method, rawURL string) error {
	r.mu.Lock()
	if r.sent && r.state != Done {
		r.mu.Unlock()
		return ErrInvalidState
	}
	r.method = strings.ToUpper(strings.TrimSpace(method))
	if r.method == "" {
		r.method = http.MethodGet
	}
	r.rawURL = rawURL
	r.reqHeader = make(http.Header)
	r.state = Opened
	r.sent = false
	r.aborted = false
	r.cancel = nil
	r.status = 0
	r.statusText = ""
	r.respHeader = nil
	r.body = nil
	r.respURL = ""
	r.err = nil
	r.done = make(chan struct{})
	r.mu.Unlock()

	r.emit(EventReadyStateChange)
	return nil
}

// SetRequestHeader appends a request header. Only valid between Open and Send.
func (r *Request) SetRequestHeader(name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Opened || r.sent {
		return ErrInvalidState
	}
	r.reqHeader.Add(name, value)
	return nil
}

// Send performs the request and blocks until it completes, fails or is
// aborted. Listeners have run by the time Send returns. body may be nil.
//
// Send returns nil when the load event fired, ErrAborted after Abort, and the
// transport or context error after an error event.
func (r *Request) Send(ctx context.Context, body io.Reader) error {
	r.mu.Lock()
	if r.state != Opened || r.sent {
		r.mu.Unlock()
		return ErrInvalidState
	}
	if r.aborted {
		r.sent = true
		r.mu.Unlock()
		return r.fail(ErrAborted)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.sent = true
	r.cancel = cancel
	method, raw := r.method, r.rawURL
	r.mu.Unlock()

	e := r.engine
	u, parseErr := url.Parse(raw)
	if parseErr != nil {
		return r.fail(parseErr)
	}

	d, err := e.decide(ctx, method, u, raw)
	if err != nil {
		return r.fail(err)
	}
	if d.bypass || d.rule == nil {
		return r.passThrough(ctx, u, body, d)
	}

	syn, err := e.synthesize(ctx, d.rule)
	if err != nil {
		return r.fail(err)
	}

	r.mu.Lock()
	if r.aborted {
		r.mu.Unlock()
		return r.fail(ErrAborted)
	}
	r.status = syn.status
	r.statusText = lifecycleStatusText(syn.status)
	r.respHeader = syn.header
	r.body = syn.body
	r.respURL = raw
	r.state = Done
	r.mu.Unlock()

	r.emit(EventReadyStateChange)
	r.emit(EventLoad)
	e.log.Debug("served mock response",
		"method", method, "url", raw, "rule", d.rule.ID, "status", syn.status)
	e.record(method, raw, syn.status, d.start, d.rule)
	r.finish()
	return nil
}

// passThrough performs the request with the original transport, advancing
// through the intermediate states as a real request would.
func (r *Request) passThrough(ctx context.Context, u *url.URL, body io.Reader, d decision) error {
	r.mu.Lock()
	method := r.method
	header := r.reqHeader.Clone()
	r.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return r.fail(err)
	}
	req.Header = header

	resp, err := r.original.RoundTrip(req)
	if err != nil {
		return r.fail(err)
	}
	defer resp.Body.Close()

	r.mu.Lock()
	r.status = resp.StatusCode
	r.statusText = resp.Status
	if _, text, ok := strings.Cut(resp.Status, " "); ok {
		r.statusText = text
	}
	r.respHeader = resp.Header
	r.state = HeadersReceived
	r.mu.Unlock()
	r.emit(EventReadyStateChange)

	r.mu.Lock()
	r.state = Loading
	r.mu.Unlock()
	r.emit(EventReadyStateChange)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return r.fail(err)
	}

	respURL := u.String()
	if resp.Request != nil && resp.Request.URL != nil {
		respURL = resp.Request.URL.String()
	}

	r.mu.Lock()
	if r.aborted {
		r.mu.Unlock()
		return r.fail(ErrAborted)
	}
	r.body = data
	r.respURL = respURL
	r.state = Done
	r.mu.Unlock()

	r.emit(EventReadyStateChange)
	r.emit(EventLoad)
	if !d.bypass && r.engine.logPassthrough {
		r.engine.record(method, u.String(), resp.StatusCode, d.start, nil)
	}
	r.finish()
	return nil
}

// fail completes the request with an abort or error event.
func (r *Request) fail(cause error) error {
	r.mu.Lock()
	aborted := r.aborted
	err := cause
	if aborted {
		err = ErrAborted
	}
	r.status = 0
	r.statusText = ""
	r.respHeader = nil
	r.body = nil
	r.err = err
	r.state = Done
	r.mu.Unlock()

	r.emit(EventReadyStateChange)
	if aborted {
		r.emit(EventAbort)
	} else {
		r.emit(EventError)
	}
	r.finish()
	return err
}

func (r *Request) finish() {
	r.mu.Lock()
	done := r.done
	r.cancel = nil
	r.mu.Unlock()
	close(done)
}

// Abort cancels an in-flight send, including a pending gate wait or rule
// delay. Send then emits abort and returns ErrAborted. Aborting before Send
// makes the next Send end the same way without doing any work. An abort that
// lands before the response is published wins over it; aborting a completed
// request does nothing.
func (r *Request) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Done {
		return
	}
	r.aborted = true
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Request) emit(typ EventType) {
	r.mu.Lock()
	fns := append([]Listener(nil), r.listeners[typ]...)
	ev := Event{Type: typ, ReadyState: r.state, Request: r}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Done returns a channel closed when the current send completes.
func (r *Request) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// ReadyState returns the current lifecycle state.
func (r *Request) ReadyState() ReadyState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Status returns the response status code, or 0 before headers arrive and
// after a failure.
func (r *Request) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// StatusText returns the response status text.
// Synthetic responses report "OK" for 200 and "Error" otherwise.
func (r *Request) StatusText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusText
}

// ResponseText returns the response body once the request is done.
func (r *Request) ResponseText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Done {
		return ""
	}
	return string(r.body)
}

// ResponseURL returns the effective URL of the response.
func (r *Request) ResponseURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.respURL
}

// GetResponseHeader returns the named response header, case-insensitively.
// The second result is false when the header is absent.
func (r *Request) GetResponseHeader(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state < HeadersReceived {
		return "", false
	}
	values := r.respHeader.Values(name)
	if len(values) == 0 {
		return "", false
	}
	return strings.Join(values, ", "), true
}

// GetAllResponseHeaders returns every response header as a CRLF-separated block.
func (r *Request) GetAllResponseHeaders() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state < HeadersReceived {
		return ""
	}
	return formatHeaders(r.respHeader)
}

// Err returns the error that ended the last send, if any.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
