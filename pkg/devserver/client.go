package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/getmockd/pocketmock/pkg/httputil"
	"github.com/getmockd/pocketmock/pkg/interceptor"
	"github.com/getmockd/pocketmock/pkg/mock"
	"github.com/getmockd/pocketmock/pkg/requestlog"
	"github.com/getmockd/pocketmock/pkg/store"
)

// DefaultClientTimeout bounds each side-channel call.
const DefaultClientTimeout = 10 * time.Second

// Client calls the side-channel of a running dev server.
type Client struct {
	baseURL    string
	prefix     string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for side-channel calls.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithClientPrefix overrides the route prefix.
func WithClientPrefix(prefix string) ClientOption {
	return func(cl *Client) {
		if prefix = strings.TrimRight(prefix, "/"); prefix != "" {
			cl.prefix = prefix
		}
	}
}

// NewClient creates a Client for the dev server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		prefix:     interceptor.DefaultBootstrapPrefix,
		httpClient: &http.Client{Timeout: DefaultClientTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is returned when the side-channel answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("side-channel returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("side-channel returned status %d: %s", e.StatusCode, e.Message)
}

func (c *Client) url(path string) string {
	return c.baseURL + c.prefix + path
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serr := &StatusError{StatusCode: resp.StatusCode}
		var envelope httputil.ErrorResponse
		if json.Unmarshal(data, &envelope) == nil {
			serr.Message = envelope.Error
			if envelope.Message != "" {
				serr.Message += ": " + envelope.Message
			}
		}
		return nil, serr
	}
	return data, nil
}

// FetchRules retrieves the persisted rule set.
func (c *Client) FetchRules(ctx context.Context) ([]*mock.Rule, error) {
	data, err := c.do(ctx, http.MethodGet, "/rules", nil)
	if err != nil {
		return nil, err
	}
	return mock.ParseRuleSet(data)
}

// SaveRules persists rules as an indented JSON array.
func (c *Client) SaveRules(ctx context.Context, rules []*mock.Rule) error {
	if rules == nil {
		rules = []*mock.Rule{}
	}
	body, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding rules: %w", err)
	}
	_, err = c.do(ctx, http.MethodPost, "/save", body)
	return err
}

// Logs lists request log records, newest first.
func (c *Client) Logs(ctx context.Context, filter *requestlog.Filter) ([]requestlog.Record, error) {
	path := "/logs"
	if q := filterQuery(filter); q != "" {
		path += "?" + q
	}
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Records []requestlog.Record `json:"records"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding request log: %w", err)
	}
	return out.Records, nil
}

// ClearLogs empties the request log.
func (c *Client) ClearLogs(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/logs", nil)
	return err
}

// Load implements store.Persister.
func (c *Client) Load(ctx context.Context) ([]*mock.Rule, error) {
	return c.FetchRules(ctx)
}

// Save implements store.Persister.
func (c *Client) Save(ctx context.Context, rules []*mock.Rule) error {
	return c.SaveRules(ctx, rules)
}

var _ store.Persister = (*Client)(nil)

// Follow streams request log records to fn until ctx is done or the server
// closes the stream. backlog replays that many recent records first, oldest
// first. A clean close returns nil.
func (c *Client) Follow(ctx context.Context, backlog int, fn func(requestlog.Record)) error {
	wsURL := "ws" + strings.TrimPrefix(c.url("/logs/stream"), "http")
	if backlog > 0 {
		wsURL += "?backlog=" + strconv.Itoa(backlog)
	}
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPClient: c.streamClient()})
	if err != nil {
		return fmt.Errorf("opening log stream: %w", err)
	}
	defer func() { _ = conn.CloseNow() }()

	for {
		var rec requestlog.Record
		if err := wsjson.Read(ctx, conn, &rec); err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusGoingAway ||
				websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("reading log stream: %w", err)
		}
		fn(rec)
	}
}

// streamClient returns the HTTP client without its overall timeout, which
// would otherwise end a long-lived stream.
func (c *Client) streamClient() *http.Client {
	hc := *c.httpClient
	hc.Timeout = 0
	return &hc
}
