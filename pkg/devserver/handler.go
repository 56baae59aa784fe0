package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/getmockd/pocketmock/pkg/httputil"
	"github.com/getmockd/pocketmock/pkg/interceptor"
	"github.com/getmockd/pocketmock/pkg/logging"
	"github.com/getmockd/pocketmock/pkg/mock"
	"github.com/getmockd/pocketmock/pkg/requestlog"
	"github.com/getmockd/pocketmock/pkg/store"
)

// RuleFile is the raw rule file served and written by the side-channel.
// *file.Store implements it.
type RuleFile interface {
	ReadRaw(ctx context.Context) ([]byte, error)
	SaveRaw(ctx context.Context, body []byte) error
}

// Feed delivers request log records as they are added.
// *requestlog.MemoryStore implements it.
type Feed interface {
	Subscribe(buffer int) (requestlog.Subscriber, func())
}

// Handler serves the side-channel routes.
type Handler struct {
	rules   RuleFile
	logs    requestlog.Store
	feed    Feed
	log     *slog.Logger
	prefix  string
	maxBody int64
	onSave  func([]*mock.Rule)
	metrics http.Handler
	mux     *http.ServeMux
}

// Option configures a Handler.
type Option func(*Handler)

// WithRequestLog enables the log routes backed by s. When s also implements
// Feed the stream route is enabled too.
func WithRequestLog(s requestlog.Store) Option {
	return func(h *Handler) {
		h.logs = s
		if f, ok := s.(Feed); ok {
			h.feed = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithPrefix overrides the route prefix.
func WithPrefix(prefix string) Option {
	return func(h *Handler) {
		if prefix = strings.TrimRight(prefix, "/"); prefix != "" {
			h.prefix = prefix
		}
	}
}

// WithMaxBodyBytes limits the size of a saved rule set.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) { h.maxBody = n }
}

// OnSave registers fn to receive every rule set saved through the
// side-channel, after it has been written.
func OnSave(fn func([]*mock.Rule)) Option {
	return func(h *Handler) { h.onSave = fn }
}

// WithMetrics serves m at <prefix>/metrics.
func WithMetrics(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler creates a Handler serving rules from rules.
func NewHandler(rules RuleFile, opts ...Option) *Handler {
	h := &Handler{
		rules:   rules,
		log:     logging.Nop(),
		prefix:  interceptor.DefaultBootstrapPrefix,
		maxBody: httputil.DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.mux = http.NewServeMux()
	h.registerRoutes(h.mux)
	return h
}

// Prefix returns the route prefix.
func (h *Handler) Prefix() string {
	return h.prefix
}

func (h *Handler) registerRoutes(mux *http.ServeMux) {
	p := h.prefix
	mux.HandleFunc("GET "+p+"/health", h.handleHealth)
	mux.HandleFunc("GET "+p+"/rules", h.handleGetRules)
	mux.HandleFunc("POST "+p+"/save", h.handleSave)
	if h.logs != nil {
		mux.HandleFunc("GET "+p+"/logs", h.handleListLogs)
		mux.HandleFunc("GET "+p+"/logs/{id}", h.handleGetLog)
		mux.HandleFunc("DELETE "+p+"/logs", h.handleClearLogs)
	}
	if h.feed != nil {
		mux.HandleFunc("GET "+p+"/logs/stream", h.handleStream)
	}
	if h.metrics != nil {
		mux.Handle("GET "+p+"/metrics", h.metrics)
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, map[string]string{"status": "ok"})
}

// handleGetRules handles GET <prefix>/rules.
func (h *Handler) handleGetRules(w http.ResponseWriter, r *http.Request) {
	data, err := h.rules.ReadRaw(r.Context())
	if err != nil {
		h.log.Error("failed to read rule file", "error", err)
		httputil.WriteInternalError(w, "Failed to read config", "")
		return
	}
	httputil.WriteRawJSON(w, http.StatusOK, data)
}

// handleSave handles POST <prefix>/save.
func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadBody(r, h.maxBody)
	if err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "Save failed", err.Error())
			return
		}
		httputil.WriteBadRequest(w, "Save failed", err.Error())
		return
	}

	if err := h.rules.SaveRaw(r.Context(), body); err != nil {
		switch {
		case errors.Is(err, mock.ErrInvalidRule):
			h.log.Warn("rejected invalid rule set", "error", err)
			httputil.WriteBadRequest(w, "Invalid rules", err.Error())
		case errors.Is(err, store.ErrReadOnly):
			httputil.WriteError(w, http.StatusForbidden, "Save failed", err.Error())
		default:
			h.log.Error("failed to save rule file", "error", err)
			httputil.WriteInternalError(w, "Save failed", "")
		}
		return
	}
	h.log.Debug("saved rule file", "bytes", len(body))
	if h.onSave != nil {
		if rules, err := mock.ParseRuleSet(body); err == nil {
			h.onSave(rules)
		}
	}
	httputil.WriteOK(w, map[string]bool{"success": true})
}

// handleListLogs handles GET <prefix>/logs.
func (h *Handler) handleListLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid_filter", err.Error())
		return
	}
	records := h.logs.List(filter)
	if records == nil {
		records = []requestlog.Record{}
	}
	httputil.WriteOK(w, map[string]any{
		"records": records,
		"count":   len(records),
		"total":   h.logs.Count(),
	})
}

// handleGetLog handles GET <prefix>/logs/{id}.
func (h *Handler) handleGetLog(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.logs.Get(r.PathValue("id"))
	if !ok {
		httputil.WriteNotFound(w, "not_found", "Request log record not found")
		return
	}
	httputil.WriteOK(w, rec)
}

// handleClearLogs handles DELETE <prefix>/logs.
func (h *Handler) handleClearLogs(w http.ResponseWriter, _ *http.Request) {
	h.logs.Clear()
	httputil.WriteNoContent(w)
}

// parseFilter builds a log filter from query parameters.
func parseFilter(r *http.Request) (*requestlog.Filter, error) {
	q := r.URL.Query()
	f := &requestlog.Filter{
		Method: q.Get("method"),
		URL:    q.Get("url"),
		RuleID: q.Get("ruleId"),
	}
	if v := q.Get("status"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.New("status must be an integer")
		}
		f.Status = n
	}
	if v := q.Get("isMock"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.New("isMock must be a boolean")
		}
		f.IsMock = &b
	}
	if n, ok := parseNonNegativeInt(q.Get("limit")); ok {
		f.Limit = n
	}
	if n, ok := parseNonNegativeInt(q.Get("offset")); ok {
		f.Offset = n
	}
	return f, nil
}

// parseNonNegativeInt returns a parsed int only when the value is a valid non-negative integer.
func parseNonNegativeInt(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
