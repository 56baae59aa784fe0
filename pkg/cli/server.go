package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/getmockd/pocketmock/pkg/authoring"
	"github.com/getmockd/pocketmock/pkg/config"
	"github.com/getmockd/pocketmock/pkg/devserver"
	"github.com/getmockd/pocketmock/pkg/interceptor"
	"github.com/getmockd/pocketmock/pkg/metrics"
	"github.com/getmockd/pocketmock/pkg/mock"
	"github.com/getmockd/pocketmock/pkg/proxy"
	"github.com/getmockd/pocketmock/pkg/requestlog"
	"github.com/getmockd/pocketmock/pkg/store"
	"github.com/getmockd/pocketmock/pkg/store/file"
	"github.com/getmockd/pocketmock/pkg/template"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// server is the assembled serve command: the rule file, the interceptor
// and the listeners in front of them.
type server struct {
	cfg *config.Config
	log *slog.Logger

	files    *file.Store
	rules    *store.RuleStore
	gate     *interceptor.Gate
	engine   *interceptor.Engine
	editor   *authoring.Editor
	logs     *requestlog.MemoryStore
	archive  *requestlog.SQLiteStore
	archiver *requestlog.Async
	metrics  *metrics.Interception

	http      []*http.Server
	listeners []net.Listener
}

// newServer wires the components described by cfg. Nothing listens until start.
func newServer(cfg *config.Config, log *slog.Logger) (*server, error) {
	s := &server{cfg: cfg, log: log}

	fileOpts := []file.Option{file.WithLogger(log)}
	if cfg.ReadOnly {
		fileOpts = append(fileOpts, file.WithReadOnly())
	}
	s.files = file.New(cfg.RulesFile, fileOpts...)
	s.rules = store.NewRuleStore()
	s.gate = interceptor.NewGate()

	aliases := template.NewAliases()
	aliases.Register(cfg.Aliases)
	expander := template.New(
		template.WithAliases(aliases),
		template.WithMaxDepth(cfg.Template.MaxDepth),
		template.WithMaxRepeat(cfg.Template.MaxRepeat),
	)

	s.logs = requestlog.NewMemoryStore(cfg.RequestLog.MaxEntries)
	s.metrics = metrics.NewInterception(s.rules)
	var sink requestlog.Sink = requestlog.Multi(s.logs, s.metrics)
	if cfg.RequestLog.Database != "" {
		archive, err := requestlog.OpenSQLite(cfg.RequestLog.Database, log)
		if err != nil {
			_ = s.files.Close()
			return nil, fmt.Errorf("opening request log database: %w", err)
		}
		s.archive = archive
		s.archiver = requestlog.NewAsync(archive, requestlog.DefaultAsyncBuffer)
		sink = requestlog.Multi(s.logs, s.metrics, s.archiver)
	}

	engineOpts := []interceptor.Option{
		interceptor.WithLogger(log),
		interceptor.WithSink(sink),
		interceptor.WithExpander(expander),
		interceptor.WithBootstrapPrefix(cfg.BootstrapPrefix),
		interceptor.WithBypass(cfg.Bypass...),
	}
	if cfg.RequestLog.Passthrough {
		engineOpts = append(engineOpts, interceptor.WithPassthroughLogging())
	}
	s.engine = interceptor.New(s.rules, s.gate, engineOpts...)

	editorOpts := []authoring.Option{authoring.WithLogger(log)}
	var persister store.Persister = s.files
	if cfg.ReadOnly {
		persister = nil
	}
	s.editor = authoring.NewEditor(s.rules, s.gate, persister, editorOpts...)

	side := devserver.NewHandler(s.files,
		devserver.WithLogger(log),
		devserver.WithPrefix(cfg.BootstrapPrefix),
		devserver.WithRequestLog(s.logs),
		devserver.WithMetrics(s.metrics.Registry().Handler()),
		devserver.OnSave(s.publish),
	)
	s.http = append(s.http, &http.Server{
		Addr:              cfg.Listen,
		Handler:           side,
		ReadHeaderTimeout: readHeaderTimeout,
	})

	if cfg.ProxyListen != "" {
		mode, err := proxy.ParseMode(cfg.ProxyMode)
		if err != nil {
			s.close()
			return nil, err
		}
		p := proxy.New(proxy.Options{
			Mode: mode,
			Filter: &proxy.FilterConfig{
				IncludeHosts: cfg.ProxyFilter.IncludeHosts,
				ExcludeHosts: cfg.ProxyFilter.ExcludeHosts,
				IncludePaths: cfg.ProxyFilter.IncludePaths,
				ExcludePaths: cfg.ProxyFilter.ExcludePaths,
			},
			Intercept: s.engine.Transport(),
			Logger:    log,
		})
		s.http = append(s.http, &http.Server{
			Addr:              cfg.ProxyListen,
			Handler:           p,
			ReadHeaderTimeout: readHeaderTimeout,
		})
	}
	return s, nil
}

// publish makes rules saved through the side-channel active immediately.
// The file watcher skips our own writes, so it would not pick them up.
func (s *server) publish(rules []*mock.Rule) {
	s.rules.Replace(rules)
	s.log.Info("rules updated from side-channel", "count", len(rules))
}

// start loads the rule set, opening the gate, and binds every listener.
func (s *server) start(ctx context.Context) error {
	if err := s.editor.Load(ctx); err != nil {
		s.log.Warn("serving fallback rules", "path", s.files.Path(), "error", err)
	}

	for _, srv := range s.http {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			for _, open := range s.listeners {
				_ = open.Close()
			}
			s.listeners = nil
			return fmt.Errorf("listening on %s: %w", srv.Addr, err)
		}
		s.listeners = append(s.listeners, ln)
	}
	return nil
}

// addr returns the bound address of the side-channel listener.
func (s *server) addr() string {
	if len(s.listeners) == 0 {
		return ""
	}
	return s.listeners[0].Addr().String()
}

// proxyAddr returns the bound address of the proxy listener, if any.
func (s *server) proxyAddr() string {
	if len(s.listeners) < 2 {
		return ""
	}
	return s.listeners[1].Addr().String()
}

// run serves until ctx is done, then shuts the listeners down and flushes
// pending state. start must have succeeded.
func (s *server) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i, srv := range s.http {
		ln := s.listeners[i]
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving %s: %w", ln.Addr(), err)
			}
			return nil
		})
	}

	if s.cfg.Watch {
		g.Go(func() error {
			err := s.files.Watch(gctx, func(rules []*mock.Rule) {
				s.rules.Replace(rules)
				s.log.Info("reloaded rule file", "path", s.files.Path(), "count", len(rules))
			})
			if err != nil {
				s.log.Warn("rule file watching disabled", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range s.http {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				s.log.Warn("server shutdown", "addr", srv.Addr, "error", err)
			}
		}
		return nil
	})

	err := g.Wait()
	s.close()
	return err
}

// close flushes pending saves and releases the stores.
func (s *server) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.editor.Close(ctx); err != nil {
		s.log.Warn("flushing rule edits", "error", err)
	}
	_ = s.files.Close()
	if s.archiver != nil {
		_ = s.archiver.Close()
		if n := s.archiver.Dropped(); n > 0 {
			s.log.Warn("request log archive fell behind", "dropped", n)
		}
	}
	if s.archive != nil {
		_ = s.archive.Close()
	}
}
