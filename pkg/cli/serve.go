package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/getmockd/pocketmock/pkg/config"
	"github.com/getmockd/pocketmock/pkg/interceptor"
	"github.com/getmockd/pocketmock/pkg/logging"
	"github.com/getmockd/pocketmock/pkg/requestlog"
	"github.com/getmockd/pocketmock/pkg/template"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the rule side-channel and, optionally, an intercepting proxy",
	Long: `Serve loads the rule file and starts the dev server side-channel used by the
rule editor and log viewer. With --proxy-listen it also starts a forward HTTP
proxy whose traffic is answered from the rules.

Examples:
  # Serve pocket-mock.json on the default address
  pocketmock serve

  # Also intercept traffic sent through a proxy on :8888
  pocketmock serve --proxy-listen :8888

  # Archive the request log to SQLite
  pocketmock serve --log-db requests.db --log-passthrough`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		log, closer := logging.NewWithCloser(cfg.LoggingConfig())
		defer closer.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := newServer(cfg, log)
		if err != nil {
			return err
		}
		if err := srv.start(ctx); err != nil {
			srv.close()
			return err
		}

		log.Info("pocketmock started",
			"listen", srv.addr(),
			"proxy", srv.proxyAddr(),
			"rules", cfg.RulesFile,
			"count", srv.rules.Len(),
		)
		if !jsonOutput {
			fmt.Fprintf(cmd.ErrOrStderr(), "Side-channel: http://%s%s\n", srv.addr(), cfg.BootstrapPrefix)
			fmt.Fprintf(cmd.ErrOrStderr(), "Metrics:      http://%s%s/metrics\n", srv.addr(), cfg.BootstrapPrefix)
			if p := srv.proxyAddr(); p != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Proxy:        http://%s (%s)\n", p, cfg.ProxyMode)
			}
		}

		err = srv.run(ctx)
		log.Info("pocketmock stopped")
		return err
	},
}

func init() {
	f := serveCmd.Flags()
	f.String("listen", config.DefaultListen, "Side-channel listen address")
	f.String("proxy-listen", "", "Also serve a forward proxy on this address")
	f.String("proxy-mode", "intercept", "Proxy mode: intercept or passthrough")
	f.String("prefix", interceptor.DefaultBootstrapPrefix, "Side-channel route prefix")
	f.Bool("watch", true, "Reload the rule file when it changes")
	f.Bool("read-only", false, "Reject rule saves")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", string(logging.FormatText), "Log format (text, json)")
	f.String("log-file", "", "Also write JSON logs to this rotated file")
	f.Int("max-log-entries", requestlog.DefaultMaxEntries, "Request log capacity")
	f.String("log-db", "", "Archive the request log to this SQLite file")
	f.Bool("log-passthrough", false, "Also log calls that were not mocked")
	f.Int("max-depth", template.DefaultMaxDepth, "Alias nesting limit")
	f.Int("max-repeat", template.DefaultMaxRepeat, "Item limit for name|count repeat keys")
	f.StringSlice("bypass", nil, "Glob of calls never intercepted (repeatable)")
	f.String("aliases", "", "JSON or YAML file of template aliases")
	rootCmd.AddCommand(serveCmd)
}
