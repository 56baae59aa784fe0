package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/pocketmock/pkg/cli/internal/output"
	"github.com/getmockd/pocketmock/pkg/devserver"
	"github.com/getmockd/pocketmock/pkg/logging"
	"github.com/getmockd/pocketmock/pkg/requestlog"
)

var (
	logsServer      string
	logsDatabase    string
	logsMethod      string
	logsURL         string
	logsRuleID      string
	logsStatus      int
	logsMockOnly    bool
	logsPassthrough bool
	logsLimit       int
	logsFollow      bool
	logsClear       bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the request log of a running server or a log database",
	Long: `Show intercepted calls, newest first. Records come from the side-channel of
a running 'pocketmock serve', or from a SQLite archive with --db.

Examples:
  pocketmock logs
  pocketmock logs --mock --method GET --limit 20
  pocketmock logs --follow
  pocketmock logs --db requests.db --url /api/orders
  pocketmock logs --clear`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := &requestlog.Filter{
			Method: logsMethod,
			URL:    logsURL,
			RuleID: logsRuleID,
			Status: logsStatus,
			Limit:  logsLimit,
		}
		switch {
		case logsMockOnly && logsPassthrough:
			return fmt.Errorf("--mock and --passthrough are mutually exclusive")
		case logsMockOnly:
			filter.IsMock = boolPtr(true)
		case logsPassthrough:
			filter.IsMock = boolPtr(false)
		}

		if logsDatabase != "" {
			return archivedLogs(cmd, filter)
		}

		client, err := logsClient(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if logsClear {
			if err := client.ClearLogs(ctx); err != nil {
				return err
			}
			return printResult(cmd, map[string]bool{"cleared": true}, func() {
				fmt.Fprintln(cmd.OutOrStdout(), "Request log cleared")
			})
		}

		if logsFollow {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()
			w := cmd.OutOrStdout()
			return client.Follow(ctx, logsLimit, func(rec requestlog.Record) {
				if !filter.Matches(rec) {
					return
				}
				if jsonOutput {
					_ = output.JSON(w, rec)
					return
				}
				printRecordLine(w, rec)
			})
		}

		records, err := client.Logs(ctx, filter)
		if err != nil {
			return err
		}
		return printRecords(cmd, records)
	},
}

// logsClient targets --server, or the configured listen address.
func logsClient(cmd *cobra.Command) (*devserver.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	base := logsServer
	if base == "" {
		base = "http://" + cfg.Listen
	}
	return devserver.NewClient(base, devserver.WithClientPrefix(cfg.BootstrapPrefix)), nil
}

func archivedLogs(cmd *cobra.Command, filter *requestlog.Filter) error {
	if _, err := os.Stat(logsDatabase); err != nil {
		return err
	}
	db, err := requestlog.OpenSQLite(logsDatabase, logging.Nop())
	if err != nil {
		return err
	}
	defer db.Close()

	if logsClear {
		db.Clear()
		return printResult(cmd, map[string]bool{"cleared": true}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", logsDatabase)
		})
	}
	records, err := db.Query(cmd.Context(), filter)
	if err != nil {
		return err
	}
	return printRecords(cmd, records)
}

func printRecords(cmd *cobra.Command, records []requestlog.Record) error {
	return printResult(cmd, records, func() {
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No requests logged")
			return
		}
		w := output.Table(cmd.OutOrStdout())
		output.Row(w, "TIME", "METHOD", "URL", "STATUS", "DURATION", "RULE")
		for _, rec := range records {
			output.Row(w, rec.Time().Format(time.TimeOnly), rec.Method, rec.URL, rec.Status,
				strconv.FormatInt(rec.DurationMs, 10)+"ms", ruleLabel(rec))
		}
		_ = w.Flush()
	})
}

func printRecordLine(w io.Writer, rec requestlog.Record) {
	fmt.Fprintf(w, "%s %-6s %d %s (%dms, %s)\n",
		rec.Time().Format(time.TimeOnly), rec.Method, rec.Status, rec.URL, rec.DurationMs, ruleLabel(rec))
}

func ruleLabel(rec requestlog.Record) string {
	if !rec.IsMock {
		return "passthrough"
	}
	return rec.RuleID
}

func boolPtr(b bool) *bool { return &b }

func init() {
	f := logsCmd.Flags()
	f.StringVar(&logsServer, "server", "", "Dev server base URL (default: http://<listen>)")
	f.StringVar(&logsDatabase, "db", "", "Read a SQLite request log archive instead of a server")
	f.StringVarP(&logsMethod, "method", "m", "", "Filter by HTTP method")
	f.StringVarP(&logsURL, "url", "u", "", "Filter by URL substring")
	f.StringVar(&logsRuleID, "rule", "", "Filter by answering rule id")
	f.IntVar(&logsStatus, "status", 0, "Filter by response status")
	f.BoolVar(&logsMockOnly, "mock", false, "Only mocked calls")
	f.BoolVar(&logsPassthrough, "passthrough", false, "Only pass-through calls")
	f.IntVarP(&logsLimit, "limit", "n", 50, "Maximum records (with --follow: records replayed first)")
	f.BoolVarP(&logsFollow, "follow", "f", false, "Stream new records as they arrive")
	f.BoolVar(&logsClear, "clear", false, "Clear the request log")
	f.String("listen", "", "Dev server listen address to contact")
	rootCmd.AddCommand(logsCmd)
}
