package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/getmockd/pocketmock/internal/matching"
	"github.com/getmockd/pocketmock/pkg/interceptor"
	"github.com/getmockd/pocketmock/pkg/store"
	"github.com/getmockd/pocketmock/pkg/store/file"
	"github.com/getmockd/pocketmock/pkg/template"
)

// errNoRule stands in for the network when probing rules offline.
var errNoRule = errors.New("no enabled rule matches")

type offlineTransport struct{}

func (offlineTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errNoRule
}

// ProbeOutput is the result of a rules test call.
type ProbeOutput struct {
	RuleID     string            `json:"ruleId"`
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Events     []string          `json:"events,omitempty"`
	// Shadowed lists later rules that also match but never answer.
	Shadowed []string `json:"shadowed,omitempty"`
}

var probeEvents bool

var rulesProbeCmd = &cobra.Command{
	Use:   "test <method> <url>",
	Short: "Show the response the rules would give for a call",
	Long: `Run a call through the interceptor against the rule file without touching
the network, honoring delays and dynamic templates.

Examples:
  pocketmock rules test GET /api/users
  pocketmock rules test POST https://api.example.com/v1/orders --events`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		files := file.New(cfg.RulesFile)
		defer files.Close()
		loaded, err := files.Load(cmd.Context())
		if err != nil {
			return err
		}

		rules := store.NewRuleStore(loaded...)
		aliases := template.NewAliases()
		aliases.Register(cfg.Aliases)
		engine := interceptor.New(rules, interceptor.OpenGate(),
			interceptor.WithTransport(offlineTransport{}),
			interceptor.WithBootstrapPrefix(cfg.BootstrapPrefix),
			interceptor.WithExpander(template.New(
				template.WithAliases(aliases),
				template.WithMaxDepth(cfg.Template.MaxDepth),
				template.WithMaxRepeat(cfg.Template.MaxRepeat),
			)),
		)

		out, err := probe(cmd.Context(), engine, args[0], args[1])
		if err != nil {
			return err
		}
		if matched := matching.Candidates(args[0], args[1], rules.Snapshot()); len(matched) > 0 {
			out.RuleID = matched[0].ID
			for _, r := range matched[1:] {
				out.Shadowed = append(out.Shadowed, r.ID)
			}
		}
		if !probeEvents {
			out.Events = nil
		}

		return printResult(cmd, out, func() {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Rule:   %s\n", out.RuleID)
			fmt.Fprintf(w, "Status: %d %s\n", out.Status, out.StatusText)
			for _, name := range slices.Sorted(maps.Keys(out.Headers)) {
				fmt.Fprintf(w, "Header: %s: %s\n", name, out.Headers[name])
			}
			if len(out.Shadowed) > 0 {
				fmt.Fprintf(w, "Shadowed: %s\n", strings.Join(out.Shadowed, ", "))
			}
			for _, ev := range out.Events {
				fmt.Fprintf(w, "Event:  %s\n", ev)
			}
			fmt.Fprintf(w, "\n%s\n", out.Body)
		})
	},
}

// probe sends one call through the lifecycle surface of engine.
func probe(ctx context.Context, engine *interceptor.Engine, method, rawURL string) (*ProbeOutput, error) {
	out := &ProbeOutput{Headers: map[string]string{}}
	req := engine.NewRequest()
	for _, typ := range []interceptor.EventType{
		interceptor.EventReadyStateChange, interceptor.EventLoad,
		interceptor.EventError, interceptor.EventAbort,
	} {
		req.AddEventListener(typ, func(ev interceptor.Event) {
			out.Events = append(out.Events, fmt.Sprintf("%s (%s)", ev.Type, ev.ReadyState))
		})
	}

	if err := req.Open(method, rawURL); err != nil {
		return nil, err
	}
	if err := req.Send(ctx, nil); err != nil {
		if errors.Is(err, errNoRule) {
			return nil, fmt.Errorf("%w %s %s", errNoRule, strings.ToUpper(method), rawURL)
		}
		return nil, err
	}

	out.Status = req.Status()
	out.StatusText = req.StatusText()
	out.Body = req.ResponseText()
	for _, line := range strings.Split(req.GetAllResponseHeaders(), "\r\n") {
		if name, value, ok := strings.Cut(line, ": "); ok {
			out.Headers[name] = value
		}
	}
	return out, nil
}

func init() {
	rulesProbeCmd.Flags().BoolVar(&probeEvents, "events", false, "Also show lifecycle events")
	rulesCmd.AddCommand(rulesProbeCmd)
}
