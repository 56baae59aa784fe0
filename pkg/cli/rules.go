package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/pocketmock/pkg/authoring"
	"github.com/getmockd/pocketmock/pkg/cli/internal/output"
	"github.com/getmockd/pocketmock/pkg/config"
	"github.com/getmockd/pocketmock/pkg/logging"
	"github.com/getmockd/pocketmock/pkg/mock"
	"github.com/getmockd/pocketmock/pkg/store"
	"github.com/getmockd/pocketmock/pkg/store/file"
)

var rulesCmd = &cobra.Command{
	Use:     "rules",
	Aliases: []string{"rule"},
	Short:   "List and edit the rules in the rule file",
}

// ruleSession is an editor over the configured rule file. Edits are
// written once, when the session is closed.
type ruleSession struct {
	cfg    *config.Config
	files  *file.Store
	editor *authoring.Editor
}

func openRules(cmd *cobra.Command) (*ruleSession, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	var opts []file.Option
	if cfg.ReadOnly {
		opts = append(opts, file.WithReadOnly())
	}
	files := file.New(cfg.RulesFile, opts...)

	editor := authoring.NewEditor(store.NewRuleStore(), nil, files,
		authoring.WithLogger(logging.Nop()),
		authoring.WithSaveDebounce(time.Hour),
		authoring.WithFallback(),
	)
	if err := editor.Load(cmd.Context()); err != nil {
		_ = files.Close()
		return nil, fmt.Errorf("loading %s: %w", cfg.RulesFile, err)
	}
	return &ruleSession{cfg: cfg, files: files, editor: editor}, nil
}

// close writes pending edits.
func (s *ruleSession) close(ctx context.Context) error {
	err := s.editor.Close(ctx)
	_ = s.files.Close()
	if err != nil {
		return fmt.Errorf("saving %s: %w", s.cfg.RulesFile, err)
	}
	return nil
}

var rulesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List rules in match order",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openRules(cmd)
		if err != nil {
			return err
		}
		rules := s.editor.Rules()
		if err := s.close(cmd.Context()); err != nil {
			return err
		}

		return printResult(cmd, rules, func() {
			if len(rules) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No rules in %s\n", s.cfg.RulesFile)
				return
			}
			w := output.Table(cmd.OutOrStdout())
			output.Row(w, "ID", "METHOD", "URL", "STATUS", "DELAY", "ENABLED")
			for _, r := range rules {
				output.Row(w, r.ID, r.NormalizedMethod(), r.URLPattern, r.Status, fmt.Sprintf("%dms", r.DelayMs), r.Enabled)
			}
			_ = w.Flush()
		})
	},
}

var (
	addMethod   string
	addStatus   int
	addDelay    int
	addResponse string
	addHeaders  []string
	addDynamic  bool
	addDisabled bool
)

var rulesAddCmd = &cobra.Command{
	Use:   "add <url-pattern>",
	Short: "Add a rule at the top of the rule list",
	Long: `Add a rule at the top of the rule list, where it takes precedence over
existing rules that match the same calls.

Examples:
  pocketmock rules add /api/users
  pocketmock rules add /api/users --method POST --status 201 --response '{"id":"@guid"}' --dynamic
  pocketmock rules add /api/slow --delay 2000 --header X-Trace=abc`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		candidate, err := ruleFromFlags(cmd, args[0])
		if err != nil {
			return err
		}

		s, err := openRules(cmd)
		if err != nil {
			return err
		}
		rule, err := s.editor.Add(candidate.URLPattern, candidate.Method)
		if err == nil {
			err = applyRuleFields(s.editor, rule.ID, candidate)
		}
		if err != nil {
			_ = s.close(cmd.Context())
			return err
		}
		if err := s.close(cmd.Context()); err != nil {
			return err
		}

		added, _ := findRule(s.editor.Rules(), rule.ID)
		return printResult(cmd, added, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "Added rule %s: %s %s\n", added.ID, added.Method, added.URLPattern)
		})
	},
}

// ruleFromFlags builds and validates the rule described by the add flags
// before anything is written.
func ruleFromFlags(cmd *cobra.Command, urlPattern string) (*mock.Rule, error) {
	r := &mock.Rule{
		ID:         "candidate",
		URLPattern: urlPattern,
		Method:     mock.NormalizeMethod(addMethod),
		Response:   map[string]any{"message": "Hello PocketMock"},
		Enabled:    !addDisabled,
		DelayMs:    addDelay,
		Status:     addStatus,
		Headers:    map[string]string{},
		Dynamic:    addDynamic,
	}
	if cmd.Flags().Changed("response") {
		if err := json.Unmarshal([]byte(addResponse), &r.Response); err != nil {
			return nil, fmt.Errorf("--response is not valid JSON: %w", err)
		}
	}
	for _, h := range addHeaders {
		name, value, ok := strings.Cut(h, "=")
		if !ok {
			return nil, fmt.Errorf("--header %q: expected NAME=VALUE", h)
		}
		r.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// applyRuleFields copies the fields Editor.Add does not take onto the new rule.
func applyRuleFields(e *authoring.Editor, ruleID string, from *mock.Rule) error {
	response, err := json.Marshal(from.Response)
	if err != nil {
		return err
	}
	if !e.UpdateResponse(ruleID, string(response)) {
		return fmt.Errorf("rule %s: response not updated", ruleID)
	}
	headers, err := json.Marshal(from.Headers)
	if err != nil {
		return err
	}
	if !e.UpdateHeaders(ruleID, string(headers)) {
		return fmt.Errorf("rule %s: headers not updated", ruleID)
	}
	return errors.Join(
		e.UpdateStatus(ruleID, from.Status),
		e.UpdateDelay(ruleID, from.DelayMs),
		e.SetDynamic(ruleID, from.Dynamic),
		e.SetEnabled(ruleID, from.Enabled),
	)
}

func findRule(rules []*mock.Rule, ruleID string) (*mock.Rule, bool) {
	for _, r := range rules {
		if r.ID == ruleID {
			return r, true
		}
	}
	return nil, false
}

// ruleIDsCmd builds a command applying edit to every rule id argument.
func ruleIDsCmd(use, short, verb string, edit func(*authoring.Editor, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <rule-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openRules(cmd)
			if err != nil {
				return err
			}
			var errs []error
			var done []string
			for _, ruleID := range args {
				if err := edit(s.editor, ruleID); err != nil {
					errs = append(errs, err)
					continue
				}
				done = append(done, ruleID)
			}
			if err := s.close(cmd.Context()); err != nil {
				errs = append(errs, err)
			}

			if len(done) > 0 {
				if err := printResult(cmd, map[string]any{verb: done}, func() {
					for _, ruleID := range done {
						fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", strings.ToUpper(verb[:1])+verb[1:], ruleID)
					}
				}); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
}

var rulesEnableCmd = ruleIDsCmd("enable", "Enable rules", "enabled", func(e *authoring.Editor, ruleID string) error {
	return e.SetEnabled(ruleID, true)
})

var rulesDisableCmd = ruleIDsCmd("disable", "Disable rules", "disabled", func(e *authoring.Editor, ruleID string) error {
	return e.SetEnabled(ruleID, false)
})

var rulesToggleCmd = ruleIDsCmd("toggle", "Flip the enabled flag of rules", "toggled", (*authoring.Editor).Toggle)

var rulesRemoveCmd = ruleIDsCmd("rm", "Remove rules", "removed", (*authoring.Editor).Delete)

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a rule file against the rule schema",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := rulesPath
		if len(args) == 1 {
			path = args[0]
		} else if cfg, err := loadConfig(cmd); err == nil {
			path = cfg.RulesFile
		}

		if _, err := os.Stat(path); err != nil {
			return err
		}
		files := file.New(path)
		defer files.Close()
		rules, err := files.Load(cmd.Context())
		if err != nil {
			return err
		}

		result := map[string]any{"file": path, "valid": true, "count": len(rules)}
		return printResult(cmd, result, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d valid rules\n", path, len(rules))
		})
	},
}

func init() {
	f := rulesAddCmd.Flags()
	f.StringVarP(&addMethod, "method", "m", "GET", "HTTP method")
	f.IntVarP(&addStatus, "status", "s", 200, "Response status code")
	f.IntVarP(&addDelay, "delay", "d", 0, "Artificial latency in milliseconds")
	f.StringVarP(&addResponse, "response", "r", "", `Response template as JSON (default {"message":"Hello PocketMock"})`)
	f.StringArrayVarP(&addHeaders, "header", "H", nil, "Response header NAME=VALUE (repeatable)")
	f.BoolVar(&addDynamic, "dynamic", false, "Expand the response template on every call")
	f.BoolVar(&addDisabled, "disabled", false, "Add the rule disabled")

	rulesCmd.AddCommand(rulesListCmd, rulesAddCmd, rulesEnableCmd, rulesDisableCmd,
		rulesToggleCmd, rulesRemoveCmd, rulesValidateCmd)
	rootCmd.AddCommand(rulesCmd)
}
