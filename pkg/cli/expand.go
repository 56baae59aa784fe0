package cli

import (
	"fmt"
	"io"
	mathrand "math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/getmockd/pocketmock/pkg/cli/internal/output"
	"github.com/getmockd/pocketmock/pkg/config"
	"github.com/getmockd/pocketmock/pkg/generator"
	"github.com/getmockd/pocketmock/pkg/template"
)

var (
	expandSeed  uint64
	expandCount int
	expandPath  string
)

var expandCmd = &cobra.Command{
	Use:   "expand [template-file]",
	Short: "Expand a response template into mock data",
	Long: `Expand a JSON or YAML response template, resolving generator directives,
aliases and repeat keys. The template is read from the file, or from stdin when
the file is omitted or "-".

Examples:
  echo '{"users|3": {"id": "@guid", "name": "@name"}}' | pocketmock expand
  pocketmock expand user.yaml --aliases aliases.yaml --count 5
  pocketmock expand order.json --seed 42 --path '$.items[*].sku'`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		name := "-"
		if len(args) == 1 {
			name = args[0]
		}
		tmpl, err := readTemplate(cmd.InOrStdin(), name)
		if err != nil {
			return err
		}

		var selector jp.Expr
		if expandPath != "" {
			if selector, err = jp.ParseString(expandPath); err != nil {
				return fmt.Errorf("--path: %w", err)
			}
		}

		engine := newTemplateEngine(cmd, cfg)
		results := make([]any, 0, max(expandCount, 1))
		for range max(expandCount, 1) {
			v, err := engine.Expand(tmpl)
			if err != nil {
				return err
			}
			if selector != nil {
				v = selector.Get(v)
			}
			results = append(results, v)
		}

		if expandCount <= 1 {
			return output.JSON(cmd.OutOrStdout(), results[0])
		}
		return output.JSON(cmd.OutOrStdout(), results)
	},
}

// newTemplateEngine builds an engine with the configured aliases, seeding the
// generators when --seed was given.
func newTemplateEngine(cmd *cobra.Command, cfg *config.Config) *template.Engine {
	var genOpts []generator.Option
	if cmd.Flags().Changed("seed") {
		genOpts = append(genOpts, generator.WithRand(mathrand.New(mathrand.NewPCG(expandSeed, expandSeed))))
	}
	aliases := template.NewAliases()
	aliases.Register(cfg.Aliases)
	return template.New(
		template.WithGenerators(generator.New(genOpts...)),
		template.WithAliases(aliases),
		template.WithMaxDepth(cfg.Template.MaxDepth),
		template.WithMaxRepeat(cfg.Template.MaxRepeat),
	)
}

// readTemplate decodes a JSON or YAML template from name, or from stdin for "-".
// Stdin is sniffed: input starting with { or [ is JSON.
func readTemplate(stdin io.Reader, name string) (any, error) {
	var data []byte
	var err error
	if name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, err
	}

	isYAML := false
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		isYAML = true
	case ".json":
	default:
		trimmed := strings.TrimSpace(string(data))
		isYAML = !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[")
	}

	var tmpl any
	if isYAML {
		if err := yaml.Unmarshal(data, &tmpl); err != nil {
			return nil, fmt.Errorf("decoding YAML template: %w", err)
		}
		return tmpl, nil
	}
	if err := oj.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("decoding JSON template: %w", err)
	}
	return tmpl, nil
}

func init() {
	f := expandCmd.Flags()
	f.Uint64Var(&expandSeed, "seed", 0, "Seed the generators for reproducible output")
	f.IntVarP(&expandCount, "count", "n", 1, "Number of independent expansions")
	f.StringVar(&expandPath, "path", "", "JSONPath selecting part of each result")
	f.String("aliases", "", "JSON or YAML file of template aliases")
	f.Int("max-depth", template.DefaultMaxDepth, "Alias nesting limit")
	f.Int("max-repeat", template.DefaultMaxRepeat, "Item limit for name|count repeat keys")
	rootCmd.AddCommand(expandCmd)
}
