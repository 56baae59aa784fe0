package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/getmockd/pocketmock/pkg/config"
	"github.com/getmockd/pocketmock/pkg/store"
)

var (
	// Persistent flags available to all subcommands
	configPath string
	rulesPath  string
	jsonOutput bool

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pocketmock",
	Short: "pocketmock intercepts outbound HTTP calls and answers them from rules",
	Long: `pocketmock answers outbound HTTP calls from an editable set of rules, with
generated mock data, artificial latency and a request log.

Rules live in a JSON or YAML file (pocket-mock.json by default). Settings can be
given as flags, POCKETMOCK_* environment variables, or a pocketmock.yaml file.`,
	SilenceUsage:  true,
	SilenceErrors: true, // We handle errors in Execute()
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./pocketmock.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", store.DefaultRulesFile, "Rule file (JSON or YAML)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")
}

// loadConfig resolves the configuration for cmd from its config file,
// environment and the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configPath, cmd.Flags())
}
