package cli

import (
	"fmt"
	mathrand "math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/getmockd/pocketmock/pkg/cli/internal/output"
	"github.com/getmockd/pocketmock/pkg/generator"
)

var (
	generateCount int
	generateSeed  uint64
)

var generateCmd = &cobra.Command{
	Use:     "generate [generator] [args]",
	Aliases: []string{"gen"},
	Short:   "Run a built-in generator, or list them",
	Long: `Run a built-in generator and print the values it produces. Without
arguments the generator names are listed.

Examples:
  pocketmock generate
  pocketmock generate guid
  pocketmock generate integer 1,100 -n 5
  pocketmock generate image 320x240`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts []generator.Option
		if cmd.Flags().Changed("seed") {
			opts = append(opts, generator.WithRand(mathrand.New(mathrand.NewPCG(generateSeed, generateSeed))))
		}
		reg := generator.New(opts...)

		if len(args) == 0 {
			names := reg.Names()
			return printResult(cmd, names, func() {
				for _, name := range names {
					fmt.Fprintf(cmd.OutOrStdout(), "@%s\n", name)
				}
			})
		}

		name := args[0]
		if len(name) > 0 && name[0] == '@' {
			name = name[1:]
		}
		var genArgs string
		if len(args) == 2 {
			genArgs = args[1]
		}
		if !reg.Has(name) {
			return fmt.Errorf("unknown generator %q (run 'pocketmock generate' for the list)", name)
		}

		values := make([]any, 0, max(generateCount, 1))
		for range max(generateCount, 1) {
			v, _ := reg.Invoke(name, genArgs)
			values = append(values, v)
		}

		if jsonOutput {
			if len(values) == 1 {
				return output.JSON(cmd.OutOrStdout(), values[0])
			}
			return output.JSON(cmd.OutOrStdout(), values)
		}
		for _, v := range values {
			fmt.Fprintln(cmd.OutOrStdout(), v)
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().IntVarP(&generateCount, "count", "n", 1, "Number of values")
	generateCmd.Flags().Uint64Var(&generateSeed, "seed", 0, "Seed the generator for reproducible output")
	rootCmd.AddCommand(generateCmd)
}
