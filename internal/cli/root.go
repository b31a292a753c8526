/*
PURPOSE:
  Defines the root Cobra command for the packbench CLI.
  Handles global flags, logger setup and command initialization.

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface.
  - Support global flags like --config.

  Implementation-discovered:
  - Logging must be configured before any subcommand logs, so it lives in
    PersistentPreRunE rather than in each command.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/packbench/main.go
  - Calls: Child commands (run, report, serve, export, algorithms)

ERROR HANDLING:
  - Returns error to main.go for exit code handling.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands.

RELATED FILES:
  - cmd/packbench/main.go

MAINTENANCE:
  - Update when adding global configuration options.
*/

package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/daryltucker/packbench/internal/output"
)

var (
	// cfgFile stores the path to the config file (if specified via flag)
	cfgFile   string
	logLevel  string
	logFormat string

	rootCmd = &cobra.Command{
		Use:   "packbench",
		Short: "Benchmark harness for the truck packing solver",
		Long: `Drives the interactive truck packing solver across datasets and algorithms,
extracts execution time and profit from its output, and persists the results
as CSV. Use 'run --help' for sweep options.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return output.Configure(os.Stderr, logLevel, logFormat)
		},
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./packbench.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
}
