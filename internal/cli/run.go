/*
PURPOSE:
  Defines the 'run' subcommand.
  Executes the full benchmark sweep.

REQUIREMENTS:
  User-specified:
  - Run the benchmarks.
  - Specific flags for overrides.
  - Per-unit failures are reported but the command still exits 0.

  Implementation-discovered:
  - Need to load config first.
  - Apply only flags the user actually set; zero values are legitimate overrides
    (e.g. --greedy-variant 0).

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Run()
  - Uses: internal/config

ERROR HANDLING:
  - Returns error if config load fails, the solver cannot be spawned, or the
    result file cannot be persisted.

IMPLEMENTATION RULES:
  - Setup flags in init().
  - Logic: Load Config -> Override -> Engine.Run.

USAGE:
  packbench run --datasets 1,2,3 --mode single --algorithms 0,3

RELATED FILES:
  - internal/cli/root.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/daryltucker/packbench/internal/config"
	"github.com/daryltucker/packbench/internal/engine"
	"github.com/daryltucker/packbench/internal/model"
)

var (
	programOverride        string
	datasetsOverride       []int
	modeOverride           string
	algorithmsOverride     []int
	greedyVariantOverride  int
	outputOverride         string
	timeoutOverride        time.Duration
	compareTimeoutOverride time.Duration
	parallelOverride       int
	jsonFileOverride       string
	metricsFileOverride    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the benchmark sweep",
	Long: `Runs the solver once per unit of work and records execution time and profit.

In compare mode (the default) each dataset is one unit: the solver's comparison
table yields a record per algorithm. In single mode every dataset x algorithm
pair is its own unit.

The result CSV is rewritten after every unit, so an interrupted sweep leaves
every completed unit on disk. Units that time out or fail are logged and
skipped; the command only fails when the solver cannot be started at all or
results cannot be written.`,
	Example: `  # Compare all algorithms on datasets 1-10 (uses packbench.yaml if present)
  packbench run

  # Run dynamic programming and the greedy entry on three datasets
  packbench run --mode single --algorithms 0,3 --greedy-variant 1 --datasets 1,2,3

  # Four solver processes at once, results and metrics into ./out
  packbench run --parallel 4 -o ./out --metrics-file ./out/packbench.prom`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. Load Config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// 2. Overrides
		flags := cmd.Flags()
		if flags.Changed("program") {
			cfg.Program = programOverride
		}
		if flags.Changed("datasets") {
			cfg.Datasets = datasetsOverride
		}
		if flags.Changed("mode") {
			cfg.Mode = model.Mode(modeOverride)
		}
		if flags.Changed("algorithms") {
			cfg.Algorithms = algorithmsOverride
		}
		if flags.Changed("greedy-variant") {
			cfg.GreedyVariant = greedyVariantOverride
		}
		if flags.Changed("output-dir") {
			cfg.OutputDir = outputOverride
		}
		if flags.Changed("timeout") {
			cfg.Timeout = timeoutOverride
		}
		if flags.Changed("compare-timeout") {
			cfg.CompareTimeout = compareTimeoutOverride
		}
		if flags.Changed("parallel") {
			cfg.Parallelism = parallelOverride
		}
		if flags.Changed("json-file") {
			cfg.JSONFile = jsonFileOverride
		}
		if flags.Changed("metrics-file") {
			cfg.MetricsFile = metricsFileOverride
		}

		// 3. Execution
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sum, err := engine.Run(ctx, cfg)
		if sum != nil {
			printSummary(cmd, sum)
		}
		return err
	},
}

func printSummary(cmd *cobra.Command, sum *engine.Summary) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s: %d units, %d records, %d failed, %d parse warnings\n",
		sum.RunID, len(sum.Units), len(sum.Records), sum.Failed, sum.Warnings)
	for _, u := range sum.Units {
		if u.State == model.UnitFailed {
			fmt.Fprintf(w, "  failed: %s (%v)\n", u.Request, u.Err)
		}
	}
	if sum.Path != "" {
		fmt.Fprintf(w, "Results: %s\n", sum.Path)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&programOverride, "program", "", "Path to the solver executable")
	f.IntSliceVar(&datasetsOverride, "datasets", nil, "Comma-separated dataset ids")
	f.StringVar(&modeOverride, "mode", "", "Sweep mode: compare or single")
	f.IntSliceVar(&algorithmsOverride, "algorithms", nil, "Comma-separated catalog indices for single mode (see 'packbench algorithms')")
	f.IntVar(&greedyVariantOverride, "greedy-variant", 0, "Greedy sub-variant (0-2) sent after the greedy menu entry")
	f.StringVarP(&outputOverride, "output-dir", "o", "", "Output directory for the result CSV")
	f.DurationVar(&timeoutOverride, "timeout", 0, "Per-invocation timeout in single mode")
	f.DurationVar(&compareTimeoutOverride, "compare-timeout", 0, "Per-invocation timeout in compare mode")
	f.IntVar(&parallelOverride, "parallel", 0, "Number of solver processes to run at once")
	f.StringVar(&jsonFileOverride, "json-file", "", "Also append every record to this JSONL file")
	f.StringVar(&metricsFileOverride, "metrics-file", "", "Write Prometheus text-format metrics here when the sweep ends")
}
