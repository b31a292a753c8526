/*
PURPOSE:
  Defines the 'report' subcommand: renders a result CSV into a static HTML
  report, optionally re-rendering every time the CSV changes.

ARCHITECTURE INTEGRATION:
  - Calls: internal/report.Generate, internal/report.Watch

USAGE:
  packbench report performance_results/performance_data_20261017_120000.csv --algorithm greedy
  packbench report results.csv --watch
*/

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/daryltucker/packbench/internal/output"
	"github.com/daryltucker/packbench/internal/report"
)

var (
	reportDatasets  []int
	reportAlgorithm string
	reportOutDir    string
	reportWatch     bool
)

var reportCmd = &cobra.Command{
	Use:   "report <csv>",
	Short: "Render an HTML report from a result CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		csvPath := args[0]
		filter := output.Filter{Datasets: reportDatasets, Algorithm: reportAlgorithm}

		render := func() error {
			path, err := report.Generate(csvPath, reportOutDir, filter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report: %s\n", path)
			return nil
		}
		if err := render(); err != nil {
			return err
		}
		if !reportWatch {
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		output.Logger.Info("Watching for changes", "path", csvPath)
		return report.Watch(ctx, csvPath, render)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().IntSliceVar(&reportDatasets, "datasets", nil, "Only include these dataset ids")
	reportCmd.Flags().StringVar(&reportAlgorithm, "algorithm", "", "Only include algorithms whose name contains this (case-insensitive)")
	reportCmd.Flags().StringVarP(&reportOutDir, "output-dir", "o", "", "Report directory (default visualization_<csv name> next to the CSV)")
	reportCmd.Flags().BoolVar(&reportWatch, "watch", false, "Re-render whenever the CSV is rewritten")
}
