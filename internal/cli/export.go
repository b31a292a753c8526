/*
PURPOSE:
  Defines the 'export' subcommand: result CSV to Go benchmark format.

ARCHITECTURE INTEGRATION:
  - Calls: internal/output.Load, internal/output.WriteBenchfmt

USAGE:
  packbench export results.csv -o results.txt
*/

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/daryltucker/packbench/internal/output"
)

var exportOutput string

// exportCmd converts a result CSV to the Go benchmark format so runs can be
// compared with benchstat.
var exportCmd = &cobra.Command{
	Use:   "export <csv>",
	Short: "Convert a result CSV to Go benchmark format",
	Example: `  packbench export before.csv -o before.txt
  packbench export after.csv -o after.txt
  benchstat before.txt after.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := output.Load(args[0], output.Filter{})
		if err != nil {
			return err
		}

		if exportOutput == "" || exportOutput == "-" {
			return output.WriteBenchfmt(cmd.OutOrStdout(), records)
		}

		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOutput, err)
		}
		if err := output.WriteBenchfmt(f, records); err != nil {
			f.Close()
			return fmt.Errorf("failed to export: %w", err)
		}
		return f.Close()
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")
}
