/*
PURPOSE:
  Defines the 'algorithms' subcommand.
  Lists the algorithm catalog with the indices --algorithms takes and the
  menu codes the solver receives.

ARCHITECTURE INTEGRATION:
  - Uses: internal/model (catalog), internal/engine (menu)

USAGE:
  packbench algorithms
*/

package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/daryltucker/packbench/internal/engine"
	"github.com/daryltucker/packbench/internal/model"
)

var algorithmsCmd = &cobra.Command{
	Use:   "algorithms",
	Short: "List the algorithm catalog and menu codes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "INDEX\tCODE\tALGORITHM")
		for i, name := range model.Catalog() {
			script, err := engine.BuildScript(model.NewRequest(1, i, 0))
			if err != nil {
				return err
			}
			code := script[2]
			if i == model.GreedyEntry {
				code += fmt.Sprintf(" (variants 1-%d via --greedy-variant 0-%d)", model.GreedyVariants, model.GreedyVariants-1)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\n", i, code, name)
		}
		fmt.Fprintf(tw, "-\t%s\tcompare mode: all algorithms\n", engine.DefaultMenu.Compare)
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(algorithmsCmd)
}
