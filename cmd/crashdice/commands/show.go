package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/crashdice/internal/report"
)

const defaultShowLimit = 20

// NewShowCommand creates the show command.
func NewShowCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "show <report>",
		Short: "Print a delta report as a table",
		Long: `Print the summary and the ranked suspects of one delta report.

Examples:
  crashdice show /fuzz/sancov/delta-diff/id:000001,sig:11,src:000000,op:havoc.json
  crashdice show --limit 0 report.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := report.LoadFile(args[0])
			if err != nil {
				return err
			}

			return report.RenderTable(cmd.OutOrStdout(), r, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultShowLimit, "Rows to print (0 prints all)")

	return cmd
}
