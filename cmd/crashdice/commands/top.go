package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/crashdice/internal/report"
)

const defaultTopLimit = 20

// NewTopCommand creates the top command.
func NewTopCommand() *cobra.Command {
	var (
		ledgerPath string
		runID      string
		limit      int
		listRuns   bool
	)

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Rank suspects across crashes from the ledger",
		Long: `Rank the locations recorded in a ledger by the number of crashes whose
delta they appear in, then by their summed counts.

Examples:
  crashdice top --ledger crashdice.db
  crashdice top --ledger crashdice.db --run 0f6c... --limit 50
  crashdice top --ledger crashdice.db --runs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			_, err = os.Stat(ledgerPath)
			if err != nil {
				return fmt.Errorf("ledger: %w", err)
			}

			ctx := cmdContext(cmd)

			ledger, err := report.OpenLedger(ctx, ledgerPath)
			if err != nil {
				return err
			}

			defer func() {
				err = errors.Join(err, ledger.Close())
			}()

			if listRuns {
				runs, runsErr := ledger.Runs(ctx)
				if runsErr != nil {
					return runsErr
				}

				return report.RenderRuns(cmd.OutOrStdout(), runs)
			}

			ranks, err := ledger.TopSuspects(ctx, runID, limit)
			if err != nil {
				return err
			}

			return report.RenderRanks(cmd.OutOrStdout(), ranks)
		},
	}

	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "SQLite ledger written by run --ledger")
	cmd.Flags().StringVar(&runID, "run", "", "Restrict the ranking to one run (default all runs)")
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultTopLimit, "Rows to print (0 prints all)")
	cmd.Flags().BoolVar(&listRuns, "runs", false, "List recorded runs instead")

	_ = cmd.MarkFlagRequired("ledger")

	return cmd
}
