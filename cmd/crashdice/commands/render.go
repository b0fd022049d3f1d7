package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/crashdice/internal/report"
	"github.com/Sumatoshi-tech/crashdice/internal/workspace"
)

// ErrNoReports is returned by render when the directory holds no report.
var ErrNoReports = errors.New("no reports found")

// NewRenderCommand creates the render command.
func NewRenderCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "render <delta-diff-dir|afl-fuzzing-dir>",
		Short: "Render the reports of a run as an HTML page",
		Long: `Render bar charts of the shrink ratio per crash and of the suspects shared
by most crashes. The argument is either a delta-diff directory or an AFL
fuzzing directory holding one.

Examples:
  crashdice render /fuzz -o crashdice.html
  crashdice render /fuzz/sancov/delta-diff > crashdice.html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			reports, err := report.LoadDir(reportDir(args[0]))
			if err != nil {
				return err
			}

			if len(reports) == 0 {
				return fmt.Errorf("%w in %s", ErrNoReports, args[0])
			}

			var w io.Writer = cmd.OutOrStdout()

			if output != "" {
				f, createErr := os.Create(output)
				if createErr != nil {
					return fmt.Errorf("create %s: %w", output, createErr)
				}

				defer func() {
					err = errors.Join(err, f.Close())
				}()

				w = f
			}

			err = report.RenderPlot(w, reports)
			if err != nil {
				return err
			}

			if output != "" {
				progressf(cmd, "rendered %d reports to %s", len(reports), output)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")

	return cmd
}

// reportDir resolves a fuzzing directory to its delta-diff directory.
func reportDir(dir string) string {
	layout := workspace.NewLayout(dir)
	if layout.Exists() {
		return layout.DeltaDiff
	}

	return dir
}
