// Package main is the crashdice command.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/crashdice/cmd/crashdice/commands"
	"github.com/Sumatoshi-tech/crashdice/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	err := newRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "crashdice",
		Short: "Differential fault localization for AFL crashes",
		Long: `crashdice diffs the sanitizer coverage of AFL crashes against the coverage
of their non-crashing ancestors and ranks the lines only the crash executes.

Commands:
  run       Localize every crash of a crash directory
  validate  Check a report against the report schema
  show      Print one report as a table
  render    Render all reports of a workspace as HTML charts
  top       Rank suspects across crashes from the ledger`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Read by subcommands through the inherited flag set.
	root.PersistentFlags().BoolP("verbose", "v", false, "Debug logging")
	root.PersistentFlags().BoolP("quiet", "q", false, "Log to the workspace log file only")

	root.AddCommand(
		commands.NewRunCommand(),
		commands.NewValidateCommand(),
		commands.NewShowCommand(),
		commands.NewRenderCommand(),
		commands.NewTopCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				printVersion(cmd.OutOrStdout())
			},
		},
	)

	return root
}

func printVersion(w io.Writer) {
	fmt.Fprintln(w, version.String())
}

// exitCode maps a command error to the process status: the code carried by
// [commands.ExitError], 1 otherwise.
func exitCode(err error) int {
	var exitErr *commands.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	return 1
}
