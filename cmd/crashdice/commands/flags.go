// Package commands implements CLI command handlers for crashdice.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ExitError carries the process exit status of a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// persistentBool reads a flag inherited from the root command. Commands run
// on their own (in tests) do not have it and get false.
func persistentBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		return false
	}

	return v
}

// changed returns a pointer to value when the flag was set on the command
// line, and nil otherwise.
func changed[T any](cmd *cobra.Command, name string, value T) *T {
	if !cmd.Flags().Changed(name) {
		return nil
	}

	return &value
}

func progressf(cmd *cobra.Command, format string, args ...any) {
	if persistentBool(cmd, "quiet") {
		return
	}

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}
