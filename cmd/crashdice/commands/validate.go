package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/crashdice/internal/report"
)

// exitCodeValidationFailure is the exit code for invalid reports.
const exitCodeValidationFailure = 2

// ErrReportInvalid is wrapped by the validate command when a report does not
// match the schema.
var ErrReportInvalid = errors.New("report does not match the schema")

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	var colorize, nocolor bool

	cmd := &cobra.Command{
		Use:   "validate <report.json|report.yaml|->",
		Short: "Check a delta report against the report schema",
		Long: `Check a delta report against the embedded JSON Schema. YAML reports are
converted before validation; "-" reads JSON from stdin.

Examples:
  crashdice validate /fuzz/sancov/delta-diff/id:000001,sig:11,src:000000,op:havoc.json
  crashdice validate - < report.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if nocolor {
				color.NoColor = true //nolint:reassign // intentional override of library global
			} else if colorize {
				color.NoColor = false //nolint:reassign // intentional override of library global
			}

			return runValidate(cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&colorize, "color", false, "force colored output")
	cmd.Flags().BoolVar(&nocolor, "no-color", false, "disable colored output")

	return cmd
}

func runValidate(cmd *cobra.Command, inputPath string) error {
	data, label, err := readReport(cmd, inputPath)
	if err != nil {
		return &ExitError{Code: exitCodeValidationFailure, Err: err}
	}

	violations, err := report.ValidateJSON(data)
	if err != nil {
		return &ExitError{Code: exitCodeValidationFailure, Err: fmt.Errorf("%s: %w", label, err)}
	}

	out := cmd.OutOrStdout()

	if len(violations) == 0 {
		if !persistentBool(cmd, "quiet") {
			color.New(color.FgGreen).Fprintf(out, "report is valid (%s)\n", label)
		}

		return nil
	}

	color.New(color.FgRed).Fprintf(out, "report validation failed (%s)\n", label)
	fmt.Fprintf(out, "\nErrors:\n")

	for _, v := range violations {
		color.New(color.FgRed).Fprintf(out, "  - %s\n", v)
	}

	return &ExitError{
		Code: exitCodeValidationFailure,
		Err:  fmt.Errorf("%w: %s: %d violations", ErrReportInvalid, label, len(violations)),
	}
}

// readReport returns the report at inputPath as JSON.
func readReport(cmd *cobra.Command, inputPath string) (data []byte, label string, err error) {
	if inputPath == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, "", fmt.Errorf("read stdin: %w", err)
		}

		return data, "stdin", nil
	}

	data, err = os.ReadFile(inputPath)
	if err != nil {
		return nil, "", fmt.Errorf("read report: %w", err)
	}

	switch strings.ToLower(filepath.Ext(inputPath)) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", inputPath, err)
		}
	}

	return data, inputPath, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any

	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	return json.Marshal(doc)
}
