package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/crashdice/cmd/crashdice/commands"
)

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, exitCode(errors.New("plain")))
	assert.Equal(t, 2, exitCode(&commands.ExitError{Code: 2, Err: errors.New("invalid")}))
	assert.Equal(t, 2, exitCode(fmt.Errorf("wrapped: %w", &commands.ExitError{Code: 2, Err: errors.New("invalid")})))
}

func TestRootCommand_Version(t *testing.T) {
	t.Parallel()

	root := newRootCommand()

	var out bytes.Buffer

	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "crashdice ")
	assert.Contains(t, out.String(), "commit:")
}

func TestRootCommand_Subcommands(t *testing.T) {
	t.Parallel()

	root := newRootCommand()

	for _, name := range []string{"run", "validate", "show", "render", "top", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	assert.NotNil(t, root.PersistentFlags().Lookup("verbose"))
	assert.NotNil(t, root.PersistentFlags().Lookup("quiet"))
}
