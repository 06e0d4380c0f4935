package main

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vcard-normalizer/internal/pipeline"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"merge", "ingest", "serve", "runs", "checkpoint"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "vcard-normalize", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunFlags_Registered(t *testing.T) {
	for _, cmd := range []string{"merge", "ingest"} {
		c, _, err := rootCmd.Find([]string{cmd})
		require.NoError(t, err)
		for _, flag := range []string{"owner-name", "region", "dry-run", "no-interactive", "csv", "xlsx", "categories", "write-changelog"} {
			assert.NotNil(t, c.Flags().Lookup(flag), "%s should have --%s", cmd, flag)
		}
	}
	assert.NotNil(t, mergeCmd.Flags().Lookup("dir"))
	assert.NotNil(t, ingestCmd.Flags().Lookup("input"))
	assert.NotNil(t, checkpointResumeCmd.Flags().Lookup("dry-run"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestCheckpointCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range checkpointCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"show", "clear", "resume"} {
		assert.True(t, names[name], "expected checkpoint subcommand %q", name)
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitNothingToDo, exitCode(pipeline.ErrNoInput))
	assert.Equal(t, exitNothingToDo, exitCode(eris.Wrap(pipeline.ErrNoInput, "merge")))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}
