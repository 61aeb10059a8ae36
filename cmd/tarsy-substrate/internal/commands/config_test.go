package commands

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidateCmd_AcceptsDefaultsWithNoFile(t *testing.T) {
	configPath := ""
	outputMode := "text"
	cmd := newConfigValidateCmd(&configPath, &outputMode)
	require.NoError(t, cmd.RunE(cmd, nil))
}

func TestConfigValidateCmd_RejectsInvalidOverlay(t *testing.T) {
	path := t.TempDir() + "/bad.yaml"
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: carrier-pigeon\n"), 0o600))

	configPath := ""
	outputMode := "text"
	cmd := newConfigValidateCmd(&configPath, &outputMode)
	require.NoError(t, cmd.Flags().Set("file", path))

	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage backend")
}
