package commands

import (
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunScript_NoScriptBridgeConfiguredFailsNonZero(t *testing.T) {
	configPath := t.TempDir() + "/config.yaml"
	require.NoError(t, os.WriteFile(configPath, []byte("storage:\n  backend: memory\n"), 0o600))

	err := runScript(&cobra.Command{}, configPath, "lua", "text", "return 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no script bridge configured")
}

func TestRunScript_RejectsUnknownEngineBeforeBuildingRuntime(t *testing.T) {
	err := runScript(&cobra.Command{}, "", "ruby", "text", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown engine")
}
