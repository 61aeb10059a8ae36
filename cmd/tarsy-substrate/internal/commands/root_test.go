package commands

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-substrate/substrate/cmd/tarsy-substrate/internal/output"
	"github.com/tarsy-substrate/substrate/runtime"
)

func TestParseEngine_AcceptsTheThreeSupportedEngines(t *testing.T) {
	for _, raw := range []string{"lua", "javascript", "python"} {
		got, err := parseEngine(raw)
		require.NoError(t, err)
		assert.Equal(t, runtime.Engine(raw), got)
	}
}

func TestParseEngine_RejectsUnknownEngine(t *testing.T) {
	_, err := parseEngine("ruby")
	require.Error(t, err)
}

func TestParseFormat_AcceptsTextAndJSON(t *testing.T) {
	got, err := parseFormat("text")
	require.NoError(t, err)
	assert.Equal(t, output.Text, got)

	got, err = parseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, output.JSON, got)
}

func TestParseFormat_RejectsUnknownFormat(t *testing.T) {
	_, err := parseFormat("xml")
	require.Error(t, err)
}

func TestBuildRuntime_LoadsConfigAndWiresRuntime(t *testing.T) {
	path := t.TempDir() + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: memory\n"), 0o600))

	rt, err := buildRuntime(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	assert.NotNil(t, rt.Sessions)
}
