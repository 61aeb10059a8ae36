package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-substrate/substrate/agentfsm"
	"github.com/tarsy-substrate/substrate/artifact"
	"github.com/tarsy-substrate/substrate/config"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Storage.Backend = config.BackendMemory
	return cfg
}

func TestNew_WiresArtifactStoreAndSessionManagerTogether(t *testing.T) {
	rt, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	ctx := context.Background()
	_, err = rt.Sessions.Create(ctx, "tenant-1", "sess-1")
	require.NoError(t, err)

	_, err = rt.Artifacts.Store(ctx, artifact.StoreInput{
		SessionID:   "sess-1",
		LogicalName: "notes.txt",
		Type:        artifact.TypeDocument,
		Content:     []byte("hello"),
	})
	require.NoError(t, err)

	sess, err := rt.Sessions.Get("tenant-1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sess.ArtifactCount)
}

func TestRegisterAgent_TracksMachineForShutdown(t *testing.T) {
	rt, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	m := rt.RegisterAgent("agent-1")
	require.NoError(t, m.Transition(context.Background(), agentfsm.StateInitializing, "boot"))

	found, ok := rt.lookupAgent("agent-1")
	require.True(t, ok)
	assert.Same(t, m, found)

	rt.ForgetAgent("agent-1")
	_, ok = rt.lookupAgent("agent-1")
	assert.False(t, ok)
}

func TestClose_IsIdempotentAcrossProvidersAndStorage(t *testing.T) {
	rt, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	require.NoError(t, rt.Close())
	require.NoError(t, rt.Close())
}

type fakeScriptBridge struct {
	engine Engine
	source string
}

func (f *fakeScriptBridge) Execute(_ context.Context, engine Engine, source string, _ map[string]any) (map[string]any, error) {
	f.engine = engine
	f.source = source
	return map[string]any{"ok": true}, nil
}

func TestRunScript_FailsWithoutScriptBridge(t *testing.T) {
	rt, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	_, err = rt.RunScript(context.Background(), EngineLua, "return 1", nil)
	assert.ErrorIs(t, err, ErrNoScriptBridge)
}

func TestRunScript_DispatchesToWiredBridge(t *testing.T) {
	rt, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	bridge := &fakeScriptBridge{}
	rt.Scripts = bridge

	out, err := rt.RunScript(context.Background(), EngineJavaScript, "1+1", nil)
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, EngineJavaScript, bridge.engine)
	assert.Equal(t, "1+1", bridge.source)
}
