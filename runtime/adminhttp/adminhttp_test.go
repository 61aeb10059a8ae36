package adminhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-substrate/substrate/artifact"
	"github.com/tarsy-substrate/substrate/config"
	"github.com/tarsy-substrate/substrate/runtime"
)

func testRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()
	cfg := config.Defaults()
	cfg.Storage.Backend = config.BackendMemory
	rt, err := runtime.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestHealthz_ReportsOKWithoutAHealthChecker(t *testing.T) {
	srv := New(testRuntime(t))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthz_ReportsConnectionStatsForASQLBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.Backend = config.BackendSQLite
	cfg.Storage.SQLite.Path = ":memory:"
	rt, err := runtime.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	srv := New(rt)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status          string `json:"status"`
		OpenConnections int    `json:"open_connections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, 1, body.OpenConnections)
}

func TestListSessions_ReturnsCreatedSessions(t *testing.T) {
	rt := testRuntime(t)
	_, err := rt.Sessions.Create(context.Background(), "tenant-1", "sess-1")
	require.NoError(t, err)

	srv := New(rt)
	req := httptest.NewRequest(http.MethodGet, "/sessions?tenant=tenant-1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Tenant   string           `json:"tenant"`
		Sessions []map[string]any `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "tenant-1", body.Tenant)
	require.Len(t, body.Sessions, 1)
	assert.Equal(t, "sess-1", body.Sessions[0]["id"])
}

func TestSessionStats_ReturnsArtifactCounts(t *testing.T) {
	rt := testRuntime(t)
	ctx := context.Background()
	_, err := rt.Sessions.Create(ctx, "tenant-1", "sess-1")
	require.NoError(t, err)
	_, err = rt.Artifacts.Store(ctx, artifact.StoreInput{
		SessionID:   "sess-1",
		LogicalName: "notes.txt",
		Type:        artifact.TypeDocument,
		Content:     []byte("hello"),
	})
	require.NoError(t, err)

	srv := New(rt)
	req := httptest.NewRequest(http.MethodGet, "/sessions/sess-1/stats", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		ArtifactCount int `json:"artifact_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.ArtifactCount)
}

func TestMetrics_ReturnsHookExecutionSnapshot(t *testing.T) {
	rt := testRuntime(t)
	srv := New(rt)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "hook_executions")
}
