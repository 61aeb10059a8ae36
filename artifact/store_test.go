package artifact

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-substrate/substrate/errs"
	"github.com/tarsy-substrate/substrate/storage/memory"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	backend := memory.New().WithTenant("default")
	return New(backend, DefaultLimits(), nil)
}

func TestStore_StoreAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.Store(ctx, StoreInput{
		SessionID:   "sess-1",
		LogicalName: "notes",
		Type:        TypeAgentOutput,
		Content:     []byte("hello world"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), got.Content)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, int64(1), got.Sequence)
}

func TestStore_Dedup(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id1, err := store.Store(ctx, StoreInput{SessionID: "sess-1", LogicalName: "a", Content: []byte("same bytes")})
	require.NoError(t, err)
	id2, err := store.Store(ctx, StoreInput{SessionID: "sess-1", LogicalName: "b", Content: []byte("same bytes")})
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2, "distinct logical names produce distinct artifact ids")

	a1, err := store.Get(ctx, id1)
	require.NoError(t, err)
	a2, err := store.Get(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, a1.ContentHash, a2.ContentHash, "identical content shares one content hash")
}

func TestStore_SequenceIncrementsPerLogicalName(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id1, err := store.Store(ctx, StoreInput{SessionID: "sess-1", LogicalName: "log", Content: []byte("v1")})
	require.NoError(t, err)
	id2, err := store.Store(ctx, StoreInput{SessionID: "sess-1", LogicalName: "log", Content: []byte("v2")})
	require.NoError(t, err)

	a1, _ := store.Get(ctx, id1)
	a2, _ := store.Get(ctx, id2)
	assert.Equal(t, int64(1), a1.Sequence)
	assert.Equal(t, int64(2), a2.Sequence)
}

func TestStore_SizeLimitExceeded(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	store.limits.MaxArtifactSize = 4

	_, err := store.Store(ctx, StoreInput{SessionID: "sess-1", LogicalName: "big", Content: []byte("too big")})
	require.Error(t, err)
}

func TestStore_DeleteTombstonesAndFreesContent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.Store(ctx, StoreInput{SessionID: "sess-1", LogicalName: "x", Content: []byte("gone soon")})
	require.NoError(t, err)

	ok, err := store.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = store.Get(ctx, id)
	assert.Error(t, err, "deleted artifact should not be readable")

	ok, err = store.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok, "deleting an already-deleted artifact is a no-op")
}

func TestStore_CompressionRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	store.limits.CompressAbove = 4

	content := []byte(strings.Repeat("x", 1024))
	id, err := store.Store(ctx, StoreInput{SessionID: "sess-1", LogicalName: "big", Content: content})
	require.NoError(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, content, got.Content)
	assert.True(t, got.IsCompressed)
}

func TestStore_ChunkingRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	store.limits.ChunkSize = 8
	store.limits.CompressAbove = 0

	content := []byte(strings.Repeat("abcdefgh", 5)) // 40 bytes, 5 chunks
	id, err := store.Store(ctx, StoreInput{SessionID: "sess-1", LogicalName: "chunked", Content: content})
	require.NoError(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, content, got.Content)
}

func TestStore_ListSessionOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id1, _ := store.Store(ctx, StoreInput{SessionID: "sess-1", LogicalName: "a", Content: []byte("1")})
	time.Sleep(2 * time.Millisecond)
	id2, _ := store.Store(ctx, StoreInput{SessionID: "sess-1", LogicalName: "b", Content: []byte("2")})

	ids, err := store.ListSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Contains(t, ids, id1)
	assert.Contains(t, ids, id2)
	assert.Equal(t, []string{id2, id1}, ids)
}

func TestStore_QueryFiltersByType(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Store(ctx, StoreInput{SessionID: "sess-1", LogicalName: "a", Type: TypeCode, Content: []byte("code")})
	require.NoError(t, err)
	_, err = store.Store(ctx, StoreInput{SessionID: "sess-1", LogicalName: "b", Type: TypeData, Content: []byte("data")})
	require.NoError(t, err)

	results, err := store.Query(ctx, QueryFilter{SessionID: "sess-1", Type: TypeCode})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, TypeCode, results[0].Type)
}

func TestStore_Stats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Store(ctx, StoreInput{SessionID: "sess-1", LogicalName: "a", Content: []byte("12345")})
	require.NoError(t, err)
	_, err = store.Store(ctx, StoreInput{SessionID: "sess-1", LogicalName: "b", Content: []byte("67890")})
	require.NoError(t, err)

	stats, err := store.Stats(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ArtifactCount)
	assert.Equal(t, int64(10), stats.TotalSizeBytes)
}

type countingCounter struct {
	incremented, decremented int
}

func (c *countingCounter) IncrementArtifactCount(context.Context, string, int64) error {
	c.incremented++
	return nil
}

func (c *countingCounter) DecrementArtifactCount(context.Context, string, int64) error {
	c.decremented++
	return nil
}

func TestStore_GetFailsTenantMismatchWhenRowBelongsToAnotherTenant(t *testing.T) {
	ctx := context.Background()
	backend := memory.New().WithTenant("default")
	store := New(backend, DefaultLimits(), nil)

	id, err := store.Store(ctx, StoreInput{SessionID: "sess-1", LogicalName: "a", Content: []byte("x")})
	require.NoError(t, err)

	// Simulate a row that was written under a different tenant than the
	// backend this Store is now bound to (e.g. stale wiring, or a
	// row-filtering bug in the backend) by overwriting the metadata row's
	// recorded TenantID in place.
	meta, err := store.readMetadata(ctx, id)
	require.NoError(t, err)
	meta.TenantID = "other-tenant"
	require.NoError(t, store.writeMetadata(ctx, *meta))

	_, err = store.Get(ctx, id)
	require.Error(t, err)
	assert.Equal(t, errs.KindTenantMismatch, errs.KindOf(err))

	ok, err := store.Delete(ctx, id)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, errs.KindTenantMismatch, errs.KindOf(err))
}

func TestStore_NotifiesSessionCounter(t *testing.T) {
	ctx := context.Background()
	backend := memory.New().WithTenant("default")
	counter := &countingCounter{}
	store := New(backend, DefaultLimits(), counter)

	id, err := store.Store(ctx, StoreInput{SessionID: "sess-1", LogicalName: "a", Content: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, 1, counter.incremented)

	_, err = store.Delete(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, counter.decremented)
}
