package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackend_SetGetRoundTrips(t *testing.T) {
	b := New()
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k1", []byte("v1")))
	v, err := b.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)
}

func TestBackend_GetMissingKeyReturnsNotFound(t *testing.T) {
	b := New()
	_, err := b.Get(context.Background(), "missing")
	assert.Error(t, err)
}

func TestBackend_ExistsAndDelete(t *testing.T) {
	b := New()
	ctx := context.Background()
	require.NoError(t, b.Set(ctx, "k1", []byte("v1")))

	ok, err := b.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	deleted, err := b.Delete(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, deleted)

	ok, err = b.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackend_ListReturnsSortedKeysUnderPrefix(t *testing.T) {
	b := New()
	ctx := context.Background()
	require.NoError(t, b.Set(ctx, "session/b", []byte("1")))
	require.NoError(t, b.Set(ctx, "session/a", []byte("2")))
	require.NoError(t, b.Set(ctx, "other/c", []byte("3")))

	keys, err := b.List(ctx, "session/")
	require.NoError(t, err)
	assert.Equal(t, []string{"session/a", "session/b"}, keys)
}

func TestBackend_WithTenantIsolatesKeysButSharesUnderlyingStore(t *testing.T) {
	b := New()
	ctx := context.Background()
	tenantA := b.WithTenant("a")
	tenantB := b.WithTenant("b")

	require.NoError(t, tenantA.Set(ctx, "k", []byte("a-value")))
	require.NoError(t, tenantB.Set(ctx, "k", []byte("b-value")))

	va, err := tenantA.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("a-value"), va)

	vb, err := tenantB.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("b-value"), vb)
}

func TestBackend_ContentRefcountTracksFirstInsertAndDrainsToZero(t *testing.T) {
	b := New()
	ctx := context.Background()

	count, first, err := b.UpsertContentRefcount(ctx, "hash1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.True(t, first)

	count, first, err = b.UpsertContentRefcount(ctx, "hash1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.False(t, first)

	count, err = b.DecrementContentRefcount(ctx, "hash1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = b.DecrementContentRefcount(ctx, "hash1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
