package controlplane

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/pgrestgw/internal/config"
	"github.com/vitaliisemenov/pgrestgw/internal/core"
	"github.com/vitaliisemenov/pgrestgw/internal/metrics"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	store, err := New(config.RedisConfig{Addr: mr.Addr()}, nil, reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_VersionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok := store.GetVersion(ctx, "users")
	assert.False(t, ok)

	require.NoError(t, store.PutVersion(ctx, "users", "42"))

	tok, ok := store.GetVersion(ctx, "users")
	require.True(t, ok)
	assert.Equal(t, core.VersionToken("42"), tok)
}

func TestStore_BumpVersionIsMonotonicTimestamp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.UnixMilli(1_700_000_000_000)
	tok, err := store.BumpVersion(ctx, "users", now)
	require.NoError(t, err)
	assert.Equal(t, core.VersionToken("1700000000000"), tok)

	stored, ok := store.GetVersion(ctx, "users")
	require.True(t, ok)
	assert.Equal(t, tok, stored)
}

func TestStore_SchemaRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cols := []core.ColumnDescriptor{{Name: "id", SQLType: core.SQLTypeInteger}}
	require.NoError(t, store.PutSchema(ctx, "users", cols, "7"))

	entry, ok := store.GetSchema(ctx, "users")
	require.True(t, ok)
	assert.Equal(t, cols, entry.Columns)
	assert.Equal(t, core.VersionToken("7"), entry.Version)

	require.NoError(t, store.DeleteSchema(ctx, "users"))
	_, ok = store.GetSchema(ctx, "users")
	assert.False(t, ok)
}

func TestStore_OpenAPIRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	spec := json.RawMessage(`{"openapi":"3.0.0"}`)
	cachedAt := time.UnixMilli(1_700_000_000_000).UTC()
	require.NoError(t, store.PutOpenAPI(ctx, spec, "digest-1", cachedAt))

	entry, ok := store.GetOpenAPI(ctx)
	require.True(t, ok)
	assert.JSONEq(t, string(spec), string(entry.Spec))
	assert.Equal(t, "digest-1", entry.Version)
	assert.True(t, cachedAt.Equal(entry.CachedAt))
}
