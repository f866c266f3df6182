package dataplane

import (
	"context"
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

func newTestCache(t *testing.T, compression bool) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	c, err := New(config.RedisConfig{Addr: mr.Addr()}, time.Minute, compression, nil, reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestCache_MatchMiss(t *testing.T) {
	c, _ := newTestCache(t, false)
	_, ok := c.Match(context.Background(), "https://internal.pgrestgw.local/1/users/list")
	assert.False(t, ok)
}

func TestCache_PutMatchRoundTrip_Uncompressed(t *testing.T) {
	c, _ := newTestCache(t, false)
	ctx := context.Background()

	url := "https://internal.pgrestgw.local/1/users/list"
	entry := &Entry{Body: []byte(`[{"id":1}]`), ContentType: "application/json", StatusCode: 200}
	require.NoError(t, c.Put(ctx, url, entry, 0))

	got, ok := c.Match(ctx, url)
	require.True(t, ok)
	assert.Equal(t, entry, got)
}

func TestCache_PutMatchRoundTrip_Compressed(t *testing.T) {
	c, _ := newTestCache(t, true)
	ctx := context.Background()

	url := "https://internal.pgrestgw.local/1/users/list"
	entry := &Entry{Body: []byte(`[{"id":1},{"id":2}]`), ContentType: "application/json", StatusCode: 200}
	require.NoError(t, c.Put(ctx, url, entry, 0))

	got, ok := c.Match(ctx, url)
	require.True(t, ok)
	assert.Equal(t, entry, got)
}

func TestCache_PutHonorsMaxAgeOverride(t *testing.T) {
	c, mr := newTestCache(t, false)
	ctx := context.Background()

	url := "https://internal.pgrestgw.local/1/users/list"
	require.NoError(t, c.Put(ctx, url, &Entry{Body: []byte("x")}, 5*time.Second))

	ttl := mr.TTL(url)
	assert.Equal(t, 5*time.Second, ttl)
}

func TestCache_Delete(t *testing.T) {
	c, _ := newTestCache(t, false)
	ctx := context.Background()

	url := "https://internal.pgrestgw.local/1/users/list"
	require.NoError(t, c.Put(ctx, url, &Entry{Body: []byte("x")}, 0))
	require.NoError(t, c.Delete(ctx, url))

	_, ok := c.Match(ctx, url)
	assert.False(t, ok)
}

func TestFingerprint_EmptyQueryIsList(t *testing.T) {
	assert.Equal(t, "list", Fingerprint(core.ParsedQuery{}))
}

func TestFingerprint_FiltersSortedByFieldName(t *testing.T) {
	q := core.ParsedQuery{
		Filters: []core.Filter{
			{Field: "name", Op: core.OpEq, Value: "bob"},
			{Field: "age", Op: core.OpGte, Value: int64(18)},
		},
	}
	assert.Equal(t, "f[age:gte:18,name:eq:bob]", Fingerprint(q))
}

func TestFingerprint_FullQuery(t *testing.T) {
	limit, offset := 10, 20
	q := core.ParsedQuery{
		Filters: []core.Filter{{Field: "id", Op: core.OpEq, Value: int64(1)}},
		Sort:    []core.SortDirective{{Field: "created_at", Direction: core.SortDesc}},
		Limit:   &limit,
		Offset:  &offset,
		Select:  []string{"name", "id"},
	}
	assert.Equal(t, "f[id:eq:1];s[-created_at];l10;o20;c[id,name]", Fingerprint(q))
}

func TestFingerprint_IsDeterministicRegardlessOfInputOrder(t *testing.T) {
	q1 := core.ParsedQuery{Select: []string{"b", "a"}}
	q2 := core.ParsedQuery{Select: []string{"a", "b"}}
	assert.Equal(t, Fingerprint(q1), Fingerprint(q2))
}

func TestCacheURL_EmbedsVersionTableAndFingerprint(t *testing.T) {
	url := CacheURL("users", "1700000000000", "list")
	assert.Equal(t, "https://internal.pgrestgw.local/1700000000000/users/list", url)
}

func TestCacheURL_ChangesWithVersion(t *testing.T) {
	a := CacheURL("users", "1", "list")
	b := CacheURL("users", "2", "list")
	assert.NotEqual(t, a, b)
}
