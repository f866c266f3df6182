package dispatcher

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/pgrestgw/internal/codecache"
	"github.com/vitaliisemenov/pgrestgw/internal/core"
	"github.com/vitaliisemenov/pgrestgw/internal/database/postgres"
	"github.com/vitaliisemenov/pgrestgw/internal/introspect"
	"github.com/vitaliisemenov/pgrestgw/internal/metrics"
	"github.com/vitaliisemenov/pgrestgw/internal/router"
)

// fakeRow implements pgx.Row over a single xmin value, or no row at all.
type fakeRow struct {
	xmin  string
	found bool
}

func (r fakeRow) Scan(dest ...any) error {
	if !r.found {
		return pgx.ErrNoRows
	}
	*(dest[0].(*string)) = r.xmin
	return nil
}

// fakeColumnRows implements pgx.Rows over information_schema.columns output.
type fakeColumnRows struct {
	names     []string
	dataTypes []string
	nullable  []string
	idx       int
}

func (r *fakeColumnRows) Close()                                       {}
func (r *fakeColumnRows) Err() error                                   { return nil }
func (r *fakeColumnRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeColumnRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeColumnRows) Next() bool {
	r.idx++
	return r.idx < len(r.names)
}
func (r *fakeColumnRows) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.names[r.idx]
	*(dest[1].(*string)) = r.dataTypes[r.idx]
	*(dest[2].(*string)) = r.nullable[r.idx]
	return nil
}
func (r *fakeColumnRows) Values() ([]any, error) { return nil, nil }
func (r *fakeColumnRows) RawValues() [][]byte    { return nil }
func (r *fakeColumnRows) Conn() *pgx.Conn        { return nil }

// fakeCatalog is a stub postgres.DatabaseConnection serving the two queries
// the Introspector issues, keyed on the table argument, plus the router's
// argument-free list SELECT, which it answers with no rows.
type fakeCatalog struct {
	versions map[string]string // table -> xmin; absent means "does not exist"
	columns  map[string][][3]string
}

func (f *fakeCatalog) Connect(ctx context.Context) error    { return nil }
func (f *fakeCatalog) Disconnect(ctx context.Context) error { return nil }
func (f *fakeCatalog) IsConnected() bool                    { return true }
func (f *fakeCatalog) Health(ctx context.Context) error     { return nil }
func (f *fakeCatalog) Stats() postgres.PoolStats            { return postgres.PoolStats{} }

func (f *fakeCatalog) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (f *fakeCatalog) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	if len(args) == 0 {
		return &fakeColumnRows{idx: -1}, nil
	}
	table := args[0].(string)
	rows := f.columns[table]
	cols := &fakeColumnRows{idx: -1}
	for _, row := range rows {
		cols.names = append(cols.names, row[0])
		cols.dataTypes = append(cols.dataTypes, row[1])
		cols.nullable = append(cols.nullable, row[2])
	}
	return cols, nil
}

func (f *fakeCatalog) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	table := args[0].(string)
	xmin, ok := f.versions[table]
	return fakeRow{xmin: xmin, found: ok}
}

func newTestDispatcher(t *testing.T, catalog *fakeCatalog) *Dispatcher {
	t.Helper()
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	insp := introspect.New(catalog, nil, reg)
	cache, err := codecache.New(8, nil, reg)
	require.NoError(t, err)

	return New(Config{
		Introspector:   insp,
		RouterDeps:     router.Deps{DB: catalog, Metrics: reg},
		CodeCache:      cache,
		Metrics:        reg,
		PrimaryKeyName: "id",
	})
}

func TestHandle_UnknownTableIs404(t *testing.T) {
	catalog := &fakeCatalog{versions: map[string]string{}, columns: map[string][][3]string{}}
	d := newTestDispatcher(t, catalog)

	req := httptest.NewRequest("GET", "/api/ghosts/", nil)
	rec := httptest.NewRecorder()
	d.Handle(rec, req, "ghosts", "")

	assert.Equal(t, 404, rec.Code)
}

func TestHandle_BuildsAndCachesBundleOnMiss(t *testing.T) {
	catalog := &fakeCatalog{
		versions: map[string]string{"widgets": "100"},
		columns: map[string][][3]string{
			"widgets": {{"id", "integer", "NO"}, {"name", "text", "YES"}},
		},
	}
	d := newTestDispatcher(t, catalog)

	req := httptest.NewRequest("GET", "/api/widgets/", nil)
	rec := httptest.NewRecorder()
	d.Handle(rec, req, "widgets", "")

	assert.Equal(t, 200, rec.Code)

	bundle, ok := d.codeCache.Get("widgets")
	require.True(t, ok)
	assert.Equal(t, core.VersionToken("100"), bundle.Version)
}

func TestHandle_ServesFromCodePlaneOnSecondRequest(t *testing.T) {
	catalog := &fakeCatalog{
		versions: map[string]string{"widgets": "100"},
		columns: map[string][][3]string{
			"widgets": {{"id", "integer", "NO"}, {"name", "text", "YES"}},
		},
	}
	d := newTestDispatcher(t, catalog)

	first := httptest.NewRequest("GET", "/api/widgets/", nil)
	d.Handle(httptest.NewRecorder(), first, "widgets", "")

	// Mutate the catalog so a miss would see a different version; a cache
	// hit must still be served without re-introspecting.
	catalog.versions["widgets"] = "200"

	second := httptest.NewRequest("GET", "/api/widgets/", nil)
	rec := httptest.NewRecorder()
	d.Handle(rec, second, "widgets", "")

	assert.Equal(t, 200, rec.Code)
	bundle, _ := d.codeCache.Get("widgets")
	assert.Equal(t, core.VersionToken("100"), bundle.Version)
}

func TestSplitRoute_RootVsByID(t *testing.T) {
	_, path, id := splitRoute("GET", "")
	assert.Equal(t, "/", path)
	assert.Empty(t, id)

	_, path, id = splitRoute("GET", "/42")
	assert.Equal(t, "/{id}", path)
	assert.Equal(t, "42", id)
}

func TestHandle_RouteNotFoundForUnknownMethodPattern(t *testing.T) {
	catalog := &fakeCatalog{
		versions: map[string]string{"widgets": "100"},
		columns: map[string][][3]string{
			"widgets": {{"id", "integer", "NO"}},
		},
	}
	d := newTestDispatcher(t, catalog)

	req := httptest.NewRequest("TRACE", "/api/widgets/", nil)
	rec := httptest.NewRecorder()
	d.Handle(rec, req, "widgets", "")

	assert.Equal(t, 404, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "NOT_FOUND"))
}
