package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/pgrestgw/internal/core"
	"github.com/vitaliisemenov/pgrestgw/internal/database/postgres"
	"github.com/vitaliisemenov/pgrestgw/internal/schema"
)

// fakeRows is a minimal pgx.Rows over a fixed set of columns and row values,
// enough to drive scanRows without a real connection.
type fakeRows struct {
	fields []pgconn.FieldDescription
	data   [][]any
	idx    int
}

func newFakeRows(columns []string, rows [][]any) *fakeRows {
	fields := make([]pgconn.FieldDescription, len(columns))
	for i, c := range columns {
		fields[i] = pgconn.FieldDescription{Name: c}
	}
	return &fakeRows{fields: fields, data: rows, idx: -1}
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }
func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.data)
}
func (r *fakeRows) Scan(dest ...any) error    { return nil }
func (r *fakeRows) Values() ([]any, error)    { return r.data[r.idx], nil }
func (r *fakeRows) RawValues() [][]byte       { return nil }
func (r *fakeRows) Conn() *pgx.Conn           { return nil }

// fakeDB is a stub postgres.DatabaseConnection returning one canned result
// per call, regardless of the statement text — enough to exercise the
// response-code policy without a real database.
type fakeDB struct {
	columns []string
	rows    [][]any
	err     error
}

func (f *fakeDB) Connect(ctx context.Context) error    { return nil }
func (f *fakeDB) Disconnect(ctx context.Context) error { return nil }
func (f *fakeDB) IsConnected() bool                    { return true }
func (f *fakeDB) Health(ctx context.Context) error     { return nil }
func (f *fakeDB) Stats() postgres.PoolStats            { return postgres.PoolStats{} }

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, f.err
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	if f.err != nil {
		return nil, f.err
	}
	return newFakeRows(f.columns, f.rows), nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row { return nil }

func TestRequiredFields_ExcludesPrimaryKeyAndNullable(t *testing.T) {
	table := &core.TableDescriptor{
		PrimaryKey: "id",
		Columns: []core.ColumnDescriptor{
			{Name: "id", SQLType: core.SQLTypeInteger},
			{Name: "name", SQLType: core.SQLTypeText},
			{Name: "bio", SQLType: core.SQLTypeText, Nullable: true},
		},
	}
	assert.Equal(t, []string{"name"}, requiredFields(table))
}

func TestMissingFields_ReportsAbsentAndNullValues(t *testing.T) {
	missing := missingFields([]string{"name", "age"}, map[string]any{"name": nil})
	assert.Equal(t, []string{"name", "age"}, missing)
}

func TestWriteMutationResponse_NoMatchByID_Is404(t *testing.T) {
	rec := httptest.NewRecorder()
	writeMutationResponse(rec, nil, true, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteMutationResponse_NoMatchBulk_Is204(t *testing.T) {
	rec := httptest.NewRecorder()
	writeMutationResponse(rec, nil, true, false)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWriteMutationResponse_MatchWithoutReturning_Is204(t *testing.T) {
	rec := httptest.NewRecorder()
	writeMutationResponse(rec, []core.Row{{"id": int64(1)}}, false, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWriteMutationResponse_MatchWithReturning_Is200(t *testing.T) {
	rec := httptest.NewRecorder()
	writeMutationResponse(rec, []core.Row{{"id": int64(1)}}, true, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	var row core.Row
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&row))
	assert.EqualValues(t, 1, row["id"])
}

func TestBuild_ListReturnsRows(t *testing.T) {
	desc := testDescriptor()
	db := &fakeDB{columns: []string{"id", "name"}, rows: [][]any{{int64(1), "widget"}}}
	bundle := Build(desc, "1", Deps{DB: db})

	handler, ok := bundle.Route(http.MethodGet, "/")
	require.True(t, ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var rows []core.Row
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "widget", rows[0]["name"])
}

func TestBuild_InsertReturns201WithRow(t *testing.T) {
	desc := testDescriptor()
	db := &fakeDB{columns: []string{"id", "name"}, rows: [][]any{{int64(2), "gadget"}}}
	bundle := Build(desc, "1", Deps{DB: db})

	handler, ok := bundle.Route(http.MethodPost, "/")
	require.True(t, ok)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"gadget"}`))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var row core.Row
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&row))
	assert.Equal(t, "gadget", row["name"])
}

func TestBuild_UpdateByIDNoMatchIs404(t *testing.T) {
	desc := testDescriptor()
	db := &fakeDB{columns: []string{"id", "name"}, rows: nil}
	bundle := Build(desc, "1", Deps{DB: db})

	handler, ok := bundle.Route(http.MethodPatch, "/{id}")
	require.True(t, ok)

	req := httptest.NewRequest(http.MethodPatch, "/42", strings.NewReader(`{"name":"renamed"}`))
	req = req.WithContext(WithID(req.Context(), "42"))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func testDescriptor() *schema.Descriptor {
	return schema.Build("widgets", []core.ColumnDescriptor{
		{Name: "id", SQLType: core.SQLTypeInteger},
		{Name: "name", SQLType: core.SQLTypeText},
	}, "id", nil)
}
