package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vitaliisemenov/pgrestgw/internal/core"
)

func usersTable() *core.TableDescriptor {
	return core.BuildTableDescriptor("users", []core.ColumnDescriptor{
		{Name: "id", SQLType: core.SQLTypeInteger},
		{Name: "name", SQLType: core.SQLTypeText},
		{Name: "email", SQLType: core.SQLTypeText},
		{Name: "is_active", SQLType: core.SQLTypeBoolean},
		{Name: "created_at", SQLType: core.SQLTypeTimestamp},
		{Name: "age", SQLType: core.SQLTypeInteger, Nullable: true},
		{Name: "deleted_at", SQLType: core.SQLTypeTimestamp, Nullable: true},
	}, "id", []string{"deleted_at", "is_deleted"})
}

func TestSynthesizeSelect(t *testing.T) {
	table := usersTable()

	t.Run("no filters selects all", func(t *testing.T) {
		stmt := SynthesizeSelect(table, core.ParsedQuery{})
		assert.Equal(t, "SELECT * FROM users", stmt.SQL)
		assert.Empty(t, stmt.Args)
	})

	t.Run("filters, sort, limit, offset, projection", func(t *testing.T) {
		limit, offset := 2, 0
		q := core.ParsedQuery{
			Filters: []core.Filter{{Field: "is_active", Op: core.OpEq, Value: true}},
			Sort:    []core.SortDirective{{Field: "created_at", Direction: core.SortDesc}},
			Limit:   &limit,
			Offset:  &offset,
			Select:  []string{"id", "name"},
		}
		stmt := SynthesizeSelect(table, q)
		assert.Equal(t, "SELECT id, name FROM users WHERE is_active = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3", stmt.SQL)
		assert.Equal(t, []any{true, 2, 0}, stmt.Args)
	})

	t.Run("unknown filter field is dropped", func(t *testing.T) {
		q := core.ParsedQuery{Filters: []core.Filter{{Field: "bogus", Op: core.OpEq, Value: "x"}}}
		stmt := SynthesizeSelect(table, q)
		assert.Equal(t, "SELECT * FROM users", stmt.SQL)
	})

	t.Run("empty in list is dropped", func(t *testing.T) {
		q := core.ParsedQuery{Filters: []core.Filter{{Field: "id", Op: core.OpIn, Value: []any{}}}}
		stmt := SynthesizeSelect(table, q)
		assert.Equal(t, "SELECT * FROM users", stmt.SQL)
	})

	t.Run("isnull filter", func(t *testing.T) {
		q := core.ParsedQuery{Filters: []core.Filter{{Field: "age", Op: core.OpIsNull, Value: true}}}
		stmt := SynthesizeSelect(table, q)
		assert.Equal(t, "SELECT * FROM users WHERE age IS NULL", stmt.SQL)
	})
}

func TestSynthesizeInsert(t *testing.T) {
	table := usersTable()

	t.Run("default returning star", func(t *testing.T) {
		stmt := SynthesizeInsert(table, map[string]any{"name": "A", "email": "a@x"}, core.ParsedInsert{})
		assert.Equal(t, "INSERT INTO users (email, name) VALUES ($1, $2) RETURNING *", stmt.SQL)
		assert.Equal(t, []any{"a@x", "A"}, stmt.Args)
	})

	t.Run("on conflict do nothing", func(t *testing.T) {
		stmt := SynthesizeInsert(table, map[string]any{"email": "a@x"}, core.ParsedInsert{
			OnConflict: &core.OnConflict{Column: "email", Action: core.ConflictNothing},
		})
		assert.Contains(t, stmt.SQL, "ON CONFLICT (email) DO NOTHING")
	})

	t.Run("on conflict do update", func(t *testing.T) {
		stmt := SynthesizeInsert(table, map[string]any{"email": "a@x", "name": "B"}, core.ParsedInsert{
			OnConflict: &core.OnConflict{Column: "email", Action: core.ConflictUpdate, UpdateColumns: []string{"name"}},
			Returning:  []string{"id", "name"},
		})
		assert.Contains(t, stmt.SQL, "ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name")
		assert.Contains(t, stmt.SQL, "RETURNING id, name")
	})
}

func TestSynthesizeUpdate(t *testing.T) {
	table := usersTable()

	t.Run("excludes primary key and unknown columns", func(t *testing.T) {
		stmt, ok := SynthesizeUpdate(table, map[string]any{"id": 99, "name": "B", "bogus": "x"}, core.ParsedUpdate{
			Filters: []core.Filter{{Field: "id", Op: core.OpEq, Value: 1}},
		})
		assert.True(t, ok)
		assert.Equal(t, "UPDATE users SET name = $1 WHERE id = $2 RETURNING *", stmt.SQL)
		assert.Equal(t, []any{"B", 1}, stmt.Args)
	})

	t.Run("empty set issues no SQL", func(t *testing.T) {
		_, ok := SynthesizeUpdate(table, map[string]any{"id": 1, "bogus": "x"}, core.ParsedUpdate{})
		assert.False(t, ok)
	})
}

func TestSynthesizeDelete(t *testing.T) {
	table := usersTable()

	t.Run("soft delete by default", func(t *testing.T) {
		stmt := SynthesizeDelete(table, core.ParsedDelete{
			Filters: []core.Filter{{Field: "id", Op: core.OpEq, Value: 1}},
		})
		assert.Equal(t, "UPDATE users SET deleted_at = NOW() WHERE id = $1 RETURNING *", stmt.SQL)
	})

	t.Run("hard delete", func(t *testing.T) {
		stmt := SynthesizeDelete(table, core.ParsedDelete{
			Filters:    []core.Filter{{Field: "id", Op: core.OpEq, Value: 1}},
			HardDelete: true,
			Returning:  []string{"id"},
		})
		assert.Equal(t, "DELETE FROM users WHERE id = $1 RETURNING id", stmt.SQL)
	})

	t.Run("hard delete on table without soft-delete column", func(t *testing.T) {
		noSoft := core.BuildTableDescriptor("sessions", []core.ColumnDescriptor{
			{Name: "id", SQLType: core.SQLTypeInteger},
		}, "id", []string{"deleted_at", "is_deleted"})
		stmt := SynthesizeDelete(noSoft, core.ParsedDelete{
			Filters: []core.Filter{{Field: "id", Op: core.OpEq, Value: 1}},
		})
		assert.Contains(t, stmt.SQL, "DELETE FROM sessions")
	})
}
