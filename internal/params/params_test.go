package params

import (
	"net/url"
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
		{Name: "age", SQLType: core.SQLTypeInteger, Nullable: true},
	}, "id", []string{"deleted_at", "is_deleted"})
}

func TestParseQuery(t *testing.T) {
	table := usersTable()

	t.Run("unknown fields are dropped", func(t *testing.T) {
		q := ParseQuery(url.Values{"bogus": {"1"}}, table)
		assert.Empty(t, q.Filters)
	})

	t.Run("operator suffix parsing", func(t *testing.T) {
		q := ParseQuery(url.Values{"age__gte": {"18"}}, table)
		assert.Equal(t, []core.Filter{{Field: "age", Op: core.OpGte, Value: int64(18)}}, q.Filters)
	})

	t.Run("bare field is eq", func(t *testing.T) {
		q := ParseQuery(url.Values{"is_active": {"true"}}, table)
		assert.Equal(t, []core.Filter{{Field: "is_active", Op: core.OpEq, Value: true}}, q.Filters)
	})

	t.Run("isnull coercion", func(t *testing.T) {
		q := ParseQuery(url.Values{"age__isnull": {"true"}}, table)
		assert.Equal(t, true, q.Filters[0].Value)
	})

	t.Run("in splits and coerces", func(t *testing.T) {
		q := ParseQuery(url.Values{"id__in": {"1, 2,3"}}, table)
		assert.Equal(t, []any{int64(1), int64(2), int64(3)}, q.Filters[0].Value)
	})

	t.Run("sort with descending prefix", func(t *testing.T) {
		q := ParseQuery(url.Values{"order_by": {"-id,name"}}, table)
		assert.Equal(t, []core.SortDirective{
			{Field: "id", Direction: core.SortDesc},
			{Field: "name", Direction: core.SortAsc},
		}, q.Sort)
	})

	t.Run("invalid pagination is dropped", func(t *testing.T) {
		q := ParseQuery(url.Values{"limit": {"-5"}, "offset": {"nope"}}, table)
		assert.Nil(t, q.Limit)
		assert.Nil(t, q.Offset)
	})

	t.Run("valid pagination", func(t *testing.T) {
		q := ParseQuery(url.Values{"limit": {"10"}, "offset": {"0"}}, table)
		assert.Equal(t, 10, *q.Limit)
		assert.Equal(t, 0, *q.Offset)
	})

	t.Run("select with unknown field and empty result", func(t *testing.T) {
		q := ParseQuery(url.Values{"select": {"bogus"}}, table)
		assert.Nil(t, q.Select)
	})
}

func TestParsePKFilter(t *testing.T) {
	table := usersTable()

	t.Run("numeric id coerced", func(t *testing.T) {
		f := ParsePKFilter(table, "42")
		assert.Equal(t, core.Filter{Field: "id", Op: core.OpEq, Value: int64(42)}, f)
	})

	t.Run("non-numeric id kept as string", func(t *testing.T) {
		f := ParsePKFilter(table, "not-a-number")
		assert.Equal(t, core.Filter{Field: "id", Op: core.OpEq, Value: "not-a-number"}, f)
	})
}

func TestParseInsert_OnConflict(t *testing.T) {
	table := usersTable()

	t.Run("absent", func(t *testing.T) {
		ins := ParseInsert(url.Values{}, table)
		assert.Nil(t, ins.OnConflict)
	})

	t.Run("unknown column drops clause", func(t *testing.T) {
		ins := ParseInsert(url.Values{"on_conflict": {"bogus"}}, table)
		assert.Nil(t, ins.OnConflict)
	})

	t.Run("default action is nothing", func(t *testing.T) {
		ins := ParseInsert(url.Values{"on_conflict": {"email"}}, table)
		assert.Equal(t, &core.OnConflict{Column: "email", Action: core.ConflictNothing}, ins.OnConflict)
	})

	t.Run("update action with valid columns", func(t *testing.T) {
		ins := ParseInsert(url.Values{
			"on_conflict":        {"email"},
			"on_conflict_update": {"name"},
		}, table)
		assert.Equal(t, core.ConflictUpdate, ins.OnConflict.Action)
		assert.Equal(t, []string{"name"}, ins.OnConflict.UpdateColumns)
	})

	t.Run("update with no valid columns falls back to nothing", func(t *testing.T) {
		ins := ParseInsert(url.Values{
			"on_conflict":        {"email"},
			"on_conflict_update": {"bogus"},
		}, table)
		assert.Equal(t, core.ConflictNothing, ins.OnConflict.Action)
	})
}

func TestParseDelete_HardDelete(t *testing.T) {
	table := usersTable()

	del := ParseDelete(url.Values{"hard_delete": {"true"}}, table)
	assert.True(t, del.HardDelete)

	del = ParseDelete(url.Values{}, table)
	assert.False(t, del.HardDelete)
}
