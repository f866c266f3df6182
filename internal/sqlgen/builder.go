// Package sqlgen turns a Table Descriptor and parsed request parameters
// into executable SQL (§4.4) for any introspected table, composing
// SELECT, INSERT, UPDATE, and DELETE statements from the same clause
// builder.
package sqlgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vitaliisemenov/pgrestgw/internal/core"
)

// Statement is a ready-to-execute SQL string with its positional args.
type Statement struct {
	SQL  string
	Args []any
}

// clauseBuilder accumulates WHERE fragments and rewrites "?" placeholders
// to "$N" as each fragment is appended.
type clauseBuilder struct {
	whereClauses []string
	args         []any
	argCounter   int
}

func (b *clauseBuilder) addWhere(clause string, args ...any) {
	numArgs := strings.Count(clause, "?")
	for i := 0; i < numArgs; i++ {
		b.argCounter++
		clause = strings.Replace(clause, "?", fmt.Sprintf("$%d", b.argCounter), 1)
	}
	b.whereClauses = append(b.whereClauses, clause)
	b.args = append(b.args, args...)
}

func (b *clauseBuilder) nextPlaceholder() string {
	b.argCounter++
	return fmt.Sprintf("$%d", b.argCounter)
}

func (b *clauseBuilder) whereSQL() string {
	if len(b.whereClauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.whereClauses, " AND ")
}

// addFilters appends one WHERE fragment per filter whose field resolves
// against table, skipping filters on unknown columns and empty `in` lists
// (§4.4 tie-breaks).
func (b *clauseBuilder) addFilters(table *core.TableDescriptor, filters []core.Filter) {
	for _, f := range filters {
		if !table.HasColumn(f.Field) {
			continue
		}
		switch f.Op {
		case core.OpEq:
			b.addWhere(fmt.Sprintf("%s = ?", f.Field), f.Value)
		case core.OpGt:
			b.addWhere(fmt.Sprintf("%s > ?", f.Field), f.Value)
		case core.OpGte:
			b.addWhere(fmt.Sprintf("%s >= ?", f.Field), f.Value)
		case core.OpLt:
			b.addWhere(fmt.Sprintf("%s < ?", f.Field), f.Value)
		case core.OpLte:
			b.addWhere(fmt.Sprintf("%s <= ?", f.Field), f.Value)
		case core.OpLike:
			b.addWhere(fmt.Sprintf("%s LIKE ?", f.Field), f.Value)
		case core.OpILike:
			b.addWhere(fmt.Sprintf("%s ILIKE ?", f.Field), f.Value)
		case core.OpIsNull:
			if truthy, _ := f.Value.(bool); truthy {
				b.whereClauses = append(b.whereClauses, fmt.Sprintf("%s IS NULL", f.Field))
			} else {
				b.whereClauses = append(b.whereClauses, fmt.Sprintf("%s IS NOT NULL", f.Field))
			}
		case core.OpIn:
			values, _ := f.Value.([]any)
			if len(values) == 0 {
				continue // empty `in` list is dropped
			}
			placeholders := make([]string, len(values))
			for i := range values {
				placeholders[i] = "?"
			}
			b.addWhere(fmt.Sprintf("%s IN (%s)", f.Field, strings.Join(placeholders, ",")), values...)
		}
	}
}

// columnList renders a projection; an empty or fully-unknown list means
// "select all" (§4.4).
func columnList(table *core.TableDescriptor, fields []string) string {
	var valid []string
	for _, f := range fields {
		if table.HasColumn(f) {
			valid = append(valid, f)
		}
	}
	if len(valid) == 0 {
		return "*"
	}
	return strings.Join(valid, ", ")
}

func orderBySQL(table *core.TableDescriptor, sortDirs []core.SortDirective) string {
	var parts []string
	for _, s := range sortDirs {
		if !table.HasColumn(s.Field) {
			continue
		}
		dir := "ASC"
		if s.Direction == core.SortDesc {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("%s %s", s.Field, dir))
	}
	if len(parts) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func returningSQL(table *core.TableDescriptor, returning []string) string {
	if len(returning) == 0 {
		return " RETURNING *"
	}
	return " RETURNING " + columnList(table, returning)
}

// SynthesizeSelect composes the SELECT of §4.4 for list endpoints.
func SynthesizeSelect(table *core.TableDescriptor, q core.ParsedQuery) Statement {
	b := &clauseBuilder{}
	b.addFilters(table, q.Filters)

	sql := fmt.Sprintf("SELECT %s FROM %s", columnList(table, q.Select), table.Name)
	sql += b.whereSQL()
	sql += orderBySQL(table, q.Sort)

	if q.Limit != nil {
		sql += fmt.Sprintf(" LIMIT %s", b.nextPlaceholder())
		b.args = append(b.args, *q.Limit)
	}
	if q.Offset != nil {
		sql += fmt.Sprintf(" OFFSET %s", b.nextPlaceholder())
		b.args = append(b.args, *q.Offset)
	}

	return Statement{SQL: sql, Args: b.args}
}

// SynthesizeInsert composes the INSERT of §4.4, with optional ON CONFLICT
// and a RETURNING clause (default RETURNING *).
func SynthesizeInsert(table *core.TableDescriptor, body map[string]any, ins core.ParsedInsert) Statement {
	columns := sortedKeys(body)

	b := &clauseBuilder{}
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		placeholders[i] = b.nextPlaceholder()
		b.args = append(b.args, body[col])
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table.Name, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	if oc := ins.OnConflict; oc != nil && table.HasColumn(oc.Column) {
		switch oc.Action {
		case core.ConflictNothing:
			sql += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", oc.Column)
		case core.ConflictUpdate:
			var sets []string
			for _, col := range oc.UpdateColumns {
				if table.HasColumn(col) {
					sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
				}
			}
			if len(sets) > 0 {
				sql += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", oc.Column, strings.Join(sets, ", "))
			} else {
				sql += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", oc.Column)
			}
		}
	}

	sql += returningSQL(table, ins.Returning)
	return Statement{SQL: sql, Args: b.args}
}

// SynthesizeUpdate composes the UPDATE of §4.4. body is filtered to
// exclude the primary key and unknown keys; if nothing remains, ok is
// false and no SQL is produced (§3 invariant 5).
func SynthesizeUpdate(table *core.TableDescriptor, body map[string]any, upd core.ParsedUpdate) (stmt Statement, ok bool) {
	filtered := filterWritable(table, body)
	setColumns := sortedKeys(filtered)
	if len(setColumns) == 0 {
		return Statement{}, false
	}

	b := &clauseBuilder{}
	var sets []string
	for _, col := range setColumns {
		sets = append(sets, fmt.Sprintf("%s = %s", col, b.nextPlaceholder()))
		b.args = append(b.args, filtered[col])
	}

	sql := fmt.Sprintf("UPDATE %s SET %s", table.Name, strings.Join(sets, ", "))
	b.addFilters(table, upd.Filters)
	sql += b.whereSQL()
	sql += returningSQL(table, upd.Returning)

	return Statement{SQL: sql, Args: b.args}, true
}

// SynthesizeDelete composes the DELETE of §4.4: a soft delete (UPDATE
// setting the soft-delete column) unless hardDelete is true or the table
// has no soft-delete column.
func SynthesizeDelete(table *core.TableDescriptor, del core.ParsedDelete) Statement {
	b := &clauseBuilder{}

	var sql string
	if !del.HardDelete && table.HasSoftDelete() {
		sql = fmt.Sprintf("UPDATE %s SET %s = NOW()", table.Name, table.SoftDeleteColumn)
	} else {
		sql = fmt.Sprintf("DELETE FROM %s", table.Name)
	}

	b.addFilters(table, del.Filters)
	sql += b.whereSQL()
	sql += returningSQL(table, del.Returning)

	return Statement{SQL: sql, Args: b.args}
}

// filterWritable drops the primary key and any key not present in table
// from body, per the UPDATE rule of §4.4 and invariant 5.
func filterWritable(table *core.TableDescriptor, body map[string]any) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		if k == table.PrimaryKey || !table.HasColumn(k) {
			continue
		}
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
