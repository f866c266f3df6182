// Package params parses request query strings into the typed Parsed*
// values of §3, against the grammar of §4.3. The parser is pure: no I/O,
// no database access, only the owning Table Descriptor and a url.Values.
package params

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/vitaliisemenov/pgrestgw/internal/core"
)

var alwaysReserved = map[string]bool{
	"order_by": true,
	"limit":    true,
	"offset":   true,
	"select":   true,
}

var insertReserved = union(alwaysReserved, "returning", "on_conflict", "on_conflict_action", "on_conflict_update")
var updateReserved = union(alwaysReserved, "returning")
var deleteReserved = union(alwaysReserved, "returning", "hard_delete")

func union(base map[string]bool, extra ...string) map[string]bool {
	out := make(map[string]bool, len(base)+len(extra))
	for k := range base {
		out[k] = true
	}
	for _, k := range extra {
		out[k] = true
	}
	return out
}

// ParseQuery parses a GET (list) query string into a ParsedQuery.
func ParseQuery(values url.Values, table *core.TableDescriptor) core.ParsedQuery {
	return core.ParsedQuery{
		Filters: parseFilters(values, table, alwaysReserved),
		Sort:    parseSort(values, table),
		Limit:   parseLimit(values),
		Offset:  parseOffset(values),
		Select:  parseFieldList(values, "select", table),
	}
}

// ParseInsert parses a POST query string into a ParsedInsert.
func ParseInsert(values url.Values, table *core.TableDescriptor) core.ParsedInsert {
	return core.ParsedInsert{
		Returning:  parseFieldList(values, "returning", table),
		OnConflict: parseOnConflict(values, table),
	}
}

// ParseUpdate parses a PUT/PATCH query string into a ParsedUpdate.
func ParseUpdate(values url.Values, table *core.TableDescriptor) core.ParsedUpdate {
	return core.ParsedUpdate{
		Filters:   parseFilters(values, table, updateReserved),
		Returning: parseFieldList(values, "returning", table),
	}
}

// ParseDelete parses a DELETE query string into a ParsedDelete.
func ParseDelete(values url.Values, table *core.TableDescriptor) core.ParsedDelete {
	return core.ParsedDelete{
		Filters:    parseFilters(values, table, deleteReserved),
		Returning:  parseFieldList(values, "returning", table),
		HardDelete: isTruthy(values.Get("hard_delete")),
	}
}

// ParsePKFilter builds the single eq filter a /{id} route synthesizes on
// the primary key. A string id is coerced to a number when it parses as
// one, otherwise kept as-is (§4.4).
func ParsePKFilter(table *core.TableDescriptor, id string) core.Filter {
	var value any = id
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		value = n
	}
	return core.Filter{Field: table.PrimaryKey, Op: core.OpEq, Value: value}
}

func parseFilters(values url.Values, table *core.TableDescriptor, reserved map[string]bool) []core.Filter {
	var filters []core.Filter
	for key, vals := range values {
		if reserved[key] || len(vals) == 0 {
			continue
		}
		field, op := splitFieldOp(key)
		if !table.HasColumn(field) {
			continue // invariant 3: unknown fields dropped silently
		}
		col, _ := table.Column(field)
		filters = append(filters, core.Filter{
			Field: field,
			Op:    op,
			Value: coerceValue(col.SQLType, op, vals[0]),
		})
	}
	return filters
}

// splitFieldOp splits a "field[__op]" key. A suffix that is not a
// recognised operator makes the whole key the field name with an implicit
// eq — which invariant 3 then drops if that isn't a real column.
func splitFieldOp(key string) (field string, op core.FilterOp) {
	if idx := strings.LastIndex(key, "__"); idx >= 0 {
		candidate := core.FilterOp(key[idx+2:])
		if candidate.IsValid() {
			return key[:idx], candidate
		}
	}
	return key, core.OpEq
}

func coerceValue(sqlType core.SQLType, op core.FilterOp, raw string) any {
	if op == core.OpIsNull {
		return isTruthy(raw)
	}
	if op == core.OpIn {
		parts := strings.Split(raw, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			out = append(out, coerceScalar(sqlType, strings.TrimSpace(p)))
		}
		return out
	}
	return coerceScalar(sqlType, raw)
}

func coerceScalar(sqlType core.SQLType, raw string) any {
	switch sqlType {
	case core.SQLTypeInteger:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
		return raw // keep raw string so the database reports the type error
	case core.SQLTypeBoolean:
		return isTruthy(raw)
	default:
		return raw
	}
}

func isTruthy(raw string) bool {
	return raw == "true" || raw == "1"
}

func parseSort(values url.Values, table *core.TableDescriptor) []core.SortDirective {
	raw := values.Get("order_by")
	if raw == "" {
		return nil
	}

	var directives []core.SortDirective
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		direction := core.SortAsc
		field := part
		if strings.HasPrefix(part, "-") {
			direction = core.SortDesc
			field = part[1:]
		}
		if !table.HasColumn(field) {
			continue
		}
		directives = append(directives, core.SortDirective{Field: field, Direction: direction})
	}
	return directives
}

func parseLimit(values url.Values) *int {
	n, err := strconv.Atoi(values.Get("limit"))
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

func parseOffset(values url.Values) *int {
	n, err := strconv.Atoi(values.Get("offset"))
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

// parseFieldList parses a comma-separated list of column names from key,
// dropping unknown fields. An empty resulting list is treated as absent.
func parseFieldList(values url.Values, key string, table *core.TableDescriptor) []string {
	raw := values.Get(key)
	if raw == "" {
		return nil
	}

	var fields []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" || !table.HasColumn(part) {
			continue
		}
		fields = append(fields, part)
	}
	return fields
}

func parseOnConflict(values url.Values, table *core.TableDescriptor) *core.OnConflict {
	column := values.Get("on_conflict")
	if column == "" {
		return nil
	}
	if !table.HasColumn(column) {
		return nil // unknown conflict column drops the whole clause
	}

	oc := &core.OnConflict{Column: column, Action: core.ConflictNothing}

	if updateCSV := values.Get("on_conflict_update"); updateCSV != "" {
		cols := parseFieldList(values, "on_conflict_update", table)
		if len(cols) > 0 {
			oc.Action = core.ConflictUpdate
			oc.UpdateColumns = cols
			return oc
		}
		// listed columns were all invalid: fall back to nothing
	}

	if values.Get("on_conflict_action") == "nothing" || oc.Action == core.ConflictNothing {
		oc.Action = core.ConflictNothing
	}

	return oc
}
