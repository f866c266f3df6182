// Package core holds the types shared by every layer of the gateway: column
// and table descriptors, version tokens, and the parsed-parameter shapes
// produced by the parameter parser and consumed by the query synthesizer.
package core

import "fmt"

// SQLType is the subset of information_schema.columns.data_type values the
// gateway understands. Anything else maps to SQLTypeOther (string fallback).
type SQLType string

const (
	SQLTypeInteger           SQLType = "integer"
	SQLTypeText              SQLType = "text"
	SQLTypeVarchar           SQLType = "character varying"
	SQLTypeBoolean           SQLType = "boolean"
	SQLTypeTimestamp         SQLType = "timestamp without time zone"
	SQLTypeNumeric           SQLType = "numeric"
	SQLTypeReal              SQLType = "real"
	SQLTypeDoublePrecision   SQLType = "double precision"
	SQLTypeOther             SQLType = "__other__"
)

// FromDataType maps a raw information_schema data_type string to a SQLType,
// defaulting unknown types to SQLTypeOther (string row type, string validator).
func FromDataType(dataType string) SQLType {
	switch SQLType(dataType) {
	case SQLTypeInteger, SQLTypeText, SQLTypeVarchar, SQLTypeBoolean, SQLTypeTimestamp,
		SQLTypeNumeric, SQLTypeReal, SQLTypeDoublePrecision:
		return SQLType(dataType)
	default:
		return SQLTypeOther
	}
}

// IsNumeric reports whether the type supports ordering comparisons (gt/gte/lt/lte)
// per the OpenAPI advertisement rule in §4.3.
func (t SQLType) IsNumeric() bool {
	switch t {
	case SQLTypeInteger, SQLTypeTimestamp, SQLTypeNumeric, SQLTypeReal, SQLTypeDoublePrecision:
		return true
	default:
		return false
	}
}

// IsTextual reports whether the type supports like/ilike.
func (t SQLType) IsTextual() bool {
	return t == SQLTypeText || t == SQLTypeVarchar || t == SQLTypeOther
}

// FilterOp is one of the operators recognised by the parameter grammar.
type FilterOp string

const (
	OpEq     FilterOp = "eq"
	OpGt     FilterOp = "gt"
	OpGte    FilterOp = "gte"
	OpLt     FilterOp = "lt"
	OpLte    FilterOp = "lte"
	OpLike   FilterOp = "like"
	OpILike  FilterOp = "ilike"
	OpIn     FilterOp = "in"
	OpIsNull FilterOp = "isnull"
)

// IsValid reports whether op is one of the recognised operators in the grammar.
func (op FilterOp) IsValid() bool {
	switch op {
	case OpEq, OpGt, OpGte, OpLt, OpLte, OpLike, OpILike, OpIn, OpIsNull:
		return true
	default:
		return false
	}
}

// SortDirection is ascending or descending.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ColumnDescriptor is immutable after introspection.
type ColumnDescriptor struct {
	Name     string
	SQLType  SQLType
	Nullable bool
}

// VersionToken is an opaque string; equality is the only operation the
// caches perform on it.
type VersionToken string

// TableDescriptor is built once per introspection and replaced wholesale
// (never mutated) when a newer one is built.
type TableDescriptor struct {
	Name             string
	Columns          []ColumnDescriptor
	PrimaryKey       string
	SoftDeleteColumn string // empty when the table has none
}

// Column looks up a column by name.
func (t *TableDescriptor) Column(name string) (ColumnDescriptor, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDescriptor{}, false
}

// HasColumn reports whether name is a known column of t.
func (t *TableDescriptor) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// HasSoftDelete reports whether the table carries a soft-delete marker column.
func (t *TableDescriptor) HasSoftDelete() bool {
	return t.SoftDeleteColumn != ""
}

// BuildTableDescriptor assembles a Table Descriptor from ordered column
// metadata, identifying the primary key and soft-delete column by the
// conventions of §3: the first column whose name equals pkName, and the
// first column whose name is in softDeleteNames.
func BuildTableDescriptor(name string, columns []ColumnDescriptor, pkName string, softDeleteNames []string) *TableDescriptor {
	td := &TableDescriptor{Name: name, Columns: columns}
	for _, c := range columns {
		if c.Name == pkName && td.PrimaryKey == "" {
			td.PrimaryKey = c.Name
		}
	}
	for _, c := range columns {
		for _, sd := range softDeleteNames {
			if c.Name == sd {
				td.SoftDeleteColumn = c.Name
				return td
			}
		}
	}
	return td
}

// Filter is a single predicate parsed from the query string.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// SortDirective is one comma-separated entry of order_by.
type SortDirective struct {
	Field     string
	Direction SortDirection
}

// ParsedQuery is the result of parsing a GET (list) query string.
type ParsedQuery struct {
	Filters []Filter
	Sort    []SortDirective
	Limit   *int
	Offset  *int
	Select  []string
}

// ConflictAction is the ON CONFLICT behaviour requested on insert.
type ConflictAction string

const (
	ConflictNothing ConflictAction = "nothing"
	ConflictUpdate  ConflictAction = "update"
)

// OnConflict describes the upsert clause of a ParsedInsert.
type OnConflict struct {
	Column        string
	Action        ConflictAction
	UpdateColumns []string
}

// ParsedInsert is the result of parsing a POST request.
type ParsedInsert struct {
	Returning  []string
	OnConflict *OnConflict
}

// ParsedUpdate is the result of parsing a PUT/PATCH request.
type ParsedUpdate struct {
	Filters   []Filter
	Returning []string
}

// ParsedDelete is the result of parsing a DELETE request.
type ParsedDelete struct {
	Filters    []Filter
	Returning  []string
	HardDelete bool
}

// Row is a single result row, column name to decoded value.
type Row map[string]any

// String renders a filter for diagnostics and for fingerprinting.
func (f Filter) String() string {
	return fmt.Sprintf("%s:%s:%v", f.Field, f.Op, f.Value)
}
