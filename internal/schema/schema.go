// Package schema turns column metadata into an immutable Table Descriptor
// plus the select/insert validators derived from it (§4.2). Each validator
// is a small function keyed off the column's SQLType: one function per SQL
// type rather than one per named field.
package schema

import (
	"fmt"

	"github.com/vitaliisemenov/pgrestgw/internal/core"
)

// ColumnValidator reports whether value is an acceptable shape for a column.
type ColumnValidator func(value any) error

// Descriptor bundles the Table Descriptor with the validator schemas
// derived from it: both accept null for nullable columns and reject it
// otherwise; InsertValidators leave out the primary key, and neither is run
// on an absent key.
type Descriptor struct {
	Table            *core.TableDescriptor
	SelectValidators map[string]ColumnValidator
	InsertValidators map[string]ColumnValidator
}

// Build assembles a Descriptor from ordered column metadata using the
// conventions of §3 (BuildTableDescriptor) and the type-mapping table of
// §4.2. The primary key column is omitted from InsertValidators: a client
// never supplies it.
func Build(table string, columns []core.ColumnDescriptor, pkName string, softDeleteNames []string) *Descriptor {
	td := core.BuildTableDescriptor(table, columns, pkName, softDeleteNames)

	d := &Descriptor{
		Table:            td,
		SelectValidators: make(map[string]ColumnValidator, len(columns)),
		InsertValidators: make(map[string]ColumnValidator, len(columns)),
	}

	for _, c := range columns {
		d.SelectValidators[c.Name] = selectValidatorFor(c)
		if c.Name == td.PrimaryKey {
			continue
		}
		d.InsertValidators[c.Name] = insertValidatorFor(c)
	}

	return d
}

// selectValidatorFor returns the validator for a value returned to the
// client: nullable columns accept nil, non-nullable columns reject it.
func selectValidatorFor(c core.ColumnDescriptor) ColumnValidator {
	base := typeValidator(c.SQLType)
	return func(value any) error {
		if value == nil {
			if c.Nullable {
				return nil
			}
			return fmt.Errorf("column %q: unexpected null", c.Name)
		}
		return base(value)
	}
}

// insertValidatorFor returns the validator for a value accepted in a write
// body: absence is the caller's concern (handled by the required-field
// check in the Router Factory), so this validator only runs on keys that
// are present.
func insertValidatorFor(c core.ColumnDescriptor) ColumnValidator {
	base := typeValidator(c.SQLType)
	return func(value any) error {
		if value == nil {
			if c.Nullable {
				return nil
			}
			return fmt.Errorf("column %q: null not allowed", c.Name)
		}
		return base(value)
	}
}

// typeValidator maps a SQLType to the shape check of §4.2's Validator column.
func typeValidator(t core.SQLType) ColumnValidator {
	switch t {
	case core.SQLTypeInteger, core.SQLTypeNumeric, core.SQLTypeReal, core.SQLTypeDoublePrecision:
		return func(value any) error {
			switch value.(type) {
			case int, int32, int64, float32, float64:
				return nil
			default:
				return fmt.Errorf("expected number, got %T", value)
			}
		}
	case core.SQLTypeBoolean:
		return func(value any) error {
			if _, ok := value.(bool); !ok {
				return fmt.Errorf("expected bool, got %T", value)
			}
			return nil
		}
	default:
		// text, character varying, timestamp without time zone, and the
		// "anything else" fallback all validate as strings (§4.2).
		return func(value any) error {
			if _, ok := value.(string); !ok {
				return fmt.Errorf("expected string, got %T", value)
			}
			return nil
		}
	}
}
