package router

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vitaliisemenov/pgrestgw/internal/core"
	"github.com/vitaliisemenov/pgrestgw/internal/database/postgres"
	"github.com/vitaliisemenov/pgrestgw/internal/sqlgen"
)

// execRows runs stmt against db and decodes every row into a core.Row keyed
// by the result's field names, as the Query Synthesizer's output is always
// consumed (§4.4): SELECT, and every write statement via its RETURNING clause.
func execRows(ctx context.Context, db postgres.DatabaseConnection, stmt sqlgen.Statement) ([]core.Row, error) {
	rows, err := db.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("execute statement: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

func scanRows(rows pgx.Rows) ([]core.Row, error) {
	fields := rows.FieldDescriptions()

	var out []core.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(core.Row, len(fields))
		for i, f := range fields {
			row[f.Name] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
