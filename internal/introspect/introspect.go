// Package introspect reads table column metadata and per-table version
// tokens directly from PostgreSQL's catalog, issuing hand-written SQL over
// a pooled connection rather than going through an ORM.
package introspect

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vitaliisemenov/pgrestgw/internal/core"
	"github.com/vitaliisemenov/pgrestgw/internal/database/postgres"
	"github.com/vitaliisemenov/pgrestgw/internal/metrics"
)

// Introspector exposes the three read-only operations of §4.1. It does not
// retry; failures are reported to the caller.
type Introspector struct {
	db      postgres.DatabaseConnection
	logger  *slog.Logger
	metrics *metrics.Registry
}

// New builds an Introspector over db.
func New(db postgres.DatabaseConnection, logger *slog.Logger, reg *metrics.Registry) *Introspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Introspector{db: db, logger: logger, metrics: reg}
}

// GetTableVersion selects the catalog-row transaction id (xmin) of table in
// the public schema. A missing table or any error yields (none=false) — the
// caller treats both as "unknown" (§7).
func (i *Introspector) GetTableVersion(ctx context.Context, table string) (core.VersionToken, bool) {
	const q = `
		SELECT c.xmin::text
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = 'public' AND c.relname = $1`

	start := time.Now()
	row := i.db.QueryRow(ctx, q, table)

	var xmin string
	if err := row.Scan(&xmin); err != nil {
		i.observe("get_table_version", start, err)
		if err != pgx.ErrNoRows {
			i.logger.Warn("introspection: failed to read table version", "table", table, "error", err)
		}
		return "", false
	}

	i.observe("get_table_version", start, nil)
	return core.VersionToken(xmin), true
}

// GetTableConfig selects column metadata for table, ordered by ordinal
// position. An empty result (table does not exist or has no columns) yields
// (nil, false).
func (i *Introspector) GetTableConfig(ctx context.Context, table string) ([]core.ColumnDescriptor, bool) {
	const q = `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`

	start := time.Now()
	rows, err := i.db.Query(ctx, q, table)
	if err != nil {
		i.observe("get_table_config", start, err)
		i.logger.Warn("introspection: failed to read table columns", "table", table, "error", err)
		return nil, false
	}
	defer rows.Close()

	columns, err := scanColumns(rows)
	if err != nil {
		i.observe("get_table_config", start, err)
		i.logger.Warn("introspection: failed to scan table columns", "table", table, "error", err)
		return nil, false
	}

	i.observe("get_table_config", start, nil)
	if len(columns) == 0 {
		return nil, false
	}
	return columns, true
}

// GetEntireSchemaConfig selects column metadata for every table of the
// public schema, grouped by table name and preserving ordinal order within
// each table — used to assemble the full OpenAPI document (§4.7).
func (i *Introspector) GetEntireSchemaConfig(ctx context.Context) (map[string][]core.ColumnDescriptor, error) {
	const q = `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position`

	start := time.Now()
	rows, err := i.db.Query(ctx, q)
	if err != nil {
		i.observe("get_entire_schema_config", start, err)
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]core.ColumnDescriptor)
	for rows.Next() {
		var table, name, dataType, nullable string
		if err := rows.Scan(&table, &name, &dataType, &nullable); err != nil {
			i.observe("get_entire_schema_config", start, err)
			return nil, err
		}
		result[table] = append(result[table], core.ColumnDescriptor{
			Name:     name,
			SQLType:  core.FromDataType(dataType),
			Nullable: nullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		i.observe("get_entire_schema_config", start, err)
		return nil, err
	}

	i.observe("get_entire_schema_config", start, nil)
	return result, nil
}

func scanColumns(rows pgx.Rows) ([]core.ColumnDescriptor, error) {
	var columns []core.ColumnDescriptor
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, err
		}
		columns = append(columns, core.ColumnDescriptor{
			Name:     name,
			SQLType:  core.FromDataType(dataType),
			Nullable: nullable == "YES",
		})
	}
	return columns, rows.Err()
}

func (i *Introspector) observe(operation string, start time.Time, err error) {
	if i.metrics == nil {
		return
	}
	i.metrics.QueryDuration.WithLabelValues("__introspect__", operation).Observe(time.Since(start).Seconds())
	if err != nil && err != pgx.ErrNoRows {
		i.metrics.QueryErrors.WithLabelValues("__introspect__", operation).Inc()
	}
}
