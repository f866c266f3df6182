// Package migrate runs goose migrations against the gateway's Postgres
// database, used by integration tests and the operator CLI to bring up a
// schema for the Introspector to read.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vitaliisemenov/pgrestgw/internal/database/postgres"
)

// Up applies every pending migration found in dir against cfg.
func Up(ctx context.Context, cfg *postgres.PostgresConfig, dir string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return fmt.Errorf("migrate: open db: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrate: set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("migrate: up: %w", err)
	}

	logger.Info("migrations applied", "dir", dir)
	return nil
}

// Down rolls back the given number of migration steps.
func Down(ctx context.Context, cfg *postgres.PostgresConfig, dir string, steps int, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return fmt.Errorf("migrate: open db: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrate: set dialect: %w", err)
	}

	current, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("migrate: get version: %w", err)
	}

	if err := goose.DownToContext(ctx, db, dir, current-int64(steps)); err != nil {
		return fmt.Errorf("migrate: down: %w", err)
	}

	logger.Info("migrations rolled back", "dir", dir, "steps", steps)
	return nil
}
