package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/pgrestgw/internal/database/migrate"
	"github.com/vitaliisemenov/pgrestgw/internal/database/postgres"
)

var migrateDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	Args:  cobra.NoArgs,
	RunE:  runMigrateUp,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down <steps>",
	Short: "Roll back the given number of migration steps",
	Args:  cobra.ExactArgs(1),
	RunE:  runMigrateDown,
}

func init() {
	migrateCmd.PersistentFlags().StringVar(&migrateDir, "dir", "migrations", "directory holding the goose migration files")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return migrate.Up(context.Background(), postgres.FromAppConfig(cfg.Database), migrateDir, nil)
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	var steps int
	if _, err := fmt.Sscanf(args[0], "%d", &steps); err != nil {
		return fmt.Errorf("invalid step count %q: %w", args[0], err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return migrate.Down(context.Background(), postgres.FromAppConfig(cfg.Database), migrateDir, steps, nil)
}
