package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/pgrestgw/internal/bootstrap"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the gateway's cache tiers",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge <table>",
	Short: "Invalidate a table's cached list responses and cached column metadata",
	Long: `purge bumps the table's control-plane version token, so data-plane list
responses cached under the previous token are no longer looked up, and
deletes its cached schema entry, so the next code-plane miss for the table
re-introspects its columns. A running gateway's in-process code-plane
bundle is not touched by this command.`,
	Args: cobra.ExactArgs(1),
	RunE: runCachePurge,
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd)
}

func runCachePurge(cmd *cobra.Command, args []string) error {
	table := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	gw, err := bootstrap.Build(context.Background(), cfg, nil)
	if err != nil {
		return err
	}
	defer gw.Close()

	if gw.ControlPlane == nil {
		return fmt.Errorf("control-plane redis is not configured: nothing to purge")
	}

	ctx := context.Background()
	if _, err := gw.ControlPlane.BumpVersion(ctx, table, time.Now()); err != nil {
		return fmt.Errorf("bump version for %q: %w", table, err)
	}
	if err := gw.ControlPlane.DeleteSchema(ctx, table); err != nil {
		return fmt.Errorf("delete cached schema for %q: %w", table, err)
	}

	fmt.Printf("purged cached schema and bumped version for %q\n", table)
	return nil
}
