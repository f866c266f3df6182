package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/pgrestgw/internal/bootstrap"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect introspected table schemas",
}

var schemaDumpCmd = &cobra.Command{
	Use:   "dump <table>",
	Short: "Print a table's introspected column metadata as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaDump,
}

func init() {
	schemaCmd.AddCommand(schemaDumpCmd)
}

func runSchemaDump(cmd *cobra.Command, args []string) error {
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

	columns, ok := gw.Introspector.GetTableConfig(context.Background(), table)
	if !ok {
		return fmt.Errorf("table %q not found", table)
	}

	out, err := json.MarshalIndent(columns, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
