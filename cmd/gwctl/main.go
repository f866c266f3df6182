// Command gwctl is the gateway's operator CLI: run the server, inspect a
// table's introspected schema, or force a table's caches to be rebuilt.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/pgrestgw/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "gwctl",
	Short: "Operate the PostgreSQL REST gateway",
	Long: `gwctl runs the gateway and inspects or repairs its running state.

Examples:
  gwctl serve
  gwctl schema dump widgets
  gwctl cache purge widgets
  gwctl migrate up`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML configuration file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(configPath)
}
