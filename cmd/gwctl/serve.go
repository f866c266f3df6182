package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/pgrestgw/internal/bootstrap"
	"github.com/vitaliisemenov/pgrestgw/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway's HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	gw, err := bootstrap.Build(context.Background(), cfg, log)
	if err != nil {
		return err
	}
	defer gw.Close()

	return gw.Serve()
}
