// Package main is the entry point for the PostgreSQL REST gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vitaliisemenov/pgrestgw/internal/bootstrap"
	"github.com/vitaliisemenov/pgrestgw/internal/config"
	"github.com/vitaliisemenov/pgrestgw/pkg/logger"
)

const serviceName = "pgrestgw"

func main() {
	var configPath = flag.String("config", "", "Path to YAML configuration file")
	var showVersion = flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, "0.1.0")
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
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
	log.Info("starting gateway", "service", serviceName, "environment", cfg.App.Environment)

	gw, err := bootstrap.Build(context.Background(), cfg, log)
	if err != nil {
		log.Error("failed to initialize gateway", "error", err)
		os.Exit(1)
	}
	defer gw.Close()

	if err := gw.Serve(); err != nil {
		log.Error("gateway exited with error", "error", err)
		os.Exit(1)
	}
}
