// Package bootstrap wires the gateway's collaborators from a loaded Config
// and runs the HTTP server until an interrupt or SIGTERM arrives. Both
// cmd/server and gwctl's "serve" subcommand share this, the way the
// teacher keeps its service construction out of main and reusable by its
// own CLI tools.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vitaliisemenov/pgrestgw/internal/codecache"
	"github.com/vitaliisemenov/pgrestgw/internal/config"
	"github.com/vitaliisemenov/pgrestgw/internal/controlplane"
	"github.com/vitaliisemenov/pgrestgw/internal/database/postgres"
	"github.com/vitaliisemenov/pgrestgw/internal/dataplane"
	"github.com/vitaliisemenov/pgrestgw/internal/dispatcher"
	"github.com/vitaliisemenov/pgrestgw/internal/introspect"
	"github.com/vitaliisemenov/pgrestgw/internal/metrics"
	"github.com/vitaliisemenov/pgrestgw/internal/middleware"
	"github.com/vitaliisemenov/pgrestgw/internal/openapi"
	"github.com/vitaliisemenov/pgrestgw/internal/router"
	"github.com/vitaliisemenov/pgrestgw/internal/server"
	"github.com/vitaliisemenov/pgrestgw/pkg/logger"
)

// Gateway bundles the collaborators Serve and the gwctl subcommands need,
// so a CLI command can reach the database/caches without standing up the
// HTTP server.
type Gateway struct {
	Config       *config.Config
	Logger       *slog.Logger
	DB           *postgres.PostgresPool
	ControlPlane *controlplane.Store
	DataPlane    *dataplane.Cache
	CodeCache    *codecache.Cache
	Introspector *introspect.Introspector
	Dispatcher   *dispatcher.Dispatcher
	OpenAPI      *openapi.Builder
}

// Build connects every collaborator described by cfg. Callers must invoke
// Close when finished.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Gateway, error) {
	if log == nil {
		log = slog.Default()
	}
	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)

	dbPool := postgres.NewPostgresPool(postgres.FromAppConfig(cfg.Database), logger.Named(log, "postgres"))
	if err := dbPool.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	var ctrlPlane *controlplane.Store
	if cfg.ControlPlane.Enabled() {
		var err error
		ctrlPlane, err = controlplane.New(cfg.ControlPlane, logger.Named(log, "controlplane"), reg)
		if err != nil {
			return nil, fmt.Errorf("connect to control-plane redis: %w", err)
		}
	} else {
		log.Warn("control-plane redis not configured: schema/version/openapi caching disabled")
	}

	var dataPlane *dataplane.Cache
	if cfg.DataPlane.Enabled() {
		var err error
		dataPlane, err = dataplane.New(cfg.DataPlane, cfg.Cache.DataPlaneTTL, cfg.Cache.DataPlaneCompression, logger.Named(log, "dataplane"), reg)
		if err != nil {
			return nil, fmt.Errorf("connect to data-plane redis: %w", err)
		}
	} else {
		log.Warn("data-plane redis not configured: response caching disabled")
	}

	codeCache, err := codecache.New(cfg.Cache.CodePlaneMaxEntries, logger.Named(log, "codecache"), reg)
	if err != nil {
		return nil, fmt.Errorf("build code-plane cache: %w", err)
	}

	insp := introspect.New(dbPool, logger.Named(log, "introspect"), reg)

	routerDeps := router.Deps{
		DB:           dbPool,
		ControlPlane: ctrlPlane,
		DataPlane:    dataPlane,
		Logger:       logger.Named(log, "router"),
		Metrics:      reg,
	}

	disp := dispatcher.New(dispatcher.Config{
		Introspector:    insp,
		RouterDeps:      routerDeps,
		CodeCache:       codeCache,
		ControlPlane:    ctrlPlane,
		Logger:          logger.Named(log, "dispatcher"),
		Metrics:         reg,
		PrimaryKeyName:  cfg.Schema.PrimaryKeyName,
		SoftDeleteNames: cfg.Schema.SoftDeleteColumns,
	})

	docBuilder := openapi.New(insp, ctrlPlane, logger.Named(log, "openapi"))

	return &Gateway{
		Config:       cfg,
		Logger:       log,
		DB:           dbPool,
		ControlPlane: ctrlPlane,
		DataPlane:    dataPlane,
		CodeCache:    codeCache,
		Introspector: insp,
		Dispatcher:   disp,
		OpenAPI:      docBuilder,
	}, nil
}

// Close releases every connection Build opened.
func (g *Gateway) Close() {
	if g.DataPlane != nil {
		_ = g.DataPlane.Close()
	}
	if g.ControlPlane != nil {
		_ = g.ControlPlane.Close()
	}
	_ = g.DB.Close()
}

// Serve runs the HTTP server until an interrupt or SIGTERM arrives.
func (g *Gateway) Serve() error {
	cfg := g.Config
	mux := server.NewRouter(server.Config{
		Dispatcher:     g.Dispatcher,
		OpenAPI:        g.OpenAPI,
		Logger:         g.Logger,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORS:           middleware.DefaultCORSConfig(),
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		g.Logger.Info("http server starting", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server failed to start: %w", err)
	case <-quit:
	}

	g.Logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	g.Logger.Info("server exited")
	return nil
}
