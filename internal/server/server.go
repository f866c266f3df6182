// Package server assembles the gateway's top-level gorilla/mux router:
// global middleware applied with router.Use in a fixed order, then route
// groups registered by dedicated setup functions. Authentication, RBAC, and
// rate limiting are Non-goals and are not implemented.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/vitaliisemenov/pgrestgw/internal/dispatcher"
	"github.com/vitaliisemenov/pgrestgw/internal/middleware"
	"github.com/vitaliisemenov/pgrestgw/internal/openapi"
)

// Config carries the collaborators the router wires into the mux.
type Config struct {
	Dispatcher     *dispatcher.Dispatcher
	OpenAPI        *openapi.Builder
	Logger         *slog.Logger
	RequestTimeout time.Duration
	CORS           middleware.CORSConfig
	MetricsEnabled bool
	MetricsPath    string
}

// NewRouter builds the gateway's HTTP entry point: the dynamic /api/<table>
// surface behind the Dispatcher, plus the documentation and operational
// routes (§6).
//
// Middleware order, outermost first: RequestID, Logging, Recovery, Timeout,
// CORS, Compression.
func NewRouter(cfg Config) *mux.Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout, cfg.Logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Compression)

	setupAPIRoutes(r, cfg.Dispatcher)
	setupDocumentationRoutes(r, cfg.OpenAPI)
	setupOperationalRoutes(r, cfg.MetricsEnabled, cfg.MetricsPath)

	return r
}

// setupAPIRoutes configures the dynamic /api/<table>[/][<id>] surface. Every
// table, known or not, resolves through the same Dispatcher entry point
// (§4.6); there is no per-table route registration at startup.
func setupAPIRoutes(r *mux.Router, d *dispatcher.Dispatcher) {
	r.HandleFunc("/api/{table}", func(w http.ResponseWriter, r *http.Request) {
		d.Handle(w, r, mux.Vars(r)["table"], "")
	})
	r.HandleFunc("/api/{table}/", func(w http.ResponseWriter, r *http.Request) {
		d.Handle(w, r, mux.Vars(r)["table"], "")
	})
	r.HandleFunc("/api/{table}/{id}", func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		d.Handle(w, r, vars["table"], vars["id"])
	})
}

// setupDocumentationRoutes mounts the runtime OpenAPI document and its
// Swagger UI asset handler.
func setupDocumentationRoutes(r *mux.Router, b *openapi.Builder) {
	r.HandleFunc("/openapi.json", b.ServeSpec).Methods(http.MethodGet)
	r.PathPrefix("/docs").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.json")))
}

// setupOperationalRoutes mounts the liveness and Prometheus endpoints.
func setupOperationalRoutes(r *mux.Router, metricsEnabled bool, metricsPath string) {
	r.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	if metricsEnabled {
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		r.Handle(metricsPath, promhttp.Handler()).Methods(http.MethodGet)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}
