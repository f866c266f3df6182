// Package dispatcher resolves any request shaped /api/<table>/... to a
// Handler Bundle and forwards it, coordinating the three cache tiers per
// §4.6: a code-plane hit serves immediately and checks for schema drift in
// a detached background goroutine; a miss re-introspects, rebuilds the
// bundle, and caches it before serving.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vitaliisemenov/pgrestgw/internal/apierrors"
	"github.com/vitaliisemenov/pgrestgw/internal/codecache"
	"github.com/vitaliisemenov/pgrestgw/internal/controlplane"
	"github.com/vitaliisemenov/pgrestgw/internal/core"
	"github.com/vitaliisemenov/pgrestgw/internal/introspect"
	"github.com/vitaliisemenov/pgrestgw/internal/metrics"
	"github.com/vitaliisemenov/pgrestgw/internal/middleware"
	"github.com/vitaliisemenov/pgrestgw/internal/router"
	"github.com/vitaliisemenov/pgrestgw/internal/schema"
)

// errTableNotFound signals that the introspected table does not exist;
// Handle translates it into the §7 NOT_FOUND response.
var errTableNotFound = errors.New("dispatcher: table not found")

// Dispatcher is the single entry point for the dynamic /api/<table>/...
// surface: it owns the code-plane cache and builds/rebuilds Handler
// Bundles on demand (§4.6 steps 2–4).
type Dispatcher struct {
	introspector *introspect.Introspector
	routerDeps   router.Deps
	codeCache    *codecache.Cache
	controlPlane *controlplane.Store
	logger       *slog.Logger
	metrics      *metrics.Registry
	pkColumn     string
	softDeletes  []string
}

// Config carries the Dispatcher's fixed collaborators.
type Config struct {
	Introspector    *introspect.Introspector
	RouterDeps      router.Deps
	CodeCache       *codecache.Cache
	ControlPlane    *controlplane.Store
	Logger          *slog.Logger
	Metrics         *metrics.Registry
	PrimaryKeyName  string
	SoftDeleteNames []string
}

// New builds a Dispatcher from cfg.
func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		introspector: cfg.Introspector,
		routerDeps:   cfg.RouterDeps,
		codeCache:    cfg.CodeCache,
		controlPlane: cfg.ControlPlane,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		pkColumn:     cfg.PrimaryKeyName,
		softDeletes:  cfg.SoftDeleteNames,
	}
}

// Handle implements the routing entry point for /api/{table}/{rest...}.
// table and rest are pre-parsed by the caller (the top-level mux route).
func (d *Dispatcher) Handle(w http.ResponseWriter, r *http.Request, table, rest string) {
	ctx := r.Context()
	bypass := middleware.BypassCache(r)

	bundle, fromCache := d.lookupCodePlane(table, bypass)
	if fromCache {
		go d.checkDrift(table)
	} else {
		var err error
		bundle, err = d.resolveBundle(ctx, table)
		if err != nil {
			if errors.Is(err, errTableNotFound) {
				apierrors.Write(w, apierrors.TableNotFound())
				return
			}
			d.logger.Error("bundle resolution failed", "table", table, "error", err)
			apierrors.Write(w, apierrors.Internal("failed to resolve table"))
			return
		}
		if d.codeCache != nil {
			d.codeCache.Set(table, bundle)
		}
	}

	method, path, id := splitRoute(r.Method, rest)
	handler, ok := bundle.Route(method, path)
	if !ok {
		apierrors.Write(w, apierrors.New(apierrors.KindNotFound, "route not found"))
		return
	}
	if id != "" {
		r = r.WithContext(router.WithID(ctx, id))
	}
	handler(w, r)
}

// lookupCodePlane serves §4.6 step 2: a code-plane hit when caches aren't bypassed.
func (d *Dispatcher) lookupCodePlane(table string, bypass bool) (*core.Bundle, bool) {
	if d.codeCache == nil || bypass {
		return nil, false
	}
	return d.codeCache.Get(table)
}

// checkDrift re-fetches the introspection token in the background and purges
// stale cache entries if it has moved, per the detached drift-check rule of
// §4.6/§5 — it must never delay the response it was scheduled from.
func (d *Dispatcher) checkDrift(table string) {
	ctx := context.Background()
	current, ok := d.introspector.GetTableVersion(ctx, table)
	if !ok {
		return
	}
	bundle, ok := d.codeCache.Get(table)
	if !ok || bundle.Version == current {
		return
	}
	d.codeCache.Delete(table)
	if d.controlPlane != nil {
		if err := d.controlPlane.DeleteSchema(ctx, table); err != nil {
			d.logger.Warn("drift check: failed to purge control-plane schema", "table", table, "error", err)
		}
	}
}

// resolveBundle implements §4.6 step 3: introspect, reuse or rebuild the
// schema, then compose a fresh Handler Bundle.
func (d *Dispatcher) resolveBundle(ctx context.Context, table string) (*core.Bundle, error) {
	version, ok := d.introspector.GetTableVersion(ctx, table)
	if !ok {
		return nil, errTableNotFound
	}

	columns, ok := d.reuseOrIntrospectSchema(ctx, table, version)
	if !ok {
		return nil, errTableNotFound
	}

	desc := schema.Build(table, columns, d.pkColumn, d.softDeletes)
	return router.Build(desc, version, d.routerDeps), nil
}

func (d *Dispatcher) reuseOrIntrospectSchema(ctx context.Context, table string, version core.VersionToken) ([]core.ColumnDescriptor, bool) {
	if d.controlPlane != nil {
		if entry, ok := d.controlPlane.GetSchema(ctx, table); ok && entry.Version == version {
			return entry.Columns, true
		}
	}

	columns, ok := d.introspector.GetTableConfig(ctx, table)
	if !ok {
		return nil, false
	}

	if d.controlPlane != nil {
		if err := d.controlPlane.PutSchema(ctx, table, columns, version); err != nil {
			d.logger.Warn("failed to persist schema to control plane", "table", table, "error", err)
		}
	}
	return columns, true
}

// splitRoute turns the method and the path remainder after /api/<table>
// into a route pattern ("/" or "/{id}") and the id segment, if any.
func splitRoute(method, rest string) (routeMethod, path, id string) {
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return method, "/", ""
	}
	return method, "/{id}", rest
}
