// Package router is the Router Factory of §2/§4.5 (component E): given a
// Schema Builder Descriptor and the version token it was built at, it
// produces a Handler Bundle — one handler closure per (method, path
// pattern) pair, capturing the Table Descriptor, validators, and version.
// It is framework-agnostic: handlers read the path parameter through a
// context key rather than any particular router's request-var mechanism,
// so the same bundle mounts under any HTTP multiplexer.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vitaliisemenov/pgrestgw/internal/apierrors"
	"github.com/vitaliisemenov/pgrestgw/internal/controlplane"
	"github.com/vitaliisemenov/pgrestgw/internal/core"
	"github.com/vitaliisemenov/pgrestgw/internal/database/postgres"
	"github.com/vitaliisemenov/pgrestgw/internal/dataplane"
	"github.com/vitaliisemenov/pgrestgw/internal/metrics"
	"github.com/vitaliisemenov/pgrestgw/internal/middleware"
	"github.com/vitaliisemenov/pgrestgw/internal/params"
	"github.com/vitaliisemenov/pgrestgw/internal/schema"
	"github.com/vitaliisemenov/pgrestgw/internal/sqlgen"
)

// requiredValidate is the single validator.Validate instance every Handler
// Bundle shares to check required-field presence with Var rather than a
// struct tag: the request body is a dynamic map keyed by introspected
// column name, not a fixed Go type, so there is no struct to tag.
var requiredValidate = validator.New()

// Deps bundles the per-request collaborators a Handler Bundle's routes
// close over. ControlPlane and DataPlane are optional: a nil tier is simply
// skipped (the gateway falls through to direct database reads, §6).
type Deps struct {
	DB           postgres.DatabaseConnection
	ControlPlane *controlplane.Store
	DataPlane    *dataplane.Cache
	Logger       *slog.Logger
	Metrics      *metrics.Registry
}

type idContextKey struct{}

// WithID stashes the {id} path segment the Dispatcher parsed out of the
// request URL, so route handlers can read it without depending on any
// particular HTTP router's path-variable mechanism.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idContextKey{}, id)
}

func idFromContext(r *http.Request) string {
	id, _ := r.Context().Value(idContextKey{}).(string)
	return id
}

// Build assembles the Handler Bundle of §3/§4.5 for one table.
func Build(desc *schema.Descriptor, version core.VersionToken, deps Deps) *core.Bundle {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	routes := map[core.RouteKey]http.HandlerFunc{
		{Method: http.MethodGet, Path: "/"}:        listHandler(desc, version, deps),
		{Method: http.MethodPost, Path: "/"}:       insertHandler(desc, deps),
		{Method: http.MethodPut, Path: "/{id}"}:    updateHandler(desc, deps, true, true),
		{Method: http.MethodPatch, Path: "/{id}"}:  updateHandler(desc, deps, true, false),
		{Method: http.MethodPut, Path: "/"}:        updateHandler(desc, deps, false, true),
		{Method: http.MethodPatch, Path: "/"}:      updateHandler(desc, deps, false, false),
		{Method: http.MethodDelete, Path: "/{id}"}: deleteHandler(desc, deps, true),
		{Method: http.MethodDelete, Path: "/"}:     deleteHandler(desc, deps, false),
	}

	return &core.Bundle{Table: desc.Table, Version: version, Routes: routes}
}

func listHandler(desc *schema.Descriptor, version core.VersionToken, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		q := params.ParseQuery(r.URL.Query(), desc.Table)

		if deps.DataPlane == nil || middleware.BypassCache(r) {
			runSelect(ctx, desc, deps, q, w)
			return
		}

		currentVersion := version
		if deps.ControlPlane != nil {
			if v, ok := deps.ControlPlane.GetVersion(ctx, desc.Table.Name); ok {
				currentVersion = v
			}
		}

		cacheURL := dataplane.CacheURL(desc.Table.Name, currentVersion, dataplane.Fingerprint(q))

		if entry, ok := deps.DataPlane.Match(ctx, cacheURL); ok {
			go revalidate(desc, deps, q, cacheURL)
			w.Header().Set("Content-Type", entry.ContentType)
			w.WriteHeader(entry.StatusCode)
			_, _ = w.Write(entry.Body)
			return
		}

		rows, err := selectRows(ctx, desc, deps, q)
		if err != nil {
			deps.Logger.Error("list query failed", "table", desc.Table.Name, "error", err)
			apierrors.Write(w, apierrors.New(apierrors.KindDatabase, "failed to list rows"))
			return
		}

		body, _ := json.Marshal(nonNilRows(rows))
		if err := deps.DataPlane.Put(ctx, cacheURL, &dataplane.Entry{Body: body, ContentType: "application/json", StatusCode: http.StatusOK}, 0); err != nil {
			deps.Logger.Warn("data-plane cache write failed", "table", desc.Table.Name, "error", err)
		}

		writeRows(w, rows, http.StatusOK)
	}
}

// revalidate is the SWR write-behind: it reruns the query on a hit and
// overwrites the cache entry, detached from the request that triggered it
// so request cancellation cannot interrupt it (§5 cancellation rule).
func revalidate(desc *schema.Descriptor, deps Deps, q core.ParsedQuery, cacheURL string) {
	ctx := context.Background()
	rows, err := selectRows(ctx, desc, deps, q)
	if err != nil {
		deps.Logger.Warn("SWR revalidation failed", "table", desc.Table.Name, "error", err)
		return
	}
	body, _ := json.Marshal(nonNilRows(rows))
	if err := deps.DataPlane.Put(ctx, cacheURL, &dataplane.Entry{Body: body, ContentType: "application/json", StatusCode: http.StatusOK}, 0); err != nil {
		deps.Logger.Warn("SWR cache write failed", "table", desc.Table.Name, "error", err)
	}
}

func selectRows(ctx context.Context, desc *schema.Descriptor, deps Deps, q core.ParsedQuery) ([]core.Row, error) {
	return execRows(ctx, deps.DB, sqlgen.SynthesizeSelect(desc.Table, q))
}

func runSelect(ctx context.Context, desc *schema.Descriptor, deps Deps, q core.ParsedQuery, w http.ResponseWriter) {
	rows, err := selectRows(ctx, desc, deps, q)
	if err != nil {
		deps.Logger.Error("list query failed", "table", desc.Table.Name, "error", err)
		apierrors.Write(w, apierrors.New(apierrors.KindDatabase, "failed to list rows"))
		return
	}
	writeRows(w, rows, http.StatusOK)
}

func insertHandler(desc *schema.Descriptor, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body, err := decodeBody(r)
		if err != nil {
			apierrors.Write(w, apierrors.New(apierrors.KindValidation, "invalid JSON body"))
			return
		}
		if err := validateBody(desc.InsertValidators, body); err != nil {
			apierrors.Write(w, apierrors.New(apierrors.KindValidation, err.Error()))
			return
		}

		ins := params.ParseInsert(r.URL.Query(), desc.Table)
		stmt := sqlgen.SynthesizeInsert(desc.Table, body, ins)

		rows, err := execRows(ctx, deps.DB, stmt)
		if err != nil {
			deps.Logger.Error("insert failed", "table", desc.Table.Name, "error", err)
			apierrors.Write(w, apierrors.New(apierrors.KindDatabase, "failed to insert row"))
			return
		}

		if len(rows) > 0 {
			bumpVersion(ctx, deps, desc.Table.Name)
			writeRow(w, rows[0], http.StatusCreated)
			return
		}
		if ins.OnConflict != nil && ins.OnConflict.Action == core.ConflictNothing {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		apierrors.Write(w, apierrors.New(apierrors.KindDatabase, "insert returned no row"))
	}
}

// updateHandler backs PUT/PATCH on both "/{id}" and "/" (byID selects the
// single-row path, requireAll enforces the full-replace rule of invariant 5).
func updateHandler(desc *schema.Descriptor, deps Deps, byID, requireAll bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body, err := decodeBody(r)
		if err != nil {
			apierrors.Write(w, apierrors.New(apierrors.KindValidation, "invalid JSON body"))
			return
		}

		if requireAll {
			if missing := missingFields(requiredFields(desc.Table), body); len(missing) > 0 {
				apierrors.Write(w, apierrors.New(apierrors.KindValidation, "missing required fields").WithMissingFields(missing))
				return
			}
		}
		if err := validateBody(desc.InsertValidators, body); err != nil {
			apierrors.Write(w, apierrors.New(apierrors.KindValidation, err.Error()))
			return
		}

		parsed := params.ParseUpdate(r.URL.Query(), desc.Table)
		explicitReturning := parsed.Returning != nil
		if byID {
			parsed.Filters = []core.Filter{params.ParsePKFilter(desc.Table, idFromContext(r))}
		}

		stmt, ok := sqlgen.SynthesizeUpdate(desc.Table, body, parsed)
		if !ok {
			apierrors.Write(w, apierrors.New(apierrors.KindValidation, "no writable fields in body"))
			return
		}

		rows, err := execRows(ctx, deps.DB, stmt)
		if err != nil {
			deps.Logger.Error("update failed", "table", desc.Table.Name, "error", err)
			apierrors.Write(w, apierrors.New(apierrors.KindDatabase, "failed to update rows"))
			return
		}

		if len(rows) > 0 {
			bumpVersion(ctx, deps, desc.Table.Name)
		}
		writeMutationResponse(w, rows, explicitReturning, byID)
	}
}

func deleteHandler(desc *schema.Descriptor, deps Deps, byID bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		del := params.ParseDelete(r.URL.Query(), desc.Table)
		explicitReturning := del.Returning != nil
		if byID {
			del.Filters = []core.Filter{params.ParsePKFilter(desc.Table, idFromContext(r))}
		}

		stmt := sqlgen.SynthesizeDelete(desc.Table, del)
		rows, err := execRows(ctx, deps.DB, stmt)
		if err != nil {
			deps.Logger.Error("delete failed", "table", desc.Table.Name, "error", err)
			apierrors.Write(w, apierrors.New(apierrors.KindDatabase, "failed to delete rows"))
			return
		}

		if len(rows) > 0 {
			bumpVersion(ctx, deps, desc.Table.Name)
		}
		writeMutationResponse(w, rows, explicitReturning, byID)
	}
}

// writeMutationResponse applies the response-code policy of §4.5 common to
// UPDATE and DELETE: no match is 404 on a /{id} route, 204 in bulk; a match
// without an explicit `returning` request is 204; otherwise 200 with the body.
func writeMutationResponse(w http.ResponseWriter, rows []core.Row, explicitReturning, byID bool) {
	if len(rows) == 0 {
		if byID {
			apierrors.Write(w, apierrors.RecordNotFound())
		} else {
			w.WriteHeader(http.StatusNoContent)
		}
		return
	}
	if !explicitReturning {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if byID {
		writeRow(w, rows[0], http.StatusOK)
	} else {
		writeRows(w, rows, http.StatusOK)
	}
}

func bumpVersion(ctx context.Context, deps Deps, table string) {
	if deps.ControlPlane == nil {
		return
	}
	if _, err := deps.ControlPlane.BumpVersion(ctx, table, time.Now()); err != nil {
		deps.Logger.Warn("version bump failed", "table", table, "error", err)
	}
}

func requiredFields(table *core.TableDescriptor) []string {
	var out []string
	for _, c := range table.Columns {
		if c.Name == table.PrimaryKey || c.Nullable {
			continue
		}
		out = append(out, c.Name)
	}
	return out
}

// missingFields runs each required column's value through validator.Var's
// "required" tag — an ad hoc single-field check against go-playground/
// validator rather than a hand-rolled zero-value comparison. A column
// absent from body is validated as nil, which "required" also rejects.
func missingFields(required []string, body map[string]any) []string {
	var missing []string
	for _, f := range required {
		if err := requiredValidate.Var(body[f], "required"); err != nil {
			missing = append(missing, f)
		}
	}
	return missing
}

func validateBody(validators map[string]schema.ColumnValidator, body map[string]any) error {
	for k, v := range body {
		if validate, ok := validators[k]; ok {
			if err := validate(v); err != nil {
				return fmt.Errorf("column %q: %w", k, err)
			}
		}
	}
	return nil
}

func decodeBody(r *http.Request) (map[string]any, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return map[string]any{}, nil
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

func nonNilRows(rows []core.Row) []core.Row {
	if rows == nil {
		return []core.Row{}
	}
	return rows
}

func writeRows(w http.ResponseWriter, rows []core.Row, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(nonNilRows(rows))
}

func writeRow(w http.ResponseWriter, row core.Row, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(row)
}
