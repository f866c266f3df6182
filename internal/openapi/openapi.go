// Package openapi builds the runtime OpenAPI document of §4.7. Table shapes
// are only known after introspection, so the document is assembled as an
// openapi3.T value at request time rather than generated ahead of time from
// annotations, and served at /openapi.json, the URL the swaggo/http-swagger
// asset handler at /docs loads.
package openapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/vitaliisemenov/pgrestgw/internal/controlplane"
	"github.com/vitaliisemenov/pgrestgw/internal/core"
	"github.com/vitaliisemenov/pgrestgw/internal/introspect"
)

// Builder assembles and caches the OpenAPI document.
type Builder struct {
	introspector *introspect.Introspector
	controlPlane *controlplane.Store
	logger       *slog.Logger
}

// New builds a Builder. controlPlane may be nil: the document is then
// rebuilt from scratch on every request (§6, cache bindings are optional).
func New(introspector *introspect.Introspector, controlPlane *controlplane.Store, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{introspector: introspector, controlPlane: controlPlane, logger: logger}
}

// Document returns the serialized OpenAPI spec for the given request origin,
// implementing the cache-coordination algorithm of §4.7.
func (b *Builder) Document(ctx context.Context, origin string) (json.RawMessage, error) {
	schemas, err := b.introspector.GetEntireSchemaConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect schema: %w", err)
	}
	version := digest(schemas)

	if b.controlPlane != nil {
		if entry, ok := b.controlPlane.GetOpenAPI(ctx); ok && entry.Version == version {
			go b.regenerate(context.Background(), schemas, version, origin)
			return entry.Spec, nil
		}
	}

	return b.build(ctx, schemas, version, origin)
}

// ServeSpec is the GET /openapi.json handler (§6). The servers entry is
// derived from the request so the spec always advertises a reachable origin.
func (b *Builder) ServeSpec(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	origin := fmt.Sprintf("%s://%s", scheme, r.Host)

	spec, err := b.Document(r.Context(), origin)
	if err != nil {
		b.logger.Error("openapi: failed to build document", "error", err)
		http.Error(w, "failed to build OpenAPI document", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(spec)
}

// regenerate reruns the build in the background on a cache hit (SWR, §4.7);
// it must not delay the request that triggered it.
func (b *Builder) regenerate(ctx context.Context, schemas map[string][]core.ColumnDescriptor, version, origin string) {
	if _, err := b.build(ctx, schemas, version, origin); err != nil {
		b.logger.Warn("openapi: background regeneration failed", "error", err)
	}
}

func (b *Builder) build(ctx context.Context, schemas map[string][]core.ColumnDescriptor, version, origin string) (json.RawMessage, error) {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   "pgrestgw",
			Version: version,
		},
		Servers: openapi3.Servers{{URL: origin}},
		Paths:   openapi3.Paths{},
	}

	tables := make([]string, 0, len(schemas))
	for name := range schemas {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	for _, name := range tables {
		addTablePaths(doc, name, schemas[name])
	}

	spec, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal openapi document: %w", err)
	}

	if b.controlPlane != nil {
		if err := b.controlPlane.PutOpenAPI(ctx, spec, version, time.Now()); err != nil {
			b.logger.Warn("openapi: failed to persist document", "error", err)
		}
	}
	return spec, nil
}

// digest computes the global schema version of §4.7: a SHA-256 hash over
// every table's column metadata, marshaled to JSON, so any DDL change
// anywhere invalidates the cached document.
func digest(schemas map[string][]core.ColumnDescriptor) string {
	raw, _ := json.Marshal(schemas)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func addTablePaths(doc *openapi3.T, table string, columns []core.ColumnDescriptor) {
	rowSchema := rowSchemaFor(columns)
	arraySchema := openapi3.NewSchemaRef("", openapi3.NewArraySchema().WithItems(rowSchema.Value))
	listResponse := jsonResponse("List of rows", arraySchema)
	rowResponse := jsonResponse("A single row", rowSchema)
	noContent := &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription("No content")}

	collection := &openapi3.PathItem{
		Get:    &openapi3.Operation{Summary: "List " + table, Parameters: listParameters(columns), Responses: openapi3.Responses{"200": listResponse}},
		Post:   &openapi3.Operation{Summary: "Insert into " + table, RequestBody: jsonRequestBody(rowSchema), Responses: openapi3.Responses{"201": rowResponse, "204": noContent}},
		Put:    &openapi3.Operation{Summary: "Bulk replace " + table, RequestBody: jsonRequestBody(rowSchema), Responses: openapi3.Responses{"200": listResponse, "204": noContent}},
		Patch:  &openapi3.Operation{Summary: "Bulk update " + table, RequestBody: jsonRequestBody(rowSchema), Responses: openapi3.Responses{"200": listResponse, "204": noContent}},
		Delete: &openapi3.Operation{Summary: "Bulk delete " + table, Responses: openapi3.Responses{"200": listResponse, "204": noContent}},
	}

	byID := &openapi3.PathItem{
		Parameters: openapi3.Parameters{idParameter()},
		Put:        &openapi3.Operation{Summary: "Replace one row of " + table, RequestBody: jsonRequestBody(rowSchema), Responses: openapi3.Responses{"200": rowResponse, "204": noContent, "404": notFoundResponse()}},
		Patch:      &openapi3.Operation{Summary: "Update one row of " + table, RequestBody: jsonRequestBody(rowSchema), Responses: openapi3.Responses{"200": rowResponse, "204": noContent, "404": notFoundResponse()}},
		Delete:     &openapi3.Operation{Summary: "Delete one row of " + table, Responses: openapi3.Responses{"200": rowResponse, "204": noContent, "404": notFoundResponse()}},
	}

	doc.Paths["/api/"+table+"/"] = collection
	doc.Paths["/api/"+table+"/{id}"] = byID
}

// listParameters advertises the filter/sort/pagination/projection grammar of
// §4.3 for a table's list GET: the four reserved query keys, an implicit-eq
// parameter per column, and the `field__op` comparison operators the column's
// SQL type admits (gt/gte/lt/lte on numeric columns, like/ilike on textual
// ones, isnull wherever the column is nullable).
func listParameters(columns []core.ColumnDescriptor) openapi3.Parameters {
	params := openapi3.Parameters{
		queryParameter("order_by", "Comma-separated sort fields, prefix with - for descending"),
		queryParameter("limit", "Maximum number of rows to return"),
		queryParameter("offset", "Number of rows to skip"),
		queryParameter("select", "Comma-separated list of columns to project"),
	}

	for _, c := range columns {
		params = append(params, queryParameter(c.Name, fmt.Sprintf("Filter %s by equality", c.Name)))

		var ops []core.FilterOp
		if c.SQLType.IsNumeric() {
			ops = append(ops, core.OpGt, core.OpGte, core.OpLt, core.OpLte)
		}
		if c.SQLType.IsTextual() {
			ops = append(ops, core.OpLike, core.OpILike)
		}
		if c.Nullable {
			ops = append(ops, core.OpIsNull)
		}
		for _, op := range ops {
			name := c.Name + "__" + string(op)
			params = append(params, queryParameter(name, fmt.Sprintf("Filter %s with the %s operator", c.Name, op)))
		}
	}

	return params
}

func queryParameter(name, description string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: &openapi3.Parameter{
		In:          "query",
		Name:        name,
		Required:    false,
		Description: description,
		Schema:      openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
	}}
}

func rowSchemaFor(columns []core.ColumnDescriptor) *openapi3.SchemaRef {
	properties := make(openapi3.Schemas, len(columns))
	for _, c := range columns {
		properties[c.Name] = columnSchema(c)
	}
	return openapi3.NewSchemaRef("", openapi3.NewObjectSchema().WithPropertiesRefs(properties))
}

func columnSchema(c core.ColumnDescriptor) *openapi3.SchemaRef {
	var s *openapi3.Schema
	switch c.SQLType {
	case core.SQLTypeInteger:
		s = openapi3.NewIntegerSchema()
	case core.SQLTypeNumeric, core.SQLTypeReal, core.SQLTypeDoublePrecision:
		s = openapi3.NewFloat64Schema()
	case core.SQLTypeBoolean:
		s = openapi3.NewBoolSchema()
	default:
		s = openapi3.NewStringSchema()
	}
	if c.Nullable {
		s = s.WithNullable()
	}
	return openapi3.NewSchemaRef("", s)
}

func idParameter() *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: &openapi3.Parameter{
		In:       "path",
		Name:     "id",
		Required: true,
		Schema:   openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
	}}
}

func jsonRequestBody(schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().WithJSONSchemaRef(schema)}
}

func jsonResponse(description string, schema *openapi3.SchemaRef) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription(description).WithJSONSchemaRef(schema)}
}

func notFoundResponse() *openapi3.ResponseRef {
	return &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription("Record not found")}
}
