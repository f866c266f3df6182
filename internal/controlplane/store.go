// Package controlplane implements the control-plane KV store of §2/§6
// (component G): authoritative per-table version tokens, the cached column
// metadata used to rebuild a Handler Bundle without re-introspecting, and
// the cached OpenAPI document. Stored as plain JSON values rather than
// compressed blobs, since this tier holds metadata rather than response
// bodies.
package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vitaliisemenov/pgrestgw/internal/config"
	"github.com/vitaliisemenov/pgrestgw/internal/core"
	"github.com/vitaliisemenov/pgrestgw/internal/metrics"
)

// ErrNotFound is returned by the typed getters when the key is absent.
var ErrNotFound = errors.New("controlplane: key not found")

// SchemaEntry is the JSON-serialized payload stored under "schema:<table>":
// the column metadata as of the paired version token, so a code-plane miss
// can rebuild a Handler Bundle without re-introspecting (§4.6 step 3).
type SchemaEntry struct {
	Columns []core.ColumnDescriptor `json:"columns"`
	Version core.VersionToken       `json:"version"`
}

// OpenAPIEntry is the JSON-serialized payload stored under "openapi" (§4.7).
type OpenAPIEntry struct {
	Spec     json.RawMessage `json:"spec"`
	Version  string          `json:"version"`
	CachedAt time.Time       `json:"cached_at"`
}

// Store is the control-plane KV (component G), backed by Redis.
type Store struct {
	client  *redis.Client
	logger  *slog.Logger
	metrics *metrics.Registry
}

// New connects the control-plane store and verifies connectivity with a
// PING before returning.
func New(cfg config.RedisConfig, logger *slog.Logger, reg *metrics.Registry) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: cfg.MinRetryBackoff,
		MaxRetryBackoff: cfg.MaxRetryBackoff,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("controlplane: connect to redis: %w", err)
	}

	logger.Info("control-plane store initialized", "addr", cfg.Addr, "db", cfg.DB)

	return &Store{client: client, logger: logger, metrics: reg}, nil
}

func versionKey(table string) string { return "version:" + table }
func schemaKey(table string) string  { return "schema:" + table }

const openAPIKey = "openapi"

// GetVersion reads the authoritative version token for table, if one has
// ever been recorded.
func (s *Store) GetVersion(ctx context.Context, table string) (core.VersionToken, bool) {
	raw, ok := s.get(ctx, versionKey(table))
	if !ok {
		return "", false
	}
	return core.VersionToken(raw), true
}

// PutVersion records tok as the authoritative version for table.
func (s *Store) PutVersion(ctx context.Context, table string, tok core.VersionToken) error {
	return s.put(ctx, versionKey(table), string(tok))
}

// BumpVersion writes a fresh monotonic (millisecond timestamp) version
// token for table and returns it, per the write-time token of §3 and the
// write-path invalidation rule of §4.6: a successful write must commit the
// new token before the response is produced (§5 ordering guarantee).
func (s *Store) BumpVersion(ctx context.Context, table string, now time.Time) (core.VersionToken, error) {
	tok := core.VersionToken(fmt.Sprintf("%d", now.UnixMilli()))
	if err := s.PutVersion(ctx, table, tok); err != nil {
		return "", err
	}
	return tok, nil
}

// GetSchema reads the cached column metadata for table.
func (s *Store) GetSchema(ctx context.Context, table string) (*SchemaEntry, bool) {
	raw, ok := s.get(ctx, schemaKey(table))
	if !ok {
		return nil, false
	}
	var entry SchemaEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		s.logger.Error("control-plane schema payload corrupt", "table", table, "error", err)
		return nil, false
	}
	return &entry, true
}

// PutSchema caches table's column metadata alongside the version token it
// was introspected at (§4.6 step 3).
func (s *Store) PutSchema(ctx context.Context, table string, columns []core.ColumnDescriptor, version core.VersionToken) error {
	data, err := json.Marshal(SchemaEntry{Columns: columns, Version: version})
	if err != nil {
		return fmt.Errorf("controlplane: marshal schema entry: %w", err)
	}
	return s.put(ctx, schemaKey(table), string(data))
}

// DeleteSchema purges the cached schema payload for table, invoked by the
// drift-check path of §4.6 step 2 alongside the code-plane purge.
func (s *Store) DeleteSchema(ctx context.Context, table string) error {
	return s.delete(ctx, schemaKey(table))
}

// GetOpenAPI reads the cached merged OpenAPI document.
func (s *Store) GetOpenAPI(ctx context.Context) (*OpenAPIEntry, bool) {
	raw, ok := s.get(ctx, openAPIKey)
	if !ok {
		return nil, false
	}
	var entry OpenAPIEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		s.logger.Error("control-plane openapi payload corrupt", "error", err)
		return nil, false
	}
	return &entry, true
}

// PutOpenAPI caches the merged OpenAPI document under its schema-digest version.
func (s *Store) PutOpenAPI(ctx context.Context, spec json.RawMessage, version string, cachedAt time.Time) error {
	data, err := json.Marshal(OpenAPIEntry{Spec: spec, Version: version, CachedAt: cachedAt})
	if err != nil {
		return fmt.Errorf("controlplane: marshal openapi entry: %w", err)
	}
	return s.put(ctx, openAPIKey, string(data))
}

func (s *Store) get(ctx context.Context, key string) (string, bool) {
	start := time.Now()
	val, err := s.client.Get(ctx, key).Result()
	s.observe("get", start)

	if errors.Is(err, redis.Nil) {
		if s.metrics != nil {
			s.metrics.CacheMisses.WithLabelValues(string(metrics.TierControlPlane)).Inc()
		}
		return "", false
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.CacheErrors.WithLabelValues(string(metrics.TierControlPlane)).Inc()
		}
		s.logger.Warn("control-plane get failed", "key", key, "error", err)
		return "", false
	}

	if s.metrics != nil {
		s.metrics.CacheHits.WithLabelValues(string(metrics.TierControlPlane)).Inc()
	}
	return val, true
}

func (s *Store) put(ctx context.Context, key, value string) error {
	start := time.Now()
	err := s.client.Set(ctx, key, value, 0).Err() // no TTL: §6 collaborator contract
	s.observe("set", start)
	if err != nil {
		if s.metrics != nil {
			s.metrics.CacheErrors.WithLabelValues(string(metrics.TierControlPlane)).Inc()
		}
		return fmt.Errorf("controlplane: set %q: %w", key, err)
	}
	return nil
}

func (s *Store) delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.client.Del(ctx, key).Err()
	s.observe("delete", start)
	if err != nil && !errors.Is(err, redis.Nil) {
		if s.metrics != nil {
			s.metrics.CacheErrors.WithLabelValues(string(metrics.TierControlPlane)).Inc()
		}
		return fmt.Errorf("controlplane: delete %q: %w", key, err)
	}
	return nil
}

func (s *Store) observe(operation string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.CacheDuration.WithLabelValues(string(metrics.TierControlPlane), operation).Observe(time.Since(start).Seconds())
}

// Close closes the underlying Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks connectivity to the control-plane store.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
