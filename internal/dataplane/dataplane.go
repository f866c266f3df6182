// Package dataplane implements the data-plane response cache of §2/§4.6
// (component H): an external cache of JSON response bodies keyed by a URL
// that embeds table name, version token, and query fingerprint, with a
// short TTL and an on-write gzip compression knob.
package dataplane

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vitaliisemenov/pgrestgw/internal/config"
	"github.com/vitaliisemenov/pgrestgw/internal/core"
	"github.com/vitaliisemenov/pgrestgw/internal/metrics"
)

// ErrNotFound is returned by Match on a cache miss.
var ErrNotFound = errors.New("dataplane: not found")

// Entry is a cached response body, as addressed by Match/Put (§6).
type Entry struct {
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
	StatusCode  int    `json:"status_code"`
}

// Cache is the data-plane cache (component H), backed by Redis.
type Cache struct {
	client      *redis.Client
	defaultTTL  time.Duration
	compression bool
	logger      *slog.Logger
	metrics     *metrics.Registry
}

// New connects the data-plane cache and verifies connectivity with a PING.
func New(cfg config.RedisConfig, defaultTTL time.Duration, compression bool, logger *slog.Logger, reg *metrics.Registry) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultTTL <= 0 {
		defaultTTL = 60 * time.Second // §4.6: short TTL, 60s
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
		return nil, fmt.Errorf("dataplane: connect to redis: %w", err)
	}

	logger.Info("data-plane cache initialized", "addr", cfg.Addr, "db", cfg.DB, "ttl", defaultTTL, "compression", compression)

	return &Cache{client: client, defaultTTL: defaultTTL, compression: compression, logger: logger, metrics: reg}, nil
}

// Match looks up url (as produced by CacheURL) in the data plane.
func (c *Cache) Match(ctx context.Context, cacheURL string) (*Entry, bool) {
	start := time.Now()
	data, err := c.client.Get(ctx, cacheURL).Bytes()
	c.observe("get", start)

	if errors.Is(err, redis.Nil) {
		if c.metrics != nil {
			c.metrics.CacheMisses.WithLabelValues(string(metrics.TierDataPlane)).Inc()
		}
		return nil, false
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.CacheErrors.WithLabelValues(string(metrics.TierDataPlane)).Inc()
		}
		c.logger.Warn("data-plane get failed", "url", cacheURL, "error", err)
		return nil, false
	}

	if c.compression {
		if data, err = c.decompress(data); err != nil {
			if c.metrics != nil {
				c.metrics.CacheErrors.WithLabelValues(string(metrics.TierDataPlane)).Inc()
			}
			c.logger.Error("data-plane decompress failed", "url", cacheURL, "error", err)
			return nil, false
		}
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		if c.metrics != nil {
			c.metrics.CacheErrors.WithLabelValues(string(metrics.TierDataPlane)).Inc()
		}
		c.logger.Error("data-plane payload corrupt", "url", cacheURL, "error", err)
		return nil, false
	}

	if c.metrics != nil {
		c.metrics.CacheHits.WithLabelValues(string(metrics.TierDataPlane)).Inc()
	}
	return &entry, true
}

// Put stores entry under url with the cache's configured TTL, honoring an
// explicit Cache-Control max-age override when maxAge > 0 (§6).
func (c *Cache) Put(ctx context.Context, cacheURL string, entry *Entry, maxAge time.Duration) error {
	ttl := c.defaultTTL
	if maxAge > 0 {
		ttl = maxAge
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("dataplane: marshal entry: %w", err)
	}

	if c.compression {
		if data, err = c.compress(data); err != nil {
			return fmt.Errorf("dataplane: compress entry: %w", err)
		}
	}

	start := time.Now()
	err = c.client.Set(ctx, cacheURL, data, ttl).Err()
	c.observe("set", start)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CacheErrors.WithLabelValues(string(metrics.TierDataPlane)).Inc()
		}
		return fmt.Errorf("dataplane: set %q: %w", cacheURL, err)
	}
	return nil
}

// Delete purges a single cache URL, used when an individual entry must be
// invalidated outside the normal version-bump path.
func (c *Cache) Delete(ctx context.Context, cacheURL string) error {
	start := time.Now()
	err := c.client.Del(ctx, cacheURL).Err()
	c.observe("delete", start)
	if err != nil && !errors.Is(err, redis.Nil) {
		if c.metrics != nil {
			c.metrics.CacheErrors.WithLabelValues(string(metrics.TierDataPlane)).Inc()
		}
		return fmt.Errorf("dataplane: delete %q: %w", cacheURL, err)
	}
	return nil
}

func (c *Cache) compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Cache) decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (c *Cache) observe(operation string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.CacheDuration.WithLabelValues(string(metrics.TierDataPlane), operation).Observe(time.Since(start).Seconds())
}

// Close closes the underlying Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Fingerprint derives the canonical query fingerprint of §4.6 from a
// ParsedQuery: filters sorted by field name (then operator and value), sort directives kept in the
// order given, projection fields sorted alphabetically, concatenated as
// "f[...];s[...];l<limit>;o<offset>;c[...]". A query with no filters, sort,
// pagination, or projection fingerprints as the literal "list".
func Fingerprint(q core.ParsedQuery) string {
	if len(q.Filters) == 0 && len(q.Sort) == 0 && q.Limit == nil && q.Offset == nil && len(q.Select) == 0 {
		return "list"
	}

	var b strings.Builder

	if len(q.Filters) > 0 {
		filters := make([]core.Filter, len(q.Filters))
		copy(filters, q.Filters)
		sort.Slice(filters, func(i, j int) bool {
			if filters[i].Field != filters[j].Field {
				return filters[i].Field < filters[j].Field
			}
			return fmt.Sprintf("%s:%v", filters[i].Op, filters[i].Value) < fmt.Sprintf("%s:%v", filters[j].Op, filters[j].Value)
		})

		parts := make([]string, len(filters))
		for i, f := range filters {
			parts[i] = fmt.Sprintf("%s:%s:%v", f.Field, f.Op, f.Value)
		}
		b.WriteString("f[")
		b.WriteString(strings.Join(parts, ","))
		b.WriteString("];")
	}

	if len(q.Sort) > 0 {
		parts := make([]string, len(q.Sort))
		for i, s := range q.Sort {
			if s.Direction == core.SortDesc {
				parts[i] = "-" + s.Field
			} else {
				parts[i] = s.Field
			}
		}
		b.WriteString("s[")
		b.WriteString(strings.Join(parts, ","))
		b.WriteString("];")
	}

	if q.Limit != nil {
		b.WriteString("l")
		b.WriteString(strconv.Itoa(*q.Limit))
		b.WriteString(";")
	}

	if q.Offset != nil {
		b.WriteString("o")
		b.WriteString(strconv.Itoa(*q.Offset))
		b.WriteString(";")
	}

	if len(q.Select) > 0 {
		fields := make([]string, len(q.Select))
		copy(fields, q.Select)
		sort.Strings(fields)
		b.WriteString("c[")
		b.WriteString(strings.Join(fields, ","))
		b.WriteString("]")
	}

	return strings.TrimSuffix(b.String(), ";")
}

// CacheURL composes the data-plane cache key of §4.6: a URL embedding the
// table's current version token and the query fingerprint, so a version
// bump makes every prior URL for that table unreachable.
func CacheURL(table string, version core.VersionToken, fingerprint string) string {
	return fmt.Sprintf("https://internal.pgrestgw.local/%s/%s/%s", url.PathEscape(string(version)), url.PathEscape(table), url.PathEscape(fingerprint))
}
