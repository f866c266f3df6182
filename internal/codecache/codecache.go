// Package codecache implements the code-plane cache of §2/§3: an
// in-process table-name → Handler Bundle map, process-lifetime, replaced
// wholesale on rebuild. It wraps hashicorp/golang-lru/v2, which is already
// safe for concurrent readers and writers and needs no background sweep
// goroutine of its own.
package codecache

import (
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vitaliisemenov/pgrestgw/internal/core"
	"github.com/vitaliisemenov/pgrestgw/internal/metrics"
)

// Cache is the code-plane cache (component F). A Bundle is never mutated in
// place; Set always installs a fresh one, so concurrent readers observe
// either the prior bundle or the new one, never a half-built one (§5).
type Cache struct {
	lru     *lru.Cache[string, *core.Bundle]
	logger  *slog.Logger
	metrics *metrics.Registry
}

// New builds a code-plane cache holding at most maxEntries table bundles.
func New(maxEntries int, logger *slog.Logger, reg *metrics.Registry) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxEntries <= 0 {
		maxEntries = 512
	}

	backing, err := lru.New[string, *core.Bundle](maxEntries)
	if err != nil {
		return nil, err
	}

	return &Cache{lru: backing, logger: logger, metrics: reg}, nil
}

// Get returns the bundle currently cached for table, if any.
func (c *Cache) Get(table string) (*core.Bundle, bool) {
	start := time.Now()
	bundle, ok := c.lru.Get(table)
	c.observe("get", start)
	if c.metrics == nil {
		return bundle, ok
	}
	if ok {
		c.metrics.CacheHits.WithLabelValues(string(metrics.TierCodePlane)).Inc()
	} else {
		c.metrics.CacheMisses.WithLabelValues(string(metrics.TierCodePlane)).Inc()
	}
	return bundle, ok
}

// Set installs bundle as the current handler set for table, replacing
// whatever was previously cached.
func (c *Cache) Set(table string, bundle *core.Bundle) {
	start := time.Now()
	c.lru.Add(table, bundle)
	c.observe("set", start)
}

// Delete purges table's bundle. Called when a drift check observes that the
// introspected version token no longer matches the cached bundle's (§4.6
// step 2); invariant 1 forbids serving the stale bundle after that point.
func (c *Cache) Delete(table string) {
	c.lru.Remove(table)
	if c.metrics == nil {
		return
	}
	c.metrics.DriftDetected.WithLabelValues(table).Inc()
}

// Len reports the number of table bundles currently cached.
func (c *Cache) Len() int {
	return c.lru.Len()
}

func (c *Cache) observe(operation string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.CacheDuration.WithLabelValues(string(metrics.TierCodePlane), operation).Observe(time.Since(start).Seconds())
}
