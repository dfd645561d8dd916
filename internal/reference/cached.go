// Package reference caches committee and senator lookups in front of the
// reference table.
package reference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nysenate/openleg-sync/internal/legislation"
	"github.com/nysenate/openleg-sync/internal/store"
	"github.com/nysenate/openleg-sync/pkg/metrics"
	"github.com/nysenate/openleg-sync/pkg/redis"
)

// Cache is the subset of the redis client the resolver needs. Get returns
// redis.ErrCacheMiss for absent keys.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Cached is a read-through store.ReferenceResolver. Only hits are cached so
// that a reference loaded after a miss is seen on the next lookup.
type Cached struct {
	backing store.ReferenceResolver
	cache   Cache
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewCached wraps backing. A nil cache still collapses concurrent lookups.
func NewCached(backing store.ReferenceResolver, cache Cache, ttl time.Duration, m *metrics.Metrics) *Cached {
	return &Cached{
		backing: backing,
		cache:   cache,
		ttl:     ttl,
		logger:  slog.Default().With("component", "reference-cache"),
		metrics: m,
	}
}

func cacheKey(table, name string) string {
	return "ref:" + table + ":" + store.NormalizeName(name)
}

func (c *Cached) FindReference(ctx context.Context, table, name string) (*legislation.Reference, error) {
	key := cacheKey(table, name)

	if c.cache != nil {
		data, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			var ref legislation.Reference
			if jerr := json.Unmarshal(data, &ref); jerr == nil {
				c.metrics.ReferenceLookup(table, "cache_hit")
				return &ref, nil
			}
			c.logger.Warn("discarding malformed cache entry", "key", key)
		case !errors.Is(err, redis.ErrCacheMiss):
			c.logger.Warn("reference cache unavailable", "key", key, "error", err)
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		ref, err := c.backing.FindReference(ctx, table, name)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, ref)
		return ref, nil
	})
	if errors.Is(err, store.ErrNotFound) {
		c.metrics.ReferenceLookup(table, "miss")
		return nil, err
	}
	if err != nil {
		c.metrics.ReferenceLookup(table, "error")
		return nil, fmt.Errorf("finding %s %q: %w", table, name, err)
	}
	c.metrics.ReferenceLookup(table, "hit")
	ref := *v.(*legislation.Reference)
	return &ref, nil
}

func (c *Cached) store(ctx context.Context, key string, ref *legislation.Reference) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(ref)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("writing reference cache", "key", key, "error", err)
	}
}

// Invalidate drops every cached entry of table, e.g. after a reload.
func (c *Cached) Invalidate(ctx context.Context, table string) error {
	if c.cache == nil {
		return nil
	}
	n, err := c.cache.FlushByPattern(ctx, "ref:"+table+":*")
	if err != nil {
		return fmt.Errorf("invalidating %s cache: %w", table, err)
	}
	c.logger.Info("reference cache invalidated", "table", table, "keys", n)
	return nil
}
