// Package cache stores finished results keyed by the facts that produced
// them and the reference tables version. A table change therefore never
// serves a stale result.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ppiankov/archetype/internal/model"
)

// Cache defines the byte-level storage used by ResultCache
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives the cache key for facts scored against the given tables.
// Source is excluded: it only partitions dispatch and never changes a result.
func Key(facts model.EntityFacts, tableID string) string {
	facts.Source = ""
	canonical, _ := json.Marshal(facts)

	h := sha256.New()
	h.Write([]byte(tableID))
	h.Write([]byte{0})
	h.Write(canonical)
	return "archetype:v1:" + hex.EncodeToString(h.Sum(nil))
}

// ResultCache stores results as JSON in a byte cache
type ResultCache struct {
	store Cache
	ttl   time.Duration
}

// NewResultCache wraps a byte cache. ttl 0 uses the store default.
func NewResultCache(store Cache, ttl time.Duration) *ResultCache {
	return &ResultCache{store: store, ttl: ttl}
}

// FromConfig builds the layered result cache, or nil when caching is disabled
func FromConfig(cfg model.CacheConfig) *ResultCache {
	if !cfg.Enabled {
		return nil
	}
	return NewResultCache(NewLayeredCache(cfg.MemoryTTL, cfg.Dir, cfg.DiskTTL), 0)
}

// Get returns a cached result. Undecodable entries are dropped and reported as misses.
func (c *ResultCache) Get(facts model.EntityFacts, tableID string) (*model.Result, bool) {
	key := Key(facts, tableID)
	data, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}

	var r model.Result
	if err := json.Unmarshal(data, &r); err != nil {
		_ = c.store.Delete(key)
		return nil, false
	}
	return &r, true
}

// Put stores a result. The batch run id is not cached.
func (c *ResultCache) Put(facts model.EntityFacts, tableID string, r *model.Result) error {
	stored := *r
	stored.RunID = ""

	data, err := json.Marshal(&stored)
	if err != nil {
		return errors.Wrap(err, "marshal result")
	}
	return c.store.Set(Key(facts, tableID), data, c.ttl)
}
