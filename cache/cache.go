package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/fugue-ai/rhema-sub012/config"
	"github.com/fugue-ai/rhema-sub012/objectstore"
	"github.com/fugue-ai/rhema-sub012/rherr"
	"github.com/fugue-ai/rhema-sub012/rhlog"
	"github.com/fugue-ai/rhema-sub012/vectorstore"
)

// semanticFallbackCandidates is the number of nearest neighbors requested
// when an exact-key Get misses and a query embedding is supplied.
const semanticFallbackCandidates = 5

// Cache is the tiered knowledge cache: a hot memory tier, a cold disk tier,
// semantic-similarity fallback when an exact key misses, adaptive eviction,
// intelligent warming, and cross-tier promotion. It composes the unexported
// memoryTier/diskTier/semanticIndex/eviction/warming/crosstier pieces.
type Cache struct {
	cfg    config.CacheConfig
	logger rhlog.Logger

	mem      *memoryTier
	disk     *diskTier
	vstore   vectorstore.Store // nil if semantic-aware caching is unwired
	semantic *semanticIndex
	eviction *adaptiveEviction
	warming  *warmingEngine
	tiers    *crossTierOptimizer

	hitCount       int64
	missCount      int64
	semanticHits   int64
	evictionCount  int64
	promotions     int64
	demotions      int64
	checksumErrors int64
}

// New builds a Cache backed by the given disk store. vstore may be nil, in
// which case semantic fallback and vector indexing are no-ops regardless of
// cfg.SemanticAwareCaching - a kernel wired without a vector store simply
// gets plain tiered caching.
func New(cfg config.CacheConfig, store objectstore.Store, vstore vectorstore.Store, logger rhlog.Logger) *Cache {
	logger = rhlog.Component(logger, "cache")
	return &Cache{
		cfg:      cfg,
		logger:   logger,
		mem:      newMemoryTier(cfg.MemoryBudgetBytes, logger),
		disk:     newDiskTier(store),
		vstore:   vstore,
		semantic: newSemanticIndex(cfg),
		eviction: newAdaptiveEviction(cfg),
		warming:  newWarmingEngine(cfg, logger),
		tiers:    newCrossTierOptimizer(cfg),
	}
}

// StartWarming launches the background promotion loop. Callers own ctx's
// lifetime; Close also stops the loop.
func (c *Cache) StartWarming(ctx context.Context) {
	if !c.cfg.IntelligentWarming {
		return
	}
	c.warming.startLoop(ctx, c.disk, c.mem, func() map[string]AccessPattern {
		return c.allPatterns()
	})
}

func (c *Cache) allPatterns() map[string]AccessPattern {
	c.semantic.mu.RLock()
	defer c.semantic.mu.RUnlock()
	out := make(map[string]AccessPattern, len(c.semantic.patterns))
	for k, p := range c.semantic.patterns {
		out[k] = *p
	}
	return out
}

// Close stops the background warming loop, if running.
func (c *Cache) Close() {
	c.warming.close()
}

// Set writes value under key/scope with the given TTL (0 = no expiry) and,
// if embedding is non-nil and semantic-aware caching is enabled, indexes it
// for semantic fallback lookups. It writes through to both tiers so a
// memory-tier eviction never loses data outright.
func (c *Cache) Set(ctx context.Context, key, scope string, value []byte, embedding []float32, ttl time.Duration) error {
	if c.cfg.MaxObjectBytes > 0 && int64(len(value)) > c.cfg.MaxObjectBytes {
		return rherr.New("cache.Set", "cache", rherr.ErrResourceBounds, key)
	}

	e := newEntry(key, scope, value, embedding, ttl)
	evicted := c.mem.put(e, c.evictCallback)
	atomic.AddInt64(&c.evictionCount, int64(len(evicted)))

	if err := c.disk.put(ctx, e); err != nil {
		c.logger.Warn("cache disk write-through failed", map[string]interface{}{"key": key, "err": err.Error()})
	}

	// Evicted entries were already write-through persisted on their own Set,
	// so a memory-tier eviction demotes them to disk-only rather than
	// discarding them outright.
	atomic.AddInt64(&c.demotions, int64(len(evicted)))

	if c.cfg.SemanticAwareCaching && embedding != nil {
		c.semantic.reindex(key, embedding)
		if c.vstore != nil {
			rec := vectorstore.Record{
				ID:      key,
				Scope:   scope,
				Vector:  embedding,
				Payload: map[string]interface{}{"content": string(value)},
			}
			if err := c.vstore.Store(ctx, rec); err != nil {
				// Vector-store errors on set never fail the write: the entry
				// is still cached, just unindexed semantically.
				c.logger.Warn("cache vector index update failed", map[string]interface{}{"key": key, "err": err.Error()})
			}
		}
	}
	return nil
}

// evictCallback is passed to memoryTier.put as its eviction policy hook: it
// delegates to the currently-selected adaptive policy (or plain LRU when
// adaptive eviction is disabled).
func (c *Cache) evictCallback(candidates map[string]*Entry, needBytes int64) []string {
	var policy evictionPolicy
	if c.cfg.AdaptiveEviction {
		policy = c.eviction.choose()
	} else {
		policy = lruPolicy{}
	}
	patterns := c.allPatterns()
	victims := policy.selectVictims(candidates, patterns, needBytes)

	hits := atomic.LoadInt64(&c.hitCount)
	misses := atomic.LoadInt64(&c.missCount)
	var hitRate float64
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}
	c.eviction.recordOutcome(policy.name(), hitRate)
	return victims
}

// Get looks up key by exact match in the memory tier, then the disk tier
// (promoting a disk hit back to memory per cross-tier thresholds), and
// records the outcome against Stats. A disk copy whose checksum no longer
// matches its value is invalidated and the mismatch returned as an error.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if e, ok := c.mem.get(key); ok {
		e.recordAccess(time.Now(), 64)
		c.semantic.recordAccess(e, c.cfg.Temporal)
		atomic.AddInt64(&c.hitCount, 1)
		c.tiers.recordMemOutcome(true)
		return e.Value, true, nil
	}
	atomic.AddInt64(&c.missCount, 1)
	c.tiers.recordMemOutcome(false)

	e, ok, err := c.disk.get(ctx, key)
	if err != nil {
		if errors.Is(err, rherr.ErrChecksumMismatch) {
			atomic.AddInt64(&c.checksumErrors, 1)
			if ierr := c.Invalidate(ctx, key); ierr != nil {
				c.logger.Warn("cache invalidate after checksum mismatch failed", map[string]interface{}{"key": key, "err": ierr.Error()})
			}
		}
		return nil, false, err
	}
	if !ok {
		c.tiers.recordDiskOutcome(false)
		return nil, false, nil
	}
	c.tiers.recordDiskOutcome(true)

	e.recordAccess(time.Now(), 64)
	c.semantic.recordAccess(e, c.cfg.Temporal)

	if c.cfg.CrossTierOptimization {
		pattern, _ := c.semantic.pattern(key)
		if c.tiers.shouldPromote(e, pattern) {
			c.mem.put(e, c.evictCallback)
			atomic.AddInt64(&c.promotions, 1)
		}
	}
	return e.Value, true, nil
}

// GetWithSemanticFallback behaves like Get, but if key misses entirely it
// searches the vector store for the top semanticFallbackCandidates nearest
// neighbors of queryEmbedding and returns the first whose own Get succeeds
// and whose similarity clears SemanticSimilarityThreshold. The returned key,
// if different from the requested one, tells the caller which entry was
// actually served.
func (c *Cache) GetWithSemanticFallback(ctx context.Context, key string, queryEmbedding []float32) (value []byte, servedKey string, ok bool, err error) {
	if v, hit, err := c.Get(ctx, key); err != nil {
		return nil, "", false, err
	} else if hit {
		return v, key, true, nil
	}

	if !c.cfg.SemanticAwareCaching || queryEmbedding == nil {
		return nil, "", false, nil
	}

	if c.vstore == nil {
		// No vector store wired: fall back to the in-process semantic index
		// over whatever is currently memory-resident.
		matchKey, score, found := c.semantic.bestMatch(queryEmbedding, c.mem.snapshotEntries())
		if !found || score < c.cfg.SemanticSimilarityThreshold {
			return nil, "", false, nil
		}
		v, hit, gerr := c.Get(ctx, matchKey)
		if gerr != nil || !hit {
			return nil, "", false, gerr
		}
		atomic.AddInt64(&c.semanticHits, 1)
		return v, matchKey, true, nil
	}

	matches, err := c.vstore.Search(ctx, queryEmbedding, semanticFallbackCandidates, "")
	if err != nil {
		if rherr.IsTransport(err) {
			return nil, "", false, nil // transport error downgrades to a miss
		}
		return nil, "", false, err
	}

	for _, m := range matches {
		if m.Score < c.cfg.SemanticSimilarityThreshold {
			continue
		}
		v, hit, gerr := c.Get(ctx, m.Record.ID)
		if gerr != nil || !hit {
			continue
		}
		atomic.AddInt64(&c.semanticHits, 1)
		return v, m.Record.ID, true, nil
	}
	return nil, "", false, nil
}

// Invalidate removes key from both tiers, the semantic index, and the
// vector store.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	c.mem.delete(key)
	c.semantic.remove(key)
	if c.vstore != nil {
		if err := c.vstore.Delete(ctx, key); err != nil {
			c.logger.Warn("cache vector index delete failed", map[string]interface{}{"key": key, "err": err.Error()})
		}
	}
	return c.disk.delete(ctx, key)
}

// Prefetch loads key from disk into the memory tier unconditionally,
// bypassing the normal promotion thresholds. It's the entry point the
// proactive context manager's warming queue submits suggestions through.
func (c *Cache) Prefetch(ctx context.Context, key string) error {
	if _, ok := c.mem.get(key); ok {
		return nil
	}
	e, ok, err := c.disk.get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return rherr.New("cache.Prefetch", "cache", rherr.ErrNotFound, key)
	}
	c.mem.put(e, c.evictCallback)
	return nil
}

// Presence reports whether key is currently memory-resident, without the
// side effects (access-bookkeeping, stats) a full Get would have - used by
// the search engine's cache-presence enrichment step.
func (c *Cache) Presence(key string) (cached bool, accessCount int64, lastAccessed time.Time) {
	e, ok := c.mem.get(key)
	if !ok {
		return false, 0, time.Time{}
	}
	return true, e.AccessCount, e.LastAccessed
}

// AccessPattern returns the tracked access pattern for key, if any - used by
// the search engine's reranking step.
func (c *Cache) AccessPattern(key string) (AccessPattern, bool) {
	return c.semantic.pattern(key)
}

// Stats returns a point-in-time snapshot of cache counters.
func (c *Cache) Stats() Stats {
	count, memBytes := c.mem.size()
	return Stats{
		TotalEntries:   int64(count),
		HitCount:       atomic.LoadInt64(&c.hitCount),
		MissCount:      atomic.LoadInt64(&c.missCount),
		SemanticHits:   atomic.LoadInt64(&c.semanticHits),
		EvictionCount:  atomic.LoadInt64(&c.evictionCount),
		MemoryBytes:    memBytes,
		Promotions:     atomic.LoadInt64(&c.promotions),
		Demotions:      atomic.LoadInt64(&c.demotions),
		WarmingEvents:  int64(len(c.warming.events())),
		ChecksumErrors: atomic.LoadInt64(&c.checksumErrors),
	}
}
