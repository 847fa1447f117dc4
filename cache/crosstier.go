package cache

import (
	"sync"
	"time"

	"github.com/fugue-ai/rhema-sub012/config"
)

// tierPerformance is a running count of hits/misses observed for a tier,
// readable through crossTierOptimizer.snapshot (Cache.Stats does not include
// it); promotion/demotion decisions themselves are per-entry and don't need
// it.
type tierPerformance struct {
	hits   int64
	misses int64
}

// crossTierOptimizer decides when a disk-resident entry has earned promotion
// to the memory tier, and when a cold memory-resident entry should be
// demoted to disk to free budget.
type crossTierOptimizer struct {
	mu         sync.Mutex
	memPerf    tierPerformance
	diskPerf   tierPerformance
	thresholds struct {
		accessCount int64
		recency     float64
		semanticRel float64
	}
}

func newCrossTierOptimizer(cfg config.CacheConfig) *crossTierOptimizer {
	o := &crossTierOptimizer{}
	o.thresholds.accessCount = cfg.PromoteAccessCount
	o.thresholds.recency = cfg.PromoteRecency
	o.thresholds.semanticRel = cfg.PromoteSemanticRel
	return o
}

// shouldPromote reports whether a disk-tier entry has earned a slot in the
// memory tier: it clears the promotion bar if its access count, recency, or
// semantic relevance individually clears its configured threshold.
func (o *crossTierOptimizer) shouldPromote(e *Entry, pattern AccessPattern) bool {
	if e.AccessCount > o.thresholds.accessCount {
		return true
	}
	if pattern.Recency > o.thresholds.recency {
		return true
	}
	if pattern.SemanticRelevance > o.thresholds.semanticRel {
		return true
	}
	return false
}

// shouldDemote reports whether a memory-tier entry is cold enough to evict
// down to disk rather than drop entirely - the inverse of shouldPromote.
// Nothing in the cache calls it: memory-tier evictions are chosen by the
// eviction policy alone.
func (o *crossTierOptimizer) shouldDemote(e *Entry, pattern AccessPattern, idleFor time.Duration) bool {
	if idleFor <= 0 {
		return false
	}
	return pattern.Recency < o.thresholds.recency && e.AccessCount < o.thresholds.accessCount
}

func (o *crossTierOptimizer) recordMemOutcome(hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.memPerf.hits++
	} else {
		o.memPerf.misses++
	}
}

func (o *crossTierOptimizer) recordDiskOutcome(hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.diskPerf.hits++
	} else {
		o.diskPerf.misses++
	}
}

func (o *crossTierOptimizer) snapshot() (mem, disk tierPerformance) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.memPerf, o.diskPerf
}
