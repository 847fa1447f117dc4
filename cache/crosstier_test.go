package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fugue-ai/rhema-sub012/config"
)

func TestCrossTierOptimizer_ShouldPromoteOnAccessCount(t *testing.T) {
	cfg := config.Default().Cache
	cfg.PromoteAccessCount = 5
	cfg.PromoteRecency = 0.9
	cfg.PromoteSemanticRel = 0.9
	o := newCrossTierOptimizer(cfg)

	e := &Entry{AccessCount: 6}
	assert.True(t, o.shouldPromote(e, AccessPattern{}))
}

func TestCrossTierOptimizer_ShouldNotPromoteBelowAllThresholds(t *testing.T) {
	cfg := config.Default().Cache
	cfg.PromoteAccessCount = 100
	cfg.PromoteRecency = 0.99
	cfg.PromoteSemanticRel = 0.99
	o := newCrossTierOptimizer(cfg)

	e := &Entry{AccessCount: 1}
	assert.False(t, o.shouldPromote(e, AccessPattern{Recency: 0.1, SemanticRelevance: 0.1}))
}

func TestCrossTierOptimizer_TracksHitMissCounters(t *testing.T) {
	o := newCrossTierOptimizer(config.Default().Cache)
	o.recordMemOutcome(true)
	o.recordMemOutcome(false)
	o.recordDiskOutcome(true)

	mem, disk := o.snapshot()
	assert.Equal(t, int64(1), mem.hits)
	assert.Equal(t, int64(1), mem.misses)
	assert.Equal(t, int64(1), disk.hits)
}
