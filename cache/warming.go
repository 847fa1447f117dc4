package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fugue-ai/rhema-sub012/config"
	"github.com/fugue-ai/rhema-sub012/rhlog"
)

// WarmingTrigger names why a key was selected for proactive warming.
type WarmingTrigger string

const (
	TriggerAccessPattern    WarmingTrigger = "access_pattern"
	TriggerSemanticSimilarity WarmingTrigger = "semantic_similarity"
	TriggerFrequency        WarmingTrigger = "frequency"
)

// WarmingEvent records one warming decision for the stats/telemetry surface.
type WarmingEvent struct {
	Key     string
	Trigger WarmingTrigger
	At      time.Time
	Hit     bool // whether the key was found on disk and loaded; later accesses are not tracked
}

// warmingSource is the narrow slice of diskTier the warming engine needs, so
// tests can substitute a fake without standing up a full objectstore.
type warmingSource interface {
	get(ctx context.Context, key string) (*Entry, bool, error)
}

// warmingEngine proactively promotes disk-tier entries likely to be accessed
// soon back into the memory tier, ranking candidates by recency and
// frequency from the semantic index's AccessPattern bookkeeping. Time-of-day
// and workflow-affinity triggers belong to the proactive package instead.
type warmingEngine struct {
	mu        sync.Mutex
	fanout    int
	interval  time.Duration
	history   []WarmingEvent
	maxHistory int
	logger    rhlog.Logger

	stop chan struct{}
	once sync.Once
}

func newWarmingEngine(cfg config.CacheConfig, logger rhlog.Logger) *warmingEngine {
	return &warmingEngine{
		fanout:     cfg.WarmingFanout,
		interval:   time.Minute,
		maxHistory: 500,
		logger:     rhlog.Component(logger, "cache/warming"),
		stop:       make(chan struct{}),
	}
}

// candidates ranks disk-resident keys by (frequency, recency) and returns the
// top fanout-many, each tagged with the trigger that selected it.
func (w *warmingEngine) candidates(patterns map[string]AccessPattern) []struct {
	key     string
	trigger WarmingTrigger
} {
	type scored struct {
		key     string
		trigger WarmingTrigger
		score   float64
	}
	all := make([]scored, 0, len(patterns))
	for k, p := range patterns {
		switch {
		case p.Frequency >= 1.0:
			all = append(all, scored{k, TriggerFrequency, p.Frequency})
		case p.SemanticRelevance >= 0.8:
			all = append(all, scored{k, TriggerSemanticSimilarity, p.SemanticRelevance})
		default:
			all = append(all, scored{k, TriggerAccessPattern, p.Recency})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })

	n := w.fanout
	if n > len(all) {
		n = len(all)
	}
	out := make([]struct {
		key     string
		trigger WarmingTrigger
	}, n)
	for i := 0; i < n; i++ {
		out[i].key = all[i].key
		out[i].trigger = all[i].trigger
	}
	return out
}

// promote fetches each candidate from disk and inserts it into mem, recording
// a WarmingEvent per attempt.
func (w *warmingEngine) promote(ctx context.Context, disk warmingSource, mem *memoryTier, patterns map[string]AccessPattern) []*Entry {
	var promoted []*Entry
	for _, c := range w.candidates(patterns) {
		e, ok, err := disk.get(ctx, c.key)
		if err != nil || !ok {
			continue
		}
		mem.put(e, nil)
		promoted = append(promoted, e)
		w.recordEvent(WarmingEvent{Key: c.key, Trigger: c.trigger, At: time.Now(), Hit: true})
	}
	return promoted
}

func (w *warmingEngine) recordEvent(ev WarmingEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.history = append(w.history, ev)
	if len(w.history) > w.maxHistory {
		w.history = w.history[len(w.history)-w.maxHistory:]
	}
}

func (w *warmingEngine) events() []WarmingEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]WarmingEvent, len(w.history))
	copy(out, w.history)
	return out
}

// startLoop runs promote on a ticker until ctx is cancelled or close() is
// called.
func (w *warmingEngine) startLoop(ctx context.Context, disk warmingSource, mem *memoryTier, patternsFn func() map[string]AccessPattern) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-ticker.C:
				w.promote(ctx, disk, mem, patternsFn())
			}
		}
	}()
}

func (w *warmingEngine) close() {
	w.once.Do(func() { close(w.stop) })
}
