package cache

import (
	"sync"
	"time"

	"github.com/fugue-ai/rhema-sub012/rhlog"
)

// memoryTier is the hot, in-process tier: a mutex-guarded map of entries
// with TTL expiry and a running byte-size total.
type memoryTier struct {
	mu          sync.RWMutex
	entries     map[string]*Entry
	sizeBytes   int64
	budgetBytes int64
	logger      rhlog.Logger
}

func newMemoryTier(budgetBytes int64, logger rhlog.Logger) *memoryTier {
	return &memoryTier{
		entries:     make(map[string]*Entry),
		budgetBytes: budgetBytes,
		logger:      rhlog.Component(logger, "cache/memory"),
	}
}

func (t *memoryTier) get(key string) (*Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		return nil, false
	}
	return e, true
}

// put inserts or replaces an entry, returning the keys evicted to stay
// within budgetBytes (chosen by the caller-supplied evict policy).
func (t *memoryTier) put(e *Entry, evict func(candidates map[string]*Entry, needBytes int64) []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.entries[e.Key]; ok {
		t.sizeBytes -= int64(len(old.Value))
	}

	needed := t.sizeBytes + int64(len(e.Value)) - t.budgetBytes
	var evicted []string
	if needed > 0 && evict != nil {
		evicted = evict(t.entries, needed)
		for _, k := range evicted {
			if victim, ok := t.entries[k]; ok {
				t.sizeBytes -= int64(len(victim.Value))
				delete(t.entries, k)
			}
		}
	}

	t.entries[e.Key] = e
	t.sizeBytes += int64(len(e.Value))
	return evicted
}

func (t *memoryTier) delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		t.sizeBytes -= int64(len(e.Value))
		delete(t.entries, key)
	}
}

func (t *memoryTier) snapshotEntries() map[string]*Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]*Entry, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

func (t *memoryTier) size() (count int, bytes int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries), t.sizeBytes
}
