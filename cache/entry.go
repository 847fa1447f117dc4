// Package cache implements the tiered knowledge cache: a memory tier backed
// by a disk tier, semantic-aware lookups that fall back to nearest-neighbor
// search when an exact key misses, adaptive eviction, intelligent warming,
// and cross-tier promotion/demotion.
package cache

import (
	"hash/crc32"
	"time"
)

// Tier names an entry's current location.
type Tier string

const (
	TierMemory Tier = "memory"
	TierDisk   Tier = "disk"
)

// TemporalClass buckets an entry's access history into one of a small set
// of named access patterns. Thresholds are parameterized in
// config.CacheConfig.Temporal.
type TemporalClass string

const (
	TemporalRecent    TemporalClass = "recent"
	TemporalFrequent  TemporalClass = "frequent"
	TemporalPeriodic  TemporalClass = "periodic"
	TemporalBurst     TemporalClass = "burst"
	TemporalStable    TemporalClass = "stable"
	TemporalDeclining TemporalClass = "declining"
)

// Entry is one cached value plus the bookkeeping the eviction, warming, and
// semantic subsystems all read from.
type Entry struct {
	Key       string
	Scope     string
	Value     []byte
	Embedding []float32 // nil if semantic-aware caching produced no vector
	Checksum  uint32
	ExpiresAt time.Time // zero means no expiry

	AccessCount   int64
	LastAccessed  time.Time
	FirstAccessed time.Time
	AccessTimes   []time.Time // bounded recent-access ring, used for burst detection
}

func newEntry(key, scope string, value []byte, embedding []float32, ttl time.Duration) *Entry {
	now := time.Now()
	e := &Entry{
		Key:           key,
		Scope:         scope,
		Value:         value,
		Embedding:     embedding,
		Checksum:      crc32.ChecksumIEEE(value),
		AccessCount:   1,
		LastAccessed:  now,
		FirstAccessed: now,
	}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	e.AccessTimes = append(e.AccessTimes, now)
	return e
}

func (e *Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// verifyChecksum reports whether Value still matches Checksum, catching
// silent corruption introduced between tiers.
func (e *Entry) verifyChecksum() bool {
	return crc32.ChecksumIEEE(e.Value) == e.Checksum
}

// recordAccess bumps bookkeeping on a hit. maxHistory bounds AccessTimes so
// it never grows unboundedly for a hot key.
func (e *Entry) recordAccess(now time.Time, maxHistory int) {
	e.AccessCount++
	e.LastAccessed = now
	e.AccessTimes = append(e.AccessTimes, now)
	if len(e.AccessTimes) > maxHistory {
		e.AccessTimes = e.AccessTimes[len(e.AccessTimes)-maxHistory:]
	}
}

// Stats is the subset of cache metrics this kernel surfaces to telemetry.
type Stats struct {
	TotalEntries   int64
	HitCount       int64
	MissCount      int64
	SemanticHits   int64
	EvictionCount  int64
	MemoryBytes    int64
	DiskBytes      int64
	Promotions     int64
	Demotions      int64
	WarmingEvents  int64
	ChecksumErrors int64
}

// HitRate is HitCount / (HitCount + MissCount), zero when there have been no
// lookups yet.
func (s Stats) HitRate() float64 {
	total := s.HitCount + s.MissCount
	if total == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(total)
}
