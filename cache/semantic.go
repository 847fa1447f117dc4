package cache

import (
	"math"
	"sync"
	"time"

	"github.com/fugue-ai/rhema-sub012/config"
)

// AccessPattern is the per-key access history the adaptive-eviction and
// warming subsystems read from. Per-agent/per-workflow affinity maps belong
// to the proactive package rather than the cache itself.
type AccessPattern struct {
	Key               string
	Frequency         float64 // accesses per minute since first seen
	Recency           float64 // 0..1, 1 = accessed just now
	SemanticRelevance float64 // average similarity to its cluster centroid
	Temporal          TemporalClass
	LastAccessed      time.Time
	AccessCount       int64
}

// cluster is a greedy semantic cluster: a centroid plus the keys assigned to
// it, recomputed periodically rather than on every insert.
type cluster struct {
	id       string
	centroid []float32
	members  []string
}

// semanticIndex tracks clusters and access patterns across all cached
// entries, used by get-with-semantic-fallback and by the eviction/warming
// subsystems for their semantic-relevance term.
type semanticIndex struct {
	mu       sync.RWMutex
	clusters map[string]*cluster
	patterns map[string]*AccessPattern

	similarityThreshold float64
	recomputeChurn      float64
	opsSinceRecompute    int
	totalOps             int
}

func newSemanticIndex(cfg config.CacheConfig) *semanticIndex {
	return &semanticIndex{
		clusters:            make(map[string]*cluster),
		patterns:            make(map[string]*AccessPattern),
		similarityThreshold: cfg.SemanticSimilarityThreshold,
		recomputeChurn:      cfg.ClusterRecomputeChurn,
	}
}

// recordAccess updates (or creates) the AccessPattern for key and classifies
// its temporal pattern per thresholds.
func (s *semanticIndex) recordAccess(e *Entry, thresholds config.TemporalThresholds) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patterns[e.Key]
	if !ok {
		p = &AccessPattern{Key: e.Key}
		s.patterns[e.Key] = p
	}
	p.AccessCount = e.AccessCount
	p.LastAccessed = e.LastAccessed

	elapsedMin := time.Since(e.FirstAccessed).Minutes()
	if elapsedMin <= 0 {
		elapsedMin = 1.0 / 60
	}
	p.Frequency = float64(e.AccessCount) / elapsedMin
	p.Recency = recencyScore(e.LastAccessed, thresholds.RecentWindow)
	p.Temporal = classifyTemporal(e, p, thresholds)

	if c := s.memberCluster(e.Key); c != nil {
		p.SemanticRelevance = cosineSim(e.Embedding, c.centroid)
	}
}

func (s *semanticIndex) memberCluster(key string) *cluster {
	for _, c := range s.clusters {
		for _, m := range c.members {
			if m == key {
				return c
			}
		}
	}
	return nil
}

func recencyScore(lastAccessed time.Time, window time.Duration) float64 {
	if window <= 0 {
		window = time.Minute
	}
	age := time.Since(lastAccessed)
	if age <= 0 {
		return 1
	}
	score := 1 - age.Seconds()/window.Seconds()
	if score < 0 {
		return 0
	}
	return score
}

// classifyTemporal buckets an entry into one of the TemporalClass variants
// using the configured thresholds in config.TemporalThresholds.
func classifyTemporal(e *Entry, p *AccessPattern, t config.TemporalThresholds) TemporalClass {
	now := time.Now()

	burstCount := int64(0)
	for _, at := range e.AccessTimes {
		if now.Sub(at) <= t.BurstWindow {
			burstCount++
		}
	}
	if burstCount >= t.BurstAccesses {
		return TemporalBurst
	}

	if now.Sub(e.LastAccessed) <= t.RecentWindow {
		return TemporalRecent
	}
	if e.AccessCount >= t.FrequentAccesses {
		return TemporalFrequent
	}

	if len(e.AccessTimes) >= 2 {
		half := len(e.AccessTimes) / 2
		firstHalfSpan := e.AccessTimes[half-1].Sub(e.AccessTimes[0]).Seconds()
		secondHalfSpan := e.AccessTimes[len(e.AccessTimes)-1].Sub(e.AccessTimes[half]).Seconds()
		if firstHalfSpan > 0 && secondHalfSpan > 0 {
			firstRate := float64(half) / firstHalfSpan
			secondRate := float64(len(e.AccessTimes)-half) / secondHalfSpan
			if firstRate > 0 && (firstRate-secondRate)/firstRate >= t.DecliningDropFrac {
				return TemporalDeclining
			}
		}
	}

	return TemporalStable
}

// reindex assigns key (with its embedding) to the nearest existing cluster
// if similarity clears the threshold, else starts a new singleton cluster.
// Full re-centroiding runs every recomputeChurn fraction of total operations.
func (s *semanticIndex) reindex(key string, embedding []float32) {
	if embedding == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalOps++
	s.opsSinceRecompute++

	var best *cluster
	bestSim := -1.0
	for _, c := range s.clusters {
		sim := cosineSim(embedding, c.centroid)
		if sim > bestSim {
			bestSim = sim
			best = c
		}
	}

	if best != nil && bestSim >= s.similarityThreshold {
		best.members = append(best.members, key)
	} else {
		id := key
		s.clusters[id] = &cluster{id: id, centroid: append([]float32(nil), embedding...), members: []string{key}}
	}

	threshold := int(float64(s.totalOps) * s.recomputeChurn)
	if threshold < 1 {
		threshold = 1
	}
	if s.opsSinceRecompute >= threshold {
		s.recomputeCentroidsLocked()
		s.opsSinceRecompute = 0
	}
}

// recomputeCentroidsLocked re-averages each cluster's centroid over its
// members. The index keeps no per-member embedding, so every member is
// approximated by its cluster's current centroid; centroids therefore stay
// at the embedding that founded the cluster. Callers must hold s.mu.
func (s *semanticIndex) recomputeCentroidsLocked() {
	embeddingsByKey := make(map[string][]float32)
	for _, c := range s.clusters {
		for _, m := range c.members {
			if _, ok := embeddingsByKey[m]; !ok {
				embeddingsByKey[m] = c.centroid // best available approximation without re-reading entries
			}
		}
	}
	for _, c := range s.clusters {
		if len(c.members) == 0 {
			continue
		}
		dim := len(c.centroid)
		sum := make([]float64, dim)
		for _, m := range c.members {
			v := embeddingsByKey[m]
			for i := 0; i < dim && i < len(v); i++ {
				sum[i] += float64(v[i])
			}
		}
		for i := range c.centroid {
			c.centroid[i] = float32(sum[i] / float64(len(c.members)))
		}
	}
}

// bestMatch returns the key of the cached entry whose embedding is most
// similar to query, if it clears the configured similarity threshold - used
// by Cache.GetWithSemanticFallback.
func (s *semanticIndex) bestMatch(query []float32, entries map[string]*Entry) (string, float64, bool) {
	best := ""
	bestSim := -1.0
	for key, e := range entries {
		if e.Embedding == nil {
			continue
		}
		sim := cosineSim(query, e.Embedding)
		if sim > bestSim {
			bestSim = sim
			best = key
		}
	}
	if best == "" || bestSim < s.similarityThreshold {
		return "", 0, false
	}
	return best, bestSim, true
}

func (s *semanticIndex) remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.patterns, key)
	for id, c := range s.clusters {
		for i, m := range c.members {
			if m == key {
				c.members = append(c.members[:i], c.members[i+1:]...)
				break
			}
		}
		if len(c.members) == 0 {
			delete(s.clusters, id)
		}
	}
}

func (s *semanticIndex) pattern(key string) (AccessPattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[key]
	if !ok {
		return AccessPattern{}, false
	}
	return *p, true
}

func cosineSim(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := 0; i < len(a) && i < len(b); i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
