package cache

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/fugue-ai/rhema-sub012/config"
)

// evictionPolicy selects victims to evict, scored only by the information
// available on Entry/AccessPattern.
type evictionPolicy interface {
	name() string
	selectVictims(entries map[string]*Entry, patterns map[string]AccessPattern, bytesNeeded int64) []string
}

// lruPolicy evicts least-recently-used entries first.
type lruPolicy struct{}

func (lruPolicy) name() string { return "lru" }

func (lruPolicy) selectVictims(entries map[string]*Entry, _ map[string]AccessPattern, bytesNeeded int64) []string {
	type kv struct {
		key string
		t   time.Time
		sz  int64
	}
	all := make([]kv, 0, len(entries))
	for k, e := range entries {
		all = append(all, kv{k, e.LastAccessed, int64(len(e.Value))})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].t.Before(all[j].t) })

	var out []string
	var freed int64
	for _, e := range all {
		if freed >= bytesNeeded {
			break
		}
		out = append(out, e.key)
		freed += e.sz
	}
	return out
}

// lfuPolicy evicts least-frequently-used entries first.
type lfuPolicy struct{}

func (lfuPolicy) name() string { return "lfu" }

func (lfuPolicy) selectVictims(entries map[string]*Entry, _ map[string]AccessPattern, bytesNeeded int64) []string {
	type kv struct {
		key   string
		count int64
		sz    int64
	}
	all := make([]kv, 0, len(entries))
	for k, e := range entries {
		all = append(all, kv{k, e.AccessCount, int64(len(e.Value))})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].count < all[j].count })

	var out []string
	var freed int64
	for _, e := range all {
		if freed >= bytesNeeded {
			break
		}
		out = append(out, e.key)
		freed += e.sz
	}
	return out
}

// semanticCompositePolicy scores entries on a weighted composite of recency,
// frequency, and semantic relevance (w1*recency + w2*frequency +
// w3*semantic_relevance) and evicts the lowest scorers first.
type semanticCompositePolicy struct {
	weights config.EvictionWeights
}

func (semanticCompositePolicy) name() string { return "semantic_composite" }

func (p semanticCompositePolicy) selectVictims(entries map[string]*Entry, patterns map[string]AccessPattern, bytesNeeded int64) []string {
	type scored struct {
		key   string
		score float64
		sz    int64
	}
	all := make([]scored, 0, len(entries))
	for k, e := range entries {
		pat := patterns[k]
		score := p.weights.Recency*pat.Recency +
			p.weights.Frequency*normalizeFrequency(pat.Frequency) +
			p.weights.Semantic*pat.SemanticRelevance
		all = append(all, scored{k, score, int64(len(e.Value))})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score < all[j].score })

	var out []string
	var freed int64
	for _, s := range all {
		if freed >= bytesNeeded {
			break
		}
		out = append(out, s.key)
		freed += s.sz
	}
	return out
}

// normalizeFrequency squashes an unbounded accesses-per-minute rate into
// (0,1) via x/(1+x), so it combines sensibly with the 0..1 recency and
// semantic-relevance terms in the composite score.
func normalizeFrequency(freq float64) float64 {
	if freq <= 0 {
		return 0
	}
	return freq / (1 + freq)
}

// adaptiveEviction chooses among a small set of eviction policies using an
// epsilon-greedy strategy over each policy's observed hit-rate history. With
// probability epsilon it explores a random policy; otherwise it exploits the
// historically best-performing one.
type adaptiveEviction struct {
	mu       sync.Mutex
	policies []evictionPolicy
	// performance[name] is a rolling window of recent post-eviction hit rates.
	performance map[string][]float64
	windowSize  int
	epsilon     float64
	current     string
	rng         *rand.Rand
}

func newAdaptiveEviction(cfg config.CacheConfig) *adaptiveEviction {
	return &adaptiveEviction{
		policies: []evictionPolicy{
			lruPolicy{},
			lfuPolicy{},
			semanticCompositePolicy{weights: cfg.EvictionWeights},
		},
		performance: make(map[string][]float64),
		windowSize:  cfg.EvictionWindowSize,
		epsilon:     cfg.EvictionEpsilon,
		current:     "lru",
		rng:         rand.New(rand.NewSource(1)),
	}
}

// choose selects a policy per the epsilon-greedy rule and returns it.
func (a *adaptiveEviction) choose() evictionPolicy {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rng.Float64() < a.epsilon {
		p := a.policies[a.rng.Intn(len(a.policies))]
		a.current = p.name()
		return p
	}

	best := a.policies[0]
	bestScore := a.avgPerformanceLocked(best.name())
	for _, p := range a.policies[1:] {
		if s := a.avgPerformanceLocked(p.name()); s > bestScore {
			bestScore = s
			best = p
		}
	}
	a.current = best.name()
	return best
}

func (a *adaptiveEviction) avgPerformanceLocked(name string) float64 {
	hist := a.performance[name]
	if len(hist) == 0 {
		return 0.5 // neutral prior so an untried policy isn't permanently starved
	}
	var sum float64
	for _, v := range hist {
		sum += v
	}
	return sum / float64(len(hist))
}

// recordOutcome feeds a post-eviction hit-rate sample back into the chosen
// policy's rolling window.
func (a *adaptiveEviction) recordOutcome(policyName string, hitRate float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	hist := append(a.performance[policyName], hitRate)
	if len(hist) > a.windowSize {
		hist = hist[len(hist)-a.windowSize:]
	}
	a.performance[policyName] = hist
}

func (a *adaptiveEviction) currentPolicyName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}
