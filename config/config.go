// Package config defines the immutable configuration injected into every
// Rhema kernel component at construction time. It never reads the
// environment or a config file - it is built purely from functional options
// applied in-process.
package config

import "time"

// Config is the immutable value constructed once via New(...Option) and
// passed to every component. Nothing in this package mutates it afterward.
type Config struct {
	// Coordinator (C7)
	MaxConcurrentAgents int
	MaxBlockTime        time.Duration
	MaxDependencies     int

	// Cache (C4)
	Cache CacheConfig

	// Search (C5)
	Search SearchConfig

	// Proactive manager (C6)
	Proactive ProactiveConfig

	// Pattern executor (C8)
	Pattern PatternConfig

	// Metrics & event bus (C10)
	MetricsIntervalSeconds int
	EventQueueDepth        int

	// Vector store collection (C2)
	VectorStore VectorStoreConfig
}

// DistanceMetric selects how VectorStore.Search scores candidates.
type DistanceMetric string

const (
	DistanceCosine DistanceMetric = "cosine"
	DistanceL2     DistanceMetric = "l2"
	DistanceDot    DistanceMetric = "dot"
)

// VectorStoreConfig configures the vector store collection backing search.
type VectorStoreConfig struct {
	CollectionName string
	Dimension      int
	Metric         DistanceMetric
	TimeoutSeconds int
}

// CacheConfig bundles every tunable of the tiered cache, including its
// enhanced-caching feature toggles.
type CacheConfig struct {
	MemoryBudgetBytes         int64
	DiskBudgetBytes           int64
	MaxObjectBytes            int64
	SemanticSimilarityThreshold float64
	WarmingFanout             int

	SemanticAwareCaching   bool
	AdaptiveEviction       bool
	IntelligentWarming     bool
	CrossTierOptimization  bool

	// Eviction weights w1, w2, w3 of the composite eviction score.
	EvictionWeights EvictionWeights
	// Epsilon-greedy exploration rate for adaptive policy selection.
	EvictionEpsilon float64
	// Size of the rolling hit-rate window per policy.
	EvictionWindowSize int

	// Promotion thresholds, disk -> memory.
	PromoteAccessCount    int64
	PromoteRecency        float64
	PromoteSemanticRel    float64

	// Temporal-classification thresholds.
	Temporal TemporalThresholds

	// Lazy cluster recompute trigger: recompute every this fraction of churn.
	ClusterRecomputeChurn float64
}

// EvictionWeights are the w1/w2/w3 terms of the composite eviction score.
type EvictionWeights struct {
	Recency  float64
	Frequency float64
	Semantic float64
}

// TemporalThresholds parameterize the Recent/Frequent/Periodic/Burst/
// Stable/Declining classification.
type TemporalThresholds struct {
	RecentWindow      time.Duration // age below which an entry is "Recent"
	FrequentAccesses  int64         // access_count at or above which "Frequent"
	BurstWindow       time.Duration // time span for burst detection
	BurstAccesses     int64         // accesses within BurstWindow to call it a "Burst"
	DecliningDropFrac float64       // fractional drop in recent access rate to call "Declining"
}

// SearchConfig tunes the hybrid semantic search engine (C5).
type SearchConfig struct {
	OverFetchFactor   int
	HybridAlpha       float64
	HybridEnabled     bool
	RerankingEnabled  bool
	CachePresenceBoost float64
}

// ProactiveConfig tunes the proactive context manager (C6).
type ProactiveConfig struct {
	SuggestionK          int
	WarmingInterval      time.Duration
	TopNPerSession       int
	BloomDecayEveryTicks int
}

// PatternConfig tunes the pattern executor's default recovery posture (C8).
type PatternConfig struct {
	DefaultMaxAttempts   int
	DefaultBackoff       time.Duration
	MetricsIntervalSeconds int
}

// Option mutates a Config during construction, following the standard
// functional-options convention.
type Option func(*Config)

// Default returns the zero-configuration baseline every New() call starts
// from before options are applied.
func Default() *Config {
	return &Config{
		MaxConcurrentAgents: 16,
		MaxBlockTime:        30 * time.Second,
		MaxDependencies:     32,

		Cache: CacheConfig{
			MemoryBudgetBytes:           64 << 20,
			DiskBudgetBytes:             1 << 30,
			MaxObjectBytes:              4 << 20,
			SemanticSimilarityThreshold: 0.75,
			WarmingFanout:               5,
			SemanticAwareCaching:        true,
			AdaptiveEviction:            true,
			IntelligentWarming:          true,
			CrossTierOptimization:       true,
			EvictionWeights:             EvictionWeights{Recency: 0.4, Frequency: 0.3, Semantic: 0.3},
			EvictionEpsilon:             0.1,
			EvictionWindowSize:          100,
			PromoteAccessCount:          5,
			PromoteRecency:              0.7,
			PromoteSemanticRel:          0.8,
			Temporal: TemporalThresholds{
				RecentWindow:      5 * time.Minute,
				FrequentAccesses:  10,
				BurstWindow:       time.Minute,
				BurstAccesses:     5,
				DecliningDropFrac: 0.5,
			},
			ClusterRecomputeChurn: 0.05,
		},

		Search: SearchConfig{
			OverFetchFactor:    3,
			HybridAlpha:        0.7,
			HybridEnabled:      true,
			RerankingEnabled:   true,
			CachePresenceBoost: 0.1,
		},

		Proactive: ProactiveConfig{
			SuggestionK:          10,
			WarmingInterval:      time.Minute,
			TopNPerSession:       5,
			BloomDecayEveryTicks: 100,
		},

		Pattern: PatternConfig{
			DefaultMaxAttempts:     3,
			DefaultBackoff:         100 * time.Millisecond,
			MetricsIntervalSeconds: 10,
		},

		MetricsIntervalSeconds: 10,
		EventQueueDepth:        256,

		VectorStore: VectorStoreConfig{
			CollectionName: "rhema",
			Dimension:      128,
			Metric:         DistanceCosine,
			TimeoutSeconds: 5,
		},
	}
}

// New builds an immutable Config from Default() plus the given options.
func New(opts ...Option) *Config {
	c := Default()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func WithMaxConcurrentAgents(n int) Option { return func(c *Config) { c.MaxConcurrentAgents = n } }
func WithMaxBlockTime(d time.Duration) Option { return func(c *Config) { c.MaxBlockTime = d } }
func WithMaxDependencies(n int) Option { return func(c *Config) { c.MaxDependencies = n } }
func WithMemoryBudgetBytes(n int64) Option { return func(c *Config) { c.Cache.MemoryBudgetBytes = n } }
func WithDiskBudgetBytes(n int64) Option { return func(c *Config) { c.Cache.DiskBudgetBytes = n } }
func WithSemanticSimilarityThreshold(v float64) Option {
	return func(c *Config) { c.Cache.SemanticSimilarityThreshold = v }
}
func WithHybridAlpha(v float64) Option { return func(c *Config) { c.Search.HybridAlpha = v } }
func WithWarmingFanout(n int) Option { return func(c *Config) { c.Cache.WarmingFanout = n } }
func WithMetricsIntervalSeconds(n int) Option {
	return func(c *Config) { c.MetricsIntervalSeconds = n; c.Pattern.MetricsIntervalSeconds = n }
}
func WithEventQueueDepth(n int) Option { return func(c *Config) { c.EventQueueDepth = n } }
func WithVectorStoreConfig(v VectorStoreConfig) Option { return func(c *Config) { c.VectorStore = v } }
