// Package synthesis implements the Knowledge Synthesizer: aggregating
// multiple search/cache results into one narrative with provenance and a
// confidence score. Synthesize dispatches on a configured strategy enum to
// one of six concrete algorithms (clustering, temporal bucketing, scope
// grouping, pattern recognition, decision tree, hybrid).
package synthesis

import (
	"context"
	"time"

	"github.com/fugue-ai/rhema-sub012/rherr"
)

// Method selects one of the six synthesis algorithms.
type Method string

const (
	SemanticClustering    Method = "semantic_clustering"
	TemporalAnalysis      Method = "temporal_analysis"
	CrossScopeCorrelation Method = "cross_scope_correlation"
	PatternRecognition    Method = "pattern_recognition"
	DecisionTree          Method = "decision_tree"
	Hybrid                Method = "hybrid"
)

// Source is one input to a synthesis run - the caller-side shape of a
// search.Result/cache entry once content and metadata are resolved.
type Source struct {
	ID             string
	Content        string
	Scope          string
	RelevanceScore float64
	CreatedAt      time.Time
}

// Narrative is the synthesized output: prose, the source IDs it drew on,
// and a confidence score.
type Narrative struct {
	Method      Method
	Text        string
	Provenance  []string
	Confidence  float64
	SourceCount int
}

// Config tunes the synthesizer's preconditions.
type Config struct {
	MinSourceCount int
	MaxSourceCount int // for confidence's denominator; 0 means len(sources)
}

// DefaultConfig returns the default minimum source count.
func DefaultConfig() Config {
	return Config{MinSourceCount: 2}
}

// Synthesizer runs one of the six methods over a set of Sources.
type Synthesizer struct {
	cfg Config
}

// New builds a Synthesizer. A zero Config.MinSourceCount is replaced with
// the default of 2.
func New(cfg Config) *Synthesizer {
	if cfg.MinSourceCount <= 0 {
		cfg.MinSourceCount = 2
	}
	return &Synthesizer{cfg: cfg}
}

// Synthesize runs method over sources, failing InsufficientData if fewer
// than cfg.MinSourceCount sources are supplied.
func (s *Synthesizer) Synthesize(ctx context.Context, method Method, sources []Source) (Narrative, error) {
	if len(sources) < s.cfg.MinSourceCount {
		return Narrative{}, rherr.New("synthesis.Synthesize", "synthesis", rherr.ErrInsufficientData,
			"need at least min_source_count sources")
	}

	var text string
	switch method {
	case SemanticClustering:
		text = s.semanticClustering(sources)
	case TemporalAnalysis:
		text = s.temporalAnalysis(sources)
	case CrossScopeCorrelation:
		text = s.crossScopeCorrelation(sources)
	case PatternRecognition:
		text = s.patternRecognition(sources)
	case DecisionTree:
		text = s.decisionTree(sources)
	case Hybrid:
		text = s.hybrid(sources)
	default:
		return Narrative{}, rherr.New("synthesis.Synthesize", "synthesis", rherr.ErrValidationFailed,
			"unknown synthesis method")
	}

	return Narrative{
		Method:      method,
		Text:        text,
		Provenance:  provenance(sources),
		Confidence:  s.confidence(sources),
		SourceCount: len(sources),
	}, nil
}

// confidence combines mean relevance and source count: 0.5·mean(relevance)
// + 0.5·(count/max).
func (s *Synthesizer) confidence(sources []Source) float64 {
	var sum float64
	for _, src := range sources {
		sum += src.RelevanceScore
	}
	mean := sum / float64(len(sources))

	max := s.cfg.MaxSourceCount
	if max <= 0 {
		max = len(sources)
	}
	countRatio := float64(len(sources)) / float64(max)
	if countRatio > 1 {
		countRatio = 1
	}
	return 0.5*mean + 0.5*countRatio
}

func provenance(sources []Source) []string {
	ids := make([]string, len(sources))
	for i, src := range sources {
		ids[i] = src.ID
	}
	return ids
}
