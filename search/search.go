// Package search implements the hybrid semantic search engine: embed the
// query, over-fetch candidates from the vector store, optionally blend in
// keyword overlap and a recency/frequency rerank, enrich with cache-presence
// info, then sort and truncate. It follows the same small-interface-over-
// pluggable-backend convention as vectorstore and embedding - this package
// adds no new backend of its own, it only orchestrates the ones those
// packages already provide.
package search

import (
	"context"
	"sort"
	"strings"

	"github.com/fugue-ai/rhema-sub012/cache"
	"github.com/fugue-ai/rhema-sub012/config"
	"github.com/fugue-ai/rhema-sub012/embedding"
	"github.com/fugue-ai/rhema-sub012/vectorstore"
)

// CacheInfo is the cache-presence enrichment attached to a search result.
type CacheInfo struct {
	Cached       bool
	AccessCount  int64
	LastAccessed int64 // unix seconds, 0 if never accessed
}

// Result is one ranked search hit.
type Result struct {
	CacheKey       string
	Content        string
	RelevanceScore float64
	Metadata       map[string]interface{}
	CacheInfo      CacheInfo
}

// Engine is the hybrid search orchestrator.
type Engine struct {
	embedder embedding.Embedder
	vstore   vectorstore.Store
	cache    *cache.Cache // optional; nil disables cache-presence enrichment and rerank
	cfg      config.SearchConfig
}

// New builds a search Engine. c may be nil, in which case cache-presence
// enrichment and access-frequency reranking are skipped.
func New(embedder embedding.Embedder, vstore vectorstore.Store, c *cache.Cache, cfg config.SearchConfig) *Engine {
	return &Engine{embedder: embedder, vstore: vstore, cache: c, cfg: cfg}
}

// Search runs the hybrid search algorithm across every scope and returns the
// top k results.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]Result, error) {
	return e.search(ctx, query, "", k)
}

// SearchByScope behaves like Search but restricts to entries whose scope
// equals scope.
func (e *Engine) SearchByScope(ctx context.Context, query, scope string, k int) ([]Result, error) {
	return e.search(ctx, query, scope, k)
}

func (e *Engine) search(ctx context.Context, query, scope string, k int) ([]Result, error) {
	qvec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	overFetch := k * e.cfg.OverFetchFactor
	if overFetch < k {
		overFetch = k
	}
	matches, err := e.vstore.Search(ctx, qvec, overFetch, scope)
	if err != nil {
		return nil, err
	}

	queryTerms := tokenize(query)
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		content, _ := m.Record.Payload["content"].(string)
		score := m.Score

		if e.cfg.HybridEnabled {
			kwScore := keywordOverlap(queryTerms, tokenize(content))
			score = e.cfg.HybridAlpha*m.Score + (1-e.cfg.HybridAlpha)*kwScore
		}

		if e.cfg.RerankingEnabled && e.cache != nil {
			if pattern, ok := e.cache.AccessPattern(m.Record.ID); ok {
				score += 0.05*pattern.Recency + 0.05*normalizedFrequency(pattern.Frequency)
				score = clamp01(score)
			}
		}

		info := CacheInfo{}
		if e.cache != nil {
			cached, accessCount, lastAccessed := e.cache.Presence(m.Record.ID)
			info.Cached = cached
			info.AccessCount = accessCount
			if !lastAccessed.IsZero() {
				info.LastAccessed = lastAccessed.Unix()
			}
			if cached {
				score = clamp01(score + 0.1)
			}
		}

		results = append(results, Result{
			CacheKey:       m.Record.ID,
			Content:        content,
			RelevanceScore: score,
			Metadata:       m.Record.Payload,
			CacheInfo:      info,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RelevanceScore != results[j].RelevanceScore {
			return results[i].RelevanceScore > results[j].RelevanceScore
		}
		return results[i].CacheKey < results[j].CacheKey
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func normalizedFrequency(freq float64) float64 {
	if freq <= 0 {
		return 0
	}
	return freq / (1 + freq)
}

func tokenize(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// keywordOverlap is the Jaccard similarity of the two term sets:
// |intersection| / |union|, 0 when either set is empty. This keeps the
// result in [0,1] like the vector score it's blended with.
func keywordOverlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
