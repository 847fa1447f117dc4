package synthesis

import (
	"fmt"
	"sort"
	"strings"
)

// semanticClustering greedily clusters sources by pairwise relevance
// distance < 0.1, then emits a per-cluster theme (most-frequent significant
// terms: length > 4, count >= 2) and up to 3 representative examples ranked
// by relevance.
func (s *Synthesizer) semanticClustering(sources []Source) string {
	clusters := clusterByRelevance(sources, 0.1)

	var b strings.Builder
	fmt.Fprintf(&b, "Semantic clustering over %d sources produced %d cluster(s).\n", len(sources), len(clusters))
	for i, cluster := range clusters {
		theme := significantTerms(cluster, 4, 2)
		examples := topByScore(cluster, 3)
		fmt.Fprintf(&b, "\nCluster %d (%d sources) - theme: %s\n", i+1, len(cluster), strings.Join(theme, ", "))
		for _, ex := range examples {
			fmt.Fprintf(&b, "  - %s\n", truncate(ex.Content, 160))
		}
	}
	return b.String()
}

// clusterByRelevance greedily assigns each source to the first existing
// cluster whose relevance distance to it is below threshold, else starts a
// new cluster.
func clusterByRelevance(sources []Source, threshold float64) [][]Source {
	var clusters [][]Source
	for _, src := range sources {
		placed := false
		for i, cluster := range clusters {
			if abs(cluster[0].RelevanceScore-src.RelevanceScore) < threshold {
				clusters[i] = append(clusters[i], src)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []Source{src})
		}
	}
	return clusters
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// significantTerms returns the terms with length > minLen appearing at
// least minCount times across cluster, most frequent first.
func significantTerms(cluster []Source, minLen, minCount int) []string {
	counts := make(map[string]int)
	var order []string
	for _, src := range cluster {
		for _, tok := range tokenize(src.Content) {
			if len(tok) <= minLen {
				continue
			}
			if counts[tok] == 0 {
				order = append(order, tok)
			}
			counts[tok]++
		}
	}
	var terms []string
	for _, t := range order {
		if counts[t] >= minCount {
			terms = append(terms, t)
		}
	}
	sort.SliceStable(terms, func(i, j int) bool { return counts[terms[i]] > counts[terms[j]] })
	if len(terms) > 8 {
		terms = terms[:8]
	}
	return terms
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}

func topByScore(sources []Source, n int) []Source {
	sorted := append([]Source(nil), sources...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RelevanceScore > sorted[j].RelevanceScore })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// temporalAnalysis buckets sources by year of CreatedAt, emitting a
// per-bucket summary plus simple trend detection (monotone content-length
// growth, monotone relevance growth) across bucket years in order.
func (s *Synthesizer) temporalAnalysis(sources []Source) string {
	buckets := make(map[int][]Source)
	var years []int
	for _, src := range sources {
		y := src.CreatedAt.Year()
		if _, ok := buckets[y]; !ok {
			years = append(years, y)
		}
		buckets[y] = append(buckets[y], src)
	}
	sort.Ints(years)

	var b strings.Builder
	fmt.Fprintf(&b, "Temporal analysis over %d year(s):\n", len(years))

	var avgLengths, avgRelevances []float64
	for _, y := range years {
		bucket := buckets[y]
		avgLen, avgRel := avgLengthAndRelevance(bucket)
		avgLengths = append(avgLengths, avgLen)
		avgRelevances = append(avgRelevances, avgRel)
		fmt.Fprintf(&b, "  %d: %d source(s), avg length %.0f, avg relevance %.2f\n", y, len(bucket), avgLen, avgRel)
	}

	if monotoneIncreasing(avgLengths) {
		b.WriteString("Trend: content length is growing over time.\n")
	}
	if monotoneIncreasing(avgRelevances) {
		b.WriteString("Trend: relevance is growing over time.\n")
	}
	return b.String()
}

func avgLengthAndRelevance(sources []Source) (avgLen, avgRel float64) {
	for _, src := range sources {
		avgLen += float64(len(src.Content))
		avgRel += src.RelevanceScore
	}
	n := float64(len(sources))
	return avgLen / n, avgRel / n
}

func monotoneIncreasing(xs []float64) bool {
	if len(xs) < 2 {
		return false
	}
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return false
		}
	}
	return true
}

// crossScopeCorrelation groups sources by scope, emitting a per-scope
// summary and an inter-scope shared-theme report.
func (s *Synthesizer) crossScopeCorrelation(sources []Source) string {
	byScope := make(map[string][]Source)
	var scopes []string
	for _, src := range sources {
		if _, ok := byScope[src.Scope]; !ok {
			scopes = append(scopes, src.Scope)
		}
		byScope[src.Scope] = append(byScope[src.Scope], src)
	}
	sort.Strings(scopes)

	var b strings.Builder
	fmt.Fprintf(&b, "Cross-scope correlation over %d scope(s):\n", len(scopes))

	scopeThemes := make(map[string]map[string]bool)
	for _, scope := range scopes {
		bucket := byScope[scope]
		theme := significantTerms(bucket, 4, 2)
		set := make(map[string]bool, len(theme))
		for _, t := range theme {
			set[t] = true
		}
		scopeThemes[scope] = set
		fmt.Fprintf(&b, "  %s: %d source(s), theme: %s\n", scope, len(bucket), strings.Join(theme, ", "))
	}

	shared := sharedAcrossScopes(scopeThemes)
	if len(shared) > 0 {
		fmt.Fprintf(&b, "Shared themes across scopes: %s\n", strings.Join(shared, ", "))
	}
	return b.String()
}

func sharedAcrossScopes(scopeThemes map[string]map[string]bool) []string {
	counts := make(map[string]int)
	for _, set := range scopeThemes {
		for term := range set {
			counts[term]++
		}
	}
	var shared []string
	for term, c := range counts {
		if c > 1 {
			shared = append(shared, term)
		}
	}
	sort.Strings(shared)
	return shared
}

// patternRecognition surfaces recurring significant terms across the whole
// source set regardless of cluster/scope/time, as a standalone method
// distinct from the grouping-based ones above.
func (s *Synthesizer) patternRecognition(sources []Source) string {
	theme := significantTerms(sources, 4, 2)
	var b strings.Builder
	fmt.Fprintf(&b, "Pattern recognition over %d sources found %d recurring term(s): %s\n",
		len(sources), len(theme), strings.Join(theme, ", "))
	return b.String()
}

// decisionTree picks the single highest-confidence grouping method by a
// simple heuristic (most distinct scopes -> cross-scope, most distinct
// years -> temporal, otherwise semantic) and reports which it chose plus
// that method's output.
func (s *Synthesizer) decisionTree(sources []Source) string {
	scopes := distinctScopes(sources)
	years := distinctYears(sources)

	var chosen Method
	switch {
	case len(scopes) >= len(years) && len(scopes) > 1:
		chosen = CrossScopeCorrelation
	case len(years) > 1:
		chosen = TemporalAnalysis
	default:
		chosen = SemanticClustering
	}

	var body string
	switch chosen {
	case CrossScopeCorrelation:
		body = s.crossScopeCorrelation(sources)
	case TemporalAnalysis:
		body = s.temporalAnalysis(sources)
	default:
		body = s.semanticClustering(sources)
	}
	return fmt.Sprintf("Decision tree selected %s based on source distribution.\n%s", chosen, body)
}

func distinctScopes(sources []Source) map[string]bool {
	out := make(map[string]bool)
	for _, src := range sources {
		out[src.Scope] = true
	}
	return out
}

func distinctYears(sources []Source) map[int]bool {
	out := make(map[int]bool)
	for _, src := range sources {
		out[src.CreatedAt.Year()] = true
	}
	return out
}

// hybrid runs semantic clustering, temporal analysis, and cross-scope
// correlation, interleaves their outputs, and appends an integrated
// conclusion.
func (s *Synthesizer) hybrid(sources []Source) string {
	var b strings.Builder
	b.WriteString("== Semantic clustering ==\n")
	b.WriteString(s.semanticClustering(sources))
	b.WriteString("\n== Temporal analysis ==\n")
	b.WriteString(s.temporalAnalysis(sources))
	b.WriteString("\n== Cross-scope correlation ==\n")
	b.WriteString(s.crossScopeCorrelation(sources))

	b.WriteString("\n== Integrated conclusion ==\n")
	fmt.Fprintf(&b, "Across %d sources spanning %d scope(s) and %d year(s), the recurring themes are: %s\n",
		len(sources), len(distinctScopes(sources)), len(distinctYears(sources)),
		strings.Join(significantTerms(sources, 4, 2), ", "))
	return b.String()
}
