// Package synthesis mines typed insights from accumulated corpus
// statistics.
//
// The synthesizer runs only after the stream cursor has exhausted the
// corpus: every strategy is a pure function over the final statistics
// (and the tension list), so re-running on the same accumulated state
// always produces the same ranked insights.
//
// Five strategies, each threshold-driven:
//   - Convergence: concepts that frequently appear together.
//   - Divergence: prominent concepts that never co-occur.
//   - Evolution: a relationship characterized differently across records.
//   - Emergence: a predicate spanning otherwise-unrelated concept pairs.
//   - Bridge: a concept connecting otherwise-separate co-occurrence
//     clusters.
//
// Example:
//
//	insights := synthesis.Synthesize(synthesis.DefaultConfig(), stats, tensions)
//	for _, in := range insights {
//		fmt.Printf("[%s] %s\n    -> %s\n", in.Type, in.Description, in.Recommendation)
//	}
package synthesis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orneryd/muninn/pkg/cursor"
	"github.com/orneryd/muninn/pkg/fingerprint"
	"github.com/orneryd/muninn/pkg/tension"
)

// Type classifies an insight.
type Type string

const (
	Convergence Type = "convergence"
	Divergence  Type = "divergence"
	Evolution   Type = "evolution"
	Emergence   Type = "emergence"
	Bridge      Type = "bridge"
)

// typePriority orders insight types for the deterministic ranking
// tie-break. Priority never suppresses a type, it only fixes output
// order.
var typePriority = map[Type]int{
	Convergence: 0,
	Bridge:      1,
	Evolution:   2,
	Emergence:   3,
	Divergence:  4,
}

// Insight is a derived statement about cross-document structure.
// Read-only once emitted.
type Insight struct {
	Type           Type    `json:"type"`
	Description    string  `json:"description"`
	Evidence       string  `json:"evidence"`
	Recommendation string  `json:"actionable_recommendation"`
	Score          float64 `json:"score"`
}

// Config holds synthesis thresholds. Thresholds are configuration, not
// magic numbers baked into strategies.
type Config struct {
	// ConvergenceMin is the minimum co-occurrence count for a
	// convergence insight.
	ConvergenceMin int

	// EmergenceMin is the minimum number of concept-disjoint
	// subject/object pairs a predicate must span for an emergence
	// insight.
	EmergenceMin int

	// DivergenceMin is the minimum document frequency for a concept to
	// count as prominent in divergence detection. 0 means derive the
	// threshold from the frequency distribution (top quartile, floored
	// at 2).
	DivergenceMin int
}

// DefaultConfig returns the standard thresholds: convergence at 3
// co-occurrences, emergence at 3 disjoint pairs, divergence prominence
// derived from the corpus.
func DefaultConfig() *Config {
	return &Config{
		ConvergenceMin: 3,
		EmergenceMin:   3,
		DivergenceMin:  0,
	}
}

// Validate rejects out-of-range thresholds with a descriptive error.
func (c *Config) Validate() error {
	if c.ConvergenceMin < 1 {
		return fmt.Errorf("synthesis: convergence threshold must be >= 1, got %d", c.ConvergenceMin)
	}
	if c.EmergenceMin < 2 {
		return fmt.Errorf("synthesis: emergence threshold must be >= 2, got %d", c.EmergenceMin)
	}
	if c.DivergenceMin < 0 {
		return fmt.Errorf("synthesis: divergence threshold must be >= 0, got %d", c.DivergenceMin)
	}
	return nil
}

// Synthesize runs all five strategies over the final corpus statistics
// and returns ranked insights. Ranking: evidence magnitude descending,
// then type priority, then description - fully deterministic for a
// given input.
func Synthesize(cfg *Config, stats *cursor.CorpusStats, tensions []tension.Tension) []Insight {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	contested := contestedPairs(tensions)

	var insights []Insight
	insights = append(insights, convergence(cfg, stats, contested)...)
	insights = append(insights, divergence(cfg, stats)...)
	insights = append(insights, evolution(stats)...)
	insights = append(insights, emergence(cfg, stats)...)
	insights = append(insights, bridges(stats)...)

	sort.SliceStable(insights, func(i, j int) bool {
		if insights[i].Score != insights[j].Score {
			return insights[i].Score > insights[j].Score
		}
		if typePriority[insights[i].Type] != typePriority[insights[j].Type] {
			return typePriority[insights[i].Type] < typePriority[insights[j].Type]
		}
		return insights[i].Description < insights[j].Description
	})
	return insights
}

// contestedPairs indexes tension subject/object pairs so convergence can
// flag concept pairs that also carry contradictory claims.
func contestedPairs(tensions []tension.Tension) map[cursor.Pair]struct{} {
	out := make(map[cursor.Pair]struct{})
	for _, tn := range tensions {
		if tn.SubjectFP == "" || tn.ObjectFP == "" {
			continue
		}
		out[cursor.MakePair(tn.SubjectFP, tn.ObjectFP)] = struct{}{}
	}
	return out
}

// sortedPairs returns co-occurrence keys in deterministic order.
func sortedPairs(m map[cursor.Pair]int) []cursor.Pair {
	keys := make([]cursor.Pair, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].A != keys[j].A {
			return keys[i].A < keys[j].A
		}
		return keys[i].B < keys[j].B
	})
	return keys
}

// =============================================================================
// Convergence
// =============================================================================

// convergence reports fingerprint pairs that co-occur at least
// ConvergenceMin times with both concepts individually established
// (frequency >= 2).
func convergence(cfg *Config, stats *cursor.CorpusStats, contested map[cursor.Pair]struct{}) []Insight {
	var insights []Insight
	for _, pair := range sortedPairs(stats.CoOccurrence) {
		count := stats.CoOccurrence[pair]
		if count < cfg.ConvergenceMin {
			continue
		}
		if stats.ConceptFrequency[pair.A] < 2 || stats.ConceptFrequency[pair.B] < 2 {
			continue
		}

		x, y := stats.Label(pair.A), stats.Label(pair.B)
		recommendation := fmt.Sprintf("Consider a unified treatment of %q and %q.", x, y)
		if _, ok := contested[pair]; ok {
			recommendation += " Note: the corpus also records contradictory claims about this pair."
		}

		insights = append(insights, Insight{
			Type:           Convergence,
			Description:    fmt.Sprintf("%q and %q frequently appear together.", x, y),
			Evidence:       fmt.Sprintf("co-occur in %d records", count),
			Recommendation: recommendation,
			Score:          float64(count),
		})
	}
	return insights
}

// =============================================================================
// Divergence
// =============================================================================

// divergence reports pairs of prominent concepts with zero
// co-occurrence: either a blind spot or genuinely separate domains.
// Prominence is DivergenceMin when set, otherwise the top quartile of
// the frequency distribution floored at 2.
func divergence(cfg *Config, stats *cursor.CorpusStats) []Insight {
	threshold := cfg.DivergenceMin
	if threshold == 0 {
		threshold = topQuartileThreshold(stats.ConceptFrequency)
		if threshold < 2 {
			threshold = 2
		}
	}

	prominent := make([]fingerprint.FP, 0)
	for fp, n := range stats.ConceptFrequency {
		if n >= threshold {
			prominent = append(prominent, fp)
		}
	}
	sort.Slice(prominent, func(i, j int) bool { return prominent[i] < prominent[j] })

	var insights []Insight
	for i := 0; i < len(prominent); i++ {
		for j := i + 1; j < len(prominent); j++ {
			pair := cursor.MakePair(prominent[i], prominent[j])
			if stats.CoOccurrence[pair] != 0 {
				continue
			}

			x, y := stats.Label(pair.A), stats.Label(pair.B)
			fx, fy := stats.ConceptFrequency[pair.A], stats.ConceptFrequency[pair.B]
			insights = append(insights, Insight{
				Type:        Divergence,
				Description: fmt.Sprintf("%q and %q are both prominent but never co-occur.", x, y),
				Evidence:    fmt.Sprintf("%q in %d records, %q in %d records, together in none", x, fx, y, fy),
				Recommendation: fmt.Sprintf(
					"Check whether %q and %q belong to genuinely separate domains or the corpus has a blind spot between them.", x, y),
				Score: float64(fx + fy),
			})
		}
	}
	return insights
}

// topQuartileThreshold returns the frequency value at the top quartile
// boundary of the distribution.
func topQuartileThreshold(freq map[fingerprint.FP]int) int {
	if len(freq) == 0 {
		return 0
	}
	values := make([]int, 0, len(freq))
	for _, n := range freq {
		values = append(values, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(values)))
	idx := len(values) / 4
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}

// =============================================================================
// Evolution
// =============================================================================

// evolution reports subject/object pairs whose predicate set grew past
// one - the corpus characterizes the relationship differently across
// records.
func evolution(stats *cursor.CorpusStats) []Insight {
	keys := make([]cursor.DirectedPair, 0, len(stats.PredicateIndex))
	for k, preds := range stats.PredicateIndex {
		if len(preds) >= 2 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Subject != keys[j].Subject {
			return keys[i].Subject < keys[j].Subject
		}
		return keys[i].Object < keys[j].Object
	})

	var insights []Insight
	for _, key := range keys {
		preds := stats.PredicateIndex[key]
		names := make([]string, 0, len(preds))
		for p := range preds {
			names = append(names, p)
		}
		sort.Strings(names)

		parts := make([]string, 0, len(names))
		for _, p := range names {
			parts = append(parts, fmt.Sprintf("%q (%s)", p, preds[p]))
		}

		subj, obj := stats.Label(key.Subject), stats.Label(key.Object)
		insights = append(insights, Insight{
			Type: Evolution,
			Description: fmt.Sprintf("The relationship between %q and %q has been characterized %d different ways.",
				subj, obj, len(names)),
			Evidence: "predicates: " + joinComma(parts),
			Recommendation: fmt.Sprintf(
				"Trace how the claim about %q and %q evolved across the corpus before relying on any single record.", subj, obj),
			Score: float64(len(names)),
		})
	}
	return insights
}

func joinComma(parts []string) string {
	return strings.Join(parts, ", ")
}

// =============================================================================
// Emergence
// =============================================================================

// emergence clusters relationships by shared predicate: a predicate
// used across enough concept-disjoint subject/object pairs names a
// latent theme none of the records states on its own.
func emergence(cfg *Config, stats *cursor.CorpusStats) []Insight {
	byPredicate := make(map[string][]cursor.DirectedPair)
	for key, preds := range stats.PredicateIndex {
		for p := range preds {
			byPredicate[p] = append(byPredicate[p], key)
		}
	}

	predicates := make([]string, 0, len(byPredicate))
	for p := range byPredicate {
		predicates = append(predicates, p)
	}
	sort.Strings(predicates)

	var insights []Insight
	for _, p := range predicates {
		pairs := byPredicate[p]
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i].Subject != pairs[j].Subject {
				return pairs[i].Subject < pairs[j].Subject
			}
			return pairs[i].Object < pairs[j].Object
		})

		disjoint := disjointPairs(pairs)
		if len(disjoint) < cfg.EmergenceMin {
			continue
		}

		examples := make([]string, 0, len(disjoint))
		for _, pair := range disjoint {
			examples = append(examples, fmt.Sprintf("%q -> %q", stats.Label(pair.Subject), stats.Label(pair.Object)))
		}

		insights = append(insights, Insight{
			Type: Emergence,
			Description: fmt.Sprintf("The predicate %q links %d otherwise-unrelated concept pairs - a latent theme across the corpus.",
				p, len(disjoint)),
			Evidence: joinComma(examples),
			Recommendation: fmt.Sprintf(
				"Treat %q as a cross-cutting theme worth naming explicitly.", p),
			Score: float64(len(disjoint)),
		})
	}
	return insights
}

// disjointPairs greedily selects pairs sharing no concept fingerprint
// with any earlier selection. Input is sorted, so selection is
// deterministic.
func disjointPairs(pairs []cursor.DirectedPair) []cursor.DirectedPair {
	used := make(map[fingerprint.FP]struct{})
	out := make([]cursor.DirectedPair, 0, len(pairs))
	for _, pair := range pairs {
		if _, ok := used[pair.Subject]; ok {
			continue
		}
		if _, ok := used[pair.Object]; ok {
			continue
		}
		used[pair.Subject] = struct{}{}
		used[pair.Object] = struct{}{}
		out = append(out, pair)
	}
	return out
}

// =============================================================================
// Bridge
// =============================================================================

// adjacency is a lazily-built graph view over the co-occurrence table.
type adjacency map[fingerprint.FP]map[fingerprint.FP]struct{}

func buildAdjacency(stats *cursor.CorpusStats) adjacency {
	graph := make(adjacency)
	link := func(a, b fingerprint.FP) {
		set := graph[a]
		if set == nil {
			set = make(map[fingerprint.FP]struct{})
			graph[a] = set
		}
		set[b] = struct{}{}
	}
	for pair := range stats.CoOccurrence {
		link(pair.A, pair.B)
		link(pair.B, pair.A)
	}
	return graph
}

// bridges reports fingerprints whose co-occurrence partners fall into
// two or more connected components once the fingerprint itself is
// removed from the graph - concepts holding otherwise-separate domains
// together.
func bridges(stats *cursor.CorpusStats) []Insight {
	graph := buildAdjacency(stats)

	candidates := make([]fingerprint.FP, 0, len(graph))
	for fp, neighbors := range graph {
		if len(neighbors) >= 2 {
			candidates = append(candidates, fp)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	var insights []Insight
	for _, fp := range candidates {
		components := neighborComponents(graph, fp)
		if components < 2 {
			continue
		}

		label := stats.Label(fp)
		insights = append(insights, Insight{
			Type: Bridge,
			Description: fmt.Sprintf("%q connects %d otherwise separate domains.",
				label, components),
			Evidence: fmt.Sprintf("removing %q splits its %d co-occurrence partners into %d disconnected clusters",
				label, len(graph[fp]), components),
			Recommendation: fmt.Sprintf(
				"Treat %q as a bridging concept; documents that discuss it are the only links between these domains.", label),
			Score: float64(components),
		})
	}
	return insights
}

// neighborComponents counts the connected components the neighbors of
// fp fall into after fp is removed from the graph.
func neighborComponents(graph adjacency, fp fingerprint.FP) int {
	neighbors := graph[fp]
	unvisited := make(map[fingerprint.FP]struct{}, len(neighbors))
	for n := range neighbors {
		unvisited[n] = struct{}{}
	}

	// Deterministic seed order for the flood fill.
	seeds := make([]fingerprint.FP, 0, len(neighbors))
	for n := range neighbors {
		seeds = append(seeds, n)
	}
	sort.Slice(seeds, func(i, j int) bool { return seeds[i] < seeds[j] })

	components := 0
	for _, seed := range seeds {
		if _, pending := unvisited[seed]; !pending {
			continue
		}
		components++

		// BFS over the graph minus fp, marking which neighbors of fp
		// this component reaches.
		queue := []fingerprint.FP{seed}
		visited := map[fingerprint.FP]struct{}{seed: {}}
		delete(unvisited, seed)
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			for next := range graph[node] {
				if next == fp {
					continue
				}
				if _, seen := visited[next]; seen {
					continue
				}
				visited[next] = struct{}{}
				delete(unvisited, next)
				queue = append(queue, next)
			}
		}
	}
	return components
}
