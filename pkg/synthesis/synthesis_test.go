package synthesis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/muninn/pkg/cursor"
	"github.com/orneryd/muninn/pkg/record"
	"github.com/orneryd/muninn/pkg/tension"
)

// stream builds corpus statistics the same way a synthesis run does.
func stream(t *testing.T, records []*record.Record) *cursor.Cursor {
	t.Helper()
	cur, err := cursor.New(cursor.DefaultConfig())
	require.NoError(t, err)
	cur.Stream(records, nil)
	return cur
}

func conceptRecord(id string, order int64, concepts ...string) *record.Record {
	r := &record.Record{ID: record.ID(id), OrderKey: order}
	for _, name := range concepts {
		r.Concepts = append(r.Concepts, record.Concept{Name: name, Importance: 0.5})
	}
	return r
}

func findByType(insights []Insight, typ Type) []Insight {
	var out []Insight
	for _, in := range insights {
		if in.Type == typ {
			out = append(out, in)
		}
	}
	return out
}

func TestConfig_Validate(t *testing.T) {
	t.Run("defaults_valid", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})

	t.Run("rejects_bad_thresholds", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ConvergenceMin = 0
		assert.Error(t, cfg.Validate())

		cfg = DefaultConfig()
		cfg.EmergenceMin = 1
		assert.Error(t, cfg.Validate())

		cfg = DefaultConfig()
		cfg.DivergenceMin = -1
		assert.Error(t, cfg.Validate())
	})
}

func TestSynthesize_Convergence(t *testing.T) {
	// Scenario: concepts co-occurring in 4 records out of 10, both
	// individually established.
	var records []*record.Record
	for i := 1; i <= 4; i++ {
		records = append(records, conceptRecord(fmt.Sprintf("doc-%d", i), int64(i), "automation", "governance"))
	}
	for i := 5; i <= 10; i++ {
		records = append(records, conceptRecord(fmt.Sprintf("doc-%d", i), int64(i), fmt.Sprintf("filler%02d", i)))
	}

	cur := stream(t, records)
	insights := Synthesize(DefaultConfig(), cur.Stats(), nil)

	conv := findByType(insights, Convergence)
	require.Len(t, conv, 1)
	assert.Contains(t, conv[0].Description, "frequently appear together")
	assert.Contains(t, conv[0].Evidence, "4 records")
	assert.Contains(t, conv[0].Recommendation, "unified treatment")
	assert.Equal(t, 4.0, conv[0].Score)
}

func TestSynthesize_ConvergenceBelowThresholdSuppressed(t *testing.T) {
	var records []*record.Record
	for i := 1; i <= 2; i++ {
		records = append(records, conceptRecord(fmt.Sprintf("doc-%d", i), int64(i), "automation", "governance"))
	}

	cur := stream(t, records)
	insights := Synthesize(DefaultConfig(), cur.Stats(), nil)
	assert.Empty(t, findByType(insights, Convergence))
}

func TestSynthesize_ConvergenceFlagsContestedPairs(t *testing.T) {
	var records []*record.Record
	for i := 1; i <= 3; i++ {
		records = append(records, conceptRecord(fmt.Sprintf("doc-%d", i), int64(i), "automation", "oversight"))
	}
	cur := stream(t, records)

	det, err := tension.NewDetector(tension.DefaultConfig())
	require.NoError(t, err)
	tensions := det.FindTensions([]*record.Record{
		{ID: "doc-1", OrderKey: 1, Relationships: []record.Relationship{
			{Subject: "automation", Predicate: "requires", Object: "oversight"}}},
		{ID: "doc-2", OrderKey: 2, Relationships: []record.Relationship{
			{Subject: "automation", Predicate: "eliminates", Object: "oversight"}}},
	})
	require.NotEmpty(t, tensions)

	insights := Synthesize(DefaultConfig(), cur.Stats(), tensions)
	conv := findByType(insights, Convergence)
	require.Len(t, conv, 1)
	assert.Contains(t, conv[0].Recommendation, "contradictory claims")
}

func TestSynthesize_Divergence(t *testing.T) {
	// Scenario: two concepts each in 5 of 10 records, never together.
	var records []*record.Record
	for i := 1; i <= 5; i++ {
		records = append(records, conceptRecord(fmt.Sprintf("doc-a%d", i), int64(i), "compliance"))
	}
	for i := 6; i <= 10; i++ {
		records = append(records, conceptRecord(fmt.Sprintf("doc-b%d", i), int64(i), "velocity"))
	}

	cur := stream(t, records)
	insights := Synthesize(DefaultConfig(), cur.Stats(), nil)

	div := findByType(insights, Divergence)
	require.Len(t, div, 1)
	assert.Contains(t, div[0].Description, "never co-occur")
	assert.Contains(t, div[0].Evidence, "5 records")
	assert.Equal(t, 10.0, div[0].Score)
}

func TestSynthesize_DivergenceThresholdOverride(t *testing.T) {
	// Two concepts each in 2 of 4 records, never together: prominent
	// under the derived top-quartile threshold, below an explicit
	// prominence floor of 3.
	records := []*record.Record{
		conceptRecord("doc-1", 1, "compliance"),
		conceptRecord("doc-2", 2, "compliance"),
		conceptRecord("doc-3", 3, "velocity"),
		conceptRecord("doc-4", 4, "velocity"),
	}
	cur := stream(t, records)

	insights := Synthesize(DefaultConfig(), cur.Stats(), nil)
	require.Len(t, findByType(insights, Divergence), 1)

	cfg := DefaultConfig()
	cfg.DivergenceMin = 3
	insights = Synthesize(cfg, cur.Stats(), nil)
	assert.Empty(t, findByType(insights, Divergence))
}

func TestSynthesize_Evolution(t *testing.T) {
	r1 := &record.Record{ID: "doc-1", OrderKey: 1, Relationships: []record.Relationship{
		{Subject: "automation", Predicate: "requires", Object: "oversight"}}}
	r2 := &record.Record{ID: "doc-2", OrderKey: 2, Relationships: []record.Relationship{
		{Subject: "automation", Predicate: "reduces", Object: "oversight"}}}

	cur := stream(t, []*record.Record{r1, r2})
	insights := Synthesize(DefaultConfig(), cur.Stats(), nil)

	evo := findByType(insights, Evolution)
	require.Len(t, evo, 1)
	assert.Contains(t, evo[0].Description, "2 different ways")
	assert.Contains(t, evo[0].Evidence, `"require" (doc-1)`)
	assert.Contains(t, evo[0].Evidence, `"reduce" (doc-2)`)
}

func TestSynthesize_EvolutionIgnoresInflection(t *testing.T) {
	// "requires" vs "require" is one way of characterizing the
	// relationship, not two.
	r1 := &record.Record{ID: "doc-1", OrderKey: 1, Relationships: []record.Relationship{
		{Subject: "automation", Predicate: "requires", Object: "oversight"}}}
	r2 := &record.Record{ID: "doc-2", OrderKey: 2, Relationships: []record.Relationship{
		{Subject: "automation", Predicate: "require", Object: "oversight"}}}

	cur := stream(t, []*record.Record{r1, r2})
	insights := Synthesize(DefaultConfig(), cur.Stats(), nil)
	assert.Empty(t, findByType(insights, Evolution))
}

func TestSynthesize_Emergence(t *testing.T) {
	// One predicate across three concept-disjoint pairs.
	subjects := [][2]string{
		{"caching", "latency"},
		{"batching", "throughput"},
		{"pooling", "contention"},
	}
	var records []*record.Record
	for i, pair := range subjects {
		records = append(records, &record.Record{
			ID: record.ID(fmt.Sprintf("doc-%d", i+1)), OrderKey: int64(i + 1),
			Relationships: []record.Relationship{
				{Subject: pair[0], Predicate: "optimizes", Object: pair[1]},
			},
		})
	}

	cur := stream(t, records)
	insights := Synthesize(DefaultConfig(), cur.Stats(), nil)

	em := findByType(insights, Emergence)
	require.Len(t, em, 1)
	assert.Contains(t, em[0].Description, `"optimize"`)
	assert.Contains(t, em[0].Description, "latent theme")
	assert.Equal(t, 3.0, em[0].Score)
}

func TestSynthesize_EmergenceRequiresDisjointPairs(t *testing.T) {
	// Three pairs all sharing one subject: not a latent theme.
	var records []*record.Record
	for i, obj := range []string{"latency", "throughput", "contention"} {
		records = append(records, &record.Record{
			ID: record.ID(fmt.Sprintf("doc-%d", i+1)), OrderKey: int64(i + 1),
			Relationships: []record.Relationship{
				{Subject: "caching", Predicate: "optimizes", Object: obj},
			},
		})
	}

	cur := stream(t, records)
	insights := Synthesize(DefaultConfig(), cur.Stats(), nil)
	assert.Empty(t, findByType(insights, Emergence))
}

func TestSynthesize_Bridge(t *testing.T) {
	// Two clusters joined only through "platform": {alpha,beta} and
	// {gamma,delta} co-occur internally; platform co-occurs with one
	// node of each cluster.
	records := []*record.Record{
		conceptRecord("doc-1", 1, "alphaside", "betaside"),
		conceptRecord("doc-2", 2, "gammaside", "deltaside"),
		conceptRecord("doc-3", 3, "platform", "alphaside"),
		conceptRecord("doc-4", 4, "platform", "gammaside"),
	}

	cur := stream(t, records)
	insights := Synthesize(DefaultConfig(), cur.Stats(), nil)

	br := findByType(insights, Bridge)
	require.NotEmpty(t, br)

	var platform *Insight
	for i := range br {
		if br[i].Description == `"platform" connects 2 otherwise separate domains.` {
			platform = &br[i]
		}
		// Leaf concepts are never bridges.
		assert.NotContains(t, br[i].Description, `"betaside"`)
		assert.NotContains(t, br[i].Description, `"deltaside"`)
	}
	require.NotNil(t, platform, "platform should bridge the two clusters")
	assert.Contains(t, platform.Evidence, "2 disconnected clusters")
}

func TestSynthesize_NoBridgeInConnectedGraph(t *testing.T) {
	// Triangle: removing any node leaves the rest connected.
	records := []*record.Record{
		conceptRecord("doc-1", 1, "alphaside", "betaside"),
		conceptRecord("doc-2", 2, "betaside", "gammaside"),
		conceptRecord("doc-3", 3, "gammaside", "alphaside"),
	}

	cur := stream(t, records)
	insights := Synthesize(DefaultConfig(), cur.Stats(), nil)
	assert.Empty(t, findByType(insights, Bridge))
}

func TestSynthesize_RankingDeterminism(t *testing.T) {
	var records []*record.Record
	for i := 1; i <= 4; i++ {
		records = append(records, conceptRecord(fmt.Sprintf("doc-%d", i), int64(i), "automation", "governance"))
	}
	records = append(records,
		conceptRecord("doc-5", 5, "alphaside", "betaside"),
		conceptRecord("doc-6", 6, "gammaside", "deltaside"),
		conceptRecord("doc-7", 7, "platform", "alphaside"),
		conceptRecord("doc-8", 8, "platform", "gammaside"),
	)

	first := Synthesize(DefaultConfig(), stream(t, records).Stats(), nil)
	second := Synthesize(DefaultConfig(), stream(t, records).Stats(), nil)

	require.Equal(t, first, second, "repeated synthesis must be identical")

	// Scores are non-increasing down the ranking.
	for i := 1; i < len(first); i++ {
		assert.GreaterOrEqual(t, first[i-1].Score, first[i].Score)
	}
}

func TestSynthesize_EmptyStats(t *testing.T) {
	cur := stream(t, nil)
	insights := Synthesize(DefaultConfig(), cur.Stats(), nil)
	assert.Empty(t, insights)
}
