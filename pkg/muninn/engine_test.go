package muninn

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/muninn/pkg/config"
	"github.com/orneryd/muninn/pkg/record"
	"github.com/orneryd/muninn/pkg/store"
	"github.com/orneryd/muninn/pkg/tension"
)

func conceptRecord(id string, order int64, concepts ...string) *record.Record {
	r := &record.Record{ID: record.ID(id), OrderKey: order}
	for _, name := range concepts {
		r.Concepts = append(r.Concepts, record.Concept{Name: name, Importance: 0.5})
	}
	return r
}

func TestNew(t *testing.T) {
	t.Run("nil_config_uses_defaults", func(t *testing.T) {
		eng, err := New(nil)
		require.NoError(t, err)
		assert.NotNil(t, eng)
	})

	t.Run("invalid_config_rejected", func(t *testing.T) {
		cfg := config.Default()
		cfg.Window.Capacity = 0
		_, err := New(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "window capacity")
	})
}

func TestEngine_EmptyCorpus(t *testing.T) {
	eng, err := New(nil)
	require.NoError(t, err)

	report, err := eng.Synthesize(nil)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Stats.TotalRecords)
	assert.Equal(t, 0, report.Stats.UniqueConcepts)
	assert.Equal(t, 0, report.Stats.Tensions)
	assert.Equal(t, 0, report.Stats.Insights)
	assert.NotEmpty(t, report.CorpusHash)

	// Empty sections render as arrays, not null: the report stays
	// machine-consumable without special-casing.
	body, err := report.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"insights": []`)
	assert.Contains(t, string(body), `"tensions": []`)
	assert.NotContains(t, string(body), "null")
}

func TestEngine_FullPipeline(t *testing.T) {
	eng, err := New(nil)
	require.NoError(t, err)

	var records []*record.Record
	for i := 1; i <= 4; i++ {
		records = append(records, conceptRecord(fmt.Sprintf("doc-%d", i), int64(i), "automation", "governance"))
	}
	records = append(records,
		&record.Record{ID: "doc-5", OrderKey: 5, Relationships: []record.Relationship{
			{Subject: "automation", Predicate: "requires", Object: "oversight"}}},
		&record.Record{ID: "doc-6", OrderKey: 6, Relationships: []record.Relationship{
			{Subject: "automation", Predicate: "eliminates", Object: "oversight"}}},
		conceptRecord("doc-7", 7, "Automation"),
	)

	report, err := eng.Synthesize(records)
	require.NoError(t, err)

	assert.Equal(t, 7, report.Stats.TotalRecords)
	assert.Equal(t, tension.ScanGlobal, report.Stats.ScanMode)

	require.NotEmpty(t, report.Tensions)
	assert.Equal(t, tension.RelationshipContradiction, report.Tensions[0].Type)

	require.NotEmpty(t, report.Insights)

	// "automation" vs "Automation" collide into one resolved concept.
	require.NotEmpty(t, report.CollisionGroups)
	assert.Contains(t, report.CollisionGroups[0].Labels, "Automation")
	assert.Contains(t, report.CollisionGroups[0].Labels, "automation")

	// Counts mirror the sections.
	assert.Equal(t, len(report.Tensions), report.Stats.Tensions)
	assert.Equal(t, len(report.Insights), report.Stats.Insights)
	assert.Equal(t, len(report.CollisionGroups), report.Stats.CollisionGroups)
}

func TestEngine_Determinism(t *testing.T) {
	mk := func() []*record.Record {
		var records []*record.Record
		for i := 1; i <= 12; i++ {
			records = append(records, conceptRecord(fmt.Sprintf("doc-%02d", i), int64(i),
				"automation", fmt.Sprintf("topic%02d", i%4)))
		}
		return records
	}

	run := func() []byte {
		eng, err := New(nil)
		require.NoError(t, err)
		report, err := eng.Synthesize(mk())
		require.NoError(t, err)
		body, err := report.JSON()
		require.NoError(t, err)
		return body
	}

	assert.Equal(t, run(), run(), "same corpus must produce byte-identical reports")
}

func TestEngine_HashIgnoresInputOrder(t *testing.T) {
	a := conceptRecord("doc-1", 1, "automation")
	b := conceptRecord("doc-2", 2, "governance")

	assert.Equal(t, CorpusHash([]*record.Record{a, b}), CorpusHash([]*record.Record{b, a}))
	assert.NotEqual(t, CorpusHash([]*record.Record{a}), CorpusHash([]*record.Record{a, b}))
}

func TestEngine_SynthesizeCorpus(t *testing.T) {
	corpus := strings.Join([]string{
		`{"id":"doc-1","order_key":1,"concepts":[{"name":"automation","importance":0.9}]}`,
		`not json at all`,
		`{"id":"doc-2","order_key":2,"concepts":[{"name":"governance","importance":0.8}]}`,
	}, "\n")

	eng, err := New(nil)
	require.NoError(t, err)

	report, err := eng.SynthesizeCorpus(strings.NewReader(corpus))
	require.NoError(t, err)

	assert.Equal(t, 2, report.Stats.TotalRecords)
	assert.Equal(t, 1, report.Stats.SkippedLines)
}

func TestEngine_WindowedScanMode(t *testing.T) {
	cfg := config.Default()
	cfg.Tension.ScanMode = tension.ScanWindowed
	cfg.Window.Capacity = 2

	eng, err := New(cfg)
	require.NoError(t, err)

	// Contradicting records adjacent in stream order: windowed scan
	// sees them together.
	report, err := eng.Synthesize([]*record.Record{
		{ID: "doc-1", OrderKey: 1, Relationships: []record.Relationship{
			{Subject: "automation", Predicate: "requires", Object: "oversight"}}},
		{ID: "doc-2", OrderKey: 2, Relationships: []record.Relationship{
			{Subject: "automation", Predicate: "eliminates", Object: "oversight"}}},
	})
	require.NoError(t, err)

	assert.Equal(t, tension.ScanWindowed, report.Stats.ScanMode)
	require.Len(t, report.Tensions, 1)
	assert.Equal(t, []record.ID{"doc-1", "doc-2"}, report.Tensions[0].Evidence)
}

func TestEngine_Archive(t *testing.T) {
	archive := store.NewMemoryStore()
	defer archive.Close()

	eng, err := New(nil)
	require.NoError(t, err)
	eng.WithArchive(archive)

	records := []*record.Record{conceptRecord("doc-1", 1, "automation")}
	report, err := eng.Synthesize(records)
	require.NoError(t, err)

	body, meta, err := archive.GetReport(report.CorpusHash)
	require.NoError(t, err)
	assert.Equal(t, 1, meta.Records)

	expected, err := report.JSON()
	require.NoError(t, err)
	assert.Equal(t, expected, body)

	// Re-running the same corpus overwrites the same entry.
	_, err = eng.Synthesize(records)
	require.NoError(t, err)
	metas, err := archive.ListReports()
	require.NoError(t, err)
	assert.Len(t, metas, 1)
}

func TestEngine_ArchiveIncludesSkippedLines(t *testing.T) {
	archive := store.NewMemoryStore()
	defer archive.Close()

	eng, err := New(nil)
	require.NoError(t, err)
	eng.WithArchive(archive)

	corpus := strings.Join([]string{
		`{"id":"doc-1","order_key":1,"concepts":[{"name":"automation","importance":0.9}]}`,
		`not json at all`,
	}, "\n")

	report, err := eng.SynthesizeCorpus(strings.NewReader(corpus))
	require.NoError(t, err)
	require.Equal(t, 1, report.Stats.SkippedLines)

	// The archived body is the final report, warning counter included.
	body, _, err := archive.GetReport(report.CorpusHash)
	require.NoError(t, err)

	expected, err := report.JSON()
	require.NoError(t, err)
	assert.Equal(t, expected, body)
	assert.Contains(t, string(body), `"skipped_lines": 1`)
}
