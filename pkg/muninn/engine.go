// Package muninn is the synthesis engine's top-level API.
//
// The Engine wires the pipeline together: stream the corpus through the
// cursor, scan for tensions in the resolved mode, synthesize insights
// from the accumulated statistics, and assemble everything into a
// self-contained Report. Construction validates configuration up front;
// a run over an unchanged corpus produces byte-identical report JSON.
//
// Example:
//
//	eng, err := muninn.New(config.Default())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	f, _ := os.Open("corpus.ndjson")
//	defer f.Close()
//
//	report, err := eng.SynthesizeCorpus(f)
//	if err != nil {
//		log.Fatal(err)
//	}
//	body, _ := report.JSON()
//	os.Stdout.Write(body)
package muninn

import (
	"fmt"
	"io"
	"sort"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/orneryd/muninn/pkg/config"
	"github.com/orneryd/muninn/pkg/cursor"
	"github.com/orneryd/muninn/pkg/record"
	"github.com/orneryd/muninn/pkg/store"
	"github.com/orneryd/muninn/pkg/synthesis"
	"github.com/orneryd/muninn/pkg/tension"
)

// Engine runs the synthesis pipeline. Safe to reuse across corpora; each
// Synthesize call builds fresh run-scoped state.
type Engine struct {
	cfg     *config.Config
	det     *tension.Detector
	archive store.Store
}

// New creates an engine from validated configuration. A nil cfg means
// defaults.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	det, err := tension.NewDetector(cfg.TensionConfig())
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, det: det}, nil
}

// WithArchive attaches a run archive. Every successful Synthesize call
// saves its report under the corpus content hash. Returns the engine for
// chaining.
func (e *Engine) WithArchive(s store.Store) *Engine {
	e.archive = s
	return e
}

// SynthesizeCorpus reads an NDJSON corpus from r and synthesizes it.
// Malformed lines are skipped and counted, never fatal.
func (e *Engine) SynthesizeCorpus(r io.Reader) (*Report, error) {
	records, skipped := record.ReadCorpus(r)
	return e.synthesize(records, skipped)
}

// Synthesize runs the full pipeline over a record set and returns the
// report. An empty corpus is not an error: the result is a valid report
// with zero counts and no insights.
func (e *Engine) Synthesize(records []*record.Record) (*Report, error) {
	return e.synthesize(records, 0)
}

// synthesize assembles the complete report, including the skip count,
// before archiving: the archived body must equal the returned one.
func (e *Engine) synthesize(records []*record.Record, skipped int) (*Report, error) {
	cur, err := cursor.New(e.cfg.CursorConfig())
	if err != nil {
		return nil, err
	}

	scanMode := e.det.ResolveMode(len(records))

	// Windowed scanning needs the window contents at each step, which
	// only exist during the stream.
	var windows [][]*record.Record
	cur.Stream(records, func(_ *record.Record, win cursor.Snapshot) {
		if scanMode == tension.ScanWindowed {
			windows = append(windows, win.Records)
		}
	})

	var tensions []tension.Tension
	switch scanMode {
	case tension.ScanWindowed:
		tensions = e.det.FindTensionsInWindows(windows)
	default:
		tensions = e.det.FindTensions(records)
	}

	stats := cur.Stats()
	insights := synthesis.Synthesize(e.cfg.SynthesisConfig(), stats, tensions)

	report := &Report{
		CorpusHash: CorpusHash(records),
		Stats: RunStats{
			TotalRecords:     stats.RecordsSeen,
			SkippedLines:     skipped,
			RecordErrors:     len(stats.RecordErrors),
			UniqueConcepts:   len(stats.ConceptFrequency),
			CollisionGroups:  len(cur.CollisionGroups()),
			EmergingConcepts: len(cur.EmergingConcepts()),
			Tensions:         len(tensions),
			Insights:         len(insights),
			ScanMode:         scanMode,
		},
		CollisionGroups:  cur.CollisionGroups(),
		EmergingConcepts: cur.EmergingConcepts(),
		Tensions:         tensions,
		Insights:         insights,
		RecordErrors:     stats.RecordErrors,
	}
	report.normalize()

	if e.archive != nil {
		if err := e.saveReport(report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func (e *Engine) saveReport(report *Report) error {
	body, err := report.JSON()
	if err != nil {
		return err
	}
	meta := store.Meta{
		Key:       report.CorpusHash,
		CreatedAt: time.Now().UTC(),
		Records:   report.Stats.TotalRecords,
		Insights:  report.Stats.Insights,
	}
	if err := e.archive.SaveReport(meta, body); err != nil {
		return fmt.Errorf("muninn: archiving report: %w", err)
	}
	return nil
}

// CorpusHash returns the content hash identifying a corpus: a blake2b
// digest over the sorted (id, order_key) identities of its records.
// Stable under input reordering, sensitive to any record added, removed
// or re-keyed.
func CorpusHash(records []*record.Record) string {
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		lines = append(lines, fmt.Sprintf("%s\x00%d\n", rec.ID, rec.OrderKey))
	}
	sort.Strings(lines)

	h, _ := blake2b.New256(nil)
	for _, line := range lines {
		h.Write([]byte(line))
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}
