// Package cursor implements Muninn's stream cursor: ordered iteration
// over a corpus of records with a fixed-size sliding window and
// run-scoped aggregate statistics.
//
// The cursor is the single writer of corpus statistics. All aggregation
// state lives inside the Cursor struct and is passed by reference to the
// components that read it - never held as ambient process-wide state -
// so independent synthesis runs (and tests) can't interfere with each
// other.
//
// Example:
//
//	cur, err := cursor.New(cursor.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	cur.Stream(records, func(rec *record.Record, win cursor.Snapshot) {
//		// rec is the record just ingested, win the current window
//	})
//
//	stats := cur.Stats()
//	fmt.Printf("%d unique concepts across %d records\n",
//		len(stats.ConceptFrequency), stats.RecordsSeen)
//
// Window semantics:
//
//	The window is a FIFO of the most recently streamed records. Evicting
//	a record decrements RecentFrequency by exactly that record's
//	contribution; ConceptFrequency is monotonic for the whole run.
//	"Recent" vs "overall" rates drive emerging-concept detection.
package cursor

import (
	"fmt"
	"sort"

	"github.com/orneryd/muninn/pkg/fingerprint"
	"github.com/orneryd/muninn/pkg/record"
)

// Config holds stream cursor tuning.
//
// Example:
//
//	cfg := cursor.DefaultConfig()
//	cfg.WindowCapacity = 25 // wider "recent" horizon
type Config struct {
	// WindowCapacity is the fixed size of the sliding window. Must be
	// at least 1.
	WindowCapacity int

	// EmergenceRatio is how much the recent rate must exceed the
	// overall rate for a concept to count as emerging.
	EmergenceRatio float64

	// EmergenceCeiling caps the overall document share of an emerging
	// concept. Concepts above the ceiling are simply common, not
	// emerging.
	EmergenceCeiling float64
}

// DefaultConfig returns the standard cursor configuration:
// window of 10, 2x emergence ratio, 20% frequency ceiling.
func DefaultConfig() *Config {
	return &Config{
		WindowCapacity:   10,
		EmergenceRatio:   2.0,
		EmergenceCeiling: 0.20,
	}
}

// Validate rejects out-of-range configuration with a descriptive error.
func (c *Config) Validate() error {
	if c.WindowCapacity < 1 {
		return fmt.Errorf("cursor: window capacity must be >= 1, got %d", c.WindowCapacity)
	}
	if c.EmergenceRatio <= 0 {
		return fmt.Errorf("cursor: emergence ratio must be > 0, got %g", c.EmergenceRatio)
	}
	if c.EmergenceCeiling <= 0 || c.EmergenceCeiling > 1 {
		return fmt.Errorf("cursor: emergence ceiling must be in (0, 1], got %g", c.EmergenceCeiling)
	}
	return nil
}

// Pair is an unordered fingerprint pair key. A is always <= B so that
// co-occurrence counts are symmetric by construction.
type Pair struct {
	A fingerprint.FP
	B fingerprint.FP
}

// MakePair builds the canonical unordered key for two fingerprints.
func MakePair(a, b fingerprint.FP) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

// DirectedPair is an ordered (subject, object) fingerprint key for the
// predicate index. Direction matters: "A requires B" and "B requires A"
// are different claims.
type DirectedPair struct {
	Subject fingerprint.FP
	Object  fingerprint.FP
}

// RecordError notes a record whose processing failed. The run continues;
// the error surfaces in the final report instead of aborting.
type RecordError struct {
	RecordID record.ID `json:"record_id"`
	Message  string    `json:"message"`
}

// CorpusStats is the run-scoped aggregate state accumulated while
// streaming. It is owned by the Cursor; readers must not mutate it.
type CorpusStats struct {
	// RecordsSeen counts every streamed record, including those that
	// contributed nothing to the statistics.
	RecordsSeen int

	// ConceptFrequency counts documents (not mentions) per fingerprint.
	// Monotonic for the whole run.
	ConceptFrequency map[fingerprint.FP]int

	// RecentFrequency counts documents per fingerprint within the
	// current window. Decremented on eviction.
	RecentFrequency map[fingerprint.FP]int

	// CoOccurrence counts records in which both fingerprints of the
	// pair appear. Incremented once per record.
	CoOccurrence map[Pair]int

	// PredicateIndex maps (subject, object) fingerprints to the set of
	// predicates observed, each with the record that introduced it.
	// Predicates are keyed in stemmed canonical form, the same identity
	// the tension detector matches on.
	PredicateIndex map[DirectedPair]map[string]record.ID

	// FirstLabel remembers the first original label seen for each
	// fingerprint (concept names and relationship endpoints), used to
	// render human-readable output.
	FirstLabel map[fingerprint.FP]string

	// RecordErrors lists records whose processing failed, in stream
	// order.
	RecordErrors []RecordError
}

// Label returns the display label for a fingerprint, falling back to the
// fingerprint itself when no original label was recorded.
func (s *CorpusStats) Label(fp fingerprint.FP) string {
	if l, ok := s.FirstLabel[fp]; ok {
		return l
	}
	return string(fp)
}

// CollisionGroup is a set of >= 2 distinct original labels sharing one
// fingerprint - differently-named mentions of the same concept.
type CollisionGroup struct {
	Fingerprint fingerprint.FP `json:"fingerprint"`
	Labels      []string       `json:"labels"`
}

// EmergingConcept is a fingerprint whose recent rate outpaces its
// overall rate per the configured thresholds.
type EmergingConcept struct {
	Fingerprint fingerprint.FP `json:"fingerprint"`
	Label       string         `json:"label"`
	RecentCount int            `json:"recent_count"`
	TotalCount  int            `json:"total_count"`
	RecentRate  float64        `json:"recent_rate"`
	OverallRate float64        `json:"overall_rate"`
}

// Snapshot is a read-only view of the window at one streaming step.
type Snapshot struct {
	Records []*record.Record
}

// Cursor streams a corpus in ascending order-key order, maintaining the
// window and the aggregate statistics. Not safe for concurrent use: the
// synthesis pass is sequential by design.
type Cursor struct {
	cfg    Config
	stats  *CorpusStats
	window []*record.Record

	// contribution remembers the fingerprints each windowed record
	// added to RecentFrequency, so eviction can subtract exactly that.
	contribution map[record.ID][]fingerprint.FP

	// labels tracks distinct original labels per fingerprint for
	// collision-group reporting.
	labels map[fingerprint.FP]map[string]struct{}
}

// New creates a stream cursor, validating the configuration.
func New(cfg *Config) (*Cursor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Cursor{
		cfg: *cfg,
		stats: &CorpusStats{
			ConceptFrequency: make(map[fingerprint.FP]int),
			RecentFrequency:  make(map[fingerprint.FP]int),
			CoOccurrence:     make(map[Pair]int),
			PredicateIndex:   make(map[DirectedPair]map[string]record.ID),
			FirstLabel:       make(map[fingerprint.FP]string),
		},
		contribution: make(map[record.ID][]fingerprint.FP),
		labels:       make(map[fingerprint.FP]map[string]struct{}),
	}, nil
}

// Stream iterates the corpus in ascending (order_key, id) order, calling
// fn once per record with the window state after ingesting it. Arrival
// order of the input slice is irrelevant: order keys are attached
// upstream at extraction time, so sorting here makes runs reproducible
// even under concurrent extraction.
//
// A panic while processing a single record is recovered and recorded
// against that record's id; streaming continues with the next record.
func (c *Cursor) Stream(records []*record.Record, fn func(rec *record.Record, win Snapshot)) {
	ordered := make([]*record.Record, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].OrderKey != ordered[j].OrderKey {
			return ordered[i].OrderKey < ordered[j].OrderKey
		}
		return ordered[i].ID < ordered[j].ID
	})

	for _, rec := range ordered {
		c.stats.RecordsSeen++
		c.ingest(rec)

		if fn != nil {
			fn(rec, c.snapshot())
		}
	}
}

// ingest processes one record, recovering from per-record panics.
func (c *Cursor) ingest(rec *record.Record) {
	defer func() {
		if r := recover(); r != nil {
			c.stats.RecordErrors = append(c.stats.RecordErrors, RecordError{
				RecordID: rec.ID,
				Message:  fmt.Sprintf("record processing failed: %v", r),
			})
		}
	}()

	fps := c.conceptFingerprints(rec)

	// Document frequency: one per unique fingerprint, not per mention.
	for _, fp := range fps {
		c.stats.ConceptFrequency[fp]++
	}

	// Unordered co-occurrence, once per record per pair.
	for i := 0; i < len(fps); i++ {
		for j := i + 1; j < len(fps); j++ {
			c.stats.CoOccurrence[MakePair(fps[i], fps[j])]++
		}
	}

	// Window append, evicting past capacity.
	c.window = append(c.window, rec)
	if len(c.window) > c.cfg.WindowCapacity {
		evicted := c.window[0]
		c.window = c.window[1:]
		for _, fp := range c.contribution[evicted.ID] {
			c.stats.RecentFrequency[fp]--
			if c.stats.RecentFrequency[fp] <= 0 {
				delete(c.stats.RecentFrequency, fp)
			}
		}
		delete(c.contribution, evicted.ID)
	}

	for _, fp := range fps {
		c.stats.RecentFrequency[fp]++
	}
	c.contribution[rec.ID] = fps

	// Predicate index over relationship endpoints.
	for _, rel := range rec.Relationships {
		subj := fingerprint.Fingerprint(rel.Subject)
		obj := fingerprint.Fingerprint(rel.Object)
		if subj == fingerprint.Sentinel || obj == fingerprint.Sentinel {
			continue
		}
		c.rememberLabel(subj, rel.Subject)
		c.rememberLabel(obj, rel.Object)

		key := DirectedPair{Subject: subj, Object: obj}
		preds := c.stats.PredicateIndex[key]
		if preds == nil {
			preds = make(map[string]record.ID)
			c.stats.PredicateIndex[key] = preds
		}
		pred := fingerprint.NormalizeStem(rel.Predicate)
		if pred == "" {
			continue
		}
		if _, seen := preds[pred]; !seen {
			preds[pred] = rec.ID
		}
	}
}

// conceptFingerprints returns the sorted unique non-sentinel fingerprints
// of the record's concept names, registering labels as a side effect.
func (c *Cursor) conceptFingerprints(rec *record.Record) []fingerprint.FP {
	seen := make(map[fingerprint.FP]struct{}, len(rec.Concepts))
	fps := make([]fingerprint.FP, 0, len(rec.Concepts))
	for _, concept := range rec.Concepts {
		fp := fingerprint.Fingerprint(concept.Name)
		if fp == fingerprint.Sentinel {
			continue
		}
		c.rememberLabel(fp, concept.Name)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		fps = append(fps, fp)
	}
	sort.Slice(fps, func(i, j int) bool { return fps[i] < fps[j] })
	return fps
}

func (c *Cursor) rememberLabel(fp fingerprint.FP, label string) {
	if _, ok := c.stats.FirstLabel[fp]; !ok {
		c.stats.FirstLabel[fp] = label
	}
	set := c.labels[fp]
	if set == nil {
		set = make(map[string]struct{})
		c.labels[fp] = set
	}
	set[label] = struct{}{}
}

func (c *Cursor) snapshot() Snapshot {
	out := make([]*record.Record, len(c.window))
	copy(out, c.window)
	return Snapshot{Records: out}
}

// Stats returns the accumulated corpus statistics. Call after Stream has
// exhausted the corpus; the returned struct is owned by the cursor.
func (c *Cursor) Stats() *CorpusStats {
	return c.stats
}

// WindowLen returns the number of records currently in the window.
func (c *Cursor) WindowLen() int {
	return len(c.window)
}

// CollisionGroups returns every fingerprint that collected two or more
// distinct original labels, sorted by fingerprint with labels sorted
// inside each group. Growth is monotonic within a run.
func (c *Cursor) CollisionGroups() []CollisionGroup {
	groups := make([]CollisionGroup, 0)
	for fp, set := range c.labels {
		if len(set) < 2 {
			continue
		}
		labels := make([]string, 0, len(set))
		for l := range set {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		groups = append(groups, CollisionGroup{Fingerprint: fp, Labels: labels})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Fingerprint < groups[j].Fingerprint })
	return groups
}

// EmergingConcepts returns fingerprints whose recent rate exceeds their
// overall rate by the configured ratio while staying under the absolute
// frequency ceiling - concepts gaining momentum, not concepts that are
// simply common everywhere. Sorted by fingerprint for determinism.
func (c *Cursor) EmergingConcepts() []EmergingConcept {
	if len(c.window) == 0 || c.stats.RecordsSeen == 0 {
		return nil
	}

	windowLen := float64(len(c.window))
	corpusLen := float64(c.stats.RecordsSeen)

	emerging := make([]EmergingConcept, 0)
	for fp, recent := range c.stats.RecentFrequency {
		total := c.stats.ConceptFrequency[fp]
		recentRate := float64(recent) / windowLen
		overallRate := float64(total) / corpusLen

		if recentRate <= overallRate*c.cfg.EmergenceRatio {
			continue
		}
		if overallRate >= c.cfg.EmergenceCeiling {
			continue
		}

		emerging = append(emerging, EmergingConcept{
			Fingerprint: fp,
			Label:       c.stats.Label(fp),
			RecentCount: recent,
			TotalCount:  total,
			RecentRate:  recentRate,
			OverallRate: overallRate,
		})
	}
	sort.Slice(emerging, func(i, j int) bool { return emerging[i].Fingerprint < emerging[j].Fingerprint })
	return emerging
}
