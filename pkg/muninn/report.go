package muninn

import (
	"encoding/json"

	"github.com/orneryd/muninn/pkg/cursor"
	"github.com/orneryd/muninn/pkg/synthesis"
	"github.com/orneryd/muninn/pkg/tension"
)

// RunStats summarizes one synthesis run.
type RunStats struct {
	// TotalRecords is the number of records streamed, including records
	// that contributed nothing.
	TotalRecords int `json:"total_records"`

	// SkippedLines counts corpus lines dropped as malformed before
	// streaming. Only set when the corpus was read from NDJSON.
	SkippedLines int `json:"skipped_lines"`

	// RecordErrors counts records whose processing failed mid-stream.
	RecordErrors int `json:"record_errors"`

	// UniqueConcepts is the number of distinct concept fingerprints.
	UniqueConcepts int `json:"unique_concepts"`

	CollisionGroups  int `json:"collision_groups"`
	EmergingConcepts int `json:"emerging_concepts"`
	Tensions         int `json:"tensions"`
	Insights         int `json:"insights"`

	// ScanMode is the tension scan mode the run resolved to.
	ScanMode string `json:"scan_mode"`
}

// Report is the self-contained output of a synthesis run. It carries
// everything needed to read the result without access to the corpus:
// summary counts, entity resolution findings, tensions, and the ranked
// insights. Two runs over the same corpus and configuration marshal to
// byte-identical JSON.
type Report struct {
	// CorpusHash identifies the corpus the report was produced from.
	CorpusHash string `json:"corpus_hash"`

	Stats RunStats `json:"stats"`

	CollisionGroups  []cursor.CollisionGroup  `json:"collision_groups"`
	EmergingConcepts []cursor.EmergingConcept `json:"emerging_concepts"`
	Tensions         []tension.Tension        `json:"tensions"`
	Insights         []synthesis.Insight      `json:"insights"`
	RecordErrors     []cursor.RecordError     `json:"record_errors"`
}

// normalize replaces nil slices with empty ones so empty sections render
// as [] instead of null.
func (r *Report) normalize() {
	if r.CollisionGroups == nil {
		r.CollisionGroups = []cursor.CollisionGroup{}
	}
	if r.EmergingConcepts == nil {
		r.EmergingConcepts = []cursor.EmergingConcept{}
	}
	if r.Tensions == nil {
		r.Tensions = []tension.Tension{}
	}
	if r.Insights == nil {
		r.Insights = []synthesis.Insight{}
	}
	if r.RecordErrors == nil {
		r.RecordErrors = []cursor.RecordError{}
	}
}

// JSON renders the report as indented JSON with a trailing newline.
func (r *Report) JSON() ([]byte, error) {
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(body, '\n'), nil
}
