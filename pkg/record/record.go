// Package record defines the structured document records Muninn consumes.
//
// Records are produced upstream by an extraction collaborator (one record
// per source document) and are immutable once created. Muninn never sees
// raw document text - only these structured summaries.
//
// The wire format is a self-describing NDJSON stream: one JSON object per
// line. Malformed lines are skipped, never fatal - a bad document must
// not abort a whole synthesis run.
//
// Example record line:
//
//	{"id":"doc-1","title":"Ops Handbook","order_key":1,
//	 "concepts":[{"name":"automation","importance":0.9}],
//	 "relationships":[{"subject":"automation","predicate":"requires",
//	                   "object":"human oversight","confidence":0.8}],
//	 "insights":["Automation improves reliability"],
//	 "patterns":[{"name":"runbook","description":"incident response"}]}
package record

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
)

// ID is a strongly-typed unique identifier for a source document record.
type ID string

// Concept is a named idea extracted from a document, with an importance
// weight in [0, 1].
type Concept struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Importance  float64 `json:"importance"`
}

// Relationship is a subject-predicate-object assertion extracted from a
// document, with an extraction confidence in [0, 1].
type Relationship struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
}

// Pattern is a named practice or approach a document prescribes.
type Pattern struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Record is the structured summary of one source document.
//
// Fields:
//   - ID: stable unique identifier assigned upstream
//   - Title: human-readable document title
//   - OrderKey: monotonic position in the corpus (ingestion sequence or
//     timestamp), attached at extraction time - never derived from
//     arrival order
//   - Concepts / Relationships / Insights / Patterns: extracted content
//
// Records are owned by the stream cursor for the duration of a synthesis
// run and are never mutated.
type Record struct {
	ID            ID             `json:"id"`
	Title         string         `json:"title,omitempty"`
	OrderKey      int64          `json:"order_key"`
	Concepts      []Concept      `json:"concepts,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
	Insights      []string       `json:"insights,omitempty"`
	Patterns      []Pattern      `json:"patterns,omitempty"`
}

// maxLineBytes bounds a single NDJSON line. Records are summaries, not
// documents; 4MB is generous.
const maxLineBytes = 4 * 1024 * 1024

// ReadCorpus decodes an NDJSON record stream.
//
// Blank lines are ignored. Lines that fail to parse, or parse to a
// record without an id, are skipped and counted - the skip count feeds
// the report's warning counter. Read errors on the underlying reader
// terminate the scan but whatever parsed so far is still returned.
//
// Example:
//
//	f, _ := os.Open("corpus.ndjson")
//	defer f.Close()
//	records, skipped := record.ReadCorpus(f)
//	fmt.Printf("%d records, %d skipped\n", len(records), skipped)
func ReadCorpus(r io.Reader) (records []*Record, skipped int) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		if rec.ID == "" {
			skipped++
			continue
		}
		records = append(records, &rec)
	}

	return records, skipped
}
