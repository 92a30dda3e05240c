// Package tension detects contradictions between records' assertions.
//
// A tension is a pair of records asserting incompatible things about the
// same subject. Detection is table-driven and lexical - no inference, no
// embeddings - so every reported tension is explainable by pointing at
// the two assertions and the table entry that opposed them. Muninn
// surfaces tensions; it never tries to resolve them.
//
// Three strategies run over a record set:
//   - Relationship contradiction: same subject and object fingerprints,
//     predicates drawn from the antonym table ("requires"/"eliminates").
//   - Insight contradiction: free-text statements about the same subject
//     fingerprint with opposed lexical polarity.
//   - Pattern conflict: two named patterns attached to the same topic
//     fingerprint but prescribing different approaches.
//
// Example:
//
//	det, err := tension.NewDetector(tension.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	tensions := det.FindTensions(records)
//	for _, tn := range tensions {
//		fmt.Printf("%s: %q vs %q (%v)\n", tn.Type, tn.Assertion, tn.Contradiction, tn.Evidence)
//	}
package tension

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/orneryd/muninn/pkg/fingerprint"
	"github.com/orneryd/muninn/pkg/record"
)

// Type classifies a tension.
type Type string

const (
	// RelationshipContradiction marks antonymous predicates over the
	// same subject/object pair.
	RelationshipContradiction Type = "relationship_contradiction"

	// InsightContradiction marks free-text statements with opposed
	// stance on the same subject.
	InsightContradiction Type = "insight_contradiction"

	// PatternConflict marks different prescribed approaches for the
	// same topic.
	PatternConflict Type = "pattern_conflict"
)

// Tension is a detected contradiction. Immutable after creation; the
// evidence ids always reference at least two distinct records.
type Tension struct {
	Type          Type        `json:"type"`
	Subject       string      `json:"subject"`
	Assertion     string      `json:"assertion"`
	Contradiction string      `json:"contradiction"`
	Object        string      `json:"object,omitempty"`
	Evidence      []record.ID `json:"evidence"`

	// Dedup identity. Exported so reports stay self-describing.
	SubjectFP fingerprint.FP `json:"subject_fp"`
	ObjectFP  fingerprint.FP `json:"object_fp,omitempty"`
}

// ScanMode selects how much of the corpus a tension scan covers.
const (
	// ScanGlobal compares across the whole corpus: full recall,
	// O(n^2) record-pair cost within each subject group.
	ScanGlobal = "global"
	// ScanWindowed compares only within window snapshots: linear cost,
	// reduced recall.
	ScanWindowed = "windowed"
	// ScanAuto picks global below the size threshold, windowed above.
	ScanAuto = "auto"
)

// Config holds tension detection tables and scan tuning.
//
// The antonym and polarity tables ship with defaults but are
// configuration, not hard-coded behavior: thresholds and tables can be
// overridden per run.
type Config struct {
	// ScanMode is global, windowed or auto.
	ScanMode string

	// ScanSizeThreshold is the corpus size above which auto mode
	// switches from global to windowed scanning.
	ScanSizeThreshold int

	// Workers bounds the sharded global scan. 0 means GOMAXPROCS.
	Workers int

	// AntonymPairs oppose relationship predicates. Entries are matched
	// after normalization and light stemming, so "requires" opposes
	// "eliminates" via the pair [require, eliminate].
	AntonymPairs [][2]string

	// NegationMarkers flip the stance of an insight statement.
	NegationMarkers []string

	// PositiveTerms and NegativeTerms carry the stance of an insight
	// statement. A statement with no term from either list has no
	// stance and is never part of an insight contradiction.
	PositiveTerms []string
	NegativeTerms []string
}

// DefaultConfig returns the standard detection tables and auto scan mode
// with a 500-record global-scan threshold.
func DefaultConfig() *Config {
	return &Config{
		ScanMode:          ScanAuto,
		ScanSizeThreshold: 500,
		AntonymPairs: [][2]string{
			{"enables", "prevents"},
			{"requires", "eliminates"},
			{"increases", "decreases"},
			{"improves", "degrades"},
			{"accelerates", "slows"},
			{"supports", "undermines"},
			{"creates", "destroys"},
			{"simplifies", "complicates"},
			{"centralizes", "decentralizes"},
		},
		NegationMarkers: []string{
			"not", "no", "never", "cannot", "without", "lacks", "lack of", "fails to",
		},
		PositiveTerms: []string{
			"improves", "improve", "increases", "increase", "enables", "enable",
			"enhances", "helps", "benefits", "accelerates", "strengthens",
			"essential", "effective", "reliable", "valuable",
		},
		NegativeTerms: []string{
			"harms", "harm", "decreases", "decrease", "prevents", "prevent",
			"degrades", "hurts", "hinders", "undermines", "weakens",
			"unnecessary", "ineffective", "unreliable", "harmful",
		},
	}
}

// Validate rejects out-of-range configuration with a descriptive error.
func (c *Config) Validate() error {
	switch c.ScanMode {
	case ScanGlobal, ScanWindowed, ScanAuto:
	default:
		return fmt.Errorf("tension: unknown scan mode %q (want global, windowed or auto)", c.ScanMode)
	}
	if c.ScanSizeThreshold < 1 {
		return fmt.Errorf("tension: scan size threshold must be >= 1, got %d", c.ScanSizeThreshold)
	}
	if c.Workers < 0 {
		return fmt.Errorf("tension: workers must be >= 0, got %d", c.Workers)
	}
	if len(c.AntonymPairs) == 0 {
		return fmt.Errorf("tension: antonym table must not be empty")
	}
	return nil
}

// Detector finds tensions in record sets. Construction compiles the
// configured tables into canonical lookup form; detection itself is a
// pure function over its input and may run concurrently with other
// readers of accumulated state.
type Detector struct {
	cfg      Config
	antonyms map[string]map[string]struct{}
	positive map[string]struct{}
	negative map[string]struct{}
}

// NewDetector compiles the configuration into a detector.
func NewDetector(cfg *Config) (*Detector, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Detector{
		cfg:      *cfg,
		antonyms: make(map[string]map[string]struct{}),
		positive: make(map[string]struct{}),
		negative: make(map[string]struct{}),
	}
	for _, pair := range cfg.AntonymPairs {
		a, b := canonPredicate(pair[0]), canonPredicate(pair[1])
		if a == "" || b == "" {
			return nil, fmt.Errorf("tension: antonym pair %q/%q normalizes to empty", pair[0], pair[1])
		}
		d.addAntonym(a, b)
		d.addAntonym(b, a)
	}
	for _, term := range cfg.PositiveTerms {
		d.positive[canonPredicate(term)] = struct{}{}
	}
	for _, term := range cfg.NegativeTerms {
		d.negative[canonPredicate(term)] = struct{}{}
	}
	return d, nil
}

func (d *Detector) addAntonym(a, b string) {
	set := d.antonyms[a]
	if set == nil {
		set = make(map[string]struct{})
		d.antonyms[a] = set
	}
	set[b] = struct{}{}
}

// ResolveMode returns the scan mode effective for a corpus of the given
// size: auto picks global up to the threshold, windowed beyond it.
func (d *Detector) ResolveMode(corpusSize int) string {
	if d.cfg.ScanMode != ScanAuto {
		return d.cfg.ScanMode
	}
	if corpusSize <= d.cfg.ScanSizeThreshold {
		return ScanGlobal
	}
	return ScanWindowed
}

// FindTensions scans one record set (the whole corpus for a global scan)
// and returns deduplicated tensions in deterministic order.
//
// Dedup policy: one tension per (type, subject fingerprint, object
// fingerprint); later matching pairs extend the evidence list instead of
// producing a new tension.
func (d *Detector) FindTensions(records []*record.Record) []Tension {
	return d.collect(d.scan(records))
}

// FindTensionsInWindows scans each window snapshot independently and
// merges the findings under the same dedup policy. This is the linear-
// cost mode for corpora above the global-scan threshold: tensions
// between records that never share a window are missed by design.
func (d *Detector) FindTensionsInWindows(windows [][]*record.Record) []Tension {
	groups := make([]subjectGroup, 0)
	for _, win := range windows {
		groups = append(groups, d.groupRecords(win)...)
	}
	return d.collect(d.scanGroups(groups))
}

// =============================================================================
// Grouping
// =============================================================================

// assertion is one comparable claim extracted from a record.
type assertion struct {
	recordID record.ID
	// canon is the comparison form: canonical predicate for
	// relationships, stance sign for insights, pattern-name fingerprint
	// for patterns.
	canon string
	// display is the human-readable claim text.
	display string
	stance  int
}

// subjectGroup collects assertions sharing one dedup identity scope.
type subjectGroup struct {
	typ       Type
	subjectFP fingerprint.FP
	objectFP  fingerprint.FP
	subject   string
	object    string
	claims    []assertion
}

// groupRecords extracts the comparable claims of a record set, grouped
// by strategy-specific subject identity.
func (d *Detector) groupRecords(records []*record.Record) []subjectGroup {
	type groupKey struct {
		typ  Type
		subj fingerprint.FP
		obj  fingerprint.FP
	}
	groups := make(map[groupKey]*subjectGroup)

	add := func(key groupKey, subject, object string, claim assertion) {
		g := groups[key]
		if g == nil {
			g = &subjectGroup{
				typ:       key.typ,
				subjectFP: key.subj,
				objectFP:  key.obj,
				subject:   subject,
				object:    object,
			}
			groups[key] = g
		}
		g.claims = append(g.claims, claim)
	}

	for _, rec := range records {
		for _, rel := range rec.Relationships {
			subj := fingerprint.Fingerprint(rel.Subject)
			obj := fingerprint.Fingerprint(rel.Object)
			if subj == fingerprint.Sentinel || obj == fingerprint.Sentinel {
				continue
			}
			canon := canonPredicate(rel.Predicate)
			if canon == "" {
				continue
			}
			add(groupKey{RelationshipContradiction, subj, obj}, rel.Subject, rel.Object, assertion{
				recordID: rec.ID,
				canon:    canon,
				display:  rel.Predicate,
			})
		}

		for _, stmt := range rec.Insights {
			subj := fingerprint.FirstSubjectToken(stmt)
			if subj == fingerprint.Sentinel {
				continue
			}
			stance := d.stance(stmt)
			if stance == 0 {
				continue
			}
			add(groupKey{InsightContradiction, subj, ""}, firstCoreToken(stmt), "", assertion{
				recordID: rec.ID,
				canon:    fmt.Sprintf("%+d", stance),
				display:  stmt,
				stance:   stance,
			})
		}

		for _, pat := range rec.Patterns {
			topic := fingerprint.Fingerprint(pat.Description)
			name := fingerprint.Fingerprint(pat.Name)
			if topic == fingerprint.Sentinel || name == fingerprint.Sentinel {
				continue
			}
			add(groupKey{PatternConflict, topic, ""}, pat.Description, "", assertion{
				recordID: rec.ID,
				canon:    string(name),
				display:  pat.Name,
			})
		}
	}

	out := make([]subjectGroup, 0, len(groups))
	for _, g := range groups {
		sort.Slice(g.claims, func(i, j int) bool {
			if g.claims[i].recordID != g.claims[j].recordID {
				return g.claims[i].recordID < g.claims[j].recordID
			}
			return g.claims[i].display < g.claims[j].display
		})
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].typ != out[j].typ {
			return out[i].typ < out[j].typ
		}
		if out[i].subjectFP != out[j].subjectFP {
			return out[i].subjectFP < out[j].subjectFP
		}
		return out[i].objectFP < out[j].objectFP
	})
	return out
}

// =============================================================================
// Scanning
// =============================================================================

func (d *Detector) scan(records []*record.Record) []Tension {
	return d.scanGroups(d.groupRecords(records))
}

// scanGroups runs the pairwise comparison inside each subject group,
// sharded across workers. Group comparison is pure, so the only
// synchronization needed is joining the workers; results are re-sorted
// afterwards to make output independent of scheduling.
func (d *Detector) scanGroups(groups []subjectGroup) []Tension {
	workers := d.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(groups) {
		workers = len(groups)
	}
	if workers <= 1 {
		var findings []Tension
		for _, g := range groups {
			findings = append(findings, d.compareGroup(g)...)
		}
		return findings
	}

	shards := make([][]Tension, workers)
	var eg errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		eg.Go(func() error {
			var local []Tension
			for i := w; i < len(groups); i += workers {
				local = append(local, d.compareGroup(groups[i])...)
			}
			shards[w] = local
			return nil
		})
	}
	// Workers never return errors; Wait is just the read barrier.
	_ = eg.Wait()

	var findings []Tension
	for _, shard := range shards {
		findings = append(findings, shard...)
	}
	return findings
}

// compareGroup emits one raw finding per contradicting claim pair
// within a group. Claims are pre-sorted, so findings come out in
// deterministic order.
func (d *Detector) compareGroup(g subjectGroup) []Tension {
	var findings []Tension
	for i := 0; i < len(g.claims); i++ {
		for j := i + 1; j < len(g.claims); j++ {
			a, b := g.claims[i], g.claims[j]
			if a.recordID == b.recordID {
				continue
			}
			if !d.opposed(g.typ, a, b) {
				continue
			}
			findings = append(findings, Tension{
				Type:          g.typ,
				Subject:       g.subject,
				Assertion:     a.display,
				Contradiction: b.display,
				Object:        g.object,
				Evidence:      []record.ID{a.recordID, b.recordID},
				SubjectFP:     g.subjectFP,
				ObjectFP:      g.objectFP,
			})
		}
	}
	return findings
}

func (d *Detector) opposed(typ Type, a, b assertion) bool {
	switch typ {
	case RelationshipContradiction:
		set, ok := d.antonyms[a.canon]
		if !ok {
			return false
		}
		_, opposed := set[b.canon]
		return opposed
	case InsightContradiction:
		return a.stance*b.stance < 0
	case PatternConflict:
		return a.canon != b.canon
	}
	return false
}

// =============================================================================
// Dedup collection
// =============================================================================

type dedupKey struct {
	typ  Type
	subj fingerprint.FP
	obj  fingerprint.FP
}

// collect applies the dedup policy: findings are sorted, the first per
// key becomes the tension, later ones contribute evidence only.
func (d *Detector) collect(findings []Tension) []Tension {
	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.SubjectFP != b.SubjectFP {
			return a.SubjectFP < b.SubjectFP
		}
		if a.ObjectFP != b.ObjectFP {
			return a.ObjectFP < b.ObjectFP
		}
		if a.Evidence[0] != b.Evidence[0] {
			return a.Evidence[0] < b.Evidence[0]
		}
		return a.Evidence[1] < b.Evidence[1]
	})

	byKey := make(map[dedupKey]*Tension)
	var order []dedupKey
	for _, f := range findings {
		key := dedupKey{f.Type, f.SubjectFP, f.ObjectFP}
		if existing, ok := byKey[key]; ok {
			existing.Evidence = mergeEvidence(existing.Evidence, f.Evidence)
			continue
		}
		f := f
		byKey[key] = &f
		order = append(order, key)
	}

	out := make([]Tension, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out
}

func mergeEvidence(existing, extra []record.ID) []record.ID {
	seen := make(map[record.ID]struct{}, len(existing)+len(extra))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	for _, id := range extra {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		existing = append(existing, id)
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i] < existing[j] })
	return existing
}

// =============================================================================
// Lexical helpers
// =============================================================================

// canonPredicate maps a predicate phrase to its canonical identity so
// that table entries match inflected forms ("requires" -> "require").
// Shares the form the cursor's predicate index is keyed by.
func canonPredicate(p string) string {
	return fingerprint.NormalizeStem(p)
}

func stemToken(tok string) string {
	if len(tok) >= 4 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") {
		return tok[:len(tok)-1]
	}
	return tok
}

// stance scores a statement: +1 positive, -1 negative, 0 no stance.
// Negation markers flip the sign.
func (d *Detector) stance(stmt string) int {
	normalized := fingerprint.Normalize(stmt)
	tokens := strings.Fields(normalized)

	sentiment := 0
	for _, tok := range tokens {
		canon := stemToken(tok)
		if _, ok := d.positive[canon]; ok {
			sentiment = 1
			break
		}
		if _, ok := d.negative[canon]; ok {
			sentiment = -1
			break
		}
	}
	if sentiment == 0 {
		return 0
	}

	for _, marker := range d.cfg.NegationMarkers {
		m := fingerprint.Normalize(marker)
		if m == "" {
			continue
		}
		if strings.Contains(" "+normalized+" ", " "+m+" ") {
			return -sentiment
		}
	}
	return sentiment
}

func firstCoreToken(stmt string) string {
	tokens := fingerprint.CoreTokens(stmt)
	if len(tokens) == 0 {
		return ""
	}
	// CoreTokens sorts; re-derive in statement order for display.
	fields := strings.Fields(fingerprint.Normalize(stmt))
	inCore := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		inCore[t] = struct{}{}
	}
	for _, f := range fields {
		if _, ok := inCore[stemToken(f)]; ok {
			return stemToken(f)
		}
	}
	return tokens[0]
}
