// Package fingerprint provides lexical concept fingerprinting for Muninn.
//
// A fingerprint is a short canonical identifier derived from a text label.
// Two labels with equal fingerprints are treated as the same concept for
// aggregation - this is Muninn's entity-resolution mechanism, a cheap and
// fully explainable replacement for semantic embeddings.
//
// The fuzziness lives in the feature extraction, not the hash: labels are
// normalized, reduced to a stemmed core-token signature, and only then
// hashed. "AI Agent", "AI Agents" and "agent" all reduce to the signature
// "agent" (short tokens and stopwords dropped, plurals stemmed) and so
// share one fingerprint by design.
//
// Example:
//
//	fp := fingerprint.Fingerprint("AI Agents")
//	fp2 := fingerprint.Fingerprint("agent")
//	// fp == fp2 - same concept for grouping purposes
//
// Determinism:
//
//	Fingerprint is a pure function of the normalized input. The same
//	normalized text always yields the same fingerprint, across runs and
//	across machines. Unrelated labels may (rarely) collide; collisions
//	are surfaced as collision groups, never treated as errors.
package fingerprint

import (
	"encoding/hex"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"
)

// FP is a strongly-typed concept fingerprint (12 hex characters).
//
// Using a custom type keeps fingerprints from being confused with record
// ids or raw labels in map keys and function signatures.
type FP string

// Sentinel is the reserved fingerprint for labels too short to carry a
// usable lexical signature (empty or single-character after
// normalization). Sentinel fingerprints are excluded from collision
// groups and statistics - their false-collision rate would drown the
// signal.
const Sentinel FP = "000000000000"

// hexLen is the truncated fingerprint width. Long enough that accidental
// collisions between unrelated concepts are rare, short enough to keep
// reports readable.
const hexLen = 12

// stopwords removed during core-token extraction. The list is fixed:
// making it configurable would change fingerprints between runs of the
// same corpus and break report determinism.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "and": {}, "or": {},
	"to": {}, "in": {}, "on": {}, "for": {}, "with": {}, "is": {},
	"are": {}, "be": {}, "as": {}, "at": {}, "by": {}, "from": {},
	"that": {}, "this": {}, "it": {}, "its": {},
}

// Fingerprint maps a text label to its canonical fingerprint.
//
// Pipeline:
//  1. Normalize: lowercase, fold diacritics, strip punctuation,
//     collapse whitespace.
//  2. Extract features: stemmed core tokens (stopwords and very short
//     tokens removed), character trigrams of the token signature, and a
//     coarse length bucket.
//  3. Hash a canonical serialization of the features with BLAKE2b-256,
//     truncated to 12 hex characters.
//
// Example:
//
//	fingerprint.Fingerprint("Automation")       => "3f2a9c81d04e" (stable)
//	fingerprint.Fingerprint("  automation!  ")  => same fingerprint
//	fingerprint.Fingerprint("")                 => fingerprint.Sentinel
func Fingerprint(text string) FP {
	normalized := Normalize(text)
	if len([]rune(normalized)) <= 1 {
		return Sentinel
	}

	tokens := CoreTokens(text)
	signature := strings.Join(tokens, " ")

	var b strings.Builder
	b.WriteString("t:")
	b.WriteString(signature)
	b.WriteString("|g:")
	b.WriteString(strings.Join(trigrams(signature), ","))
	b.WriteString("|l:")
	b.WriteString(lengthBucket(signature))

	sum := blake2b.Sum256([]byte(b.String()))
	return FP(hex.EncodeToString(sum[:])[:hexLen])
}

// Normalize lowercases, folds diacritics, strips punctuation and
// collapses whitespace.
//
// Example:
//
//	fingerprint.Normalize("  Café-Style  APIs! ") => "cafe style apis"
func Normalize(text string) string {
	decomposed := norm.NFD.String(strings.ToLower(text))

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			// Combining mark from NFD decomposition - drop it.
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeStem returns the normalized text with light plural stemming
// applied to each token. This is the canonical form for predicate
// identity: "requires" and "require" map to the same key wherever
// predicates are indexed or compared.
//
// Example:
//
//	fingerprint.NormalizeStem("Requires") => "require"
func NormalizeStem(text string) string {
	fields := strings.Fields(Normalize(text))
	for i, tok := range fields {
		fields[i] = stem(tok)
	}
	return strings.Join(fields, " ")
}

// CoreTokens returns the sorted, de-duplicated token signature of a
// label: normalized tokens with stopwords removed, plurals stemmed, and
// tokens shorter than three characters dropped.
//
// If stripping leaves nothing (e.g. the label "AI"), the unstripped
// normalized tokens are kept so short labels still fingerprint.
//
// Example:
//
//	fingerprint.CoreTokens("The AI Agents") => ["agent"]
func CoreTokens(text string) []string {
	fields := strings.Fields(Normalize(text))

	seen := make(map[string]struct{}, len(fields))
	core := make([]string, 0, len(fields))
	for _, tok := range fields {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		tok = stem(tok)
		if len(tok) < 3 {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		core = append(core, tok)
	}

	// Fallback for labels made entirely of short tokens.
	if len(core) == 0 {
		for _, tok := range fields {
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			core = append(core, tok)
		}
	}

	sort.Strings(core)
	return core
}

// FirstSubjectToken extracts a subject fingerprint from a free-text
// statement: the fingerprint of the first core token in statement order.
// Used by the tension detector to group insight statements that talk
// about the same thing.
//
// Returns Sentinel when the statement has no usable token.
func FirstSubjectToken(statement string) FP {
	for _, tok := range strings.Fields(Normalize(statement)) {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		tok = stem(tok)
		if len(tok) < 3 {
			continue
		}
		return Fingerprint(tok)
	}
	return Sentinel
}

// stem applies light plural stemming: a trailing "s" is trimmed from
// tokens of four or more characters unless the token ends in "ss".
func stem(tok string) string {
	if len(tok) >= 4 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") {
		return tok[:len(tok)-1]
	}
	return tok
}

// trigrams returns the sorted unique character trigrams of s.
func trigrams(s string) []string {
	runes := []rune(s)
	if len(runes) < 3 {
		if len(runes) == 0 {
			return nil
		}
		return []string{string(runes)}
	}

	seen := make(map[string]struct{})
	grams := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		g := string(runes[i : i+3])
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		grams = append(grams, g)
	}
	sort.Strings(grams)
	return grams
}

// lengthBucket maps a signature to a coarse size class so that wildly
// different-length labels don't collide on shared trigrams alone.
func lengthBucket(s string) string {
	switch n := len([]rune(s)); {
	case n <= 12:
		return "short"
	case n <= 32:
		return "medium"
	default:
		return "long"
	}
}
