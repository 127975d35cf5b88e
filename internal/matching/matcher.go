// Package matching decides whether a document extraction agrees with a query
// extraction on entity and attributes.
package matching

import (
	"strings"
	"unicode"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/extraction"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/pattern"
)

// Reason classifies a verdict.
type Reason string

const (
	ReasonNone                      Reason = "none"
	ReasonNoConstraint              Reason = "no_constraint"
	ReasonComparisonEntityNotListed Reason = "comparison_entity_not_listed"
	ReasonEntityMismatch            Reason = "entity_mismatch"
	ReasonAttributesMissing         Reason = "attributes_missing"
)

// Verdict is the outcome of comparing a query against a document.
type Verdict struct {
	Matched bool   `json:"matched"`
	Reason  Reason `json:"reason"`
	// QueryEntity and DocumentEntity are the base entities compared.
	QueryEntity    string `json:"queryEntity,omitempty"`
	DocumentEntity string `json:"documentEntity,omitempty"`
	// MissingAttributes lists query attributes with no counterpart in the
	// document, in query order.
	MissingAttributes []string `json:"missingAttributes,omitempty"`
}

// Matches reports whether doc satisfies query.
func Matches(query, doc extraction.EntityExtraction) bool {
	return Match(query, doc).Matched
}

// Match compares two extractions. A side without a base entity imposes no
// constraint. In comparison mode the document entity must be one of the
// compared entities and attributes are ignored. Otherwise the entities must
// agree, directly or as an abbreviation in either direction, and every query
// attribute must be present in the document.
func Match(query, doc extraction.EntityExtraction) Verdict {
	v := Verdict{QueryEntity: query.BaseEntity, DocumentEntity: doc.BaseEntity}
	if !query.HasEntity() || !doc.HasEntity() {
		v.Matched, v.Reason = true, ReasonNoConstraint
		return v
	}

	if query.IsComparison && len(query.AllEntities) > 0 {
		for _, e := range query.AllEntities {
			if strings.EqualFold(e, doc.BaseEntity) {
				v.Matched, v.Reason = true, ReasonNone
				return v
			}
		}
		v.Reason = ReasonComparisonEntityNotListed
		return v
	}

	if !entitiesAgree(query.BaseEntity, doc.BaseEntity) {
		v.Reason = ReasonEntityMismatch
		return v
	}

	v.MissingAttributes = MissingAttributes(query.Attributes, doc.Attributes)
	if len(v.MissingAttributes) > 0 {
		v.Reason = ReasonAttributesMissing
		return v
	}
	v.Matched, v.Reason = true, ReasonNone
	return v
}

func entitiesAgree(a, b string) bool {
	return strings.EqualFold(a, b) || IsAbbreviationMatch(a, b) || IsAbbreviationMatch(b, a)
}

// MissingAttributes returns the query attributes that have no corresponding
// document attribute. Attributes correspond when they are equal ignoring case
// or when both start with the same run of digits ("75寸" and "75").
func MissingAttributes(query, doc []string) []string {
	var missing []string
	for _, q := range query {
		if !hasCounterpart(q, doc) {
			missing = append(missing, q)
		}
	}
	return missing
}

func hasCounterpart(attr string, doc []string) bool {
	digits := leadingDigits(attr)
	for _, d := range doc {
		if strings.EqualFold(attr, d) {
			return true
		}
		if digits != "" && digits == leadingDigits(d) {
			return true
		}
	}
	return false
}

func leadingDigits(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

// IsAbbreviationMatch reports whether abbrev is a contracted form of full.
// Both are compared ignoring case and spaces, and abbrev must be strictly
// shorter. For a single-word full name abbrev must be a prefix that leaves no
// further letter or digit, so "t80" does not abbreviate "t80s". For a
// multi-word name abbrev must start with the first word and the rest must be
// the remaining words run together, their initials, a prefix of their
// initials, or a word-by-word mix of full words, initials and known
// shorthands ("p20up" and "p20u+" both abbreviate "P20 Ultra Plus").
func IsAbbreviationMatch(abbrev, full string) bool {
	a := []rune(squash(abbrev))
	f := []rune(squash(full))
	if len(a) == 0 || len(a) >= len(f) {
		return false
	}

	words := strings.Fields(strings.ToLower(full))
	if len(words) == 1 {
		if !hasRunePrefix(f, a) {
			return false
		}
		for _, r := range f[len(a):] {
			if isASCIIAlnum(r) {
				return false
			}
		}
		return true
	}

	first := []rune(words[0])
	if !hasRunePrefix(a, first) {
		return false
	}
	tail := a[len(first):]
	if len(tail) == 0 {
		return false
	}

	rest := make([][]rune, len(words)-1)
	for i, w := range words[1:] {
		rest[i] = []rune(w)
	}
	return string(tail) == strings.Join(words[1:], "") ||
		matchesInitials(tail, rest) ||
		matchesWordByWord(tail, rest)
}

// matchesInitials accepts a tail made of the first letters of a leading run
// of words, one letter per word.
func matchesInitials(tail []rune, words [][]rune) bool {
	if len(tail) > len(words) {
		return false
	}
	for i, r := range tail {
		if r != words[i][0] {
			return false
		}
	}
	return true
}

// matchesWordByWord consumes the words in order, each given in full, as its
// first letter, or as its known shorthand, and requires the whole tail to be
// consumed.
func matchesWordByWord(tail []rune, words [][]rune) bool {
	pos := 0
	for _, w := range words {
		rem := tail[pos:]
		switch {
		case hasRunePrefix(rem, w):
			pos += len(w)
		case len(rem) > 0 && rem[0] == w[0]:
			pos++
		default:
			abbr, ok := pattern.Abbreviation(string(w))
			short := []rune(strings.ToLower(abbr))
			if !ok || !hasRunePrefix(rem, short) {
				return false
			}
			pos += len(short)
		}
	}
	return pos == len(tail)
}

func hasRunePrefix(s, prefix []rune) bool {
	if len(prefix) > len(s) {
		return false
	}
	for i, r := range prefix {
		if s[i] != r {
			return false
		}
	}
	return true
}

func isASCIIAlnum(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

func squash(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}
