// Package pattern compiles dictionary names into case-insensitive matchers
// that also recognize no-space and abbreviated forms of multi-word names.
package pattern

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/observability"
)

// Kind distinguishes entity matchers from attribute matchers.
type Kind string

const (
	KindEntity    Kind = "entity"
	KindAttribute Kind = "attribute"
)

// ErrEmptyName is returned when a dictionary name has no words.
var ErrEmptyName = errors.New("empty rule name")

// abbreviations maps a lower-cased qualifier word to its marketing shorthand.
var abbreviations = map[string]string{
	"plus":  "+",
	"pro":   "P",
	"ultra": "U",
}

// Abbreviation returns the marketing shorthand of a qualifier word, if any.
func Abbreviation(word string) (string, bool) {
	a, ok := abbreviations[strings.ToLower(word)]
	return a, ok
}

const (
	// wordBoundary blocks a match that runs into a further ASCII letter or
	// digit, so "t80" does not match inside "t80s". CJK text carries no
	// spaces, so only ASCII alphanumerics count as a continuation.
	wordBoundary = `(?![A-Za-z0-9])`
	// abbrevBoundary stops a shorthand letter from matching the head of a
	// longer lower-case word ("P" must not match "Pad").
	abbrevBoundary = `(?!(?-i:[a-z]))`
)

// Options tune compilation.
type Options struct {
	// MatchTimeout bounds a single regex evaluation. Zero means no limit.
	MatchTimeout time.Duration
	// DisablePrefilter turns off the Aho-Corasick first-word scan.
	DisablePrefilter bool
}

// Matcher is one compiled dictionary entry.
type Matcher struct {
	Name  string
	Type  string // attribute type; empty for entities
	Kind  Kind
	Words []string
	// Order is the position of the matcher in its compiled list.
	Order int

	firstWord string
	re        *regexp2.Regexp
}

// Pattern returns the source of the compiled expression.
func (m *Matcher) Pattern() string {
	return m.re.String()
}

// RuneLen returns the length of the name in characters.
func (m *Matcher) RuneLen() int {
	return utf8.RuneCountInString(m.Name)
}

// Skipped describes a dictionary entry that failed to compile.
type Skipped struct {
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason"`
}

// SortNames orders names longest first, ties broken lexicographically, and
// drops exact duplicates. Downstream components depend on this order.
func SortNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(out[i]), utf8.RuneCountInString(out[j])
		if li != lj {
			return li > lj
		}
		return out[i] < out[j]
	})
	return out
}

// BuildPattern returns the regular expression source for a name.
//
// A single word compiles to the escaped literal followed by a word boundary.
// For a multi-word name every word after the first may appear with or
// without a leading space, or as its known shorthand, so "P20 Ultra Plus"
// also matches "P20UltraPlus" and "P20 U+".
func BuildPattern(name string) (string, []string, error) {
	words := strings.Fields(name)
	if len(words) == 0 {
		return "", nil, ErrEmptyName
	}

	var b strings.Builder
	b.WriteString(regexp2.Escape(words[0]))
	for _, w := range words[1:] {
		b.WriteString(`(?:\s?`)
		b.WriteString(regexp2.Escape(w))
		if abbr, ok := Abbreviation(w); ok {
			b.WriteString(`|\s?`)
			b.WriteString(regexp2.Escape(abbr))
			b.WriteString(abbrevBoundary)
		}
		b.WriteString(`)`)
	}
	b.WriteString(wordBoundary)
	return b.String(), words, nil
}

// CompileNames compiles names of one kind in longest-first order. Entries
// that fail to compile are logged and skipped; the rest still compile.
// types supplies attribute types and may be nil for entities.
func CompileNames(names []string, kind Kind, types map[string]string, opts Options, logger *observability.Logger) ([]*Matcher, []Skipped) {
	logger = observability.OrNop(logger)

	sorted := SortNames(names)
	matchers := make([]*Matcher, 0, len(sorted))
	var skipped []Skipped

	for _, name := range sorted {
		m, err := compileOne(name, kind, types[name], opts)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("name", name).
				Str("kind", string(kind)).
				Msg("Skipping dictionary entry that failed to compile")
			skipped = append(skipped, Skipped{Name: name, Kind: kind, Reason: err.Error()})
			continue
		}
		m.Order = len(matchers)
		matchers = append(matchers, m)
	}
	return matchers, skipped
}

func compileOne(name string, kind Kind, typ string, opts Options) (*Matcher, error) {
	src, words, err := BuildPattern(name)
	if err != nil {
		return nil, err
	}
	re, err := regexp2.Compile(src, regexp2.IgnoreCase)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	if opts.MatchTimeout > 0 {
		re.MatchTimeout = opts.MatchTimeout
	}
	return &Matcher{
		Name:      name,
		Type:      typ,
		Kind:      kind,
		Words:     words,
		firstWord: strings.ToLower(words[0]),
		re:        re,
	}, nil
}
