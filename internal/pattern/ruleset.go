package pattern

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/observability"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/rules"
)

// Span is a half-open range of character (rune) offsets into a text.
type Span struct {
	Start int
	End   int
}

// Len returns the span length in characters.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether two spans share at least one character.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Occurrence is one regex match of a matcher in a text.
type Occurrence struct {
	Span Span
	Text string
}

// FindFirst returns the left-most match of m in text. A regex timeout or
// error is treated as no match.
func (m *Matcher) FindFirst(text []rune) (Occurrence, bool) {
	match, err := m.re.FindRunesMatch(text)
	if err != nil || match == nil {
		return Occurrence{}, false
	}
	return toOccurrence(match), true
}

// FindAll returns every non-overlapping match of m in text, left to right.
func (m *Matcher) FindAll(text []rune) []Occurrence {
	var out []Occurrence
	match, err := m.re.FindRunesMatch(text)
	for err == nil && match != nil {
		out = append(out, toOccurrence(match))
		match, err = m.re.FindNextMatch(match)
	}
	return out
}

func toOccurrence(match *regexp2.Match) Occurrence {
	return Occurrence{
		Span: Span{Start: match.Index, End: match.Index + match.Length},
		Text: match.String(),
	}
}

// RuleSet is the compiled, read-only form of a dictionary. It is safe for
// unlimited concurrent use.
type RuleSet struct {
	// Entities and Attributes are ordered longest name first. Callers must not
	// reorder them.
	Entities   []*Matcher
	Attributes []*Matcher

	attrByName map[string]*Matcher
	attrTypes  map[string]bool
	prefilter  *Prefilter
	skipped    []Skipped
	version    string
	compiledAt time.Time
	elapsed    time.Duration
}

// Stats summarizes a compiled rule set.
type Stats struct {
	Version    string        `json:"version"`
	Entities   int           `json:"entities"`
	Attributes int           `json:"attributes"`
	Skipped    []Skipped     `json:"skipped,omitempty"`
	Prefilter  bool          `json:"prefilter"`
	CompiledAt time.Time     `json:"compiledAt"`
	Duration   time.Duration `json:"duration"`
}

// Compile turns a dictionary into a rule set. It never fails; entries that
// cannot be compiled are skipped and reported in Stats.
func Compile(dict *rules.Dictionary, opts Options, logger *observability.Logger) *RuleSet {
	logger = observability.OrNop(logger)
	if dict == nil {
		dict = rules.Empty()
	}
	start := time.Now()

	attrs := dict.Attributes()
	attrNames := make([]string, 0, len(attrs))
	for name := range attrs {
		attrNames = append(attrNames, name)
	}

	entities, skippedE := CompileNames(dict.Entities(), KindEntity, nil, opts, logger)
	attributes, skippedA := CompileNames(attrNames, KindAttribute, attrs, opts, logger)

	rs := &RuleSet{
		Entities:   entities,
		Attributes: attributes,
		attrByName: make(map[string]*Matcher, len(attributes)),
		attrTypes:  make(map[string]bool),
		skipped:    append(skippedE, skippedA...),
		version:    dict.Version(),
		compiledAt: start,
	}
	for _, m := range attributes {
		key := strings.ToLower(m.Name)
		if _, exists := rs.attrByName[key]; !exists {
			rs.attrByName[key] = m
		}
		if m.Type != "" {
			rs.attrTypes[m.Type] = true
		}
	}
	if !opts.DisablePrefilter {
		rs.prefilter = NewPrefilter(entities, attributes)
	}
	rs.elapsed = time.Since(start)

	logger.Info().
		Str("version", rs.version).
		Int("entities", len(entities)).
		Int("attributes", len(attributes)).
		Int("skipped", len(rs.skipped)).
		Dur("duration", rs.elapsed).
		Msg("Compiled rule set")
	return rs
}

// Version returns the version of the dictionary the set was compiled from.
func (rs *RuleSet) Version() string { return rs.version }

// IsEmpty reports whether the set has no matchers at all.
func (rs *RuleSet) IsEmpty() bool {
	return len(rs.Entities) == 0 && len(rs.Attributes) == 0
}

// AttributeByName looks up an attribute matcher case-insensitively.
func (rs *RuleSet) AttributeByName(name string) (*Matcher, bool) {
	m, ok := rs.attrByName[strings.ToLower(name)]
	return m, ok
}

// HasAttributeType reports whether any attribute of the given type exists.
func (rs *RuleSet) HasAttributeType(t string) bool {
	return rs.attrTypes[t]
}

// Candidates returns the entity and attribute matchers worth running against
// text, in compiled order. Without a prefilter every matcher is returned.
func (rs *RuleSet) Candidates(text string) (entities, attributes []*Matcher) {
	if rs.prefilter == nil {
		return rs.Entities, rs.Attributes
	}
	return rs.prefilter.Filter(text, rs.Entities, rs.Attributes)
}

// Stats reports counts and skipped entries.
func (rs *RuleSet) Stats() Stats {
	return Stats{
		Version:    rs.version,
		Entities:   len(rs.Entities),
		Attributes: len(rs.Attributes),
		Skipped:    append([]Skipped(nil), rs.skipped...),
		Prefilter:  rs.prefilter != nil,
		CompiledAt: rs.compiledAt,
		Duration:   rs.elapsed,
	}
}
