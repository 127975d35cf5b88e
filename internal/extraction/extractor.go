// Package extraction recognizes the base entity and its qualifying attributes
// in free text using a compiled rule set.
package extraction

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/pattern"
)

// EntityExtraction is the structured result of one extraction call.
type EntityExtraction struct {
	// BaseEntity is the detected base entity; empty when none was found.
	BaseEntity string `json:"baseEntity,omitempty"`
	// Attributes are deduplicated and ordered by position in the text, with
	// numerically inferred attributes appended last.
	Attributes []string `json:"attributes,omitempty"`
	// AllEntities is populated only in comparison mode, in text order.
	AllEntities  []string `json:"allEntities,omitempty"`
	IsComparison bool     `json:"isComparison"`
}

// HasEntity reports whether a base entity was detected.
func (e EntityExtraction) HasEntity() bool {
	return e.BaseEntity != ""
}

// MatchCandidate is a scored entity match considered during single-entity
// disambiguation.
type MatchCandidate struct {
	Entity string
	Span   pattern.Span
	Score  int
	// Order is the compiled position of the entity matcher; lower wins ties.
	Order int
}

const exactMatchBonus = 1000

// comparisonKeywords mark a query that names several entities to compare.
var comparisonKeywords = []string{
	"和", "与", "区别", "对比", "比较", "vs", "versus", "还是", "或者", "哪个好",
}

// IsComparisonQuery reports whether text contains any comparison keyword,
// case-insensitively. It is a plain substring test with no tokenization.
func IsComparisonQuery(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range comparisonKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Extractor runs extraction against one compiled rule set. It holds no
// mutable state and may be shared by any number of goroutines.
type Extractor struct {
	rules *pattern.RuleSet
}

// NewExtractor creates an extractor over a rule set.
func NewExtractor(rs *pattern.RuleSet) *Extractor {
	return &Extractor{rules: rs}
}

// RuleSet returns the rule set the extractor was built with.
func (x *Extractor) RuleSet() *pattern.RuleSet {
	return x.rules
}

// Extract detects entities and attributes in text. With extractAll set the
// text is treated as a comparison query and every non-overlapping entity is
// collected; otherwise the single best entity is kept.
func (x *Extractor) Extract(text string, extractAll bool) EntityExtraction {
	result := EntityExtraction{IsComparison: extractAll}
	if text == "" || x.rules == nil || x.rules.IsEmpty() {
		return result
	}

	runes := []rune(text)
	entityMatchers, attributeMatchers := x.rules.Candidates(text)

	var baseSpan pattern.Span
	if extractAll {
		accepted := collectAllEntities(runes, entityMatchers)
		for _, c := range accepted {
			result.AllEntities = append(result.AllEntities, c.Entity)
		}
		if len(accepted) > 0 {
			result.BaseEntity = accepted[0].Entity
			baseSpan = accepted[0].Span
		}
	} else if best, ok := bestEntity(runes, entityMatchers); ok {
		result.BaseEntity = best.Entity
		baseSpan = best.Span
	}

	attrs, covered := collectAttributes(runes, attributeMatchers)
	if result.BaseEntity != "" {
		attrs = x.inferNumericAttributes(runes, baseSpan, covered, attrs)
	}
	result.Attributes = attrs
	return result
}

// collectAllEntities takes the first match of every entity matcher in
// compiled (longest first) order, keeps those that do not overlap an already
// accepted match, and returns them ordered by position in the text.
func collectAllEntities(runes []rune, matchers []*pattern.Matcher) []MatchCandidate {
	var accepted []MatchCandidate
	for _, m := range matchers {
		occ, ok := m.FindFirst(runes)
		if !ok || overlapsAny(occ.Span, accepted) {
			continue
		}
		accepted = append(accepted, MatchCandidate{Entity: m.Name, Span: occ.Span, Order: m.Order})
	}
	sort.SliceStable(accepted, func(i, j int) bool {
		if accepted[i].Span.Start != accepted[j].Span.Start {
			return accepted[i].Span.Start < accepted[j].Span.Start
		}
		return accepted[i].Order < accepted[j].Order
	})
	return accepted
}

// bestEntity scores the first match of every entity matcher and returns the
// winner. Candidates rank by score, then matched length, then compiled order,
// so equal candidates always resolve the same way.
func bestEntity(runes []rune, matchers []*pattern.Matcher) (MatchCandidate, bool) {
	candidates := make([]MatchCandidate, 0, len(matchers))
	for _, m := range matchers {
		occ, ok := m.FindFirst(runes)
		if !ok {
			continue
		}
		candidates = append(candidates, MatchCandidate{
			Entity: m.Name,
			Span:   occ.Span,
			Score:  scoreCandidate(occ, m.Name),
			Order:  m.Order,
		})
	}
	if len(candidates) == 0 {
		return MatchCandidate{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Span.Len() != b.Span.Len() {
			return a.Span.Len() > b.Span.Len()
		}
		return a.Order < b.Order
	})
	return candidates[0], true
}

// scoreCandidate rewards an exact (case and space insensitive) match and
// penalizes a matched length that differs from the entity name length.
func scoreCandidate(occ pattern.Occurrence, name string) int {
	matchedLen := occ.Span.Len()
	nameLen := utf8.RuneCountInString(name)

	score := matchedLen - abs(matchedLen-nameLen)
	if squash(occ.Text) == squash(name) {
		score += exactMatchBonus
	}
	return score
}

type attributeHit struct {
	span  pattern.Span
	name  string
	order int
}

// collectAttributes finds every occurrence of every attribute, resolves
// overlaps left to right preferring the longer match, and returns the
// accepted names plus the set of covered character positions.
func collectAttributes(runes []rune, matchers []*pattern.Matcher) ([]string, []bool) {
	covered := make([]bool, len(runes))

	var hits []attributeHit
	for _, m := range matchers {
		for _, occ := range m.FindAll(runes) {
			hits = append(hits, attributeHit{span: occ.Span, name: m.Name, order: m.Order})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.span.Start != b.span.Start {
			return a.span.Start < b.span.Start
		}
		if a.span.Len() != b.span.Len() {
			return a.span.Len() > b.span.Len()
		}
		return a.order < b.order
	})

	var names []string
	seen := make(map[string]bool)
	for _, h := range hits {
		if isCovered(covered, h.span) {
			continue
		}
		for i := h.span.Start; i < h.span.End; i++ {
			covered[i] = true
		}
		if !seen[h.name] {
			seen[h.name] = true
			names = append(names, h.name)
		}
	}
	return names, covered
}

func overlapsAny(span pattern.Span, accepted []MatchCandidate) bool {
	for _, a := range accepted {
		if span.Overlaps(a.Span) {
			return true
		}
	}
	return false
}

func isCovered(covered []bool, span pattern.Span) bool {
	for i := span.Start; i < span.End; i++ {
		if covered[i] {
			return true
		}
	}
	return false
}

// squash lower-cases s and drops all whitespace.
func squash(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
