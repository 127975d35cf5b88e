package extraction

import (
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/pattern"
)

// numericWindow is how many characters on each side of the base entity are
// scanned for bare numbers.
const numericWindow = 10

// unitSuffixes lists, per attribute type, the unit suffixes tried when a bare
// number appears near the base entity. A type only takes part when the rule
// set defines at least one attribute of that type.
var unitSuffixes = []struct {
	Type     string
	Suffixes []string
}{
	{Type: "尺寸", Suffixes: []string{"寸"}},
	{Type: "内存", Suffixes: []string{"GB"}},
	{Type: "存储", Suffixes: []string{"GB", "TB"}},
}

// inferNumericAttributes turns bare numbers adjacent to the base entity into
// attributes, so "75E5Q" yields "75寸" when that attribute exists. Digit runs
// inside an already matched attribute are ignored, and each run infers at
// most one attribute.
func (x *Extractor) inferNumericAttributes(runes []rune, base pattern.Span, covered []bool, attrs []string) []string {
	before := clampRange(base.Start-numericWindow, base.Start, len(runes))
	after := clampRange(base.End, base.End+numericWindow, len(runes))

	seen := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		seen[squash(a)] = true
	}

	for _, window := range []pattern.Span{before, after} {
		for _, run := range digitRuns(runes, window) {
			if isCovered(covered, run) {
				continue
			}
			name, ok := x.inferOne(string(runes[run.Start:run.End]))
			if !ok || seen[squash(name)] {
				continue
			}
			seen[squash(name)] = true
			attrs = append(attrs, name)
		}
	}
	return attrs
}

func (x *Extractor) inferOne(digits string) (string, bool) {
	for _, unit := range unitSuffixes {
		if !x.rules.HasAttributeType(unit.Type) {
			continue
		}
		for _, suffix := range unit.Suffixes {
			m, ok := x.rules.AttributeByName(digits + suffix)
			if ok && m.Type == unit.Type {
				return m.Name, true
			}
		}
	}
	return "", false
}

// digitRuns returns the maximal runs of ASCII digits inside window.
func digitRuns(runes []rune, window pattern.Span) []pattern.Span {
	var runs []pattern.Span
	start := -1
	for i := window.Start; i < window.End; i++ {
		if runes[i] >= '0' && runes[i] <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			runs = append(runs, pattern.Span{Start: start, End: i})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, pattern.Span{Start: start, End: window.End})
	}
	return runs
}

func clampRange(start, end, n int) pattern.Span {
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if end < start {
		end = start
	}
	return pattern.Span{Start: start, End: end}
}
