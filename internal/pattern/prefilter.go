package pattern

import (
	"strings"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
)

// Prefilter narrows the matchers worth evaluating against a text. Every
// compiled pattern starts with the literal first word of its name, so a
// matcher whose first word does not occur anywhere in the text cannot match.
// One overlapping Aho-Corasick pass finds all first words present.
type Prefilter struct {
	ac       ahocorasick.AhoCorasick
	keys     []string
	entities [][]int // key index -> entity matcher orders
	attrs    [][]int // key index -> attribute matcher orders
}

// NewPrefilter builds the automaton over the first words of all matchers.
// It returns nil when there is nothing to index.
func NewPrefilter(entities, attributes []*Matcher) *Prefilter {
	p := &Prefilter{}
	index := make(map[string]int)

	keyFor := func(word string) int {
		if i, ok := index[word]; ok {
			return i
		}
		i := len(p.keys)
		index[word] = i
		p.keys = append(p.keys, word)
		p.entities = append(p.entities, nil)
		p.attrs = append(p.attrs, nil)
		return i
	}
	for _, m := range entities {
		k := keyFor(m.firstWord)
		p.entities[k] = append(p.entities[k], m.Order)
	}
	for _, m := range attributes {
		k := keyFor(m.firstWord)
		p.attrs[k] = append(p.attrs[k], m.Order)
	}
	if len(p.keys) == 0 {
		return nil
	}

	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  false,
		MatchKind:            ahocorasick.StandardMatch,
		DFA:                  true,
	})
	p.ac = builder.Build(p.keys)
	return p
}

// Filter returns the subsets of entities and attributes whose first word
// occurs in text, preserving their compiled order.
func (p *Prefilter) Filter(text string, entities, attributes []*Matcher) ([]*Matcher, []*Matcher) {
	if text == "" {
		return nil, nil
	}
	wantE := make([]bool, len(entities))
	wantA := make([]bool, len(attributes))

	iter := p.ac.IterOverlapping(strings.ToLower(text))
	for m := iter.Next(); m != nil; m = iter.Next() {
		k := m.Pattern()
		for _, o := range p.entities[k] {
			wantE[o] = true
		}
		for _, o := range p.attrs[k] {
			wantA[o] = true
		}
	}
	return pick(entities, wantE), pick(attributes, wantA)
}

func pick(ms []*Matcher, want []bool) []*Matcher {
	var out []*Matcher
	for i, m := range ms {
		if want[i] {
			out = append(out, m)
		}
	}
	return out
}

// Keys returns the indexed first words.
func (p *Prefilter) Keys() []string {
	return append([]string(nil), p.keys...)
}
