package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/rules"
)

func names(ms []*Matcher) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Name)
	}
	return out
}

func TestPrefilter_Filter(t *testing.T) {
	dict := rules.NewDictionary(
		[]string{"E5Q", "E5", "P20 Ultra Plus", "P20", "T80"},
		map[string]string{"75寸": "尺寸", "黑色": "颜色"},
	)
	rs := Compile(dict, Options{}, nil)

	ents, attrs := rs.Candidates("p20up 和 e5q 75寸")
	assert.Equal(t, []string{"P20 Ultra Plus", "E5Q", "P20", "E5"}, names(ents),
		"overlapping first words must all be reported, in compiled order")
	assert.Equal(t, []string{"75寸"}, names(attrs))

	ents, attrs = rs.Candidates("完全无关的内容")
	assert.Empty(t, ents)
	assert.Empty(t, attrs)
}

func TestPrefilter_DoesNotChangeMatches(t *testing.T) {
	dict := rules.NewDictionary(
		[]string{"E5Q", "B", "AB", "P20 Plus"},
		map[string]string{"75寸": "尺寸"},
	)
	with := Compile(dict, Options{}, nil)
	without := Compile(dict, Options{DisablePrefilter: true}, nil)

	for _, text := range []string{"AB", "xab", "p20+ 75寸", "P20PLUS", ""} {
		runes := []rune(text)
		e, _ := with.Candidates(text)
		got := map[string]bool{}
		for _, m := range e {
			if _, ok := m.FindFirst(runes); ok {
				got[m.Name] = true
			}
		}
		want := map[string]bool{}
		for _, m := range without.Entities {
			if _, ok := m.FindFirst(runes); ok {
				want[m.Name] = true
			}
		}
		assert.Equal(t, want, got, "text %q", text)
	}
}

func TestNewPrefilter_Empty(t *testing.T) {
	assert.Nil(t, NewPrefilter(nil, nil))
}
