package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/rules"
)

func TestSortNames(t *testing.T) {
	got := SortNames([]string{"E5", "P20 Plus", "E5Q", "B5Q", "E5", "P20"})
	assert.Equal(t, []string{"P20 Plus", "B5Q", "E5Q", "P20", "E5"}, got)
}

func TestBuildPattern(t *testing.T) {
	src, words, err := BuildPattern("T80")
	require.NoError(t, err)
	assert.Equal(t, []string{"T80"}, words)
	assert.Equal(t, `T80(?![A-Za-z0-9])`, src)

	src, words, err = BuildPattern("P20  Ultra Plus")
	require.NoError(t, err)
	assert.Equal(t, []string{"P20", "Ultra", "Plus"}, words)
	assert.Equal(t,
		`P20(?:\s?Ultra|\s?U(?!(?-i:[a-z])))(?:\s?Plus|\s?\+(?!(?-i:[a-z])))(?![A-Za-z0-9])`,
		src)

	_, _, err = BuildPattern("   ")
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestMatcher_FindFirst(t *testing.T) {
	matchers, skipped := CompileNames([]string{"T80", "P20 Ultra Plus", "E5Q Pro"}, KindEntity, nil, Options{}, nil)
	require.Empty(t, skipped)
	byName := map[string]*Matcher{}
	for _, m := range matchers {
		byName[m.Name] = m
	}

	tests := []struct {
		name    string
		matcher string
		text    string
		want    string
		start   int
	}{
		{"exact", "T80", "我的T80坏了", "T80", 2},
		{"case insensitive", "T80", "t80 怎么样", "t80", 0},
		{"no match inside longer model", "T80", "t80s 怎么样", "", -1},
		{"canonical multi word", "P20 Ultra Plus", "P20 Ultra Plus 价格", "P20 Ultra Plus", 0},
		{"no space form", "P20 Ultra Plus", "p20ultraplus价格", "p20ultraplus", 0},
		{"abbreviated", "P20 Ultra Plus", "买P20 U+", "P20 U+", 1},
		{"mixed abbreviation", "P20 Ultra Plus", "P20Ultra+", "P20Ultra+", 0},
		{"abbreviation head of longer word", "P20 Ultra Plus", "P20 Uplus", "", -1},
		{"pro shorthand", "E5Q Pro", "E5QP 多少钱", "E5QP", 0},
		{"pro shorthand blocked by lowercase word", "E5Q Pro", "E5Q Pad", "", -1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			occ, ok := byName[tc.matcher].FindFirst([]rune(tc.text))
			if tc.start < 0 {
				assert.False(t, ok, "unexpected match %q", occ.Text)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.want, occ.Text)
			assert.Equal(t, tc.start, occ.Span.Start)
			assert.Equal(t, tc.start+len([]rune(tc.want)), occ.Span.End)
		})
	}
}

func TestMatcher_FindAll(t *testing.T) {
	matchers, _ := CompileNames([]string{"75寸"}, KindAttribute, map[string]string{"75寸": "尺寸"}, Options{}, nil)
	require.Len(t, matchers, 1)
	assert.Equal(t, "尺寸", matchers[0].Type)

	occs := matchers[0].FindAll([]rune("75寸和75寸的区别"))
	require.Len(t, occs, 2)
	assert.Equal(t, Span{Start: 0, End: 3}, occs[0].Span)
	assert.Equal(t, Span{Start: 4, End: 7}, occs[1].Span)
}

func TestCompileNames_SkipsBadEntries(t *testing.T) {
	matchers, skipped := CompileNames([]string{"E5Q", "  ", "T80"}, KindEntity, nil, Options{}, nil)

	require.Len(t, matchers, 2)
	assert.Equal(t, "E5Q", matchers[0].Name)
	assert.Equal(t, 0, matchers[0].Order)
	assert.Equal(t, 1, matchers[1].Order)
	require.Len(t, skipped, 1)
	assert.Equal(t, KindEntity, skipped[0].Kind)
}

func TestCompileNames_Deterministic(t *testing.T) {
	a, _ := CompileNames([]string{"E5", "E5Q", "P20 Plus", "P20"}, KindEntity, nil, Options{}, nil)
	b, _ := CompileNames([]string{"P20", "P20 Plus", "E5Q", "E5"}, KindEntity, nil, Options{}, nil)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Name, b[i].Name)
		assert.Equal(t, a[i].Pattern(), b[i].Pattern())
	}
}

func TestCompile_RuleSet(t *testing.T) {
	dict := rules.NewDictionary(
		[]string{"E5Q", "E5"},
		map[string]string{"75寸": "尺寸", "8GB": "内存", "黑色": ""},
	)
	rs := Compile(dict, Options{}, nil)

	require.Len(t, rs.Entities, 2)
	assert.Equal(t, "E5Q", rs.Entities[0].Name)
	require.Len(t, rs.Attributes, 3)
	assert.Equal(t, dict.Version(), rs.Version())

	m, ok := rs.AttributeByName("8gb")
	require.True(t, ok)
	assert.Equal(t, "8GB", m.Name)

	assert.True(t, rs.HasAttributeType("尺寸"))
	assert.False(t, rs.HasAttributeType("存储"))

	stats := rs.Stats()
	assert.Equal(t, 2, stats.Entities)
	assert.Equal(t, 3, stats.Attributes)
	assert.True(t, stats.Prefilter)
}

func TestCompile_NilDictionary(t *testing.T) {
	rs := Compile(nil, Options{}, nil)
	assert.True(t, rs.IsEmpty())
	e, a := rs.Candidates("anything")
	assert.Empty(t, e)
	assert.Empty(t, a)
}
