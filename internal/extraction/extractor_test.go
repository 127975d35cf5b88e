package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/pattern"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/rules"
)

func testDictionary() *rules.Dictionary {
	return rules.NewDictionary(
		[]string{"E5", "E5Q", "P20", "P20 Plus", "P20 Ultra Plus", "T80"},
		map[string]string{
			"75寸":   "尺寸",
			"65寸":   "尺寸",
			"55寸":   "型号",
			"8GB":   "内存",
			"1TB":   "存储",
			"黑色":    "颜色",
			"曜石黑色": "颜色",
		},
	)
}

func newTestExtractor(opts pattern.Options) *Extractor {
	return NewExtractor(pattern.Compile(testDictionary(), opts, nil))
}

func TestIsComparisonQuery(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"P20和P20 Plus的区别", true},
		{"E5Q VS E5", true},
		{"E5Q versus T80", true},
		{"E5Q与T80哪个好", true},
		{"买E5Q还是T80", true},
		{"E5Q怎么样", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, IsComparisonQuery(tt.text))
		})
	}
}

func TestExtract_SingleEntity(t *testing.T) {
	x := newTestExtractor(pattern.Options{})

	tests := []struct {
		name       string
		text       string
		wantEntity string
		wantAttrs  []string
	}{
		{"longest model wins", "E5Q多少钱", "E5Q", nil},
		{"shorter model alone", "E5 多少钱", "E5", nil},
		{"multi word with attributes", "P20 Ultra Plus 8GB 黑色", "P20 Ultra Plus", []string{"8GB", "黑色"}},
		{"abbreviated form", "P20U+ 怎么样", "P20 Ultra Plus", nil},
		{"attributes in text order", "黑色 E5Q 75寸", "E5Q", []string{"黑色", "75寸"}},
		{"duplicate attribute kept once", "E5Q 75寸 75寸", "E5Q", []string{"75寸"}},
		{"longer attribute covers shorter", "T80 曜石黑色", "T80", []string{"曜石黑色"}},
		{"no entity", "75寸 黑色", "", []string{"75寸", "黑色"}},
		{"nothing recognized", "今天天气不错", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := x.Extract(tt.text, false)
			assert.Equal(t, tt.wantEntity, got.BaseEntity)
			assert.Equal(t, tt.wantAttrs, got.Attributes)
			assert.False(t, got.IsComparison)
			assert.Nil(t, got.AllEntities)
		})
	}
}

func TestExtract_Comparison(t *testing.T) {
	x := newTestExtractor(pattern.Options{})

	got := x.Extract("P20和P20 Plus的区别", true)
	assert.True(t, got.IsComparison)
	assert.Equal(t, "P20", got.BaseEntity)
	assert.Equal(t, []string{"P20", "P20 Plus"}, got.AllEntities)
	assert.Nil(t, got.Attributes)

	got = x.Extract("T80 vs E5Q 75寸", true)
	assert.Equal(t, []string{"T80", "E5Q"}, got.AllEntities)
	assert.Equal(t, "T80", got.BaseEntity)
	assert.Equal(t, []string{"75寸"}, got.Attributes)

	got = x.Extract("哪个好", true)
	assert.True(t, got.IsComparison)
	assert.False(t, got.HasEntity())
	assert.Nil(t, got.AllEntities)
}

func TestExtract_NumericInference(t *testing.T) {
	x := newTestExtractor(pattern.Options{})

	tests := []struct {
		name      string
		text      string
		wantAttrs []string
	}{
		{"size before entity", "75E5Q", []string{"75寸"}},
		{"memory after entity", "E5Q 8", []string{"8GB"}},
		{"storage terabytes", "E5Q 1", []string{"1TB"}},
		{"digits inside matched attribute", "E5Q 75寸", []string{"75寸"}},
		{"unknown number", "E5Q 99", nil},
		{"type mismatch is ignored", "E5Q 55", nil},
		{"outside window", "E5Q 一二三四五六七八九十 75", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := x.Extract(tt.text, false)
			assert.Equal(t, "E5Q", got.BaseEntity)
			assert.Equal(t, tt.wantAttrs, got.Attributes)
		})
	}

	t.Run("no inference without entity", func(t *testing.T) {
		got := x.Extract("75 英寸", false)
		assert.False(t, got.HasEntity())
		assert.Nil(t, got.Attributes)
	})
}

func TestExtract_NumericInferenceNeedsType(t *testing.T) {
	dict := rules.NewDictionary([]string{"E5Q"}, map[string]string{"8GB": "内存"})
	x := NewExtractor(pattern.Compile(dict, pattern.Options{}, nil))

	got := x.Extract("75E5Q", false)
	assert.Equal(t, "E5Q", got.BaseEntity)
	assert.Nil(t, got.Attributes)
}

func TestExtract_EmptyInputs(t *testing.T) {
	x := newTestExtractor(pattern.Options{})
	assert.Equal(t, EntityExtraction{}, x.Extract("", false))
	assert.Equal(t, EntityExtraction{IsComparison: true}, x.Extract("", true))

	empty := NewExtractor(pattern.Compile(rules.Empty(), pattern.Options{}, nil))
	assert.Equal(t, EntityExtraction{}, empty.Extract("E5Q 75寸", false))
}

func TestExtract_PrefilterParity(t *testing.T) {
	with := newTestExtractor(pattern.Options{})
	without := newTestExtractor(pattern.Options{DisablePrefilter: true})

	texts := []string{
		"E5Q多少钱",
		"P20和P20 Plus的区别",
		"p20ultraplus 8GB",
		"75E5Q 黑色",
		"t80s 曜石黑色",
	}
	for _, text := range texts {
		for _, all := range []bool{false, true} {
			assert.Equal(t, without.Extract(text, all), with.Extract(text, all), text)
		}
	}
}

func TestScoreCandidate(t *testing.T) {
	exact := pattern.Occurrence{Span: pattern.Span{Start: 0, End: 12}, Text: "p20ultraplus"}
	assert.Equal(t, 1010, scoreCandidate(exact, "P20 Ultra Plus"))

	abbreviated := pattern.Occurrence{Span: pattern.Span{Start: 0, End: 5}, Text: "P20U+"}
	assert.Equal(t, -4, scoreCandidate(abbreviated, "P20 Ultra Plus"))
}
