package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/extraction"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/matching"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/pattern"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/rules"
)

func scenarioDictionary() *rules.Dictionary {
	return rules.NewDictionary(
		[]string{"E5Q", "T80", "P20", "P20 Plus"},
		map[string]string{"75寸": "尺寸", "65寸": "尺寸", "黑色": ""},
	)
}

func newTestService() (*Service, *extraction.Extractor) {
	x := extraction.NewExtractor(pattern.Compile(scenarioDictionary(), pattern.Options{}, nil))
	return NewService(x, nil), x
}

func TestService_EndToEnd(t *testing.T) {
	svc, x := newTestService()

	query := x.Extract("E5Q 75寸", false)
	require.Equal(t, "E5Q", query.BaseEntity)
	require.Equal(t, []string{"75寸"}, query.Attributes)

	filtered, reason := svc.ShouldFilterOut("E5Q 75寸 黑色特惠", query)
	assert.False(t, filtered)
	assert.Empty(t, reason)

	filtered, reason = svc.ShouldFilterOut("E5Q 65寸", query)
	assert.True(t, filtered)
	assert.Contains(t, reason, "75寸")
	assert.Equal(t, "missing attributes: 75寸", reason)
}

func TestService_ShouldFilterOut(t *testing.T) {
	svc, _ := newTestService()
	e5q := extraction.EntityExtraction{BaseEntity: "E5Q"}
	comparison := extraction.EntityExtraction{
		BaseEntity: "P20", AllEntities: []string{"P20", "P20 Plus"}, IsComparison: true,
	}

	tests := []struct {
		name       string
		content    string
		query      extraction.EntityExtraction
		wantFilter bool
		wantReason string
	}{
		{"empty content", "", e5q, false, ""},
		{"query without entity", "T80 说明书", extraction.EntityExtraction{Attributes: []string{"75寸"}}, false, ""},
		{"unrelated document", "unrelated text with no entities", e5q, true, ReasonEntityNotRecognized},
		{"same entity", "e5q 使用说明", e5q, false, ""},
		{"other entity", "T80 使用说明", e5q, true, `entity mismatch: query "E5Q", document "T80"`},
		{"compared entity", "P20 Plus 参数", comparison, false, ""},
		{
			"entity outside comparison", "T80 参数", comparison, true,
			`document entity "T80" is not one of the compared entities: P20, P20 Plus`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filtered, reason := svc.ShouldFilterOut(tt.content, tt.query)
			assert.Equal(t, tt.wantFilter, filtered)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestService_Decide(t *testing.T) {
	svc, _ := newTestService()
	query := extraction.EntityExtraction{BaseEntity: "E5Q", Attributes: []string{"75寸"}}

	d := svc.Decide("E5Q 65寸", query)
	require.NotNil(t, d.Verdict)
	assert.True(t, d.Filter)
	assert.Equal(t, matching.ReasonAttributesMissing, d.Verdict.Reason)
	assert.Equal(t, []string{"75寸"}, d.Verdict.MissingAttributes)
	assert.Equal(t, "E5Q", d.Document.BaseEntity)
	assert.Equal(t, []string{"65寸"}, d.Document.Attributes)

	d = svc.Decide("没有型号", query)
	assert.True(t, d.Filter)
	assert.Nil(t, d.Verdict)
}

func TestDescribeVerdict_Matched(t *testing.T) {
	assert.Empty(t, DescribeVerdict(matching.Verdict{Matched: true, Reason: matching.ReasonNone}, extraction.EntityExtraction{}))
}
