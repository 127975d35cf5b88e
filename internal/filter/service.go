// Package filter decides, per retrieved passage, whether it should be dropped
// because it talks about a different entity or configuration than the query.
package filter

import (
	"fmt"
	"strings"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/extraction"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/matching"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/observability"
)

// ReasonEntityNotRecognized is reported when the query names an entity but
// the document mentions none.
const ReasonEntityNotRecognized = "document entity not recognized"

// Decision is the full outcome of one document check.
type Decision struct {
	Filter   bool                        `json:"filter"`
	Reason   string                      `json:"reason,omitempty"`
	Verdict  *matching.Verdict           `json:"verdict,omitempty"`
	Document extraction.EntityExtraction `json:"document"`
}

// Service evaluates documents against a query extraction using one rule set.
type Service struct {
	extractor *extraction.Extractor
	logger    *observability.Logger
}

// NewService creates a decision service.
func NewService(x *extraction.Extractor, logger *observability.Logger) *Service {
	return &Service{extractor: x, logger: observability.OrNop(logger)}
}

// ShouldFilterOut reports whether content should be removed from the result
// set for a query, with a human-readable reason when it should.
func (s *Service) ShouldFilterOut(content string, query extraction.EntityExtraction) (bool, string) {
	d := s.Decide(content, query)
	return d.Filter, d.Reason
}

// Decide evaluates one document. Empty content and a query without an entity
// never filter. A document with no recognized entity is filtered whenever the
// query names one.
func (s *Service) Decide(content string, query extraction.EntityExtraction) Decision {
	if content == "" || !query.HasEntity() {
		return Decision{}
	}

	doc := s.extractor.Extract(content, false)
	if !doc.HasEntity() {
		s.logger.Debug().
			Str("query_entity", query.BaseEntity).
			Str("reason", ReasonEntityNotRecognized).
			Msg("Filtering document")
		return Decision{Filter: true, Reason: ReasonEntityNotRecognized, Document: doc}
	}

	v := matching.Match(query, doc)
	d := Decision{Filter: !v.Matched, Verdict: &v, Document: doc}
	if d.Filter {
		d.Reason = DescribeVerdict(v, query)
		s.logger.Debug().
			Str("query_entity", query.BaseEntity).
			Str("doc_entity", doc.BaseEntity).
			Str("reason", d.Reason).
			Msg("Filtering document")
	}
	return d
}

// DescribeVerdict renders a failed verdict as text. Matched verdicts render
// as the empty string.
func DescribeVerdict(v matching.Verdict, query extraction.EntityExtraction) string {
	switch v.Reason {
	case matching.ReasonComparisonEntityNotListed:
		return fmt.Sprintf("document entity %q is not one of the compared entities: %s",
			v.DocumentEntity, strings.Join(query.AllEntities, ", "))
	case matching.ReasonEntityMismatch:
		return fmt.Sprintf("entity mismatch: query %q, document %q", v.QueryEntity, v.DocumentEntity)
	case matching.ReasonAttributesMissing:
		return "missing attributes: " + strings.Join(v.MissingAttributes, ", ")
	default:
		return ""
	}
}
