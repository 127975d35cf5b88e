package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/extraction"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/filter"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/matching"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/observability"
)

// FilterHandler serves extraction and filtering.
type FilterHandler struct {
	logger   *observability.Logger
	registry *filter.Registry
}

// NewFilterHandler creates a new filter handler.
func NewFilterHandler(logger *observability.Logger, registry *filter.Registry) *FilterHandler {
	return &FilterHandler{logger: observability.OrNop(logger), registry: registry}
}

// ExtractRequestDTO is the body of POST /rules/extract.
type ExtractRequestDTO struct {
	Text string `json:"text"`
	// ExtractAll forces comparison extraction instead of detecting it.
	ExtractAll bool `json:"extractAll,omitempty"`
}

// ExtractResponseDTO is the response of POST /rules/extract.
type ExtractResponseDTO struct {
	TenantID   string                      `json:"tenantId"`
	Extraction extraction.EntityExtraction `json:"extraction"`
}

// FilterRequestDTO is the body of POST /filter.
type FilterRequestDTO struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

// FilterResponseDTO is the response of POST /filter.
type FilterResponseDTO struct {
	Query         extraction.EntityExtraction `json:"query"`
	Decisions     []filter.Decision           `json:"decisions"`
	Kept          []int                       `json:"kept"`
	KeptDocuments []string                    `json:"keptDocuments"`
	LatencyMs     int64                       `json:"latencyMs"`
}

// DecisionRequestDTO is the body of POST /filter/decision. The query
// constraints come from Extraction when given, otherwise from Query.
type DecisionRequestDTO struct {
	Document   string                       `json:"document"`
	Extraction *extraction.EntityExtraction `json:"extraction,omitempty"`
	Query      string                       `json:"query,omitempty"`
}

// DecisionResponseDTO is the response of POST /filter/decision.
type DecisionResponseDTO struct {
	Filter   bool                        `json:"filter"`
	Reason   string                      `json:"reason"`
	Verdict  *matching.Verdict           `json:"verdict,omitempty"`
	Document extraction.EntityExtraction `json:"document"`
}

// Extract handles POST /rules/extract.
func (h *FilterHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequestDTO
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required", "")
		return
	}

	engine, ok := engineFor(w, r, h.registry, h.logger)
	if !ok {
		return
	}

	var x extraction.EntityExtraction
	if req.ExtractAll {
		x = engine.Extract(r.Context(), req.Text, true)
	} else {
		x = engine.GetApplicableRules(r.Context(), req.Text)
	}
	writeJSON(w, http.StatusOK, ExtractResponseDTO{TenantID: engine.Name(), Extraction: x})
}

// Filter handles POST /filter.
func (h *FilterHandler) Filter(w http.ResponseWriter, r *http.Request) {
	var req FilterRequestDTO
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required", "")
		return
	}

	engine, ok := engineFor(w, r, h.registry, h.logger)
	if !ok {
		return
	}

	res, err := engine.FilterDocuments(r.Context(), req.Query, req.Documents)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		writeError(w, status, "filtering interrupted", err.Error())
		return
	}

	resp := FilterResponseDTO{
		Query:         res.Query,
		Decisions:     res.Decisions,
		Kept:          res.Kept,
		KeptDocuments: res.KeptDocuments(req.Documents),
		LatencyMs:     res.Duration.Milliseconds(),
	}
	if resp.Kept == nil {
		resp.Kept = []int{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Decide handles POST /filter/decision.
func (h *FilterHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequestDTO
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Extraction == nil && req.Query == "" {
		writeError(w, http.StatusBadRequest, "extraction or query is required", "")
		return
	}

	engine, ok := engineFor(w, r, h.registry, h.logger)
	if !ok {
		return
	}

	var q extraction.EntityExtraction
	if req.Extraction != nil {
		q = *req.Extraction
	} else {
		q = engine.GetApplicableRules(r.Context(), req.Query)
	}

	d := engine.Decide(r.Context(), req.Document, q)
	writeJSON(w, http.StatusOK, DecisionResponseDTO{
		Filter:   d.Filter,
		Reason:   d.Reason,
		Verdict:  d.Verdict,
		Document: d.Document,
	})
}
