package handlers

import (
	"net/http"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/filter"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/observability"
)

// RulesHandler serves dictionary maintenance.
type RulesHandler struct {
	logger   *observability.Logger
	registry *filter.Registry
}

// NewRulesHandler creates a new rules handler.
func NewRulesHandler(logger *observability.Logger, registry *filter.Registry) *RulesHandler {
	return &RulesHandler{logger: observability.OrNop(logger), registry: registry}
}

// ReloadResponseDTO is the response of POST /rules/reload.
type ReloadResponseDTO struct {
	Reloaded []filter.EngineStats `json:"reloaded"`
}

// Reload handles POST /rules/reload. With all=true every tenant known to
// this instance is cleared; otherwise only the request tenant. The cleared
// rules are rebuilt before responding.
func (h *RulesHandler) Reload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.URL.Query().Get("all") == "true" {
		h.registry.ClearAll(ctx)
		resp := ReloadResponseDTO{Reloaded: []filter.EngineStats{}}
		for _, tenantID := range h.registry.Tenants() {
			if engine, ok := h.registry.Lookup(tenantID); ok {
				engine.EnsureLoaded(ctx)
				resp.Reloaded = append(resp.Reloaded, engine.Stats())
			}
		}
		h.logger.WithContext(ctx).Info().Int("tenants", len(resp.Reloaded)).Msg("Reloaded all dictionaries")
		writeJSON(w, http.StatusOK, resp)
		return
	}

	engine, ok := engineFor(w, r, h.registry, h.logger)
	if !ok {
		return
	}
	engine.ClearCache(ctx)
	engine.EnsureLoaded(ctx)

	h.logger.WithContext(ctx).WithTenant(engine.Name()).Info().Msg("Reloaded dictionary")
	writeJSON(w, http.StatusOK, ReloadResponseDTO{Reloaded: []filter.EngineStats{engine.Stats()}})
}

// Stats handles GET /rules/stats, loading the tenant dictionary if needed.
func (h *RulesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	engine, ok := engineFor(w, r, h.registry, h.logger)
	if !ok {
		return
	}
	engine.EnsureLoaded(r.Context())
	writeJSON(w, http.StatusOK, engine.Stats())
}
