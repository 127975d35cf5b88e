// Package handlers provides HTTP handlers for the entity filter API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spherical-ai/spherical/libs/entity-filter/cmd/entity-filter-api/middleware"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/filter"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/observability"
)

const maxBodyBytes = 4 << 20

// decodeBody reads a JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// engineFor resolves the engine of the request tenant, writing a 500 when it
// cannot be created.
func engineFor(w http.ResponseWriter, r *http.Request, registry *filter.Registry, logger *observability.Logger) (*filter.Engine, bool) {
	tenantID := middleware.TenantFromContext(r.Context())
	engine, err := registry.Engine(tenantID)
	if err != nil {
		logger.WithContext(r.Context()).Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to resolve filter engine")
		writeError(w, http.StatusInternalServerError, "tenant dictionary unavailable", err.Error())
		return nil, false
	}
	return engine, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}
