// Package main provides the API router setup.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical-ai/spherical/libs/entity-filter/cmd/entity-filter-api/handlers"
	"github.com/spherical-ai/spherical/libs/entity-filter/cmd/entity-filter-api/middleware"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/api/connectrpc"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/config"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/filter"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/observability"
)

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, registry *filter.Registry, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Trace)
	r.Use(middleware.Tenant(cfg.Tenancy.DefaultTenant))
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	if cfg.Server.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.Server.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"entity-filter"}`))
	})

	// Ready once the default tenant's dictionary has been compiled.
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if e, ok := registry.Lookup(cfg.Tenancy.DefaultTenant); ok && e.Loaded() {
			w.Write([]byte(`{"status":"ready"}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"loading"}`))
	})

	filterHandler := handlers.NewFilterHandler(logger, registry)
	rulesHandler := handlers.NewRulesHandler(logger, registry)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/rules", func(r chi.Router) {
			r.Post("/extract", filterHandler.Extract)
			r.Post("/reload", rulesHandler.Reload)
			r.Get("/stats", rulesHandler.Stats)
		})

		r.Route("/filter", func(r chi.Router) {
			r.Post("/", filterHandler.Filter)
			r.Post("/decision", filterHandler.Decide)
		})
	})

	path, rpc := connectrpc.NewHandler(connectrpc.NewFilterService(registry, cfg.Tenancy.DefaultTenant, logger))
	r.Mount(path, rpc)

	return r
}
