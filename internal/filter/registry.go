package filter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/observability"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/rules"
)

// SourceFactory returns the dictionary source for a tenant.
type SourceFactory func(tenantID string) (rules.Source, error)

// Registry holds one Engine per tenant, created on first use.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*Engine

	factory SourceFactory
	opts    []Option
	id      string
	logger  *observability.Logger
}

// NewRegistry creates a registry. opts are applied to every engine it
// creates.
func NewRegistry(factory SourceFactory, logger *observability.Logger, opts ...Option) *Registry {
	r := &Registry{
		engines: make(map[string]*Engine),
		factory: factory,
		id:      uuid.NewString(),
		logger:  observability.OrNop(logger),
	}
	r.opts = append([]Option{WithLogger(r.logger)}, opts...)
	r.opts = append(r.opts, WithOrigin(r.id))
	return r
}

// ID identifies this registry instance in reload notices.
func (r *Registry) ID() string { return r.id }

// Engine returns the tenant's engine, creating it if needed.
func (r *Registry) Engine(tenantID string) (*Engine, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	r.mu.RLock()
	e, ok := r.engines[tenantID]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.engines[tenantID]; ok {
		return e, nil
	}

	src, err := r.factory(tenantID)
	if err != nil {
		return nil, fmt.Errorf("dictionary source for tenant %s: %w", tenantID, err)
	}
	e, err = NewEngine(tenantID, src, r.opts...)
	if err != nil {
		return nil, err
	}
	r.engines[tenantID] = e
	r.logger.Info().
		Str("tenant_id", tenantID).
		Str("source", src.Name()).
		Msg("Created filter engine")
	return e, nil
}

// Lookup returns an existing engine without creating one.
func (r *Registry) Lookup(tenantID string) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[tenantID]
	return e, ok
}

// Tenants lists tenants with an engine, sorted.
func (r *Registry) Tenants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.engines))
	for t := range r.engines {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ClearAll drops the compiled rules of every engine.
func (r *Registry) ClearAll(ctx context.Context) {
	for _, e := range r.snapshot() {
		e.ClearCache(ctx)
	}
}

// Close releases every engine.
func (r *Registry) Close() {
	for _, e := range r.snapshot() {
		e.Close()
	}
}

func (r *Registry) snapshot() []*Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		out = append(out, e)
	}
	return out
}
