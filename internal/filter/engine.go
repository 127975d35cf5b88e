package filter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/singleflight"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/cache"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/extraction"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/observability"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/pattern"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/rules"
)

// DefaultReloadChannel is the pub/sub channel reload notices travel on.
const DefaultReloadChannel = "rules.reload"

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets the engine logger.
func WithLogger(logger *observability.Logger) Option {
	return func(e *Engine) error {
		e.logger = observability.OrNop(logger)
		return nil
	}
}

// WithPatternOptions tunes rule compilation.
func WithPatternOptions(opts pattern.Options) Option {
	return func(e *Engine) error {
		e.patternOpts = opts
		return nil
	}
}

// WithCache caches query extractions for ttl. A non-positive ttl keeps
// entries until the dictionary changes.
func WithCache(c cache.Client, ttl time.Duration) Option {
	return func(e *Engine) error {
		e.cache = c
		e.cacheTTL = ttl
		return nil
	}
}

// WithPublisher announces ClearCache calls on channel so other instances
// can drop their compiled rules too.
func WithPublisher(p cache.PubSub, channel string) Option {
	return func(e *Engine) error {
		if channel == "" {
			channel = DefaultReloadChannel
		}
		e.publisher = p
		e.reloadChannel = channel
		return nil
	}
}

// WithOrigin tags published reload notices with the id of the publishing
// instance so its own watcher can skip them.
func WithOrigin(id string) Option {
	return func(e *Engine) error {
		e.origin = id
		return nil
	}
}

// WithWorkers sets the size of the batch filtering pool. Zero or less
// evaluates batches sequentially.
func WithWorkers(n int) Option {
	return func(e *Engine) error {
		if e.pool != nil {
			e.pool.Release()
			e.pool = nil
		}
		if n <= 0 {
			return nil
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return fmt.Errorf("create filter pool: %w", err)
		}
		e.pool = pool
		return nil
	}
}

// compiled bundles everything derived from one dictionary load. It is never
// mutated after publication.
type compiled struct {
	rules     *pattern.RuleSet
	extractor *extraction.Extractor
	service   *Service
}

// Engine is the public face of the filter for one dictionary source. The
// compiled rules are built at most once per generation, even under
// concurrent first use, and then shared read-only.
type Engine struct {
	name   string
	source rules.Source

	patternOpts   pattern.Options
	cache         cache.Client
	cacheTTL      time.Duration
	publisher     cache.PubSub
	reloadChannel string
	origin        string
	pool          *ants.Pool
	logger        *observability.Logger

	group      singleflight.Group
	current    atomic.Pointer[compiled]
	generation atomic.Uint64
	loads      atomic.Int64
}

// NewEngine creates an engine named name (usually the tenant id) over src.
// Nothing is loaded until first use.
func NewEngine(name string, src rules.Source, opts ...Option) (*Engine, error) {
	e := &Engine{
		name:   name,
		source: src,
		logger: observability.Nop(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			e.Close()
			return nil, err
		}
	}
	e.logger = e.logger.WithTenant(name)
	return e, nil
}

// Name returns the engine name.
func (e *Engine) Name() string { return e.name }

// EnsureLoaded loads and compiles the dictionary on first call and returns
// the compiled rule set. Later calls return the same set until ClearCache.
// Load failures degrade to an empty rule set.
func (e *Engine) EnsureLoaded(ctx context.Context) *pattern.RuleSet {
	return e.load(ctx).rules
}

func (e *Engine) load(ctx context.Context) *compiled {
	if c := e.current.Load(); c != nil {
		return c
	}

	gen := e.generation.Load()
	key := fmt.Sprintf("load:%d", gen)
	// Loads are shared between callers and ignore their cancellation.
	loadCtx := context.WithoutCancel(ctx)

	v, _, _ := e.group.Do(key, func() (interface{}, error) {
		if c := e.current.Load(); c != nil {
			return c, nil
		}
		dict := rules.Load(loadCtx, e.source, e.logger)
		rs := pattern.Compile(dict, e.patternOpts, e.logger)
		x := extraction.NewExtractor(rs)
		c := &compiled{rules: rs, extractor: x, service: NewService(x, e.logger)}

		if e.generation.Load() == gen {
			e.current.Store(c)
		}
		e.loads.Add(1)
		return c, nil
	})
	return v.(*compiled)
}

// GetApplicableRules extracts the entity constraints of a query, detecting
// comparison queries automatically.
func (e *Engine) GetApplicableRules(ctx context.Context, query string) extraction.EntityExtraction {
	c := e.load(ctx)
	comparison := extraction.IsComparisonQuery(query)

	key := e.extractionKey(c.rules.Version(), query)
	if e.cache != nil && query != "" {
		if data, err := e.cache.Get(ctx, key); err == nil {
			var cached extraction.EntityExtraction
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached
			}
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			e.logger.Warn().Err(err).Msg("Extraction cache read failed")
		}
	}

	result := c.extractor.Extract(query, comparison)

	if e.cache != nil && query != "" {
		if data, err := json.Marshal(result); err == nil {
			if err := e.cache.Set(ctx, key, data, e.cacheTTL); err != nil {
				e.logger.Warn().Err(err).Msg("Extraction cache write failed")
			}
		}
	}
	return result
}

// ShouldFilterOut reports whether a document should be dropped for a query
// extraction, and why.
func (e *Engine) ShouldFilterOut(ctx context.Context, document string, query extraction.EntityExtraction) (bool, string) {
	return e.load(ctx).service.ShouldFilterOut(document, query)
}

// Decide returns the full decision for one document.
func (e *Engine) Decide(ctx context.Context, document string, query extraction.EntityExtraction) Decision {
	return e.load(ctx).service.Decide(document, query)
}

// Extract runs extraction directly, bypassing comparison detection and the
// cache.
func (e *Engine) Extract(ctx context.Context, text string, extractAll bool) extraction.EntityExtraction {
	return e.load(ctx).extractor.Extract(text, extractAll)
}

// ClearCache drops the compiled rules and cached extractions. The next
// operation rebuilds from the source. When a publisher is configured the
// reload is announced to other instances.
func (e *Engine) ClearCache(ctx context.Context) {
	e.dropLocal(ctx)

	if e.publisher != nil {
		notice := ReloadNotice{Tenant: e.name, Origin: e.origin, At: time.Now().UTC()}
		if err := e.publisher.Publish(ctx, e.reloadChannel, notice); err != nil {
			e.logger.Warn().Err(err).Str("channel", e.reloadChannel).Msg("Failed to publish reload notice")
		}
	}
}

// dropLocal clears state without announcing it.
func (e *Engine) dropLocal(ctx context.Context) {
	e.generation.Add(1)
	e.current.Store(nil)

	if e.cache != nil {
		if err := e.cache.DeleteByPrefix(ctx, cache.TenantCacheKey(e.name, "extract")+":"); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to purge extraction cache")
		}
	}
	e.logger.Info().Msg("Cleared compiled rules")
}

// Loaded reports whether a compiled rule set is currently published.
func (e *Engine) Loaded() bool {
	return e.current.Load() != nil
}

// EngineStats describes the engine state.
type EngineStats struct {
	Name   string         `json:"name"`
	Source string         `json:"source"`
	Loaded bool           `json:"loaded"`
	Loads  int64          `json:"loads"`
	Rules  *pattern.Stats `json:"rules,omitempty"`
}

// Stats reports the engine state without triggering a load.
func (e *Engine) Stats() EngineStats {
	s := EngineStats{Name: e.name, Loads: e.loads.Load()}
	if e.source != nil {
		s.Source = e.source.Name()
	}
	if c := e.current.Load(); c != nil {
		rs := c.rules.Stats()
		s.Loaded = true
		s.Rules = &rs
	}
	return s
}

// Close releases the batch worker pool.
func (e *Engine) Close() {
	if e.pool != nil {
		e.pool.Release()
	}
}

func (e *Engine) extractionKey(version, query string) string {
	return cache.TenantCacheKey(e.name, "extract", version, query)
}
