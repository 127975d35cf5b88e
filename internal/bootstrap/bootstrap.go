// Package bootstrap wires configuration into a running filter registry: the
// dictionary sources, the extraction cache and the reload broadcast.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/cache"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/config"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/filter"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/observability"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/pattern"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/rules"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/storage"
)

// Runtime holds the long-lived components built from a Config.
type Runtime struct {
	Config   *config.Config
	Logger   *observability.Logger
	DB       *sql.DB
	Repo     *storage.RuleRepository
	Cache    cache.Client
	PubSub   cache.PubSub
	Registry *filter.Registry

	closers []func() error
}

// NewLogger builds the service logger from configuration.
func NewLogger(cfg *config.Config) *observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
}

// New opens the database and cache named by cfg and creates the registry.
// Nothing is loaded from the dictionary until a tenant is first used.
func New(cfg *config.Config, logger *observability.Logger) (*Runtime, error) {
	logger = observability.OrNop(logger)
	rt := &Runtime{Config: cfg, Logger: logger}

	if cfg.UsesDatabase() {
		db, err := storage.Open(cfg.Dictionary.Driver, cfg.Dictionary.DSN, cfg.Dictionary.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		rt.DB = db
		rt.Repo = storage.NewRuleRepository(db, cfg.Dictionary.Table)
		rt.closers = append(rt.closers, db.Close)
	}

	if err := rt.openCache(); err != nil {
		_ = rt.Close()
		return nil, err
	}

	opts := []filter.Option{
		filter.WithPatternOptions(pattern.Options{
			MatchTimeout:     cfg.Filter.MatchTimeout,
			DisablePrefilter: !cfg.Filter.Prefilter,
		}),
		filter.WithWorkers(cfg.Filter.Workers),
	}
	if rt.Cache != nil {
		opts = append(opts, filter.WithCache(rt.Cache, cfg.Cache.TTL))
	}
	if rt.PubSub != nil {
		opts = append(opts, filter.WithPublisher(rt.PubSub, cfg.Cache.ReloadChannel))
	}

	rt.Registry = filter.NewRegistry(rt.SourceFactory(), logger, opts...)
	rt.closers = append(rt.closers, func() error {
		rt.Registry.Close()
		return nil
	})

	logger.Info().
		Str("dictionary", cfg.Dictionary.Driver).
		Str("cache", cacheDescription(cfg)).
		Int("workers", cfg.Filter.Workers).
		Msg("Filter runtime ready")
	return rt, nil
}

func (rt *Runtime) openCache() error {
	cfg := rt.Config.Cache
	if !cfg.Enabled {
		return nil
	}
	switch cfg.Driver {
	case "redis":
		rc, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return fmt.Errorf("connect cache: %w", err)
		}
		rt.Cache, rt.PubSub = rc, rc
		rt.closers = append(rt.closers, rc.Close)
	default:
		mc := cache.NewMemoryClient(cfg.MaxEntries)
		rt.Cache, rt.PubSub = mc, mc
		rt.closers = append(rt.closers, mc.Close)
	}
	return nil
}

// SourceFactory resolves the dictionary source of each tenant from the
// configured driver.
func (rt *Runtime) SourceFactory() filter.SourceFactory {
	return func(tenantID string) (rules.Source, error) {
		return SourceFor(rt.Config, rt.Repo, tenantID)
	}
}

// SourceFor returns the dictionary source for a tenant.
func SourceFor(cfg *config.Config, repo *storage.RuleRepository, tenantID string) (rules.Source, error) {
	switch cfg.Dictionary.Driver {
	case config.DriverCSV:
		return rules.NewCSVSource(cfg.TenantDictionaryPath(tenantID)), nil
	case config.DriverYAML:
		return rules.NewYAMLSource(cfg.TenantDictionaryPath(tenantID)), nil
	case config.DriverSQLite, config.DriverPostgres:
		if repo == nil {
			return nil, errors.New("database dictionary configured without a repository")
		}
		return rules.NewSQLSource(repo, tenantID), nil
	default:
		return nil, fmt.Errorf("unsupported dictionary driver: %s", cfg.Dictionary.Driver)
	}
}

// FileSource picks a CSV or YAML source by file extension.
func FileSource(path string) rules.Source {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return rules.NewYAMLSource(path)
	default:
		return rules.NewCSVSource(path)
	}
}

// StartReloadWatcher applies reload notices from other instances until ctx
// is done. It does nothing when no pub/sub backend is configured.
func (rt *Runtime) StartReloadWatcher(ctx context.Context) {
	if rt.PubSub == nil {
		return
	}
	w := filter.NewReloadWatcher(rt.Registry, rt.PubSub, rt.Config.Cache.ReloadChannel, rt.Logger)
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			rt.Logger.Error().Err(err).Msg("Reload watcher stopped")
		}
	}()
}

// DefaultEngine returns the engine of the configured default tenant.
func (rt *Runtime) DefaultEngine() (*filter.Engine, error) {
	return rt.Registry.Engine(rt.Config.Tenancy.DefaultTenant)
}

// Close releases everything in reverse order of creation.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func cacheDescription(cfg *config.Config) string {
	if !cfg.Cache.Enabled {
		return "disabled"
	}
	return cfg.Cache.Driver
}
