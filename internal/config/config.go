// Package config provides unified configuration loading for the entity filter.
// Supports YAML files, .env files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Dictionary drivers.
const (
	DriverCSV      = "csv"
	DriverYAML     = "yaml"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the entity filter.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Dictionary    DictionaryConfig    `yaml:"dictionary"`
	Cache         CacheConfig         `yaml:"cache"`
	Filter        FilterConfig        `yaml:"filter"`
	Observability ObservabilityConfig `yaml:"observability"`
	Tenancy       TenancyConfig       `yaml:"tenancy"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// DictionaryConfig says where the rule dictionary comes from.
type DictionaryConfig struct {
	Driver string `yaml:"driver"` // csv, yaml, sqlite or postgres
	// Path is the CSV or YAML file. For csv and yaml drivers a file named
	// <tenant>.<ext> next to Path is used for tenants other than the default.
	Path         string `yaml:"path"`
	DSN          string `yaml:"dsn"`
	Table        string `yaml:"table"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// CacheConfig holds extraction cache settings.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Driver        string        `yaml:"driver"` // memory or redis
	TTL           time.Duration `yaml:"ttl"`
	MaxEntries    int           `yaml:"max_entries"`
	ReloadChannel string        `yaml:"reload_channel"`
	Redis         RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// FilterConfig tunes matching and batch evaluation.
type FilterConfig struct {
	Workers      int           `yaml:"workers"`
	MatchTimeout time.Duration `yaml:"match_timeout"`
	Prefilter    bool          `yaml:"prefilter"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// TenancyConfig holds multi-tenancy settings.
type TenancyConfig struct {
	DefaultTenant string `yaml:"default_tenant"`
}

// Load reads configuration from a YAML file and applies environment overrides.
// Variables from a .env file in the working directory are loaded first and
// never override variables already set in the process environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		if cfg.Dictionary.Path != "" && (cfg.Dictionary.Driver == DriverCSV || cfg.Dictionary.Driver == DriverYAML) {
			cfg.Dictionary.Path = ResolveRelativePath(path, cfg.Dictionary.Path)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8086,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   30 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Dictionary: DictionaryConfig{
			Driver:       DriverCSV,
			Path:         "config/entity_rules.csv",
			Table:        "entity_rules",
			MaxOpenConns: 4,
		},
		Cache: CacheConfig{
			Enabled:       true,
			Driver:        "memory",
			TTL:           10 * time.Minute,
			MaxEntries:    10000,
			ReloadChannel: "rules.reload",
			Redis: RedisConfig{
				Addr:     "localhost:6380",
				DB:       0,
				PoolSize: 10,
				Prefix:   "ef:",
			},
		},
		Filter: FilterConfig{
			Workers:      8,
			MatchTimeout: 100 * time.Millisecond,
			Prefilter:    true,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "entity-filter",
		},
		Tenancy: TenancyConfig{
			DefaultTenant: "dev",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Dictionary.Driver {
	case DriverCSV, DriverYAML:
		if c.Dictionary.Path == "" {
			return fmt.Errorf("dictionary path is required for driver %s", c.Dictionary.Driver)
		}
	case DriverSQLite, DriverPostgres:
		if c.Dictionary.DSN == "" {
			return fmt.Errorf("dictionary dsn is required for driver %s", c.Dictionary.Driver)
		}
		if c.Dictionary.Table == "" {
			return fmt.Errorf("dictionary table is required")
		}
	default:
		return fmt.Errorf("invalid dictionary driver: %s", c.Dictionary.Driver)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Filter.Workers < 0 {
		return fmt.Errorf("filter workers must not be negative")
	}

	if c.Tenancy.DefaultTenant == "" {
		return fmt.Errorf("default tenant is required")
	}

	return nil
}

// UsesDatabase reports whether the dictionary is read from SQL.
func (c *Config) UsesDatabase() bool {
	return c.Dictionary.Driver == DriverSQLite || c.Dictionary.Driver == DriverPostgres
}

// TenantDictionaryPath returns the dictionary file for a tenant. The default
// tenant uses Path itself; other tenants use <dir>/<tenant><ext>.
func (c *Config) TenantDictionaryPath(tenantID string) string {
	if tenantID == "" || tenantID == c.Tenancy.DefaultTenant {
		return c.Dictionary.Path
	}
	dir := filepath.Dir(c.Dictionary.Path)
	ext := filepath.Ext(c.Dictionary.Path)
	return filepath.Join(dir, tenantID+ext)
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DICTIONARY_DRIVER"); v != "" {
		cfg.Dictionary.Driver = v
	}

	if v := os.Getenv("DICTIONARY_PATH"); v != "" {
		cfg.Dictionary.Path = v
		if ext := strings.ToLower(filepath.Ext(v)); os.Getenv("DICTIONARY_DRIVER") == "" {
			switch ext {
			case ".yaml", ".yml":
				cfg.Dictionary.Driver = DriverYAML
			case ".csv":
				cfg.Dictionary.Driver = DriverCSV
			}
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Dictionary.Driver = DriverSQLite
			cfg.Dictionary.DSN = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Dictionary.Driver = DriverPostgres
			cfg.Dictionary.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("FILTER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Filter.Workers = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	if v := os.Getenv("DEFAULT_TENANT"); v != "" {
		cfg.Tenancy.DefaultTenant = v
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
