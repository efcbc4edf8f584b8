package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/duckstack/duckstack/pkg/models"
)

// Config holds all duckstack configuration.
type Config struct {
	Listen  string                    `yaml:"listen"`
	DBPath  string                    `yaml:"db_path"`
	Fetch   FetchConfig               `yaml:"fetch"`
	Query   QueryConfig               `yaml:"query"`
	Cache   CacheConfig               `yaml:"cache"`
	Audit   models.AuditConfig        `yaml:"audit"`
	Logging LoggingConfig             `yaml:"logging"`
	Sources []models.SourceDefinition `yaml:"sources"`
}

// FetchConfig controls upstream HTTP requests.
type FetchConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	UserAgent    string        `yaml:"user_agent"`
}

// QueryConfig controls the SQL engine used for post-filters and raw queries.
type QueryConfig struct {
	DBPath  string `yaml:"db_path"`
	MaxRows int    `yaml:"max_rows"`
}

// CacheConfig controls the result cache. Entry lifetimes come from each
// source's ttl_seconds.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig selects log level and output format.
// Format is "console" (default) or "json".
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: DefaultDBPath(),
		Fetch: FetchConfig{
			Timeout:      30 * time.Second,
			MaxBodyBytes: 64 << 20,
			UserAgent:    "duckstack/dev",
		},
		Query: QueryConfig{
			DBPath:  ":memory:",
			MaxRows: 10000,
		},
		Cache: CacheConfig{
			Enabled: true,
		},
		Audit: models.AuditConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultConfigPath is where commands look for a config file when --config
// is not given.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "duckstack", "config.yaml")
}

// DefaultDBPath is the catalog and fetch log database location.
func DefaultDBPath() string {
	return filepath.Join(xdg.DataHome, "duckstack", "duckstack.db")
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path if it exists and falls back to defaults when the
// file is missing.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// AuditDBPath returns the fetch log database, which shares the main
// database unless audit.db_path is set.
func (c *Config) AuditDBPath() string {
	if c.Audit.DBPath != "" {
		return c.Audit.DBPath
	}
	return c.DBPath
}

func (c *Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive, got %s", c.Fetch.Timeout)
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch.max_body_bytes must be positive, got %d", c.Fetch.MaxBodyBytes)
	}
	if c.Query.MaxRows <= 0 {
		return fmt.Errorf("query.max_rows must be positive, got %d", c.Query.MaxRows)
	}
	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit.retention_days must not be negative")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format %q: want console or json", c.Logging.Format)
	}

	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		src := &c.Sources[i]
		if err := src.Validate(); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
		if seen[src.Name] {
			return fmt.Errorf("sources[%d]: duplicate source name %q", i, src.Name)
		}
		seen[src.Name] = true
	}
	return nil
}
