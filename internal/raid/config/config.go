// Package config loads server and CLI settings from defaults, an optional
// YAML file and RAID_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. RAID_SOLVER_TIMEOUT.
const EnvPrefix = "RAID"

// Config is the complete configuration.
type Config struct {
	DB       DBConfig       `mapstructure:"db"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Solver   SolverConfig   `mapstructure:"solver"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Log      LogConfig      `mapstructure:"log"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

// CatalogConfig names the explosive and structure tables imported at startup.
// Either may be empty when the catalog is already stored in the database.
type CatalogConfig struct {
	Explosives string `mapstructure:"explosives"`
	Structures string `mapstructure:"structures"`
}

type HTTPConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

type SolverConfig struct {
	// Timeout bounds a single solve.
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxNodes     int           `mapstructure:"max_nodes"`
	MaxInstances int           `mapstructure:"max_instances"`
	MaxPatterns  int           `mapstructure:"max_patterns"`
}

type ResolverConfig struct {
	CacheSize      int `mapstructure:"cache_size"`
	MaxSuggestions int `mapstructure:"max_suggestions"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.path", "raid.db")
	v.SetDefault("catalog.explosives", "")
	v.SetDefault("catalog.structures", "")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.request_timeout", 30*time.Second)
	v.SetDefault("http.max_body_bytes", 1<<20)
	v.SetDefault("solver.timeout", 10*time.Second)
	v.SetDefault("solver.max_nodes", 200000)
	v.SetDefault("solver.max_instances", 500)
	v.SetDefault("solver.max_patterns", 20000)
	v.SetDefault("resolver.cache_size", 256)
	v.SetDefault("resolver.max_suggestions", 3)
	v.SetDefault("log.level", "info")
}

// NewViper returns a viper instance with defaults and environment bindings
// applied and, if path is set, the file at path read in. Callers may bind
// command-line flags on it before calling Decode.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	return v, nil
}

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is NewViper followed by Decode.
func Load(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// Validate checks for invalid configuration values.
func (c *Config) Validate() error {
	var errs []error
	if c.DB.Path == "" {
		errs = append(errs, errors.New("db.path must not be empty"))
	}
	if (c.Catalog.Explosives == "") != (c.Catalog.Structures == "") {
		errs = append(errs, errors.New("catalog.explosives and catalog.structures must be set together"))
	}
	if c.HTTP.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http.request_timeout must be > 0, got %s", c.HTTP.RequestTimeout))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("http.max_body_bytes must be > 0, got %d", c.HTTP.MaxBodyBytes))
	}
	if c.Solver.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("solver.timeout must be > 0, got %s", c.Solver.Timeout))
	}
	if c.Solver.MaxNodes <= 0 {
		errs = append(errs, fmt.Errorf("solver.max_nodes must be > 0, got %d", c.Solver.MaxNodes))
	}
	if c.Solver.MaxInstances <= 0 {
		errs = append(errs, fmt.Errorf("solver.max_instances must be > 0, got %d", c.Solver.MaxInstances))
	}
	if c.Solver.MaxPatterns <= 0 {
		errs = append(errs, fmt.Errorf("solver.max_patterns must be > 0, got %d", c.Solver.MaxPatterns))
	}
	if c.Resolver.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("resolver.cache_size must be > 0, got %d", c.Resolver.CacheSize))
	}
	if c.Resolver.MaxSuggestions < 0 {
		errs = append(errs, fmt.Errorf("resolver.max_suggestions must be >= 0, got %d", c.Resolver.MaxSuggestions))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level {
	level, _ := ParseLevel(c.Log.Level)
	return level
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
