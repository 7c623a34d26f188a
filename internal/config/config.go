// Package config loads service configuration from defaults, an optional
// config file and RULESPEC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RULESPEC_SERVER_ADDR
const EnvPrefix = "RULESPEC"

// Database drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the service configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	History  HistoryConfig  `mapstructure:"history"`
	RuleSets RuleSetsConfig `mapstructure:"rulesets"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig selects storage for rule sets and samples. The memory
// driver keeps everything in process; sqlite stores samples only.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

type HistoryConfig struct {
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	MaxSamples   int           `mapstructure:"max_samples"`
}

// RuleSetsConfig names a directory of YAML definitions preloaded into the
// default tenant at startup
type RuleSetsConfig struct {
	Dir           string `mapstructure:"dir"`
	DefaultTenant string `mapstructure:"default_tenant"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: DriverMemory,
		},
		History: HistoryConfig{
			QueryTimeout: 2 * time.Second,
			MaxSamples:   10000,
		},
		RuleSets: RuleSetsConfig{
			DefaultTenant: "default",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Loader reads configuration through viper
type Loader struct {
	v          *viper.Viper
	configPath string
}

// NewLoader creates a loader honoring RULESPEC_* environment variables
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// WithConfigPath sets an explicit config file
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// Viper exposes the underlying instance so commands can bind flags
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load merges defaults, the config file and the environment, then validates
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("server.addr", defaults.Server.Addr)
	l.v.SetDefault("server.request_timeout", defaults.Server.RequestTimeout)

	l.v.SetDefault("database.driver", defaults.Database.Driver)
	l.v.SetDefault("database.url", defaults.Database.URL)

	l.v.SetDefault("history.query_timeout", defaults.History.QueryTimeout)
	l.v.SetDefault("history.cache_ttl", defaults.History.CacheTTL)
	l.v.SetDefault("history.max_samples", defaults.History.MaxSamples)

	l.v.SetDefault("rulesets.dir", defaults.RuleSets.Dir)
	l.v.SetDefault("rulesets.default_tenant", defaults.RuleSets.DefaultTenant)

	l.v.SetDefault("log.level", defaults.Log.Level)
}

// Validate checks value ranges and cross-field requirements
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout must be positive, got %s", c.Server.RequestTimeout))
	}

	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.Database.URL == "" {
			errs = append(errs, fmt.Errorf("database.url is required for driver %s", c.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver must be one of %s, %s, %s; got %q",
			DriverMemory, DriverPostgres, DriverSQLite, c.Database.Driver))
	}

	if c.History.QueryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("history.query_timeout must be positive, got %s", c.History.QueryTimeout))
	}
	if c.History.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("history.cache_ttl must not be negative, got %s", c.History.CacheTTL))
	}
	if c.History.MaxSamples <= 0 {
		errs = append(errs, fmt.Errorf("history.max_samples must be positive, got %d", c.History.MaxSamples))
	}
	if c.RuleSets.Dir != "" && c.RuleSets.DefaultTenant == "" {
		errs = append(errs, errors.New("rulesets.default_tenant is required when rulesets.dir is set"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
