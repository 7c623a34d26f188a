package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), *cfg)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("RULESPEC_SERVER_ADDR", ":9090")
	t.Setenv("RULESPEC_HISTORY_QUERY_TIMEOUT", "500ms")
	t.Setenv("RULESPEC_HISTORY_MAX_SAMPLES", "42")
	t.Setenv("RULESPEC_DATABASE_DRIVER", "sqlite")
	t.Setenv("RULESPEC_DATABASE_URL", "file:samples.db")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 500*time.Millisecond, cfg.History.QueryTimeout)
	assert.Equal(t, 42, cfg.History.MaxSamples)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "file:samples.db", cfg.Database.URL)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rulespec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  request_timeout: 5s
history:
  cache_ttl: 30s
rulesets:
  dir: ./definitions
log:
  level: debug
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.History.CacheTTL)
	assert.Equal(t, "./definitions", cfg.RuleSets.Dir)
	assert.Equal(t, "default", cfg.RuleSets.DefaultTenant)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr, "unset keys keep defaults")

	_, err = NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"postgres without url", func(c *Config) { c.Database.Driver = DriverPostgres }, "database.url"},
		{"zero timeout", func(c *Config) { c.Server.RequestTimeout = 0 }, "server.request_timeout"},
		{"negative ttl", func(c *Config) { c.History.CacheTTL = -time.Second }, "history.cache_ttl"},
		{"zero samples", func(c *Config) { c.History.MaxSamples = 0 }, "history.max_samples"},
		{"dir without tenant", func(c *Config) { c.RuleSets.Dir = "x"; c.RuleSets.DefaultTenant = "" }, "rulesets.default_tenant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	cfg := DefaultConfig()
	cfg.Server.Addr = ""
	cfg.History.QueryTimeout = 0
	err := cfg.Validate()
	assert.ErrorContains(t, err, "server.addr")
	assert.ErrorContains(t, err, "history.query_timeout", "all problems are reported")
}
