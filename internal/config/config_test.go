package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "discovery.db", cfg.Store.SQLitePath)
	assert.Equal(t, "tavily", cfg.Search.Provider)
	assert.Equal(t, 20, cfg.Search.MaxResults)
	assert.Equal(t, "advanced", cfg.Search.SearchDepth)
	assert.Equal(t, "https://s.jina.ai", cfg.Jina.SearchBaseURL)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, 3, cfg.Discovery.BatchSize)
	assert.Equal(t, 20000, cfg.Discovery.MaxContentChars)
	assert.Equal(t, 30, cfg.Discovery.CooldownDays)
	assert.Equal(t, 3, cfg.Discovery.Retry.MaxAttempts)
	assert.Equal(t, 30, cfg.Discovery.Retry.AttemptTimeoutSecs)
	assert.Equal(t, 1000, cfg.Discovery.Retry.InitialBackoffMs)
	assert.Equal(t, 10000, cfg.Discovery.Retry.MaxBackoffMs)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/food
search:
  provider: jina
discovery:
  batch_size: 5
  retry:
    max_attempts: 4
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/food", cfg.Store.DatabaseURL)
	assert.Equal(t, "jina", cfg.Search.Provider)
	assert.Equal(t, 5, cfg.Discovery.BatchSize)
	assert.Equal(t, 4, cfg.Discovery.Retry.MaxAttempts)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.Discovery.Retry.AttemptTimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("DISCOVERY_LOG_LEVEL", "warn")
	t.Setenv("DISCOVERY_TAVILY_KEY", "tvly-secret")
	t.Setenv("DISCOVERY_ANTHROPIC_KEY", "sk-ant-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "tvly-secret", cfg.Tavily.Key)
	assert.Equal(t, "sk-ant-secret", cfg.Anthropic.Key)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "DISCOVERY_TAVILY_KEY", EnvName("tavily.key"))
	assert.Equal(t, "DISCOVERY_STORE_DATABASE_URL", EnvName("store.database_url"))
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Search.Provider = "tavily"
	cfg.Discovery.BatchSize = 3
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateDiscover_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Tavily.Key = "tvly-key"
	cfg.Anthropic.Key = "sk-ant-key"

	assert.NoError(t, cfg.Validate("discover"))
}

func TestValidateDiscover_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("discover")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "tavily.key is required (DISCOVERY_TAVILY_KEY)")
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestValidateDiscover_JinaProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.Search.Provider = "jina"
	cfg.Anthropic.Key = "sk-ant-key"

	err := cfg.Validate("discover")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jina.key is required")
	assert.NotContains(t, err.Error(), "tavily.key")
}

func TestValidateDiscover_UnknownProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.Search.Provider = "bing"
	cfg.Anthropic.Key = "sk-ant-key"

	err := cfg.Validate("discover")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `search.provider "bing"`)
}

func TestValidateStore_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidate_UnknownSection(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown section")
}
