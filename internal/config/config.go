package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override, e.g. DISCOVERY_TAVILY_KEY.
const EnvPrefix = "DISCOVERY"

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Tavily    TavilyConfig    `yaml:"tavily" mapstructure:"tavily"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SearchConfig selects the web search provider.
type SearchConfig struct {
	Provider    string `yaml:"provider" mapstructure:"provider"` // "tavily" or "jina"
	MaxResults  int    `yaml:"max_results" mapstructure:"max_results"`
	SearchDepth string `yaml:"search_depth" mapstructure:"search_depth"`
}

// TavilyConfig holds Tavily search credentials.
type TavilyConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina AI Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// AnthropicConfig holds the extraction model settings.
type AnthropicConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Model      string `yaml:"model" mapstructure:"model"`
	MaxTokens  int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
	CacheTTL   string `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// GeocodeConfig configures the address geocoder.
type GeocodeConfig struct {
	GoogleKey    string  `yaml:"google_key" mapstructure:"google_key"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	CacheTTLMins int     `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
}

// DiscoveryConfig tunes the discovery pipeline.
type DiscoveryConfig struct {
	BatchSize          int         `yaml:"batch_size" mapstructure:"batch_size"`
	MaxContentChars    int         `yaml:"max_content_chars" mapstructure:"max_content_chars"`
	CooldownDays       int         `yaml:"cooldown_days" mapstructure:"cooldown_days"`
	ExtractTimeoutSecs int         `yaml:"extract_timeout_secs" mapstructure:"extract_timeout_secs"`
	GeocodeTimeoutSecs int         `yaml:"geocode_timeout_secs" mapstructure:"geocode_timeout_secs"`
	FreshnessMax       int         `yaml:"freshness_max" mapstructure:"freshness_max"`
	Retry              RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig configures search provider retries.
type RetryConfig struct {
	MaxAttempts        int `yaml:"max_attempts" mapstructure:"max_attempts"`
	AttemptTimeoutSecs int `yaml:"attempt_timeout_secs" mapstructure:"attempt_timeout_secs"`
	InitialBackoffMs   int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs       int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Credentials default to empty so env overrides reach Unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "discovery.db")
	v.SetDefault("search.provider", "tavily")
	v.SetDefault("search.max_results", 20)
	v.SetDefault("search.search_depth", "advanced")
	v.SetDefault("tavily.key", "")
	v.SetDefault("tavily.base_url", "https://api.tavily.com")
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.max_retries", 2)
	v.SetDefault("anthropic.cache_ttl", "5m")
	v.SetDefault("geocode.google_key", "")
	v.SetDefault("geocode.rate_limit", 5.0)
	v.SetDefault("geocode.cache_ttl_mins", 60)
	v.SetDefault("discovery.batch_size", 3)
	v.SetDefault("discovery.max_content_chars", 20000)
	v.SetDefault("discovery.cooldown_days", 30)
	v.SetDefault("discovery.extract_timeout_secs", 60)
	v.SetDefault("discovery.geocode_timeout_secs", 15)
	v.SetDefault("discovery.freshness_max", 10)
	v.SetDefault("discovery.retry.max_attempts", 3)
	v.SetDefault("discovery.retry.attempt_timeout_secs", 30)
	v.SetDefault("discovery.retry.initial_backoff_ms", 1000)
	v.SetDefault("discovery.retry.max_backoff_ms", 10000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// EnvName returns the environment variable that overrides key,
// e.g. "tavily.key" -> "DISCOVERY_TAVILY_KEY".
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Validate checks the settings a command needs. Sections: "store",
// "discover", "serve".
func (c *Config) Validate(section string) error {
	var problems []string
	required := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, fmt.Sprintf("%s is required (%s)", key, EnvName(key)))
		}
	}

	validateStore := func() {
		switch strings.ToLower(c.Store.Driver) {
		case "postgres", "postgresql", "pg":
			required("store.database_url", c.Store.DatabaseURL)
		case "sqlite", "":
		default:
			problems = append(problems, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
		}
	}

	switch section {
	case "store":
		validateStore()
	case "discover":
		validateStore()
		switch c.Search.Provider {
		case "tavily":
			required("tavily.key", c.Tavily.Key)
		case "jina":
			required("jina.key", c.Jina.Key)
		default:
			problems = append(problems, fmt.Sprintf("search.provider %q is not supported", c.Search.Provider))
		}
		required("anthropic.key", c.Anthropic.Key)
		if c.Discovery.BatchSize < 1 {
			problems = append(problems, "discovery.batch_size must be at least 1")
		}
	case "serve":
		validateStore()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
		}
	default:
		return eris.Errorf("config: unknown section %q", section)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
