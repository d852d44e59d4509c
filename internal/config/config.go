package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Crawl     CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
	Approval  ApprovalConfig  `yaml:"approval" mapstructure:"approval"`
	Chunker   ChunkerConfig   `yaml:"chunker" mapstructure:"chunker"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Aggregate AggregateConfig `yaml:"aggregate" mapstructure:"aggregate"`
	Session   SessionConfig   `yaml:"session" mapstructure:"session"`
	Registry  RegistryConfig  `yaml:"registry" mapstructure:"registry"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Monitor   MonitorConfig   `yaml:"monitor" mapstructure:"monitor"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects and connects the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	PostgresURL string `yaml:"postgres_url" mapstructure:"postgres_url"`
}

// CacheConfig points at the Redis fetch cache. An empty Addr disables
// caching entirely.
type CacheConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours" validate:"gte=0"`
}

// FetchConfig tunes the outbound web fetch client.
type FetchConfig struct {
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gt=0"`
	PerHostRate    float64 `yaml:"per_host_rate" mapstructure:"per_host_rate" validate:"gt=0"`
	PerHostBurst   int     `yaml:"per_host_burst" mapstructure:"per_host_burst" validate:"gt=0"`
	MaxBodyMB      int64   `yaml:"max_body_mb" mapstructure:"max_body_mb" validate:"gt=0"`
	RenderEnabled  bool    `yaml:"render_enabled" mapstructure:"render_enabled"`
	RetryAttempts  int     `yaml:"retry_attempts" mapstructure:"retry_attempts" validate:"gte=1"`
	BreakerTrips   int     `yaml:"breaker_trips" mapstructure:"breaker_trips" validate:"gte=1"`
	BreakerCooloff int     `yaml:"breaker_cooloff_secs" mapstructure:"breaker_cooloff_secs" validate:"gte=1"`
}

// CrawlConfig bounds discovery.
type CrawlConfig struct {
	MaxDepth    int `yaml:"max_depth" mapstructure:"max_depth" validate:"gte=0,lte=3"`
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency" validate:"gt=0"`
	MaxPages    int `yaml:"max_pages" mapstructure:"max_pages" validate:"gt=0"`
	HighCutoff  int `yaml:"high_cutoff" mapstructure:"high_cutoff" validate:"gt=0"`
}

// ApprovalConfig is the source review auto-approval default.
type ApprovalConfig struct {
	MinContentChars int `yaml:"min_content_chars" mapstructure:"min_content_chars" validate:"gte=0"`
}

// ChunkerConfig sizes content chunks for indexing.
type ChunkerConfig struct {
	MinChars int `yaml:"min_chars" mapstructure:"min_chars" validate:"gt=0"`
	MaxChars int `yaml:"max_chars" mapstructure:"max_chars" validate:"gt=0"`
	Overlap  int `yaml:"overlap" mapstructure:"overlap" validate:"gte=0"`
}

// AnthropicConfig drives the model-based extraction pass. An empty APIKey
// degrades every pipeline to pattern-only extraction.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gt=0"`
}

// PipelineConfig tunes the extraction pipeline runner.
type PipelineConfig struct {
	Parallelism  int     `yaml:"parallelism" mapstructure:"parallelism" validate:"gt=0"`
	MinRelevance float64 `yaml:"min_relevance" mapstructure:"min_relevance" validate:"gte=0,lte=1"`
	MaxSources   int     `yaml:"max_sources" mapstructure:"max_sources" validate:"gt=0"`
}

// AggregateConfig is the merge policy: confidence bucket thresholds and how
// an L1 value conflict between pattern and model extractions resolves.
type AggregateConfig struct {
	HighThreshold   float64 `yaml:"high_threshold" mapstructure:"high_threshold" validate:"gt=0,lte=1"`
	MediumThreshold float64 `yaml:"medium_threshold" mapstructure:"medium_threshold" validate:"gt=0,lte=1"`
	ConflictPolicy  string  `yaml:"conflict_policy" mapstructure:"conflict_policy" validate:"oneof=prefer_model prefer_confidence"`
}

// SessionConfig governs session lifecycle in serve mode.
type SessionConfig struct {
	IdleTTLMins int    `yaml:"idle_ttl_mins" mapstructure:"idle_ttl_mins" validate:"gt=0"`
	JanitorSpec string `yaml:"janitor_spec" mapstructure:"janitor_spec"`
}

// RegistryConfig points at optional YAML overrides for the bank, category,
// and dispatch tables.
type RegistryConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port" validate:"gt=0,lte=65535"`
}

// MonitorConfig tunes the metrics collector and alerter.
type MonitorConfig struct {
	LookbackHours        int     `yaml:"lookback_hours" mapstructure:"lookback_hours" validate:"gt=0"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs" validate:"gt=0"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold" validate:"gte=0,lte=1"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures the global zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (optional) and the environment,
// then validates it. Nothing runs on a config that fails validation.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BENEFIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "benefit.db")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("fetch.user_agent", "benefit-cli/1.0 (+https://github.com/cardlens/benefit-cli)")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.per_host_rate", 2.0)
	v.SetDefault("fetch.per_host_burst", 4)
	v.SetDefault("fetch.max_body_mb", 20)
	v.SetDefault("fetch.retry_attempts", 3)
	v.SetDefault("fetch.breaker_trips", 5)
	v.SetDefault("fetch.breaker_cooloff_secs", 60)
	v.SetDefault("crawl.max_depth", 1)
	v.SetDefault("crawl.concurrency", 5)
	v.SetDefault("crawl.max_pages", 50)
	v.SetDefault("crawl.high_cutoff", 5)
	v.SetDefault("approval.min_content_chars", 100)
	v.SetDefault("chunker.min_chars", 80)
	v.SetDefault("chunker.max_chars", 800)
	v.SetDefault("chunker.overlap", 50)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2000)
	v.SetDefault("pipeline.parallelism", 4)
	v.SetDefault("pipeline.min_relevance", 0.3)
	v.SetDefault("pipeline.max_sources", 15)
	v.SetDefault("aggregate.high_threshold", 0.75)
	v.SetDefault("aggregate.medium_threshold", 0.4)
	v.SetDefault("aggregate.conflict_policy", "prefer_model")
	v.SetDefault("session.idle_ttl_mins", 120)
	v.SetDefault("session.janitor_spec", "@every 5m")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitor.lookback_hours", 24)
	v.SetDefault("monitor.check_interval_secs", 300)
	v.SetDefault("monitor.failure_rate_threshold", 0.3)
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

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: validate")
	}

	return &cfg, nil
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
