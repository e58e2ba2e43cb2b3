// Package config loads and validates enricher configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every knob of the enrichment pipeline. Values come
// from an optional YAML file overridden by ENRICHER_* environment
// variables.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Render    RenderConfig    `mapstructure:"render"`
	Batch     BatchConfig     `mapstructure:"batch"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Tags      TagsConfig      `mapstructure:"tags"`
	Server    ServerConfig    `mapstructure:"server"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	History   HistoryConfig   `mapstructure:"history"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig governs the plain HTTP liveness fetcher.
type HTTPConfig struct {
	UserAgent         string `mapstructure:"user_agent"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	MaxRetries        int    `mapstructure:"max_retries"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds"`
}

// RenderConfig governs the headless browser fallback.
type RenderConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	NavTimeoutSeconds int  `mapstructure:"nav_timeout_seconds"`
	MaxRetries        int  `mapstructure:"max_retries"`
	RetryDelaySeconds int  `mapstructure:"retry_delay_seconds"`
}

// BatchConfig bounds the worker pool.
type BatchConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// RateLimitConfig is the per-host politeness limiter shared by the
// fetcher and the renderer. RPS at or below zero disables limiting.
type RateLimitConfig struct {
	PerHostRPS float64 `mapstructure:"per_host_rps"`
	Burst      int     `mapstructure:"burst"`
}

// LLMConfig configures the summarizer / tag suggester.
type LLMConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	APIKey        string `mapstructure:"api_key"`
	Model         string `mapstructure:"model"`
	MaxTokens     int    `mapstructure:"max_tokens"`
	MaxInputRunes int    `mapstructure:"max_input_runes"`
}

// CacheConfig controls the on-disk LLM response cache. An empty path
// disables caching.
type CacheConfig struct {
	Path     string `mapstructure:"path"`
	TTLHours int    `mapstructure:"ttl_hours"`
}

// TagsConfig points at the blessed-tags file used for linting.
type TagsConfig struct {
	BlessedPath string `mapstructure:"blessed_path"`
}

// ServerConfig controls the optional status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// SnapshotConfig selects the page snapshot backend: "" (disabled),
// "local", or "gcs".
type SnapshotConfig struct {
	Backend     string `mapstructure:"backend"`
	LocalDir    string `mapstructure:"local_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// HistoryConfig controls the optional Postgres run archive.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// PubSubConfig controls optional per-bookmark event publishing.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENRICHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("http.user_agent", "bookmark-enricher/0.1")
	v.SetDefault("http.timeout_seconds", 20)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.retry_delay_seconds", 10)
	v.SetDefault("render.enabled", true)
	v.SetDefault("render.nav_timeout_seconds", 60)
	v.SetDefault("render.max_retries", 1)
	v.SetDefault("render.retry_delay_seconds", 30)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("ratelimit.per_host_rps", 1.0)
	v.SetDefault("ratelimit.burst", 2)
	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.max_input_runes", 8000)
	v.SetDefault("cache.ttl_hours", 168)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("snapshot.prefix", "pages")
	v.SetDefault("snapshot.content_type", "text/html; charset=utf-8")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Render.Enabled && c.Render.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("render.nav_timeout_seconds must be > 0 when rendering is enabled")
	}
	if c.Batch.Concurrency <= 0 {
		return fmt.Errorf("batch.concurrency must be > 0")
	}
	if c.LLM.Enabled && c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key must be set when llm is enabled")
	}
	if c.LLM.Enabled && c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be > 0 when llm is enabled")
	}
	if c.Cache.Path != "" && c.Cache.TTLHours <= 0 {
		return fmt.Errorf("cache.ttl_hours must be > 0 when caching is enabled")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the status server is enabled")
	}
	switch c.Snapshot.Backend {
	case "", "local", "gcs":
	default:
		return fmt.Errorf("snapshot.backend must be empty, \"local\", or \"gcs\"")
	}
	if c.Snapshot.Backend == "local" && c.Snapshot.LocalDir == "" {
		return fmt.Errorf("snapshot.local_dir must be set for the local backend")
	}
	if c.Snapshot.Backend == "gcs" && c.Snapshot.GCSBucket == "" {
		return fmt.Errorf("snapshot.gcs_bucket must be set for the gcs backend")
	}
	if c.History.Enabled && c.History.DSN == "" {
		return fmt.Errorf("history.dsn must be set when history is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic must be set when pubsub is enabled")
	}
	return nil
}

// HTTPTimeout is the per-request budget for plain fetches.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// HTTPRetryDelay is the fixed pause between fetch retries.
func (c Config) HTTPRetryDelay() time.Duration {
	return time.Duration(c.HTTP.RetryDelaySeconds) * time.Second
}

// RenderNavTimeout is the navigation budget for headless renders.
func (c Config) RenderNavTimeout() time.Duration {
	return time.Duration(c.Render.NavTimeoutSeconds) * time.Second
}

// RenderRetryDelay is the fixed pause before the render retry.
func (c Config) RenderRetryDelay() time.Duration {
	return time.Duration(c.Render.RetryDelaySeconds) * time.Second
}

// CacheTTL is how long cached LLM responses stay valid.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}
