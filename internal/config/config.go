// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/regwatch/regcrawler/internal/regwatch"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig                 `mapstructure:"server"`
	Logging    LoggingConfig                `mapstructure:"logging"`
	Crawler    CrawlerConfig                `mapstructure:"crawler"`
	Classifier ClassifierConfig             `mapstructure:"classifier"`
	Social     SocialConfig                 `mapstructure:"social"`
	DB         DBConfig                     `mapstructure:"db"`
	Archive    ArchiveConfig                `mapstructure:"archive"`
	PubSub     PubSubConfig                 `mapstructure:"pubsub"`
	Sources    []regwatch.SourceDescriptor  `mapstructure:"sources"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlerConfig governs crawl pipeline behavior.
type CrawlerConfig struct {
	UserAgent           string `mapstructure:"user_agent"`
	FetchTimeoutSeconds int    `mapstructure:"fetch_timeout_seconds"`
	FeedItemCap         int    `mapstructure:"feed_item_cap"`
	WebpageMaxChars     int    `mapstructure:"webpage_max_chars"`
	ClassifyBatchSize   int    `mapstructure:"classify_batch_size"`
}

// ClassifierConfig points at the external classification service.
type ClassifierConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	Model          string `mapstructure:"model"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxPromptChars int    `mapstructure:"max_prompt_chars"`
}

// SocialConfig points at the social-search service.
type SocialConfig struct {
	Endpoint     string `mapstructure:"endpoint"`
	BearerToken  string `mapstructure:"bearer_token"`
	MaxResults   int    `mapstructure:"max_results"`
	DelaySeconds int    `mapstructure:"delay_seconds"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory stores.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// ArchiveConfig selects the raw-payload archive backend.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`
	BaseDir  string `mapstructure:"base_dir"`
	Prefix   string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run-summary notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REGCRAWL")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("crawler.user_agent", "regcrawler/0.1")
	v.SetDefault("crawler.fetch_timeout_seconds", 30)
	v.SetDefault("crawler.feed_item_cap", 5)
	v.SetDefault("crawler.webpage_max_chars", 4000)
	v.SetDefault("crawler.classify_batch_size", 10)
	v.SetDefault("classifier.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("classifier.model", "gpt-4o-mini")
	v.SetDefault("classifier.timeout_seconds", 45)
	v.SetDefault("classifier.max_prompt_chars", 6000)
	v.SetDefault("social.max_results", 10)
	v.SetDefault("social.delay_seconds", 2)
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "raw")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.fetch_timeout_seconds must be > 0")
	}
	if c.Crawler.ClassifyBatchSize <= 0 {
		return fmt.Errorf("crawler.classify_batch_size must be > 0")
	}
	switch c.Archive.Provider {
	case "", "none", "memory", "local", "gcs":
	default:
		return fmt.Errorf("unknown archive provider %q", c.Archive.Provider)
	}
	if c.Archive.Provider == "gcs" && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket must be set when archive provider is gcs")
	}
	if c.Archive.Provider == "local" && c.Archive.BaseDir == "" {
		return fmt.Errorf("archive.base_dir must be set when archive provider is local")
	}
	for i, src := range c.Sources {
		if err := validateSource(src); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
	}
	return nil
}

func validateSource(src regwatch.SourceDescriptor) error {
	if src.ID == "" {
		return fmt.Errorf("id is required")
	}
	switch src.Kind {
	case regwatch.SourceKindWebpage, regwatch.SourceKindFeed,
		regwatch.SourceKindNewsSearch, regwatch.SourceKindSocialSearch:
	default:
		return fmt.Errorf("unknown kind %q", src.Kind)
	}
	if src.Kind != regwatch.SourceKindSocialSearch && src.URL == "" {
		return fmt.Errorf("url is required for kind %q", src.Kind)
	}
	if src.Kind == regwatch.SourceKindSocialSearch && src.Query == "" {
		return fmt.Errorf("query is required for social_search sources")
	}
	if src.Reliability < 1 || src.Reliability > 5 {
		return fmt.Errorf("reliability must be in [1,5]")
	}
	return nil
}

// FetchTimeout converts the crawler fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.FetchTimeoutSeconds) * time.Second
}

// SocialDelay converts the rate-limited lane delay into a duration.
func (c Config) SocialDelay() time.Duration {
	return time.Duration(c.Social.DelaySeconds) * time.Second
}
