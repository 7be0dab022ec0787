// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server           ServerConfig      `mapstructure:"server"`
	Auth             AuthConfig        `mapstructure:"auth"`
	Scraper          ScraperConfig     `mapstructure:"scraper"`
	Headless         HeadlessConfig    `mapstructure:"headless"`
	Storage          StorageConfig     `mapstructure:"storage"`
	DB               DBConfig          `mapstructure:"db"`
	PubSub           PubSubConfig      `mapstructure:"pubsub"`
	Logging          LoggingConfig     `mapstructure:"logging"`
	StandardChannels map[string]string `mapstructure:"standard_channels"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScraperConfig governs the scrape pipeline.
type ScraperConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	DelaySeconds   int    `mapstructure:"delay_seconds"`
	MaxComments    int    `mapstructure:"max_comments"`
	QueueDepth     int    `mapstructure:"queue_depth"`
	IgnoreRobots   bool   `mapstructure:"ignore_robots"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	ScrollPasses    int  `mapstructure:"scroll_passes"`
	SettleMillis    int  `mapstructure:"settle_ms"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// StorageConfig selects and configures the page-snapshot blob store.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"` // memory, local, gcs
	BaseDir     string `mapstructure:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls access to the relational catalog store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("YTSCRAPER")
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

	// Applied after unmarshal because Viper lowercases map keys, and the
	// channel display names must survive as written.
	if len(cfg.StandardChannels) == 0 {
		cfg.StandardChannels = defaultStandardChannels()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultStandardChannels is the out-of-box channel set scraped when a
// channels request carries no body.
func defaultStandardChannels() map[string]string {
	return map[string]string{
		"iNeuron":        "https://www.youtube.com/@iNeuroniNtelligence",
		"Krish Naik":     "https://www.youtube.com/@krishnaik06",
		"College Wallah": "https://www.youtube.com/@CollegeWallahbyPW",
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("scraper.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("scraper.delay_seconds", 2)
	v.SetDefault("scraper.max_comments", 5)
	v.SetDefault("scraper.queue_depth", 8)
	v.SetDefault("scraper.ignore_robots", true)
	v.SetDefault("scraper.timeout_seconds", 15)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.scroll_passes", 3)
	v.SetDefault("headless.settle_ms", 2000)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.TimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.timeout_seconds must be > 0")
	}
	if c.Scraper.MaxComments <= 0 {
		return fmt.Errorf("scraper.max_comments must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case "memory", "local", "gcs":
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs")
	}
	if c.Storage.Backend == "local" && c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir must be set for the local backend")
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
	}
	return nil
}

// PolitenessDelay returns the configured delay between channel scrapes.
func (c Config) PolitenessDelay() time.Duration {
	return time.Duration(c.Scraper.DelaySeconds) * time.Second
}

// NavTimeout returns the headless navigation timeout.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

// FetchTimeout returns the probe fetch timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Scraper.TimeoutSeconds) * time.Second
}
