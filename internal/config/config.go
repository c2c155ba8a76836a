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
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Summary   SummaryConfig   `mapstructure:"summary"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Lock      LockConfig      `mapstructure:"lock"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MinConns     int32  `mapstructure:"min_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// HTTPConfig configures the outbound HTTP client used by adapters.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SourcesConfig carries per-adapter knobs. URLs default to the live
// endpoints and are overridable for testing.
type SourcesConfig struct {
	Catalog CatalogConfig `mapstructure:"catalog"`
	Krebs   BlogConfig    `mapstructure:"krebs"`
	MSRC    BlogConfig    `mapstructure:"msrc"`
	VulnDB  VulnDBConfig  `mapstructure:"vulndb"`
	Exploit ExploitConfig `mapstructure:"exploit"`
	User    UserConfig    `mapstructure:"user"`
}

// CatalogConfig configures the vulnerability catalog adapter.
type CatalogConfig struct {
	URLs    []string `mapstructure:"urls"`
	PageURL string   `mapstructure:"page_url"`
	Limit   int      `mapstructure:"limit"`
}

// BlogConfig configures one blog syndication adapter.
type BlogConfig struct {
	FeedURL string `mapstructure:"feed_url"`
	Limit   int    `mapstructure:"limit"`
}

// VulnDBConfig configures the vulnerability database adapter.
type VulnDBConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Days     int    `mapstructure:"days"`
	MaxItems int    `mapstructure:"max_items"`
	PageSize int    `mapstructure:"page_size"`
}

// ExploitConfig configures the exploit listing feed adapter.
type ExploitConfig struct {
	FeedURL string `mapstructure:"feed_url"`
	Limit   int    `mapstructure:"limit"`
}

// UserConfig bounds the user subscription sweep.
type UserConfig struct {
	MaxSources      int `mapstructure:"max_sources"`
	MaxItemsPerFeed int `mapstructure:"max_items_per_feed"`
}

// SummaryConfig bounds extractive summaries.
type SummaryConfig struct {
	MaxChars     int `mapstructure:"max_chars"`
	MaxSentences int `mapstructure:"max_sentences"`
}

// SchedulerConfig controls the periodic trigger and startup kickoff.
type SchedulerConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	IntervalSeconds   int  `mapstructure:"interval_seconds"`
	KickoffTTLSeconds int  `mapstructure:"kickoff_ttl_seconds"`
}

// LockConfig names the fetch phase lock and bounds acquisition waits.
type LockConfig struct {
	Name           string `mapstructure:"name"`
	RetryMs        int    `mapstructure:"retry_ms"`
	MaxRetryMs     int    `mapstructure:"max_retry_ms"`
	AcquireTimeout int    `mapstructure:"acquire_timeout_seconds"`
}

// PubSubConfig holds metadata for the downstream recommend trigger.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
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
	v.SetEnvPrefix("CTIHUB")
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
	// Keys without a natural default still need one registered, or
	// environment-only overrides never reach Unmarshal.
	v.SetDefault("db.dsn", "")
	v.SetDefault("sources.vulndb.api_key", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.ensure_schema", true)
	v.SetDefault("http.user_agent", "ctihub-crawler/1.0")
	v.SetDefault("http.timeout_seconds", 25)
	v.SetDefault("sources.catalog.urls", []string{
		"https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json",
		"https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.csv.json",
	})
	v.SetDefault("sources.catalog.page_url", "https://www.cisa.gov/known-exploited-vulnerabilities-catalog")
	v.SetDefault("sources.catalog.limit", 2000)
	v.SetDefault("sources.krebs.feed_url", "https://krebsonsecurity.com/feed/")
	v.SetDefault("sources.krebs.limit", 40)
	v.SetDefault("sources.msrc.feed_url", "https://msrc.microsoft.com/blog/feed/")
	v.SetDefault("sources.msrc.limit", 40)
	v.SetDefault("sources.vulndb.base_url", "https://services.nvd.nist.gov/rest/json/cves/2.0")
	v.SetDefault("sources.vulndb.days", 7)
	v.SetDefault("sources.vulndb.max_items", 200)
	v.SetDefault("sources.vulndb.page_size", 2000)
	v.SetDefault("sources.exploit.feed_url", "https://www.exploit-db.com/rss.xml")
	v.SetDefault("sources.exploit.limit", 60)
	v.SetDefault("sources.user.max_sources", 200)
	v.SetDefault("sources.user.max_items_per_feed", 40)
	v.SetDefault("summary.max_chars", 260)
	v.SetDefault("summary.max_sentences", 3)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval_seconds", 600)
	v.SetDefault("scheduler.kickoff_ttl_seconds", 300)
	v.SetDefault("lock.name", "ctihub:fetch")
	v.SetDefault("lock.retry_ms", 250)
	v.SetDefault("lock.max_retry_ms", 5000)
	v.SetDefault("lock.acquire_timeout_seconds", 0)
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.topic_name", "intel-recommend")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Summary.MaxChars <= 0 {
		return fmt.Errorf("summary.max_chars must be > 0")
	}
	if c.Sources.VulnDB.Days <= 0 {
		return fmt.Errorf("sources.vulndb.days must be > 0")
	}
	if c.Scheduler.Enabled && c.Scheduler.IntervalSeconds <= 0 {
		return fmt.Errorf("scheduler.interval_seconds must be > 0 when the scheduler is enabled")
	}
	if c.PubSub.Enabled && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub is enabled")
	}
	return nil
}

// HTTPTimeout returns the outbound client timeout as a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Interval returns the scheduler period as a duration.
func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// KickoffTTL returns the startup claim lifetime as a duration.
func (c SchedulerConfig) KickoffTTL() time.Duration {
	return time.Duration(c.KickoffTTLSeconds) * time.Second
}
