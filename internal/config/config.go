// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Render     RenderConfig     `mapstructure:"render"`
	Frontier   FrontierConfig   `mapstructure:"frontier"`
	EventLog   EventLogConfig   `mapstructure:"eventlog"`
	Mirror     MirrorConfig     `mapstructure:"mirror"`
	APISource  APISourceConfig  `mapstructure:"apisource"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// CrawlerConfig governs the crawl loop and the storage layout.
type CrawlerConfig struct {
	SeedFile     string        `mapstructure:"seed_file"`
	OutputDir    string        `mapstructure:"output_dir"`
	MinFileBytes int           `mapstructure:"min_file_bytes"`
	DelayMean    time.Duration `mapstructure:"delay_mean"`
	DelayStdDev  time.Duration `mapstructure:"delay_stddev"`
	DelayFloor   time.Duration `mapstructure:"delay_floor"`
	EmptyWait    time.Duration `mapstructure:"empty_wait"`
	Shuffle      bool          `mapstructure:"shuffle"`
}

// PolitenessConfig controls robots evaluation and domain scoping.
type PolitenessConfig struct {
	DomainMode         string        `mapstructure:"domain_mode"`
	RobotsTimeout      time.Duration `mapstructure:"robots_timeout"`
	InconclusivePolicy string        `mapstructure:"inconclusive_policy"`
	InsecureTLS        bool          `mapstructure:"insecure_tls"`
}

// FetchConfig configures the raw HTTP tiers.
type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBodyBytes int           `mapstructure:"max_body_bytes"`
	UserAgents   []string      `mapstructure:"user_agents"`
}

// RenderConfig configures the headless rendering tier.
type RenderConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	ExecPath        string        `mapstructure:"exec_path"`
	NavTimeout      time.Duration `mapstructure:"nav_timeout"`
	PreviewSelector string        `mapstructure:"preview_selector"`
	PreviewTimeout  time.Duration `mapstructure:"preview_timeout"`
	Settle          time.Duration `mapstructure:"settle"`
}

// FrontierConfig selects the URL frontier backend.
type FrontierConfig struct {
	Backend       string `mapstructure:"backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	QueueKey      string `mapstructure:"queue_key"`
	SeenKey       string `mapstructure:"seen_key"`
	DownloadsKey  string `mapstructure:"downloads_key"`
}

// EventLogConfig holds the optional download-log fan-out targets.
type EventLogConfig struct {
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table"`
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
}

// MirrorConfig configures the optional GCS copy of archived artifacts.
type MirrorConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// APISourceConfig configures the upstream document-listing API.
type APISourceConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Sort     string        `mapstructure:"sort"`
	PageSize int           `mapstructure:"page_size"`
	MaxPages int           `mapstructure:"max_pages"`
	RPS      float64       `mapstructure:"rps"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ServerConfig controls the optional status server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features and the log file copy.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// Load builds a Config from disk/environment. With an empty path it looks
// for harvester.yaml in the working directory, /etc/harvester and
// $HOME/.harvester, and falls back to defaults when none exists.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := v.BindEnv("apisource.api_key", "HARVESTER_APISOURCE_API_KEY", "REGULATIONS_GOV_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind api key env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("harvester")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/harvester/")
		v.AddConfigPath("$HOME/.harvester")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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
	v.SetDefault("crawler.seed_file", "urls_to_crawl.txt")
	v.SetDefault("crawler.output_dir", "downloads")
	v.SetDefault("crawler.min_file_bytes", 50)
	v.SetDefault("crawler.delay_mean", 3*time.Second)
	v.SetDefault("crawler.delay_stddev", time.Second)
	v.SetDefault("crawler.delay_floor", 2*time.Second)
	v.SetDefault("crawler.empty_wait", 10*time.Second)
	v.SetDefault("crawler.shuffle", true)
	v.SetDefault("politeness.domain_mode", "publicsuffix")
	v.SetDefault("politeness.robots_timeout", 10*time.Second)
	v.SetDefault("politeness.inconclusive_policy", "allow")
	v.SetDefault("politeness.insecure_tls", true)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.max_body_bytes", 64<<20)
	v.SetDefault("render.enabled", true)
	v.SetDefault("render.nav_timeout", 120*time.Second)
	v.SetDefault("render.preview_selector", "button.preview-button")
	v.SetDefault("render.preview_timeout", 10*time.Second)
	v.SetDefault("render.settle", 5*time.Second)
	v.SetDefault("frontier.backend", "redis")
	v.SetDefault("frontier.redis_addr", "localhost:6379")
	v.SetDefault("frontier.redis_db", 0)
	v.SetDefault("frontier.queue_key", "url_queue")
	v.SetDefault("frontier.seen_key", "seen_urls")
	v.SetDefault("frontier.downloads_key", "downloaded_files")
	v.SetDefault("eventlog.postgres_table", "downloads")
	v.SetDefault("mirror.prefix", "archive")
	v.SetDefault("apisource.enabled", false)
	v.SetDefault("apisource.endpoint", "https://api.regulations.gov/v4/documents")
	v.SetDefault("apisource.sort", "-publicationDate")
	v.SetDefault("apisource.page_size", 100)
	v.SetDefault("apisource.max_pages", 1)
	v.SetDefault("apisource.rps", 1.0)
	v.SetDefault("apisource.timeout", 30*time.Second)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Crawler.SeedFile) == "" {
		return fmt.Errorf("crawler.seed_file is required")
	}
	if strings.TrimSpace(c.Crawler.OutputDir) == "" {
		return fmt.Errorf("crawler.output_dir is required")
	}
	if c.Crawler.MinFileBytes < 0 {
		return fmt.Errorf("crawler.min_file_bytes must be >= 0")
	}
	if c.Crawler.DelayFloor < 0 || c.Crawler.DelayStdDev < 0 || c.Crawler.DelayMean < 0 {
		return fmt.Errorf("crawler delay settings must be >= 0")
	}
	if c.Crawler.EmptyWait <= 0 {
		return fmt.Errorf("crawler.empty_wait must be > 0")
	}
	switch c.Politeness.DomainMode {
	case "publicsuffix", "labels":
	default:
		return fmt.Errorf("politeness.domain_mode must be publicsuffix or labels, got %q", c.Politeness.DomainMode)
	}
	switch c.Politeness.InconclusivePolicy {
	case "allow", "deny":
	default:
		return fmt.Errorf("politeness.inconclusive_policy must be allow or deny, got %q", c.Politeness.InconclusivePolicy)
	}
	if c.Politeness.RobotsTimeout <= 0 {
		return fmt.Errorf("politeness.robots_timeout must be > 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Render.Enabled && c.Render.NavTimeout <= 0 {
		return fmt.Errorf("render.nav_timeout must be > 0 when rendering is enabled")
	}
	switch c.Frontier.Backend {
	case "memory":
	case "redis":
		if c.Frontier.RedisAddr == "" {
			return fmt.Errorf("frontier.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("frontier.backend must be memory or redis, got %q", c.Frontier.Backend)
	}
	if c.EventLog.PubSubTopic != "" && c.EventLog.PubSubProject == "" {
		return fmt.Errorf("eventlog.pubsub_project is required when a topic is set")
	}
	if c.APISource.Enabled {
		if c.APISource.APIKey == "" {
			return fmt.Errorf("apisource.api_key must be set when the api source is enabled")
		}
		if c.APISource.PageSize <= 0 || c.APISource.MaxPages <= 0 {
			return fmt.Errorf("apisource.page_size and apisource.max_pages must be > 0")
		}
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// Addr returns the listen address for the status server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
