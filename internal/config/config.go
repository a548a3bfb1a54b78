// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Firehose FirehoseConfig `mapstructure:"firehose"`
	Bots     BotsConfig     `mapstructure:"bots"`
	LLM      LLMConfig      `mapstructure:"llm"`
	MovieDoc MovieDocConfig `mapstructure:"moviedoc"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
}

// ServerConfig controls the ops HTTP server (health + metrics).
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// FirehoseConfig points the live engine at the jetstream endpoint.
type FirehoseConfig struct {
	URL            string   `mapstructure:"url"`
	Collections    []string `mapstructure:"collections"`
	ReconnectDelay int      `mapstructure:"reconnect_delay_seconds"`
}

// BotsConfig locates bot accounts and their reply material.
type BotsConfig struct {
	ServiceFile string `mapstructure:"service_file"`
	ImagesDir   string `mapstructure:"images_dir"`
	SessionDir  string `mapstructure:"session_dir"`
	ServiceURL  string `mapstructure:"service_url"`
	AppViewURL  string `mapstructure:"appview_url"`
}

// LLMConfig configures the text-generation collaborator.
type LLMConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKeyEnv   string  `mapstructure:"api_key_env"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
}

// MovieDocConfig configures the document discovery and render collaborators.
type MovieDocConfig struct {
	SearchURL string `mapstructure:"search_url"`
	RenderURL string `mapstructure:"render_url"`
	CacheDir  string `mapstructure:"cache_dir"`
}

// CrawlConfig governs the batch crawler.
type CrawlConfig struct {
	HostsFile      string  `mapstructure:"hosts_file"`
	PrimaryMarker  string  `mapstructure:"primary_marker"`
	CheckpointPath string  `mapstructure:"checkpoint_path"`
	OutputPath     string  `mapstructure:"output_path"`
	ErrorThreshold int     `mapstructure:"error_threshold"`
	ListPagesRPS   float64 `mapstructure:"list_pages_rps"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BOTFLEET")
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
	v.SetDefault("firehose.url", "wss://jetstream1.us-east.bsky.network/subscribe")
	v.SetDefault("firehose.collections", []string{"app.bsky.feed.post"})
	v.SetDefault("firehose.reconnect_delay_seconds", 10)
	v.SetDefault("bots.images_dir", "images")
	v.SetDefault("bots.session_dir", "sessions")
	v.SetDefault("bots.service_url", "https://bsky.social")
	v.SetDefault("bots.appview_url", "https://public.api.bsky.app")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key_env", "OPENAI_KEY")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.75)
	v.SetDefault("moviedoc.cache_dir", "data")
	v.SetDefault("crawl.primary_marker", "bsky.network")
	v.SetDefault("crawl.checkpoint_path", "profiles-cursor.json")
	v.SetDefault("crawl.output_path", "profiles.jsonl")
	v.SetDefault("crawl.error_threshold", 1)
	v.SetDefault("crawl.list_pages_rps", 10)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Firehose.URL == "" {
		return fmt.Errorf("firehose.url must be set")
	}
	if c.Firehose.ReconnectDelay <= 0 {
		return fmt.Errorf("firehose.reconnect_delay_seconds must be > 0")
	}
	if c.Crawl.ErrorThreshold <= 0 {
		return fmt.Errorf("crawl.error_threshold must be > 0")
	}
	if c.Crawl.ListPagesRPS <= 0 {
		return fmt.Errorf("crawl.list_pages_rps must be > 0")
	}
	return nil
}
