package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"exec-feed-sync/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Cache    CacheConfig    `mapstructure:"cache"`
	API      APIConfig      `mapstructure:"api"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// FeedConfig governs the websocket push channel.
type FeedConfig struct {
	URL             string        `mapstructure:"url"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	BackoffCap      time.Duration `mapstructure:"backoff_cap"`
	BufferSize      int           `mapstructure:"buffer_size"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// UpstreamConfig covers the REST backfill and alert endpoints.
type UpstreamConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	PageSize       int           `mapstructure:"page_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// CacheConfig bounds the in-memory stores.
type CacheConfig struct {
	MaxRecords int `mapstructure:"max_records"`
	MaxAlerts  int `mapstructure:"max_alerts"`
	MaxQuotes  int `mapstructure:"max_quotes"`
	MaxBars    int `mapstructure:"max_bars"`
}

// APIConfig sets the dashboard HTTP surface.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// NotifyConfig routes high-severity alerts to an external channel.
type NotifyConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	MinSeverity string         `mapstructure:"min_severity"`
	Telegram    TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram push channel.
type TelegramConfig struct {
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	Format   string `mapstructure:"format"`
	Dir      string `mapstructure:"dir"`
	MaxPages int    `mapstructure:"max_pages"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TAPEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tapewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("feed.backoff_base", "1s")
	v.SetDefault("feed.backoff_cap", "30s")
	v.SetDefault("feed.buffer_size", 256)
	v.SetDefault("feed.refresh_interval", "0s")

	v.SetDefault("upstream.page_size", 50)
	v.SetDefault("upstream.request_timeout", "10s")
	v.SetDefault("upstream.user_agent", "tapewatch/1.0")

	v.SetDefault("cache.max_records", 10000)
	v.SetDefault("cache.max_alerts", 1000)
	v.SetDefault("cache.max_quotes", 1000)
	v.SetDefault("cache.max_bars", 5000)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen", ":8080")

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.min_severity", "critical")
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("notify.telegram.timeout", "10s")

	v.SetDefault("export.format", "csv")
	v.SetDefault("export.dir", ".")
	v.SetDefault("export.max_pages", 200)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Upstream.PageSize <= 0 {
		return fmt.Errorf("upstream.page_size must be greater than zero")
	}
	if c.Cache.MaxRecords < 0 || c.Cache.MaxAlerts < 0 || c.Cache.MaxQuotes < 0 || c.Cache.MaxBars < 0 {
		return fmt.Errorf("cache capacities cannot be negative")
	}
	if c.Feed.BackoffBase <= 0 {
		return fmt.Errorf("feed.backoff_base must be greater than zero")
	}
	if c.Feed.BackoffCap < c.Feed.BackoffBase {
		return fmt.Errorf("feed.backoff_cap must be at least feed.backoff_base")
	}
	if c.Export.MaxPages <= 0 {
		return fmt.Errorf("export.max_pages must be greater than zero")
	}
	if c.API.Enabled && c.API.Listen == "" {
		return fmt.Errorf("api.listen must be set when api.enabled is true")
	}
	if c.Notify.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token must be set when notify.enabled is true")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id must be set when notify.enabled is true")
		}
	}
	return nil
}

// ResolveMaxPages returns either the CLI override or config default.
func (c *Config) ResolveMaxPages(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxPages
}
