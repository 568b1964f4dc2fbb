package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"macrowatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// CatalogConfig points at the series catalog file.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig governs daemon-mode cron jobs.
type SchedulerConfig struct {
	IngestCron string `mapstructure:"ingest_cron"`
	DigestCron string `mapstructure:"digest_cron"`
	Timezone   string `mapstructure:"timezone"`
}

// SourcesConfig groups provider client settings and the quota fallback map.
type SourcesConfig struct {
	FRED      ProviderConfig    `mapstructure:"fred"`
	BLS       ProviderConfig    `mapstructure:"bls"`
	Treasury  ProviderConfig    `mapstructure:"treasury"`
	Census    ProviderConfig    `mapstructure:"census"`
	Fallbacks map[string]string `mapstructure:"fallbacks"`
}

// ProviderConfig parameterises one statistical agency client.
type ProviderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MinInterval    time.Duration `mapstructure:"min_interval"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// AlertingConfig defines rules, dispatch mode, and channel routing.
type AlertingConfig struct {
	Enabled    bool           `mapstructure:"enabled"`
	DigestMode bool           `mapstructure:"digest_mode"`
	Rules      []RuleConfig   `mapstructure:"rules"`
	Console    ConsoleConfig  `mapstructure:"console"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
	Slack      SlackConfig    `mapstructure:"slack"`
	Email      EmailConfig    `mapstructure:"email"`
}

// RuleConfig declares one alert rule; Condition is decoded into a typed
// condition by the alerting package.
type RuleConfig struct {
	Name          string          `mapstructure:"name"`
	Enabled       bool            `mapstructure:"enabled"`
	Severity      string          `mapstructure:"severity"`
	Description   string          `mapstructure:"description"`
	CooldownHours float64         `mapstructure:"cooldown_hours"`
	Condition     ConditionConfig `mapstructure:"condition"`
}

// ConditionConfig is the raw condition block; which fields apply depends on
// Type.
type ConditionConfig struct {
	Type       string   `mapstructure:"type"`
	Statuses   []string `mapstructure:"statuses"`
	Severity   string   `mapstructure:"severity"`
	Operator   string   `mapstructure:"operator"`
	Threshold  float64  `mapstructure:"threshold"`
	MaxAgeDays int      `mapstructure:"max_age_days"`
	Days       int      `mapstructure:"days"`
}

// ConsoleConfig enables the stdout alert handler.
type ConsoleConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TelegramConfig describes Telegram alert delivery.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// SlackConfig describes Slack webhook alert delivery.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// EmailConfig describes SMTP alert delivery.
type EmailConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	SMTPHost    string   `mapstructure:"smtp_host"`
	SMTPPort    int      `mapstructure:"smtp_port"`
	SMTPUser    string   `mapstructure:"smtp_user"`
	SMTPPass    string   `mapstructure:"smtp_password"`
	FromAddress string   `mapstructure:"from_address"`
	ToAddresses []string `mapstructure:"to_addresses"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MACROWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
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
	v.SetDefault("app.name", "macrowatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock_key", int64(0x6D616377))

	v.SetDefault("catalog.path", "config/series_catalog.yaml")

	v.SetDefault("scheduler.ingest_cron", "0 6 * * *")
	v.SetDefault("scheduler.digest_cron", "0 7 * * *")
	v.SetDefault("scheduler.timezone", "UTC")

	v.SetDefault("sources.fred.base_url", "https://api.stlouisfed.org/fred")
	v.SetDefault("sources.fred.request_timeout", "15s")
	v.SetDefault("sources.fred.min_interval", "500ms")
	v.SetDefault("sources.bls.base_url", "https://api.bls.gov/publicAPI/v2")
	v.SetDefault("sources.bls.request_timeout", "15s")
	v.SetDefault("sources.bls.min_interval", "1s")
	v.SetDefault("sources.treasury.base_url", "https://api.fiscaldata.treasury.gov/services/api/fiscal_service")
	v.SetDefault("sources.treasury.request_timeout", "15s")
	v.SetDefault("sources.treasury.min_interval", "500ms")
	v.SetDefault("sources.census.base_url", "https://api.census.gov/data")
	v.SetDefault("sources.census.request_timeout", "15s")
	v.SetDefault("sources.census.min_interval", "500ms")
	v.SetDefault("sources.fallbacks", map[string]string{"BLS": "FRED"})

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.digest_mode", true)
	v.SetDefault("alerting.console.enabled", true)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.email.smtp_port", 587)

	v.SetDefault("export.max_data_points", 100000)
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
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	for name, alt := range c.Sources.Fallbacks {
		if strings.EqualFold(name, alt) {
			return fmt.Errorf("sources.fallbacks: %s cannot fall back to itself", name)
		}
	}
	for i, rule := range c.Alerting.Rules {
		if rule.Name == "" {
			return fmt.Errorf("alerting.rules[%d]: name is required", i)
		}
		if rule.CooldownHours < 0 {
			return fmt.Errorf("alerting.rules[%d]: cooldown_hours cannot be negative", i)
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Alerting.Slack.Enabled && c.Alerting.Slack.WebhookURL == "" {
		return fmt.Errorf("alerting.slack.webhook_url is required when slack is enabled")
	}
	return nil
}

// Provider returns the client settings for a named source.
func (c *SourcesConfig) Provider(name string) ProviderConfig {
	switch strings.ToUpper(name) {
	case "FRED":
		return c.FRED
	case "BLS":
		return c.BLS
	case "TREASURY":
		return c.Treasury
	case "CENSUS":
		return c.Census
	}
	return ProviderConfig{}
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
