package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"fx-signal-alerts/internal/logging"
	"fx-signal-alerts/internal/rates"
	"fx-signal-alerts/internal/risk"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig        `mapstructure:"app"`
	Logging   logging.Config   `mapstructure:"logging"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Scheduler SchedulerConfig  `mapstructure:"scheduler"`
	Fetcher   FetcherConfig    `mapstructure:"fetcher"`
	History   HistoryConfig    `mapstructure:"history"`
	Alerting  AlertingConfig   `mapstructure:"alerting"`
	Risk      risk.Settings    `mapstructure:"risk"`
	Server    ServerConfig     `mapstructure:"server"`
	Export    ExportConfig     `mapstructure:"export"`
	Pairs     []rates.PairSpec `mapstructure:"pairs"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN runs the
// engine fully in memory.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs evaluation cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// ProviderConfig names one ranked upstream rate source.
type ProviderConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// FetcherConfig covers multi-source rate acquisition.
type FetcherConfig struct {
	Providers      []ProviderConfig `mapstructure:"providers"`
	Reference      string           `mapstructure:"reference"`
	RequestTimeout time.Duration    `mapstructure:"request_timeout"`
	UserAgent      string           `mapstructure:"user_agent"`
}

// HistoryConfig bounds the in-memory per-pair series.
type HistoryConfig struct {
	Cap int `mapstructure:"cap"`
}

// AlertingConfig defines the volatility trigger and push delivery.
type AlertingConfig struct {
	VolatilityPct   float64       `mapstructure:"volatility_pct"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	WebPush         WebPushConfig `mapstructure:"webpush"`
}

// WebPushConfig carries the VAPID identity for push delivery. Notifications
// are disabled when the key pair is empty.
type WebPushConfig struct {
	PublicKey  string `mapstructure:"public_key"`
	PrivateKey string `mapstructure:"private_key"`
	Subscriber string `mapstructure:"subscriber"`
	TTL        int    `mapstructure:"ttl"`
}

// ServerConfig sets the HTTP listen address.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FXWATCHER")
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

	if len(cfg.Pairs) == 0 {
		cfg.Pairs = rates.DefaultPairs()
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
	v.SetDefault("app.name", "fxwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("fetcher.reference", "JPY")
	v.SetDefault("fetcher.request_timeout", "8s")
	v.SetDefault("fetcher.user_agent", "fxwatcher/1.0")
	v.SetDefault("fetcher.providers", []map[string]string{
		{"name": "frankfurter", "url": "https://api.frankfurter.app/latest?from=JPY"},
		{"name": "exchangerate-host", "url": "https://api.exchangerate.host/latest?base=JPY"},
		{"name": "exchangerate-api", "url": "https://api.exchangerate-api.com/v4/latest/JPY"},
	})

	v.SetDefault("history.cap", 100)

	v.SetDefault("alerting.volatility_pct", 0.5)
	v.SetDefault("alerting.delivery_timeout", "10s")
	v.SetDefault("alerting.webpush.subscriber", "mailto:admin@example.com")
	v.SetDefault("alerting.webpush.ttl", 60)

	v.SetDefault("risk.capital", 100000.0)
	v.SetDefault("risk.risk_fraction", 0.02)
	v.SetDefault("risk.leverage", 25.0)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
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
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if len(c.Fetcher.Providers) == 0 {
		return fmt.Errorf("fetcher.providers must name at least one source")
	}
	for _, p := range c.Fetcher.Providers {
		if p.Name == "" || p.URL == "" {
			return fmt.Errorf("fetcher provider entries require both name and url")
		}
	}
	if c.History.Cap <= 0 {
		return fmt.Errorf("history.cap must be greater than zero")
	}
	if c.Alerting.VolatilityPct < 0 {
		return fmt.Errorf("alerting.volatility_pct cannot be negative")
	}
	if c.Risk.Capital <= 0 {
		return fmt.Errorf("risk.capital must be greater than zero")
	}
	if c.Risk.RiskFraction <= 0 || c.Risk.RiskFraction >= 1 {
		return fmt.Errorf("risk.risk_fraction must be a fraction between 0 and 1")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	for _, pair := range c.Pairs {
		if pair.ID == "" || pair.Base == "" || pair.Quote == "" {
			return fmt.Errorf("pair entries require id, base and quote")
		}
	}
	return nil
}

// PushEnabled reports whether a VAPID key pair is configured.
func (c *Config) PushEnabled() bool {
	return c.Alerting.WebPush.PublicKey != "" && c.Alerting.WebPush.PrivateKey != ""
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// ListenAddr joins the configured host and port.
func (c *ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
