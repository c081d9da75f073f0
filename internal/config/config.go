package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"ExtremaSentinel/internal/collector"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
		DryRun   bool   `yaml:"dry_run"`
	} `yaml:"telegram"`
	DataSource struct {
		Provider          string `yaml:"provider"` // yahoo, rest, mock
		BaseURL           string `yaml:"base_url"`
		APIKey            string `yaml:"api_key"`
		Symbol            string `yaml:"symbol"`
		DisplayName       string `yaml:"display_name"`
		RequestsPerMinute int    `yaml:"requests_per_minute"`
	} `yaml:"data_source"`
	Market struct {
		Timezone string        `yaml:"timezone"`
		Interval time.Duration `yaml:"interval"`
		Lookback time.Duration `yaml:"lookback"`
	} `yaml:"market"`
	Tracker struct {
		Mode             string `yaml:"mode"`              // stateful, stateless
		FirstObservation string `yaml:"first_observation"` // silent, alert
		MinBars          int    `yaml:"min_bars"`
		PersistPolicy    string `yaml:"persist_policy"` // always, after_delivery
	} `yaml:"tracker"`
	Summary struct {
		Days         int           `yaml:"days"`
		MinBars      int           `yaml:"min_bars"`
		Interval     time.Duration `yaml:"interval"`
		LookbackDays int           `yaml:"lookback_days"`
	} `yaml:"summary"`
	State struct {
		Backend string `yaml:"backend"` // file, sqlite, memory
		Path    string `yaml:"path"`
	} `yaml:"state"`
	Schedule struct {
		Mode        string `yaml:"mode"` // once, daemon
		CheckCron   string `yaml:"check_cron"`
		SummaryCron string `yaml:"summary_cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Journal struct {
		Dir string `yaml:"dir"`
	} `yaml:"journal"`
	Archive struct {
		Enabled bool   `yaml:"enabled"`
		Dir     string `yaml:"dir"`
		Format  string `yaml:"format"`
		S3      struct {
			Enabled         bool   `yaml:"enabled"`
			Bucket          string `yaml:"bucket"`
			Prefix          string `yaml:"prefix"`
			Region          string `yaml:"region"`
			Endpoint        string `yaml:"endpoint"`
			PathStyle       bool   `yaml:"path_style"`
			AccessKeyID     string `yaml:"access_key_id"`
			SecretAccessKey string `yaml:"secret_access_key"`
		} `yaml:"s3"`
	} `yaml:"archive"`
	Metrics struct {
		CloudWatch bool   `yaml:"cloudwatch"`
		Region     string `yaml:"region"`
		Namespace  string `yaml:"namespace"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
		MaxAge int    `yaml:"max_age"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`

	location *time.Location
}

// LoadDotEnv loads KEY=VALUE files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	strOverrides := map[string]*string{
		"TELEGRAM_BOT_TOKEN": &cfg.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &cfg.Telegram.ChatID,
		"DATA_SOURCE":        &cfg.DataSource.Provider,
		"DATA_BASE_URL":      &cfg.DataSource.BaseURL,
		"DATA_API_KEY":       &cfg.DataSource.APIKey,
		"SYMBOL":             &cfg.DataSource.Symbol,
		"EXCHANGE_TZ":        &cfg.Market.Timezone,
		"TRACKER_MODE":       &cfg.Tracker.Mode,
		"FIRST_OBSERVATION":  &cfg.Tracker.FirstObservation,
		"PERSIST_POLICY":     &cfg.Tracker.PersistPolicy,
		"STATE_BACKEND":      &cfg.State.Backend,
		"STATE_PATH":         &cfg.State.Path,
		"RUN_MODE":           &cfg.Schedule.Mode,
		"CRON_CHECK":         &cfg.Schedule.CheckCron,
		"CRON_SUMMARY":       &cfg.Schedule.SummaryCron,
		"SQLITE_PATH":        &cfg.Database.SQLitePath,
		"HTTPS_PROXY":        &cfg.Proxy,
	}
	for env, dst := range strOverrides {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("DRY_RUN: %w", err)
		}
		cfg.Telegram.DryRun = b
	}
	if v := os.Getenv("MIN_BARS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("MIN_BARS: %w", err)
		}
		cfg.Tracker.MinBars = n
	}
	if v := os.Getenv("BAR_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("BAR_INTERVAL: %w", err)
		}
		cfg.Market.Interval = d
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataSource.Provider == "" {
		c.DataSource.Provider = "yahoo"
		if c.DataSource.BaseURL != "" {
			c.DataSource.Provider = "rest"
		}
	}
	if c.DataSource.Symbol == "" {
		c.DataSource.Symbol = "PETRONET.NS"
	}
	if c.DataSource.DisplayName == "" {
		c.DataSource.DisplayName = c.DataSource.Symbol
	}
	if c.DataSource.RequestsPerMinute == 0 {
		c.DataSource.RequestsPerMinute = 30
	}
	if c.Market.Timezone == "" {
		c.Market.Timezone = "Asia/Kolkata"
	}
	if c.Market.Interval == 0 {
		c.Market.Interval = 5 * time.Minute
	}
	if c.Market.Lookback == 0 {
		c.Market.Lookback = 24 * time.Hour
	}
	if c.Tracker.Mode == "" {
		c.Tracker.Mode = "stateful"
	}
	if c.Tracker.FirstObservation == "" {
		c.Tracker.FirstObservation = "silent"
	}
	if c.Tracker.MinBars == 0 {
		c.Tracker.MinBars = 3
	}
	if c.Tracker.PersistPolicy == "" {
		c.Tracker.PersistPolicy = "always"
	}
	if c.Summary.Days == 0 {
		c.Summary.Days = 15
	}
	if c.Summary.MinBars == 0 {
		c.Summary.MinBars = 5
	}
	if c.Summary.Interval == 0 {
		c.Summary.Interval = 15 * time.Minute
	}
	if c.Summary.LookbackDays == 0 {
		c.Summary.LookbackDays = 20
	}
	if c.State.Backend == "" {
		c.State.Backend = "file"
	}
	if c.State.Path == "" {
		switch c.State.Backend {
		case "sqlite":
			c.State.Path = "data/state.db"
		default:
			c.State.Path = "data/state"
		}
	}
	if c.Schedule.Mode == "" {
		c.Schedule.Mode = "once"
	}
	if c.Schedule.CheckCron == "" {
		c.Schedule.CheckCron = "0 */5 9-15 * * 1-5"
	}
	if c.Schedule.SummaryCron == "" {
		c.Schedule.SummaryCron = "0 45 15 * * 1-5"
	}
	if c.Archive.Dir == "" {
		c.Archive.Dir = "data/bars"
	}
	if c.Archive.Format == "" {
		c.Archive.Format = "csv"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "ExtremaSentinel"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// CronParser accepts the six-field (with seconds) expressions used in config.
var CronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func oneOf(field, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), v)
}

// Validate checks that all required fields are set and resolves the
// exchange timezone.
func (c *Config) Validate() error {
	if !c.Telegram.DryRun {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required")
		}
	}
	if err := oneOf("data_source.provider", c.DataSource.Provider, "yahoo", "rest", "mock"); err != nil {
		return err
	}
	if c.DataSource.Provider == "rest" && c.DataSource.BaseURL == "" {
		return fmt.Errorf("data_source.base_url is required for the rest provider")
	}
	loc, err := time.LoadLocation(c.Market.Timezone)
	if err != nil {
		return fmt.Errorf("market.timezone: %w", err)
	}
	c.location = loc
	if c.Market.Interval <= 0 {
		return fmt.Errorf("market.interval must be positive")
	}
	if c.Market.Lookback < c.Market.Interval {
		return fmt.Errorf("market.lookback must be at least one interval")
	}
	if c.DataSource.Provider == "yahoo" {
		if _, err := collector.YahooInterval(c.Market.Interval); err != nil {
			return fmt.Errorf("market.interval: %w", err)
		}
		if _, err := collector.YahooInterval(c.Summary.Interval); err != nil {
			return fmt.Errorf("summary.interval: %w", err)
		}
	}
	if c.Tracker.MinBars < 1 {
		return fmt.Errorf("tracker.min_bars must be at least 1")
	}
	if err := oneOf("tracker.mode", c.Tracker.Mode, "stateful", "stateless"); err != nil {
		return err
	}
	if err := oneOf("tracker.first_observation", c.Tracker.FirstObservation, "silent", "alert"); err != nil {
		return err
	}
	if err := oneOf("tracker.persist_policy", c.Tracker.PersistPolicy, "always", "after_delivery"); err != nil {
		return err
	}
	if err := oneOf("state.backend", c.State.Backend, "file", "sqlite", "memory"); err != nil {
		return err
	}
	if err := oneOf("schedule.mode", c.Schedule.Mode, "once", "daemon"); err != nil {
		return err
	}
	if c.Schedule.Mode == "daemon" {
		if _, err := CronParser.Parse(c.Schedule.CheckCron); err != nil {
			return fmt.Errorf("schedule.check_cron: %w", err)
		}
		if _, err := CronParser.Parse(c.Schedule.SummaryCron); err != nil {
			return fmt.Errorf("schedule.summary_cron: %w", err)
		}
	}
	if c.Archive.Enabled {
		if err := oneOf("archive.format", c.Archive.Format, "csv", "json", "parquet"); err != nil {
			return err
		}
		if c.Archive.S3.Enabled && c.Archive.S3.Bucket == "" {
			return fmt.Errorf("archive.s3.bucket is required when s3 upload is enabled")
		}
	}
	return nil
}

// Location returns the exchange timezone resolved by Validate.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}
