package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"lastsold-monitor/notify"
	"lastsold-monitor/scraper/tcgplayer"
	"lastsold-monitor/services"
	"lastsold-monitor/utils"
)

// DefaultPath is read when no config file is given explicitly.
const DefaultPath = "config.yaml"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration. Values come from the YAML file
// first; MONITOR_* environment variables (optionally from .env) override them.
type Config struct {
	Targets         []string `yaml:"targets" env:"MONITOR_TARGETS" envSeparator:","`
	IntervalSeconds int      `yaml:"intervalSeconds" env:"MONITOR_INTERVAL_SECONDS"`

	MinPrice     string `yaml:"minPrice" env:"MONITOR_MIN_PRICE"`
	MaxPrice     string `yaml:"maxPrice" env:"MONITOR_MAX_PRICE"`
	MinCondition string `yaml:"minCondition" env:"MONITOR_MIN_CONDITION"`

	WebhookURL  string `yaml:"webhookUrl" env:"MONITOR_WEBHOOK_URL"`
	StoragePath string `yaml:"storagePath" env:"MONITOR_STORAGE_PATH"`

	Headless            bool   `yaml:"headless" env:"MONITOR_HEADLESS"`
	ChromeBin           string `yaml:"chromeBin" env:"CHROME_BIN"`
	FetchTimeoutSeconds int    `yaml:"fetchTimeoutSeconds" env:"MONITOR_FETCH_TIMEOUT_SECONDS"`
	SettleMs            int    `yaml:"settleMs" env:"MONITOR_SETTLE_MS"`
	MaxConcurrency      int    `yaml:"maxConcurrency" env:"MONITOR_MAX_CONCURRENCY"`
	RateLimitMs         int    `yaml:"rateLimitMs" env:"MONITOR_RATE_LIMIT_MS"`

	Selectors    tcgplayer.Selectors `yaml:"selectors"`
	Email        EmailConfig         `yaml:"email"`
	GraphCapture GraphCaptureConfig  `yaml:"graphCapture"`
	Log          LogConfig           `yaml:"log"`

	// EnvFileLoaded reports whether a .env file was found.
	EnvFileLoaded bool `yaml:"-"`
}

type EmailConfig struct {
	Enabled  bool     `yaml:"enabled" env:"MONITOR_EMAIL_ENABLED"`
	Host     string   `yaml:"host" env:"MONITOR_SMTP_HOST"`
	Port     int      `yaml:"port" env:"MONITOR_SMTP_PORT"`
	Username string   `yaml:"username" env:"MONITOR_SMTP_USERNAME"`
	Password string   `yaml:"password" env:"MONITOR_SMTP_PASSWORD"`
	From     string   `yaml:"from" env:"MONITOR_EMAIL_FROM"`
	To       []string `yaml:"to" env:"MONITOR_EMAIL_TO" envSeparator:","`
}

type GraphCaptureConfig struct {
	Enabled    bool   `yaml:"enabled" env:"MONITOR_GRAPH_ENABLED"`
	Schedule   string `yaml:"schedule" env:"MONITOR_GRAPH_SCHEDULE"`
	Dir        string `yaml:"dir" env:"MONITOR_GRAPH_DIR"`
	WebhookURL string `yaml:"webhookUrl" env:"MONITOR_GRAPH_WEBHOOK_URL"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"MONITOR_LOG_LEVEL"`
	Format string `yaml:"format" env:"MONITOR_LOG_FORMAT"`
}

// Default returns a Config with every optional value filled in.
func Default() *Config {
	return &Config{
		IntervalSeconds:     60,
		MinPrice:            "0",
		StoragePath:         "data/seen_sales.db",
		Headless:            true,
		FetchTimeoutSeconds: 60,
		SettleMs:            3000,
		MaxConcurrency:      2,
		RateLimitMs:         2000,
		Selectors:           tcgplayer.DefaultSelectors(),
		Email:               EmailConfig{Port: 587},
		GraphCapture:        GraphCaptureConfig{Schedule: "0 0 * * * *", Dir: "captures"},
		Log:                 LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads .env, the YAML file at path and environment overrides, then
// validates the result. An empty path reads DefaultPath if it exists.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.EnvFileLoaded = godotenv.Load() == nil

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// environment only
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.Selectors = cfg.Selectors.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(c.Targets) == 0 {
		add("targets: at least one product URL is required")
	}
	for _, t := range c.Targets {
		u, err := url.Parse(strings.TrimSpace(t))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("targets: %q is not an http(s) URL", t)
		}
	}
	if c.IntervalSeconds <= 0 {
		add("intervalSeconds: must be positive, got %d", c.IntervalSeconds)
	}
	if c.FetchTimeoutSeconds <= 0 {
		add("fetchTimeoutSeconds: must be positive, got %d", c.FetchTimeoutSeconds)
	}
	if strings.TrimSpace(c.StoragePath) == "" {
		add("storagePath: must not be empty")
	}

	minPrice, minErr := parsePrice(c.MinPrice)
	if minErr != nil {
		add("minPrice: %v", minErr)
	}
	maxPrice, maxErr := parsePrice(c.MaxPrice)
	if maxErr != nil {
		add("maxPrice: %v", maxErr)
	}
	if minErr == nil && maxErr == nil && minPrice != nil && maxPrice != nil && maxPrice.LessThan(*minPrice) {
		add("maxPrice: %s is below minPrice %s", maxPrice, minPrice)
	}
	if c.MinCondition != "" {
		if _, ok := services.ConditionRank(c.MinCondition); !ok {
			add("minCondition: unknown condition %q", c.MinCondition)
		}
	}

	if c.Email.Enabled {
		if c.Email.Host == "" || c.Email.From == "" || len(c.Email.To) == 0 {
			add("email: host, from and to are required when enabled")
		}
		if c.Email.Port <= 0 {
			add("email: port must be positive")
		}
	}
	if c.GraphCapture.Enabled {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.GraphCapture.Schedule); err != nil {
			add("graphCapture.schedule: %v", err)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalid, strings.Join(problems, "\n  - "))
	}
	return nil
}

// parsePrice returns nil for an empty value.
func parsePrice(s string) (*decimal.Decimal, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%q is not a number", s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%s must not be negative", d)
	}
	return &d, nil
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Filters converts the alert thresholds. Call after Validate.
func (c *Config) Filters() services.Filters {
	minPrice, _ := parsePrice(c.MinPrice)
	maxPrice, _ := parsePrice(c.MaxPrice)
	return services.Filters{MinPrice: minPrice, MaxPrice: maxPrice, MinCondition: c.MinCondition}
}

func (c *Config) EngineConfig() services.EngineConfig {
	return services.EngineConfig{
		Filters:      c.Filters(),
		FetchTimeout: time.Duration(c.FetchTimeoutSeconds) * time.Second,
	}
}

func (c *Config) FetcherConfig() tcgplayer.FetcherConfig {
	return tcgplayer.FetcherConfig{
		Headless:  c.Headless,
		ChromeBin: c.ChromeBin,
		Settle:    time.Duration(c.SettleMs) * time.Millisecond,
		Selectors: c.Selectors,
	}
}

func (c *Config) SMTP() notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     c.Email.Host,
		Port:     c.Email.Port,
		Username: c.Email.Username,
		Password: c.Email.Password,
		From:     c.Email.From,
		To:       c.Email.To,
	}
}

func (c *Config) LogOptions() utils.LogOptions {
	return utils.LogOptions{Level: c.Log.Level, Format: c.Log.Format}
}

// GraphWebhookURL falls back to the alert webhook.
func (c *Config) GraphWebhookURL() string {
	if c.GraphCapture.WebhookURL != "" {
		return c.GraphCapture.WebhookURL
	}
	return c.WebhookURL
}
