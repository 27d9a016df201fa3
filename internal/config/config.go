package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ApartmentHunter/internal/domain"
	"ApartmentHunter/internal/normalize"
)

const (
	defaultTimezone   = "Asia/Jerusalem"
	fallbackTimezone  = "UTC"
	configPathEnv     = "APARTMENT_HUNTER_CONFIG"
	databaseDriverEnv = "DATABASE_DRIVER"
	databaseDSNEnv    = "DATABASE_DSN"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	logLevelEnv       = "LOG_LEVEL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig         `yaml:"logging"`
	Database      DatabaseConfig        `yaml:"database"`
	Scheduler     SchedulerConfig       `yaml:"scheduler"`
	Fetch         FetchConfig           `yaml:"fetch"`
	Notifications NotificationConfig    `yaml:"notifications"`
	Metrics       MetricsConfig         `yaml:"metrics"`
	Filters       domain.FilterCriteria `yaml:"filters"`
	Normalizer    normalize.Options     `yaml:"normalizer"`
	Sites         []SiteConfig          `yaml:"sites"`
}

// LoggingConfig controls verbosity and the optional daily log file directory.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// DatabaseConfig selects the SQL driver ("sqlite3" or "postgres") and its DSN.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// SchedulerConfig defines when the scan cycle should run.
type SchedulerConfig struct {
	CronExpression  string         `yaml:"cronExpression"`
	IntervalMinutes int            `yaml:"intervalMinutes"`
	Timezone        string         `yaml:"timezone"`
	location        *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Spec returns the cron spec; an explicit expression wins over the interval.
func (s SchedulerConfig) Spec() string {
	if s.CronExpression != "" {
		return s.CronExpression
	}
	minutes := s.IntervalMinutes
	if minutes <= 0 {
		minutes = 30
	}
	return fmt.Sprintf("@every %dm", minutes)
}

// FetchConfig bounds every page request.
type FetchConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"maxRetries"`
	RetryDelay        time.Duration `yaml:"retryDelay"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	UserAgent         string        `yaml:"userAgent"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	Endpoint string `yaml:"endpoint"`
	// MessagesPerMinute paces sends inside the channel; every message is still delivered.
	MessagesPerMinute float64 `yaml:"messagesPerMinute"`
}

// Enabled reports whether both token and chat are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// MetricsConfig exposes Prometheus metrics on Addr during `run` when set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// SiteConfig describes a single site with its extractor and search parameters.
type SiteConfig struct {
	Name          string            `yaml:"name"`
	Scanner       string            `yaml:"scanner"`
	BaseURL       string            `yaml:"baseUrl"`
	SearchURL     string            `yaml:"searchUrl"`
	Params        map[string]string `yaml:"params"`
	Neighborhoods map[string]string `yaml:"neighborhoods"`
	Pages         []PageConfig      `yaml:"pages"`
}

// PageConfig is an extra fixed URL fetched as-is for a site.
type PageConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Load reads .env, the YAML configuration (if present) and applies environment overrides.
// An explicit path wins over the APARTMENT_HUNTER_CONFIG variable. A named file
// that cannot be read or parsed is an error; with no file at all the defaults apply.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot read .env: %v", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Sites) == 0 {
		cfg.Sites = defaultConfig().Sites
	}

	return cfg, nil
}

// Validate reports settings that make the application impossible to start.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is empty")
	}
	f := c.Filters
	if f.PriceMin != nil && f.PriceMax != nil && *f.PriceMin > *f.PriceMax {
		return fmt.Errorf("filters: price_min %d exceeds price_max %d", *f.PriceMin, *f.PriceMax)
	}
	if f.RoomsMin != nil && f.RoomsMax != nil && *f.RoomsMin > *f.RoomsMax {
		return fmt.Errorf("filters: rooms_min %.1f exceeds rooms_max %.1f", *f.RoomsMin, *f.RoomsMax)
	}
	switch f.LocationMatch {
	case "", domain.LocationMatchFolded, domain.LocationMatchExact:
	default:
		return fmt.Errorf("filters: unknown location_match %q", f.LocationMatch)
	}
	for _, site := range c.Sites {
		if site.Scanner == "" {
			return fmt.Errorf("site %s: scanner is empty", site.Name)
		}
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, fallbackTimezone)
		loc = time.UTC
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Dir != "" {
		base.Logging.Dir = override.Logging.Dir
	}

	if override.Database.Driver != "" {
		base.Database.Driver = override.Database.Driver
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.IntervalMinutes > 0 {
		base.Scheduler.IntervalMinutes = override.Scheduler.IntervalMinutes
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Fetch.Timeout > 0 {
		base.Fetch.Timeout = override.Fetch.Timeout
	}
	if override.Fetch.MaxRetries > 0 {
		base.Fetch.MaxRetries = override.Fetch.MaxRetries
	}
	if override.Fetch.RetryDelay > 0 {
		base.Fetch.RetryDelay = override.Fetch.RetryDelay
	}
	if override.Fetch.RequestsPerSecond > 0 {
		base.Fetch.RequestsPerSecond = override.Fetch.RequestsPerSecond
	}
	if override.Fetch.UserAgent != "" {
		base.Fetch.UserAgent = override.Fetch.UserAgent
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}
	if override.Notifications.Telegram.Endpoint != "" {
		base.Notifications.Telegram.Endpoint = override.Notifications.Telegram.Endpoint
	}
	if override.Notifications.Telegram.MessagesPerMinute > 0 {
		base.Notifications.Telegram.MessagesPerMinute = override.Notifications.Telegram.MessagesPerMinute
	}

	if override.Metrics.Addr != "" {
		base.Metrics.Addr = override.Metrics.Addr
	}

	// Criteria are taken as a whole: an unset field in the file means "no restriction".
	base.Filters = override.Filters
	base.Normalizer = override.Normalizer

	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:   LoggingConfig{Level: "info"},
		Database:  DatabaseConfig{Driver: "sqlite3", DSN: "data/listings.db"},
		Scheduler: SchedulerConfig{IntervalMinutes: 30, Timezone: defaultTimezone},
		Fetch: FetchConfig{
			Timeout:           10 * time.Second,
			MaxRetries:        2,
			RetryDelay:        2 * time.Second,
			RequestsPerSecond: 0.3,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		},
		Notifications: NotificationConfig{Telegram: TelegramConfig{MessagesPerMinute: 20}},
		Sites: []SiteConfig{
			{
				Name:      "yad2",
				Scanner:   "yad2",
				BaseURL:   "https://www.yad2.co.il",
				SearchURL: "https://www.yad2.co.il/realestate/rent",
				Params:    map[string]string{"topArea": "25", "area": "5", "city": "4000"},
				Neighborhoods: map[string]string{
					"בת גלים":   "598",
					"נווה שאנן": "642",
					"רמות רמז":  "637",
					"רמות אלון": "635",
				},
			},
		},
	}
}
