package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/dealhound/internal/browser"
	"github.com/maltedev/dealhound/internal/notify"
	"github.com/maltedev/dealhound/internal/scraper"
	"github.com/maltedev/dealhound/internal/storage"
	"github.com/shopspring/decimal"
)

// Config is built once by Load and treated as read-only afterwards.
type Config struct {
	Server    ServerConfig
	Tracker   TrackerConfig
	Browser   BrowserConfig
	Storage   StorageConfig
	Email     EmailConfig
	Redis     RedisConfig
	Selectors SelectorOverrides
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type TrackerConfig struct {
	PriceThreshold          decimal.Decimal
	ScreenshotOnError       bool
	ScreenshotsDir          string
	ImplicitWait            time.Duration
	ExplicitWait            time.Duration
	RequestDelay            time.Duration
	RequestJitter           time.Duration
	AssumeInStockWhenPriced bool
}

type BrowserConfig struct {
	Backend           string
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	NavigationRetries int
	ViewportWidth     int
	ViewportHeight    int
	AcceptLanguage    string
	TimezoneID        string
	Locale            string
}

type StorageConfig struct {
	Driver      string
	ResultsFile string
	DSN         string
}

type EmailConfig struct {
	Enabled    bool
	SMTPServer string
	SMTPPort   int
	Sender     string
	Password   string
	Recipient  string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// SelectorOverrides replace the built-in chains field by field. Entries use
// the "css:", "id:" or "xpath:" prefix; unprefixed entries are CSS.
type SelectorOverrides struct {
	Name          []string `json:"name"`
	Price         []string `json:"price"`
	PriceFraction []string `json:"price_fraction"`
	Availability  []string `json:"availability"`
}

type LoggingConfig struct {
	Level  string
	Format string
}

// fileConfig mirrors config.json. Durations are in seconds.
type fileConfig struct {
	PriceThreshold          *decimal.Decimal `json:"price_threshold"`
	ScreenshotOnError       *bool            `json:"screenshot_on_error"`
	ImplicitWaitTimeout     *float64         `json:"implicit_wait_timeout"`
	ExplicitWaitTimeout     *float64         `json:"explicit_wait_timeout"`
	RequestDelay            *float64         `json:"request_delay"`
	RequestJitter           *float64         `json:"request_jitter"`
	ScreenshotsDir          string           `json:"screenshots_dir"`
	AssumeInStockWhenPriced *bool            `json:"assume_in_stock_when_priced"`

	EmailAlerts struct {
		Enabled        bool   `json:"enabled"`
		SMTPServer     string `json:"smtp_server"`
		SMTPPort       int    `json:"smtp_port"`
		SenderEmail    string `json:"sender_email"`
		Password       string `json:"password"`
		RecipientEmail string `json:"recipient_email"`
	} `json:"email_alerts"`

	RedisAlerts struct {
		Enabled  bool   `json:"enabled"`
		Addr     string `json:"addr"`
		Password string `json:"password"`
		DB       int    `json:"db"`
		Stream   string `json:"stream"`
		MaxLen   int64  `json:"max_len"`
	} `json:"redis_alerts"`

	Storage struct {
		Driver      string `json:"driver"`
		ResultsFile string `json:"results_file"`
		DSN         string `json:"dsn"`
	} `json:"storage"`

	Browser struct {
		Backend           string   `json:"backend"`
		Headless          *bool    `json:"headless"`
		UserAgent         string   `json:"user_agent"`
		NavigationTimeout *float64 `json:"navigation_timeout"`
		NavigationRetries *int     `json:"navigation_retries"`
	} `json:"browser"`

	Selectors SelectorOverrides `json:"selectors"`
}

// Default returns the settings used when no config file exists.
func Default() *Config {
	opts := browser.DefaultOptions()

	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Tracker: TrackerConfig{
			PriceThreshold:    decimal.NewFromInt(50),
			ScreenshotOnError: true,
			ScreenshotsDir:    "screenshots",
			ImplicitWait:      10 * time.Second,
			ExplicitWait:      20 * time.Second,
			RequestDelay:      2 * time.Second,
			RequestJitter:     time.Second,
		},
		Browser: BrowserConfig{
			Backend:           browser.BackendPlaywright,
			Headless:          false,
			UserAgent:         opts.UserAgent,
			NavigationTimeout: opts.Timeout,
			NavigationRetries: opts.NavigationRetries,
			ViewportWidth:     opts.ViewportWidth,
			ViewportHeight:    opts.ViewportHeight,
			AcceptLanguage:    opts.AcceptLanguage,
			TimezoneID:        opts.TimezoneID,
			Locale:            opts.Locale,
		},
		Storage: StorageConfig{
			Driver:      storage.DriverCSV,
			ResultsFile: "price_results.csv",
		},
		Email: EmailConfig{
			SMTPServer: "smtp.gmail.com",
			SMTPPort:   587,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Stream: "stream:price_alerts",
			MaxLen: 10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the JSON file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Warn("config file not found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		var fc fileConfig
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		cfg.applyFile(&fc)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyFile(fc *fileConfig) {
	if fc.PriceThreshold != nil {
		c.Tracker.PriceThreshold = *fc.PriceThreshold
	}
	if fc.ScreenshotOnError != nil {
		c.Tracker.ScreenshotOnError = *fc.ScreenshotOnError
	}
	if fc.ImplicitWaitTimeout != nil {
		c.Tracker.ImplicitWait = seconds(*fc.ImplicitWaitTimeout)
	}
	if fc.ExplicitWaitTimeout != nil {
		c.Tracker.ExplicitWait = seconds(*fc.ExplicitWaitTimeout)
	}
	if fc.RequestDelay != nil {
		c.Tracker.RequestDelay = seconds(*fc.RequestDelay)
	}
	if fc.RequestJitter != nil {
		c.Tracker.RequestJitter = seconds(*fc.RequestJitter)
	}
	if fc.ScreenshotsDir != "" {
		c.Tracker.ScreenshotsDir = fc.ScreenshotsDir
	}
	if fc.AssumeInStockWhenPriced != nil {
		c.Tracker.AssumeInStockWhenPriced = *fc.AssumeInStockWhenPriced
	}

	c.Email.Enabled = fc.EmailAlerts.Enabled
	if fc.EmailAlerts.SMTPServer != "" {
		c.Email.SMTPServer = fc.EmailAlerts.SMTPServer
	}
	if fc.EmailAlerts.SMTPPort != 0 {
		c.Email.SMTPPort = fc.EmailAlerts.SMTPPort
	}
	c.Email.Sender = fc.EmailAlerts.SenderEmail
	c.Email.Password = fc.EmailAlerts.Password
	c.Email.Recipient = fc.EmailAlerts.RecipientEmail

	c.Redis.Enabled = fc.RedisAlerts.Enabled
	if fc.RedisAlerts.Addr != "" {
		c.Redis.Addr = fc.RedisAlerts.Addr
	}
	c.Redis.Password = fc.RedisAlerts.Password
	c.Redis.DB = fc.RedisAlerts.DB
	if fc.RedisAlerts.Stream != "" {
		c.Redis.Stream = fc.RedisAlerts.Stream
	}
	if fc.RedisAlerts.MaxLen != 0 {
		c.Redis.MaxLen = fc.RedisAlerts.MaxLen
	}

	if fc.Storage.Driver != "" {
		c.Storage.Driver = fc.Storage.Driver
	}
	if fc.Storage.ResultsFile != "" {
		c.Storage.ResultsFile = fc.Storage.ResultsFile
	}
	c.Storage.DSN = fc.Storage.DSN

	if fc.Browser.Backend != "" {
		c.Browser.Backend = fc.Browser.Backend
	}
	if fc.Browser.Headless != nil {
		c.Browser.Headless = *fc.Browser.Headless
	}
	if fc.Browser.UserAgent != "" {
		c.Browser.UserAgent = fc.Browser.UserAgent
	}
	if fc.Browser.NavigationTimeout != nil {
		c.Browser.NavigationTimeout = seconds(*fc.Browser.NavigationTimeout)
	}
	if fc.Browser.NavigationRetries != nil {
		c.Browser.NavigationRetries = *fc.Browser.NavigationRetries
	}

	c.Selectors = fc.Selectors
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PRICE_THRESHOLD"); v != "" {
		threshold, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("invalid PRICE_THRESHOLD %q: %w", v, err)
		}
		c.Tracker.PriceThreshold = threshold
	}
	c.Tracker.ScreenshotOnError = getBoolOrDefault("SCREENSHOT_ON_ERROR", c.Tracker.ScreenshotOnError)
	c.Tracker.ScreenshotsDir = getEnvOrDefault("SCREENSHOTS_DIR", c.Tracker.ScreenshotsDir)
	c.Tracker.RequestDelay = getDurationOrDefault("REQUEST_DELAY", c.Tracker.RequestDelay)

	c.Browser.Backend = getEnvOrDefault("BROWSER_BACKEND", c.Browser.Backend)
	c.Browser.Headless = getBoolOrDefault("BROWSER_HEADLESS", c.Browser.Headless)
	c.Browser.NavigationTimeout = getDurationOrDefault("BROWSER_TIMEOUT", c.Browser.NavigationTimeout)

	c.Storage.Driver = getEnvOrDefault("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.ResultsFile = getEnvOrDefault("RESULTS_FILE", c.Storage.ResultsFile)
	c.Storage.DSN = getEnvOrDefault("STORAGE_DSN", c.Storage.DSN)
	if c.Storage.Driver == storage.DriverPostgres && c.Storage.DSN == "" {
		c.Storage.DSN = os.Getenv("DATABASE_URL")
	}

	c.Email.Enabled = getBoolOrDefault("EMAIL_ALERTS_ENABLED", c.Email.Enabled)
	c.Email.SMTPServer = getEnvOrDefault("SMTP_SERVER", c.Email.SMTPServer)
	c.Email.SMTPPort = getIntOrDefault("SMTP_PORT", c.Email.SMTPPort)
	c.Email.Sender = getEnvOrDefault("EMAIL_SENDER", c.Email.Sender)
	c.Email.Password = getEnvOrDefault("EMAIL_PASSWORD", c.Email.Password)
	c.Email.Recipient = getEnvOrDefault("EMAIL_RECIPIENT", c.Email.Recipient)

	c.Redis.Enabled = getBoolOrDefault("REDIS_ALERTS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnvOrDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getIntOrDefault("REDIS_DB", c.Redis.DB)

	c.Server.Port = getEnvOrDefault("SERVER_PORT", c.Server.Port)
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.ShutdownTimeout = getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Logging.Level = getEnvOrDefault("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvOrDefault("LOG_FORMAT", c.Logging.Format)

	return nil
}

func (c *Config) Validate() error {
	if c.Tracker.PriceThreshold.IsNegative() {
		return fmt.Errorf("price_threshold cannot be negative")
	}

	if c.Tracker.ImplicitWait <= 0 || c.Tracker.ExplicitWait <= 0 {
		return fmt.Errorf("wait timeouts must be positive")
	}

	if c.Tracker.ImplicitWait > c.Tracker.ExplicitWait {
		return fmt.Errorf("implicit_wait_timeout cannot be greater than explicit_wait_timeout")
	}

	if c.Tracker.RequestDelay < 0 || c.Tracker.RequestJitter < 0 {
		return fmt.Errorf("request_delay and request_jitter cannot be negative")
	}

	switch c.Storage.Driver {
	case storage.DriverCSV:
		if c.Storage.ResultsFile == "" {
			return fmt.Errorf("storage.results_file is required for the csv driver")
		}
	case storage.DriverSQLite, storage.DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the %s driver", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("%w: %q", storage.ErrUnknownDriver, c.Storage.Driver)
	}

	switch c.Browser.Backend {
	case browser.BackendPlaywright, browser.BackendStatic:
	default:
		return fmt.Errorf("%w: %q", browser.ErrUnknownBackend, c.Browser.Backend)
	}

	if c.Browser.NavigationRetries < 0 {
		return fmt.Errorf("browser.navigation_retries cannot be negative")
	}

	if c.Email.Enabled && (c.Email.SMTPServer == "" || c.Email.SMTPPort <= 0) {
		return fmt.Errorf("email_alerts requires smtp_server and smtp_port")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis_alerts requires addr")
	}

	if _, err := c.SelectorConfig(); err != nil {
		return err
	}

	return nil
}

// SelectorConfig returns the built-in Amazon chains with any overrides applied.
func (c *Config) SelectorConfig() (scraper.SelectorConfig, error) {
	sel := scraper.DefaultAmazonSelectors()

	var err error
	if sel.Name, err = scraper.OverrideChain(sel.Name, c.Selectors.Name); err != nil {
		return sel, err
	}
	if sel.Price, err = scraper.OverrideChain(sel.Price, c.Selectors.Price); err != nil {
		return sel, err
	}
	if sel.PriceFraction, err = scraper.OverrideChain(sel.PriceFraction, c.Selectors.PriceFraction); err != nil {
		return sel, err
	}
	if sel.Availability, err = scraper.OverrideChain(sel.Availability, c.Selectors.Availability); err != nil {
		return sel, err
	}

	return sel, sel.Validate()
}

func (c *Config) WaitPolicy() scraper.WaitPolicy {
	return scraper.WaitPolicy{
		Implicit: c.Tracker.ImplicitWait,
		Explicit: c.Tracker.ExplicitWait,
	}
}

func (c *Config) BrowserOptions() *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = c.Browser.Headless
	opts.Timeout = c.Browser.NavigationTimeout
	opts.UserAgent = c.Browser.UserAgent
	opts.NavigationRetries = c.Browser.NavigationRetries
	opts.ViewportWidth = c.Browser.ViewportWidth
	opts.ViewportHeight = c.Browser.ViewportHeight
	opts.AcceptLanguage = c.Browser.AcceptLanguage
	opts.TimezoneID = c.Browser.TimezoneID
	opts.Locale = c.Browser.Locale
	return opts
}

func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Driver:      c.Storage.Driver,
		ResultsFile: c.Storage.ResultsFile,
		DSN:         c.Storage.DSN,
	}
}

func (c *Config) EmailConfig() notify.EmailConfig {
	return notify.EmailConfig{
		SMTPServer: c.Email.SMTPServer,
		SMTPPort:   c.Email.SMTPPort,
		Sender:     c.Email.Sender,
		Password:   c.Email.Password,
		Recipient:  c.Email.Recipient,
	}
}

func (c *Config) StreamConfig() notify.StreamConfig {
	return notify.StreamConfig{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		Stream:   c.Redis.Stream,
		MaxLen:   c.Redis.MaxLen,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
