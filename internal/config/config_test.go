package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maltedev/dealhound/internal/browser"
	"github.com/maltedev/dealhound/internal/scraper"
	"github.com/maltedev/dealhound/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"), nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.True(t, decimal.NewFromInt(50).Equal(cfg.Tracker.PriceThreshold))
	assert.True(t, cfg.Tracker.ScreenshotOnError)
	assert.Equal(t, 10*time.Second, cfg.Tracker.ImplicitWait)
	assert.Equal(t, 20*time.Second, cfg.Tracker.ExplicitWait)
	assert.False(t, cfg.Email.Enabled)
	assert.Equal(t, "smtp.gmail.com", cfg.Email.SMTPServer)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.Equal(t, storage.DriverCSV, cfg.Storage.Driver)
	assert.Equal(t, "price_results.csv", cfg.Storage.ResultsFile)
	assert.Equal(t, browser.BackendPlaywright, cfg.Browser.Backend)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `{
		"price_threshold": 29.99,
		"screenshot_on_error": false,
		"implicit_wait_timeout": 5,
		"explicit_wait_timeout": 15,
		"email_alerts": {
			"enabled": true,
			"smtp_server": "smtp.example.com",
			"smtp_port": 2525,
			"sender_email": "hound@example.com",
			"password": "file-secret",
			"recipient_email": "me@example.com"
		},
		"storage": {"driver": "sqlite", "dsn": "data/readings.db"},
		"browser": {"backend": "static", "headless": true, "navigation_timeout": 12.5},
		"assume_in_stock_when_priced": true,
		"selectors": {"price": ["id:corePrice", "span.price"]}
	}`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "29.99", cfg.Tracker.PriceThreshold.StringFixed(2))
	assert.False(t, cfg.Tracker.ScreenshotOnError)
	assert.Equal(t, 5*time.Second, cfg.Tracker.ImplicitWait)
	assert.Equal(t, 15*time.Second, cfg.Tracker.ExplicitWait)
	assert.True(t, cfg.Tracker.AssumeInStockWhenPriced)

	assert.True(t, cfg.Email.Enabled)
	assert.Equal(t, "smtp.example.com", cfg.EmailConfig().SMTPServer)
	assert.Equal(t, 2525, cfg.EmailConfig().SMTPPort)
	assert.Equal(t, "hound@example.com", cfg.EmailConfig().Sender)
	assert.Equal(t, "file-secret", cfg.EmailConfig().Password)

	assert.Equal(t, storage.Config{Driver: "sqlite", ResultsFile: "price_results.csv", DSN: "data/readings.db"}, cfg.StorageConfig())

	assert.Equal(t, browser.BackendStatic, cfg.Browser.Backend)
	assert.True(t, cfg.BrowserOptions().Headless)
	assert.Equal(t, 12500*time.Millisecond, cfg.BrowserOptions().Timeout)

	sel, err := cfg.SelectorConfig()
	require.NoError(t, err)
	assert.Equal(t, []scraper.Locator{scraper.ID("corePrice"), scraper.CSS("span.price")}, sel.Price.Candidates)
	assert.Equal(t, scraper.DefaultAmazonSelectors().Name, sel.Name)

	assert.Equal(t, scraper.WaitPolicy{Implicit: 5 * time.Second, Explicit: 15 * time.Second}, cfg.WaitPolicy())
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `{"email_alerts": {"enabled": true, "sender_email": "file@example.com", "password": "file-secret"}}`)

	t.Setenv("EMAIL_SENDER", "env@example.com")
	t.Setenv("EMAIL_PASSWORD", "secret")
	t.Setenv("EMAIL_RECIPIENT", "me@example.com")
	t.Setenv("PRICE_THRESHOLD", "19.5")
	t.Setenv("BROWSER_HEADLESS", "true")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://dealhound@localhost:5432/dealhound")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	email := cfg.EmailConfig()
	assert.Equal(t, "env@example.com", email.Sender)
	assert.Equal(t, "secret", email.Password)
	assert.Equal(t, "me@example.com", email.Recipient)
	assert.Equal(t, "19.50", cfg.Tracker.PriceThreshold.StringFixed(2))
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "postgres://dealhound@localhost:5432/dealhound", cfg.Storage.DSN)
	assert.Equal(t, "redis:6379", cfg.StreamConfig().Addr)
}

func TestLoadInvalidInput(t *testing.T) {
	_, err := Load(writeConfig(t, `{"price_threshold": `), nil)
	assert.Error(t, err)

	t.Setenv("PRICE_THRESHOLD", "cheap")
	_, err = Load(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero threshold", func(c *Config) { c.Tracker.PriceThreshold = decimal.Zero }, false},
		{"negative threshold", func(c *Config) { c.Tracker.PriceThreshold = decimal.NewFromInt(-1) }, true},
		{"zero implicit wait", func(c *Config) { c.Tracker.ImplicitWait = 0 }, true},
		{"implicit above explicit", func(c *Config) { c.Tracker.ImplicitWait = time.Minute }, true},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongodb" }, true},
		{"sqlite without dsn", func(c *Config) { c.Storage.Driver = storage.DriverSQLite }, true},
		{"unknown backend", func(c *Config) { c.Browser.Backend = "selenium" }, true},
		{"email without server", func(c *Config) {
			c.Email.Enabled = true
			c.Email.SMTPServer = ""
		}, true},
		{"redis without addr", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Addr = ""
		}, true},
		{"empty selector override", func(c *Config) { c.Selectors.Name = []string{"id:"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
