package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/dealhound/internal/scraper"
	"github.com/playwright-community/playwright-go"
)

var (
	ErrBlocked            = errors.New("page blocked by bot check")
	ErrUnsupportedLocator = errors.New("locator kind not supported by backend")
	ErrUnknownBackend     = errors.New("unknown browser backend")
)

const (
	BackendPlaywright = "playwright"
	BackendStatic     = "static"
)

// Session hands out pages for one run and releases the backend on Close.
type Session interface {
	NewPage(ctx context.Context) (scraper.PageHandle, error)
	Close() error
}

type Options struct {
	Headless          bool
	Timeout           time.Duration
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	AcceptLanguage    string
	TimezoneID        string
	Locale            string
	ProxyServer       string
	ExtraHeaders      map[string]string
	NavigationRetries int
	SettleDelay       time.Duration
}

func DefaultOptions() *Options {
	return &Options{
		Headless:          true,
		Timeout:           30 * time.Second,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		AcceptLanguage:    "en-US,en;q=0.9",
		TimezoneID:        "America/New_York",
		Locale:            "en-US",
		NavigationRetries: 2,
		SettleDelay:       2 * time.Second,
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Encoding": "gzip, deflate, br",
			"DNT":             "1",
		},
	}
}

// Open starts the named backend.
func Open(backend string, opts *Options, logger *slog.Logger) (Session, error) {
	switch backend {
	case BackendPlaywright, "":
		return New(opts, logger)
	case BackendStatic:
		return NewStatic(opts, nil, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// Browser is a playwright-driven Chromium session.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
}

func New(opts *Options, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
			"--user-agent=" + opts.UserAgent,
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	headers := make(map[string]string, len(opts.ExtraHeaders)+1)
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	if opts.AcceptLanguage != "" {
		headers["Accept-Language"] = opts.AcceptLanguage
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(opts.UserAgent),
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            playwright.String(opts.Locale),
		TimezoneId:        playwright.String(opts.TimezoneID),
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	}

	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: bctx,
		opts:    opts,
		logger:  logger.With("component", "browser"),
	}, nil
}

// NewPage opens a tab wrapped as a scraper.PageHandle.
func (b *Browser) NewPage(ctx context.Context) (scraper.PageHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	return &Page{page: page, browser: b, logger: b.logger}, nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (b *Browser) navigateWithRetry(ctx context.Context, page playwright.Page, url string) error {
	attempts := b.opts.NavigationRetries + 1
	var lastErr error

	for i := 0; i < attempts; i++ {
		if i > 0 {
			b.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * time.Second):
			}
		}

		resp, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(b.opts.Timeout.Milliseconds())),
		})
		if err != nil {
			if page.IsClosed() || errors.Is(err, playwright.ErrTargetClosed) {
				return fmt.Errorf("%w: %v", scraper.ErrPageUnavailable, err)
			}
			lastErr = err
			b.logger.Warn("navigation failed", "url", url, "attempt", i+1, "error", err)
			continue
		}
		if resp != nil && resp.Status() >= 400 {
			lastErr = fmt.Errorf("unexpected status %d", resp.Status())
			b.logger.Warn("navigation failed", "url", url, "attempt", i+1, "status", resp.Status())
			continue
		}

		return b.settle(ctx, page)
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// settle waits for late-rendered content, then rejects bot-check interstitials.
func (b *Browser) settle(ctx context.Context, page playwright.Page) error {
	if b.opts.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.opts.SettleDelay):
		}
	}

	title, err := page.Title()
	if err != nil {
		return fmt.Errorf("failed to get page title: %w", err)
	}
	content, err := page.Content()
	if err != nil {
		return fmt.Errorf("failed to get page content: %w", err)
	}

	if strings.Contains(content, continueShoppingMarker) {
		if b.clickThroughInterstitial(page) {
			return nil
		}
	}

	if blocked(title, content) {
		return fmt.Errorf("%w: %q", ErrBlocked, title)
	}
	return nil
}

// clickThroughInterstitial dismisses Amazon's "continue shopping" gate.
func (b *Browser) clickThroughInterstitial(page playwright.Page) bool {
	b.logger.Info("interstitial detected, attempting to continue")

	buttonSelectors := []string{
		`button:has-text("Continue shopping")`,
		`input[type="submit"][value*="Continue"]`,
		`.a-button-primary`,
	}

	for _, selector := range buttonSelectors {
		button := page.Locator(selector).First()

		count, err := button.Count()
		if err != nil || count == 0 {
			continue
		}

		if err := button.Click(); err != nil {
			b.logger.Warn("failed to click interstitial button", "selector", selector, "error", err)
			continue
		}

		if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State: playwright.LoadStateDomcontentloaded,
		}); err != nil {
			b.logger.Debug("load state wait after interstitial click failed", "selector", selector, "error", err)
		}

		content, err := page.Content()
		if err != nil {
			b.logger.Debug("failed to read page after interstitial click", "selector", selector, "error", err)
			continue
		}
		if !strings.Contains(content, continueShoppingMarker) {
			b.logger.Info("interstitial dismissed")
			return true
		}
	}

	return false
}

const continueShoppingMarker = "Click the button below to continue shopping"

var (
	blockedTitleMarkers = []string{
		"robot check",
		"captcha",
		"sorry! something went wrong",
	}
	blockedContentMarkers = []string{
		"validatecaptcha",
		"enter the characters you see below",
		"to discuss automated access to amazon data",
	}
)

func blocked(title, content string) bool {
	title = strings.ToLower(title)
	for _, m := range blockedTitleMarkers {
		if strings.Contains(title, m) {
			return true
		}
	}

	content = strings.ToLower(content)
	for _, m := range blockedContentMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}
