package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maltedev/dealhound/internal/scraper"
	"github.com/playwright-community/playwright-go"
)

const readTextTimeout = 2 * time.Second

// Page adapts a playwright tab to scraper.PageHandle. Nodes are
// playwright.Locator values narrowed to their first match.
type Page struct {
	page    playwright.Page
	browser *Browser
	logger  *slog.Logger
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.usable(ctx); err != nil {
		return err
	}
	return p.browser.navigateWithRetry(ctx, p.page, url)
}

func (p *Page) FindMatching(ctx context.Context, loc scraper.Locator) (scraper.Node, error) {
	if err := p.usable(ctx); err != nil {
		return nil, err
	}

	first := p.page.Locator(selectorFor(loc)).First()
	count, err := first.Count()
	if err != nil {
		return nil, p.classify(err)
	}
	if count == 0 {
		return nil, nil
	}
	return first, nil
}

// WaitUntilPresent returns nil, nil when the locator does not attach within timeout.
func (p *Page) WaitUntilPresent(ctx context.Context, loc scraper.Locator, timeout time.Duration) (scraper.Node, error) {
	if err := p.usable(ctx); err != nil {
		return nil, err
	}

	first := p.page.Locator(selectorFor(loc)).First()
	err := first.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return nil, nil
		}
		return nil, p.classify(err)
	}
	return first, nil
}

// ReadText prefers rendered text and falls back to raw text content, which
// covers visually hidden price spans.
func (p *Page) ReadText(node scraper.Node) (string, error) {
	loc, ok := node.(playwright.Locator)
	if !ok {
		return "", fmt.Errorf("unexpected node type %T", node)
	}

	text, err := loc.InnerText(playwright.LocatorInnerTextOptions{
		Timeout: playwright.Float(float64(readTextTimeout.Milliseconds())),
	})
	if err != nil {
		return "", p.classify(err)
	}
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	content, err := loc.TextContent(playwright.LocatorTextContentOptions{
		Timeout: playwright.Float(float64(readTextTimeout.Milliseconds())),
	})
	if err != nil {
		return "", p.classify(err)
	}
	return content, nil
}

func (p *Page) CaptureScreenshot(path string) error {
	if p.page.IsClosed() {
		return scraper.ErrPageUnavailable
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot dir: %w", err)
	}

	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return nil
}

func (p *Page) Close() error {
	if p.page.IsClosed() {
		return nil
	}
	return p.page.Close()
}

func (p *Page) usable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.page.IsClosed() {
		return scraper.ErrPageUnavailable
	}
	return nil
}

func (p *Page) classify(err error) error {
	if p.page.IsClosed() || errors.Is(err, playwright.ErrTargetClosed) {
		return fmt.Errorf("%w: %v", scraper.ErrPageUnavailable, err)
	}
	return err
}

func selectorFor(loc scraper.Locator) string {
	switch loc.Kind {
	case scraper.ByID:
		return fmt.Sprintf(`[id=%q]`, loc.Value)
	case scraper.ByXPath:
		return "xpath=" + loc.Value
	default:
		return "css=" + loc.Value
	}
}
