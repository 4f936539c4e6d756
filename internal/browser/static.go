package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/dealhound/internal/scraper"
)

const maxBodyBytes = 8 << 20

// Static fetches pages with a single HTTP GET and evaluates locators against
// the parsed document. It does not execute JavaScript.
type Static struct {
	client *http.Client
	opts   *Options
	logger *slog.Logger
}

// NewStatic builds a static session. A nil client gets one bounded by opts.Timeout.
func NewStatic(opts *Options, client *http.Client, logger *slog.Logger) *Static {
	if opts == nil {
		opts = DefaultOptions()
	}
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Static{
		client: client,
		opts:   opts,
		logger: logger.With("component", "static_browser"),
	}
}

func (s *Static) NewPage(ctx context.Context) (scraper.PageHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &StaticPage{session: s}, nil
}

func (s *Static) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// StaticPage holds the last fetched document. Nodes are *goquery.Selection.
type StaticPage struct {
	session *Static
	url     string
	body    []byte
	doc     *goquery.Document
}

func (p *StaticPage) Navigate(ctx context.Context, url string) error {
	p.doc, p.body, p.url = nil, nil, url

	attempts := p.session.opts.NavigationRetries + 1
	var lastErr error

	for i := 0; i < attempts; i++ {
		if i > 0 {
			p.session.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * time.Second):
			}
		}

		body, err := p.fetch(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			p.session.logger.Warn("navigation failed", "url", url, "attempt", i+1, "error", err)
			continue
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to parse document: %w", err)
		}

		p.body = body
		if blocked(doc.Find("title").First().Text(), string(body)) {
			return fmt.Errorf("%w: %s", ErrBlocked, url)
		}

		p.doc = doc
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (p *StaticPage) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("User-Agent", p.session.opts.UserAgent)
	if p.session.opts.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", p.session.opts.AcceptLanguage)
	}
	for k, v := range p.session.opts.ExtraHeaders {
		// net/http negotiates compression itself
		if strings.EqualFold(k, "Accept-Encoding") {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := p.session.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return body, nil
}

func (p *StaticPage) FindMatching(ctx context.Context, loc scraper.Locator) (scraper.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.doc == nil {
		return nil, fmt.Errorf("%w: no document loaded", scraper.ErrPageUnavailable)
	}

	var sel *goquery.Selection
	switch loc.Kind {
	case scraper.ByCSS:
		sel = p.doc.Find(loc.Value)
	case scraper.ByID:
		sel = p.doc.Find(fmt.Sprintf(`[id=%q]`, loc.Value))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLocator, loc)
	}

	if sel.Length() == 0 {
		return nil, nil
	}
	return sel.First(), nil
}

// WaitUntilPresent does not wait: a fetched document never changes.
func (p *StaticPage) WaitUntilPresent(ctx context.Context, loc scraper.Locator, _ time.Duration) (scraper.Node, error) {
	return p.FindMatching(ctx, loc)
}

func (p *StaticPage) ReadText(node scraper.Node) (string, error) {
	sel, ok := node.(*goquery.Selection)
	if !ok {
		return "", fmt.Errorf("unexpected node type %T", node)
	}
	return sel.Text(), nil
}

// CaptureScreenshot stores the fetched HTML next to where the image would go.
func (p *StaticPage) CaptureScreenshot(path string) error {
	if p.body == nil {
		return fmt.Errorf("%w: no document loaded", scraper.ErrPageUnavailable)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot dir: %w", err)
	}

	snapshot := strings.TrimSuffix(path, filepath.Ext(path)) + ".html"
	if err := os.WriteFile(snapshot, p.body, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}
