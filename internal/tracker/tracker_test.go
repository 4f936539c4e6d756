package tracker

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maltedev/dealhound/internal/metrics"
	"github.com/maltedev/dealhound/internal/models"
	"github.com/maltedev/dealhound/internal/scraper"
	"github.com/maltedev/dealhound/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	urlOne   = "https://www.amazon.com/dp/B0000000A1"
	urlTwo   = "https://www.amazon.com/dp/B0000000B2"
	urlThree = "https://www.amazon.com/dp/B0000000C3"
)

var clock = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// scriptedPage serves per-URL node text and fails navigation for selected URLs.
type scriptedPage struct {
	pages       map[string]map[string]string
	failLoad    map[string]error
	current     string
	navigated   []string
	screenshots []string
}

func (p *scriptedPage) Navigate(ctx context.Context, url string) error {
	p.navigated = append(p.navigated, url)
	p.current = url
	if err, ok := p.failLoad[url]; ok {
		return err
	}
	return nil
}

func (p *scriptedPage) FindMatching(ctx context.Context, loc scraper.Locator) (scraper.Node, error) {
	if _, ok := p.pages[p.current][loc.String()]; ok {
		return loc.String(), nil
	}
	return nil, nil
}

func (p *scriptedPage) WaitUntilPresent(ctx context.Context, loc scraper.Locator, timeout time.Duration) (scraper.Node, error) {
	return p.FindMatching(ctx, loc)
}

func (p *scriptedPage) ReadText(node scraper.Node) (string, error) {
	return p.pages[p.current][node.(string)], nil
}

func (p *scriptedPage) CaptureScreenshot(path string) error {
	p.screenshots = append(p.screenshots, path)
	return nil
}

func product(name, price, availability string) map[string]string {
	texts := map[string]string{}
	if name != "" {
		texts["css:span#productTitle"] = name
	}
	if price != "" {
		texts["css:span.a-offscreen"] = price
	}
	if availability != "" {
		texts["css:#availability span"] = availability
	}
	return texts
}

type memorySink struct {
	readings []models.ProductReading
	err      error
}

func (s *memorySink) Append(ctx context.Context, r models.ProductReading) error {
	if s.err != nil {
		return s.err
	}
	s.readings = append(s.readings, r)
	return nil
}

func (s *memorySink) Close() error { return nil }

type recordingNotifier struct {
	events []models.AlertEvent
	err    error
}

func (n *recordingNotifier) Send(ctx context.Context, e models.AlertEvent) error {
	n.events = append(n.events, e)
	return n.err
}

func newTracker(t *testing.T, sink storage.Sink, notifier *recordingNotifier, opts Options) *Tracker {
	t.Helper()
	extractor, err := scraper.NewProductExtractor(scraper.ExtractorOptions{
		Selectors: scraper.DefaultAmazonSelectors(),
		Wait:      scraper.WaitPolicy{Implicit: time.Millisecond, Explicit: time.Millisecond},
		Now:       func() time.Time { return clock },
	}, nil)
	require.NoError(t, err)

	if opts.Now == nil {
		opts.Now = func() time.Time { return clock }
	}
	if opts.Threshold.IsZero() {
		opts.Threshold = decimal.RequireFromString("25.00")
	}
	return New(extractor, sink, notifier, metrics.New(), opts, nil)
}

func threeProductPage() *scriptedPage {
	return &scriptedPage{
		pages: map[string]map[string]string{
			urlOne:   product("Widget One", "$23.97", "In Stock."),
			urlTwo:   product("Widget Two", "$10.00", "In Stock."),
			urlThree: product("Widget Three", "$99.00", "Out of Stock"),
		},
		failLoad: map[string]error{
			urlTwo: errors.New("navigation timeout of 30000 ms exceeded"),
		},
	}
}

func TestRunIsolatesLoadFailure(t *testing.T) {
	sink := &memorySink{}
	notifier := &recordingNotifier{}
	page := threeProductPage()

	tr := newTracker(t, sink, notifier, Options{ScreenshotOnError: true, ScreenshotsDir: "shots"})
	summary, err := tr.Run(context.Background(), page, []string{urlOne, urlTwo, urlThree})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Degraded)

	require.Len(t, sink.readings, 2)
	assert.Equal(t, urlOne, sink.readings[0].URL)
	assert.Equal(t, urlThree, sink.readings[1].URL)

	assert.Equal(t, []string{urlOne, urlTwo, urlThree}, page.navigated)
	require.Len(t, page.screenshots, 1)
	assert.Equal(t, filepath.Join("shots", "20240115_103000_www.amazon.com_dp_B0000000B2.png"), page.screenshots[0])

	require.Len(t, summary.Alerts, 1)
	assert.Equal(t, urlOne, summary.Alerts[0].Reading.URL)
	assert.Len(t, notifier.events, 1)
}

func TestRunNotifierFailureIsSwallowed(t *testing.T) {
	sink := &memorySink{}
	notifier := &recordingNotifier{err: errors.New("smtp: connection refused")}
	page := threeProductPage()
	page.failLoad = nil

	tr := newTracker(t, sink, notifier, Options{})
	summary, err := tr.Run(context.Background(), page, []string{urlOne, urlTwo, urlThree})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Succeeded)
	assert.Len(t, sink.readings, 3)
	assert.Len(t, summary.Alerts, 2)
	assert.Len(t, notifier.events, 2)
}

func TestRunHaltsOnPersistFailure(t *testing.T) {
	diskFull := errors.New("write results: no space left on device")
	sink := &memorySink{err: diskFull}
	notifier := &recordingNotifier{}
	page := threeProductPage()

	tr := newTracker(t, sink, notifier, Options{})
	summary, err := tr.Run(context.Background(), page, []string{urlOne, urlTwo, urlThree})

	var persistErr *PersistError
	require.ErrorAs(t, err, &persistErr)
	assert.Equal(t, urlOne, persistErr.URL)
	assert.ErrorIs(t, err, diskFull)

	assert.Equal(t, 1, summary.Attempted)
	assert.Equal(t, 0, summary.Succeeded)
	assert.Equal(t, []string{urlOne}, page.navigated)
	assert.Empty(t, notifier.events)
}

func TestRunDegradedReadingIsPersisted(t *testing.T) {
	sink := &memorySink{}
	page := &scriptedPage{pages: map[string]map[string]string{
		urlOne: product("", "Currently unavailable", ""),
	}}

	tr := newTracker(t, sink, &recordingNotifier{}, Options{ScreenshotOnError: true, ScreenshotsDir: "shots"})
	summary, err := tr.Run(context.Background(), page, []string{urlOne})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Degraded)
	assert.Empty(t, summary.Alerts)
	require.Len(t, sink.readings, 1)
	assert.False(t, sink.readings[0].Price.Valid)
	assert.Len(t, sink.readings[0].ExtractionErrors, 3)
	assert.Len(t, page.screenshots, 1)
}

func TestRunPageUnavailableDuringExtraction(t *testing.T) {
	sink := &memorySink{}
	page := &brokenPage{scriptedPage: threeProductPage()}
	page.failLoad = nil

	tr := newTracker(t, sink, &recordingNotifier{}, Options{ScreenshotOnError: true})
	summary, err := tr.Run(context.Background(), page, []string{urlOne, urlTwo})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Failed)
	assert.Empty(t, sink.readings)
	assert.Empty(t, page.screenshots)
}

type brokenPage struct {
	*scriptedPage
}

func (p *brokenPage) WaitUntilPresent(ctx context.Context, loc scraper.Locator, timeout time.Duration) (scraper.Node, error) {
	return nil, scraper.ErrPageUnavailable
}

func TestRunEmptyURLList(t *testing.T) {
	tr := newTracker(t, &memorySink{}, &recordingNotifier{}, Options{})
	_, err := tr.Run(context.Background(), &scriptedPage{}, nil)
	assert.ErrorIs(t, err, ErrEmptyURLList)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page := threeProductPage()
	tr := newTracker(t, &memorySink{}, &recordingNotifier{}, Options{})
	summary, err := tr.Run(ctx, page, []string{urlOne, urlTwo})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, summary.Attempted)
	assert.Empty(t, page.navigated)
}

func TestRunAppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "price_results.csv")

	for run := 0; run < 2; run++ {
		sink, err := storage.NewCSVSink(path)
		require.NoError(t, err)

		tr := newTracker(t, sink, &recordingNotifier{}, Options{})
		_, err = tr.Run(context.Background(), threeProductPage(), []string{urlOne, urlTwo, urlThree})
		require.NoError(t, err)
		require.NoError(t, sink.Close())
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, storage.Header, records[0])
	assert.Equal(t, []string{"2024-01-15 10:30:00", "Widget One", "23.97", "In Stock", urlOne}, records[1])
	assert.Equal(t, []string{"2024-01-15 10:30:00", "Widget Three", "99.00", "Out of Stock", urlThree}, records[2])
	assert.Equal(t, records[1], records[3])
}

func TestParseURLList(t *testing.T) {
	input := `# tracked products
https://www.amazon.com/dp/B0000000A1

   https://www.amazon.com/dp/B0000000B2
# https://www.amazon.com/dp/disabled
`
	urls, err := ParseURLList(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{urlOne, urlTwo}, urls)

	_, err = ParseURLList(strings.NewReader("# nothing\n\n"))
	assert.ErrorIs(t, err, ErrEmptyURLList)
}

func TestReadURLListMissingFile(t *testing.T) {
	_, err := ReadURLList(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestScreenshotName(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://www.amazon.com/dp/B0", "20240115_103000_www.amazon.com_dp_B0.png"},
		{"http://example.com/", "20240115_103000_example.com_.png"},
		{
			"https://www.amazon.com/Some-Very-Long-Product-Name/dp/B0000000A1?ref=abc",
			"20240115_103000_www.amazon.com_Some-Very-Long-Product-Name_dp_B000.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, ScreenshotName(tt.url, clock))
		})
	}
}
