// Package tracker drives a tracking run: one page load, extraction,
// persistence and alert check per URL, strictly in sequence.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/dealhound/internal/alert"
	"github.com/maltedev/dealhound/internal/metrics"
	"github.com/maltedev/dealhound/internal/models"
	"github.com/maltedev/dealhound/internal/notify"
	"github.com/maltedev/dealhound/internal/ratelimit"
	"github.com/maltedev/dealhound/internal/scraper"
	"github.com/maltedev/dealhound/internal/storage"
	"github.com/shopspring/decimal"
)

// PersistError halts a run: a reading that cannot be stored is lost.
type PersistError struct {
	URL string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist reading for %s: %v", e.URL, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Extractor reads one product from a loaded page.
type Extractor interface {
	Extract(ctx context.Context, page scraper.PageHandle, url string) (models.ProductReading, error)
}

type Options struct {
	Threshold         decimal.Decimal
	ScreenshotOnError bool
	ScreenshotsDir    string

	// Limiter spaces page loads; nil loads back to back.
	Limiter ratelimit.RateLimiter

	Now func() time.Time
}

type Tracker struct {
	extractor Extractor
	sink      storage.Sink
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	opts      Options
	now       func() time.Time
	logger    *slog.Logger
}

// New builds a Tracker. A nil notifier disables alert delivery; alerts are
// still evaluated and reported in the summary.
func New(extractor Extractor, sink storage.Sink, notifier notify.Notifier, m *metrics.Metrics, opts Options, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Multi{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Tracker{
		extractor: extractor,
		sink:      sink,
		notifier:  notifier,
		metrics:   m,
		opts:      opts,
		now:       now,
		logger:    logger.With("component", "tracker"),
	}
}

// Run processes urls in order on a single page. Per-URL load and extraction
// failures are counted and skipped. A persistence failure or a cancelled
// context stops the run and is returned with the summary so far.
func (t *Tracker) Run(ctx context.Context, page scraper.PageHandle, urls []string) (models.RunSummary, error) {
	summary := models.RunSummary{
		RunID:     uuid.New(),
		StartedAt: t.now(),
		Alerts:    []models.AlertEvent{},
	}
	if len(urls) == 0 {
		summary.FinishedAt = summary.StartedAt
		return summary, ErrEmptyURLList
	}

	logger := t.logger.With("run_id", summary.RunID.String())
	logger.Info("starting run", "urls", len(urls), "threshold", t.opts.Threshold.StringFixed(2))
	t.metrics.RunStarted()

	var runErr error
	for i, url := range urls {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		summary.Attempted++
		logger.Info(fmt.Sprintf("[%d/%d] tracking", i+1, len(urls)), "url", url)

		if err := t.track(ctx, logger.With("url", url), page, url, &summary); err != nil {
			summary.Failed++
			t.metrics.URLFinished(string(models.StateErrored))
			runErr = err
			break
		}
	}

	summary.FinishedAt = t.now()
	t.metrics.RunFinished(summary.FinishedAt.Sub(summary.StartedAt))

	logger.Info("run complete",
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"degraded", summary.Degraded,
		"alerts", len(summary.Alerts),
		"duration", summary.FinishedAt.Sub(summary.StartedAt).String(),
	)

	return summary, runErr
}

// track moves one URL through its states. Only errors that must stop the
// run are returned; everything else ends the URL in Done or Errored.
func (t *Tracker) track(ctx context.Context, logger *slog.Logger, page scraper.PageHandle, url string, summary *models.RunSummary) error {
	state := models.StatePending
	enter := func(next models.URLState) {
		logger.Debug("state transition", "from", state, "to", next)
		state = next
	}

	if t.opts.Limiter != nil {
		if err := t.opts.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	enter(models.StateLoading)
	started := t.now()
	err := page.Navigate(ctx, url)
	t.metrics.ObservePageLoad(t.now().Sub(started))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.recordLoad(false)
		t.fail(logger, page, url, state, err, summary)
		return nil
	}
	t.recordLoad(true)

	enter(models.StateExtracting)
	reading, err := t.extractor.Extract(ctx, page, url)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.fail(logger, page, url, state, err, summary)
		return nil
	}

	logger.Info("product read",
		"product", reading.DisplayName(),
		"price", reading.PriceString(),
		"availability", reading.Availability.String(),
	)

	if reading.HasGaps() {
		summary.Degraded++
		for _, fe := range reading.ExtractionErrors {
			t.metrics.FieldMissed(fe.Field)
		}
		t.screenshot(logger, page, url)
	}
	if reading.Price.Valid {
		t.metrics.SetLastPrice(url, reading.Price.Decimal.InexactFloat64())
	}

	if err := t.sink.Append(ctx, reading); err != nil {
		logger.Error("failed to persist reading", "state", state, "error", err)
		return &PersistError{URL: url, Err: err}
	}
	enter(models.StatePersisted)

	if event, fired := alert.Evaluate(reading, t.opts.Threshold, t.now()); fired {
		summary.Alerts = append(summary.Alerts, event)
		t.metrics.AlertFired()

		if err := t.notifier.Send(ctx, event); err != nil {
			t.metrics.NotifyFailed()
			logger.Warn("alert notification failed", "alert_id", event.ID.String(), "error", err)
		}
	}
	enter(models.StateAlertChecked)

	enter(models.StateDone)
	summary.Succeeded++
	t.metrics.URLFinished(string(models.StateDone))
	return nil
}

func (t *Tracker) fail(logger *slog.Logger, page scraper.PageHandle, url string, from models.URLState, err error, summary *models.RunSummary) {
	logger.Error("failed to track product", "state", from, "error", err)
	summary.Failed++
	t.metrics.URLFinished(string(models.StateErrored))

	if !errors.Is(err, scraper.ErrPageUnavailable) {
		t.screenshot(logger, page, url)
	}
}

func (t *Tracker) screenshot(logger *slog.Logger, page scraper.PageHandle, url string) {
	if !t.opts.ScreenshotOnError {
		return
	}

	path := screenshotPath(t.opts.ScreenshotsDir, url, t.now())
	if err := page.CaptureScreenshot(path); err != nil {
		logger.Warn("failed to capture screenshot", "path", path, "error", err)
		return
	}
	logger.Info("screenshot saved", "path", path)
}

func (t *Tracker) recordLoad(ok bool) {
	fb, isFeedback := t.opts.Limiter.(ratelimit.Feedback)
	if !isFeedback {
		return
	}
	if ok {
		fb.RecordSuccess()
	} else {
		fb.RecordError()
	}
}
