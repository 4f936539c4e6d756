package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/maltedev/dealhound/internal/api"
	"github.com/maltedev/dealhound/internal/browser"
	"github.com/maltedev/dealhound/internal/config"
	"github.com/maltedev/dealhound/internal/metrics"
	"github.com/maltedev/dealhound/internal/models"
	"github.com/maltedev/dealhound/internal/notify"
	"github.com/maltedev/dealhound/internal/ratelimit"
	"github.com/maltedev/dealhound/internal/scraper"
	"github.com/maltedev/dealhound/internal/storage"
	"github.com/maltedev/dealhound/internal/tracker"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		productsFile = flag.String("products", "products.txt", "File with one product URL per line")
		configFile   = flag.String("config", "config.json", "Path to the JSON config file")
		headless     = flag.Bool("headless", false, "Run the browser without a window")
		backend      = flag.String("backend", "", "Page backend: playwright or static")
		serve        = flag.Bool("serve", false, "Serve the HTTP API instead of running once")
	)
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	logger := newLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configFile, logger)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return 1
	}
	logger = newLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "headless":
			cfg.Browser.Headless = *headless
		case "backend":
			cfg.Browser.Backend = *backend
		}
	})

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx, cfg, *productsFile, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return 1
	}
	defer app.Close()

	if *serve {
		if err := app.serve(ctx, cfg.Server); err != nil {
			logger.Error("server failed", "error", err)
			return 1
		}
		return 0
	}

	summary, err := app.run(ctx)
	if err != nil {
		var persistErr *tracker.PersistError
		switch {
		case errors.As(err, &persistErr):
			logger.Error("run halted: reading could not be persisted", "url", persistErr.URL, "error", persistErr.Err)
		case errors.Is(err, context.Canceled):
			logger.Warn("run interrupted", "attempted", summary.Attempted)
		default:
			logger.Error("run failed", "error", err)
		}
		return 1
	}

	fmt.Printf("Tracked %d products: %d succeeded, %d failed, %d degraded, %d alerts\n",
		summary.Attempted, summary.Succeeded, summary.Failed, summary.Degraded, len(summary.Alerts))
	return 0
}

// app holds the components shared by every run.
type app struct {
	cfg          *config.Config
	productsFile string
	extractor    *scraper.ProductExtractor
	sink         storage.Sink
	notifier     notify.Notifier
	closers      []func() error
	limiter      *ratelimit.AdaptiveRateLimiter
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, productsFile string, logger *slog.Logger) (*app, error) {
	selectors, err := cfg.SelectorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build selectors: %w", err)
	}

	extractor, err := scraper.NewProductExtractor(scraper.ExtractorOptions{
		Selectors:               selectors,
		Wait:                    cfg.WaitPolicy(),
		AssumeInStockWhenPriced: cfg.Tracker.AssumeInStockWhenPriced,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	sink, err := storage.New(ctx, cfg.StorageConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	a := &app{
		cfg:          cfg,
		productsFile: productsFile,
		extractor:    extractor,
		sink:         sink,
		closers:      []func() error{sink.Close},
		limiter:      ratelimit.NewAdaptiveRateLimiter(cfg.Tracker.RequestDelay, cfg.Tracker.RequestDelay+cfg.Tracker.RequestJitter),
		metrics:      metrics.New(),
		logger:       logger,
	}

	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.Email.Enabled {
		notifiers = append(notifiers, notify.NewEmailNotifier(cfg.EmailConfig(), logger))
	}
	if cfg.Redis.Enabled {
		stream := notify.NewStreamNotifier(cfg.StreamConfig(), logger)
		notifiers = append(notifiers, stream)
		a.closers = append(a.closers, stream.Close)
	}
	a.notifier = notifiers

	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to close resource", "error", err)
		}
	}
}

// run opens a fresh browser session, tracks every URL in the products file
// and releases the session.
func (a *app) run(ctx context.Context) (models.RunSummary, error) {
	urls, err := tracker.ReadURLList(a.productsFile)
	if err != nil {
		return models.RunSummary{}, err
	}

	session, err := browser.Open(a.cfg.Browser.Backend, a.cfg.BrowserOptions(), a.logger)
	if err != nil {
		return models.RunSummary{}, fmt.Errorf("failed to open browser: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			a.logger.Warn("failed to close browser", "error", err)
		}
	}()

	page, err := session.NewPage(ctx)
	if err != nil {
		return models.RunSummary{}, fmt.Errorf("failed to open page: %w", err)
	}

	t := tracker.New(a.extractor, a.sink, a.notifier, a.metrics, tracker.Options{
		Threshold:         a.cfg.Tracker.PriceThreshold,
		ScreenshotOnError: a.cfg.Tracker.ScreenshotOnError,
		ScreenshotsDir:    a.cfg.Tracker.ScreenshotsDir,
		Limiter:           a.limiter,
	}, a.logger)

	summary, err := t.Run(ctx, page, urls)

	minDelay, maxDelay := a.limiter.Delays()
	a.logger.Info("politeness window", "min_delay", minDelay.String(), "max_delay", maxDelay.String())

	return summary, err
}

func (a *app) serve(ctx context.Context, cfg config.ServerConfig) error {
	handlers := api.NewHandlers(ctx, a.run, a.metrics, a.logger)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      handlers.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.logger.Info("server stopped")
	return nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
