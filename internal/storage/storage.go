// Package storage persists product readings. Every sink is append-only:
// rows from earlier runs are never rewritten.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/maltedev/dealhound/internal/models"
)

var ErrUnknownDriver = errors.New("unknown storage driver")

const (
	DriverCSV      = "csv"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// TimestampLayout is the format written to the results file. Timestamps are
// always rendered in UTC.
const TimestampLayout = "2006-01-02 15:04:05"

// Header is the column order of the results file.
var Header = []string{"timestamp", "product_name", "price", "availability", "url"}

// Sink accepts readings. Append returns only after the row is durable.
type Sink interface {
	Append(ctx context.Context, reading models.ProductReading) error
	Close() error
}

type Config struct {
	Driver      string
	ResultsFile string
	DSN         string
}

// New opens the sink selected by cfg.Driver.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "storage", "driver", cfg.Driver)

	switch cfg.Driver {
	case DriverCSV, "":
		return NewCSVSink(cfg.ResultsFile)
	case DriverSQLite:
		return NewSQLiteSink(ctx, cfg.DSN)
	case DriverPostgres:
		return NewPostgresSink(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// Row renders a reading in Header order with placeholders for absent fields.
func Row(r models.ProductReading) []string {
	return []string{
		formatTimestamp(r.Timestamp),
		r.DisplayName(),
		r.PriceString(),
		r.Availability.String(),
		r.URL,
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}
