package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/maltedev/dealhound/internal/models"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS price_readings (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at       TEXT NOT NULL,
	url               TEXT NOT NULL,
	product_name      TEXT NOT NULL,
	price             TEXT,
	availability      TEXT NOT NULL,
	extraction_errors TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_price_readings_url ON price_readings (url, recorded_at);`

// SQLiteSink stores readings in a local SQLite file. Prices are kept as
// fixed two-decimal text so they round-trip exactly.
type SQLiteSink struct {
	db *sql.DB
}

func NewSQLiteSink(ctx context.Context, dsn string) (*SQLiteSink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	if err := ensureDir(dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create price_readings: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Append(ctx context.Context, reading models.ProductReading) error {
	notes := reading.ExtractionErrors
	if notes == nil {
		notes = []models.FieldError{}
	}
	notesJSON, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("marshal extraction errors: %w", err)
	}

	var price sql.NullString
	if reading.Price.Valid {
		price = sql.NullString{String: reading.Price.Decimal.StringFixed(2), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO price_readings (recorded_at, url, product_name, price, availability, extraction_errors)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		formatTimestamp(reading.Timestamp),
		reading.URL,
		reading.DisplayName(),
		price,
		reading.Availability.String(),
		string(notesJSON),
	)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
