package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/maltedev/dealhound/internal/models"
)

// Execer is satisfied by *DB, pgx.Tx and *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const createReadingsTable = `
	CREATE TABLE IF NOT EXISTS price_readings (
		id                BIGSERIAL PRIMARY KEY,
		recorded_at       TIMESTAMPTZ NOT NULL,
		url               TEXT NOT NULL,
		product_name      TEXT NOT NULL,
		price             NUMERIC(12,2),
		availability      TEXT NOT NULL,
		extraction_errors JSONB NOT NULL DEFAULT '[]'::jsonb
	);
	CREATE INDEX IF NOT EXISTS idx_price_readings_url_recorded_at
		ON price_readings (url, recorded_at)`

const insertReading = `
	INSERT INTO price_readings (recorded_at, url, product_name, price, availability, extraction_errors)
	VALUES ($1, $2, $3, $4, $5, $6)`

// ReadingRepository appends readings to price_readings. Rows are never updated.
type ReadingRepository struct {
	db Execer
}

func NewReadingRepository(db Execer) *ReadingRepository {
	return &ReadingRepository{db: db}
}

func (r *ReadingRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createReadingsTable); err != nil {
		return fmt.Errorf("failed to create price_readings: %w", err)
	}
	return nil
}

func (r *ReadingRepository) Insert(ctx context.Context, reading models.ProductReading) error {
	notes := reading.ExtractionErrors
	if notes == nil {
		notes = []models.FieldError{}
	}
	notesJSON, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("failed to marshal extraction errors: %w", err)
	}

	var price *string
	if reading.Price.Valid {
		p := reading.Price.Decimal.StringFixed(2)
		price = &p
	}

	_, err = r.db.Exec(ctx, insertReading,
		reading.Timestamp,
		reading.URL,
		reading.DisplayName(),
		price,
		reading.Availability.String(),
		string(notesJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}

	return nil
}
