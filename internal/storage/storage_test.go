package storage

import (
	"context"
	"database/sql"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maltedev/dealhound/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2024, 1, 15, 10, 30, 5, 0, time.UTC)

func pricedReading(url, price string) models.ProductReading {
	return models.NewProductReading(url, "Widget",
		decimal.NewNullDecimal(decimal.RequireFromString(price)),
		models.AvailabilityInStock, at, nil)
}

func unpricedReading(url string) models.ProductReading {
	return models.NewProductReading(url, "", decimal.NullDecimal{},
		models.AvailabilityUnknown, at,
		[]models.FieldError{{Field: models.FieldPrice, Reason: "no candidate matched"}})
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestRow(t *testing.T) {
	tests := []struct {
		name     string
		reading  models.ProductReading
		expected []string
	}{
		{
			name:     "complete",
			reading:  pricedReading("https://a.test/1", "23.9"),
			expected: []string{"2024-01-15 10:30:05", "Widget", "23.90", "In Stock", "https://a.test/1"},
		},
		{
			name:     "placeholders",
			reading:  unpricedReading("https://a.test/2"),
			expected: []string{"2024-01-15 10:30:05", "Unknown", "N/A", "Unknown", "https://a.test/2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Row(tt.reading))
		})
	}
}

func TestRowTimestampIsUTC(t *testing.T) {
	// 01:30 local happens twice on the night clocks fall back; UTC keeps the two apart.
	first := time.Date(2024, 11, 3, 5, 30, 0, 0, time.UTC).In(time.FixedZone("EDT", -4*3600))
	second := time.Date(2024, 11, 3, 6, 30, 0, 0, time.UTC).In(time.FixedZone("EST", -5*3600))
	require.Equal(t, first.Format(TimestampLayout), second.Format(TimestampLayout))

	r1 := models.NewProductReading("https://a.test/1", "Widget", decimal.NullDecimal{}, models.AvailabilityUnknown, first, nil)
	r2 := models.NewProductReading("https://a.test/1", "Widget", decimal.NullDecimal{}, models.AvailabilityUnknown, second, nil)

	assert.Equal(t, "2024-11-03 05:30:00", Row(r1)[0])
	assert.Equal(t, "2024-11-03 06:30:00", Row(r2)[0])
}

func TestCSVSinkAppendsAcrossRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "price_results.csv")

	sink, err := NewCSVSink(path)
	require.NoError(t, err)
	require.NoError(t, sink.Append(ctx, pricedReading("https://a.test/1", "23.97")))
	require.NoError(t, sink.Append(ctx, unpricedReading("https://a.test/2")))
	require.NoError(t, sink.Close())

	sink, err = NewCSVSink(path)
	require.NoError(t, err)
	require.NoError(t, sink.Append(ctx, pricedReading("https://a.test/1", "22.00")))
	require.NoError(t, sink.Close())

	records := readCSV(t, path)
	require.Len(t, records, 4)
	assert.Equal(t, Header, records[0])
	assert.Equal(t, "23.97", records[1][2])
	assert.Equal(t, "N/A", records[2][2])
	assert.Equal(t, "22.00", records[3][2])
}

func TestCSVSinkKeepsExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "price_results.csv")
	existing := "timestamp,product_name,price,availability,url\n2023-12-01 08:00:00,Old,10.00,In Stock,https://a.test/0\n"
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o644))

	sink, err := NewCSVSink(path)
	require.NoError(t, err)
	require.NoError(t, sink.Append(context.Background(), pricedReading("https://a.test/1", "5")))
	require.NoError(t, sink.Close())

	records := readCSV(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, "Old", records[1][1])
	assert.Equal(t, "5.00", records[2][2])
}

func TestSQLiteSink(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "readings.db")

	sink, err := NewSQLiteSink(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, sink.Append(ctx, pricedReading("https://a.test/1", "23.97")))
	require.NoError(t, sink.Append(ctx, unpricedReading("https://a.test/2")))
	require.NoError(t, sink.Close())

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT product_name, price, availability, extraction_errors FROM price_readings ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	type row struct {
		name, availability, notes string
		price                     sql.NullString
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.name, &r.price, &r.availability, &r.notes))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 2)

	assert.Equal(t, "Widget", got[0].name)
	assert.Equal(t, sql.NullString{String: "23.97", Valid: true}, got[0].price)
	assert.Equal(t, "[]", got[0].notes)

	assert.Equal(t, "Unknown", got[1].name)
	assert.False(t, got[1].price.Valid)
	assert.Contains(t, got[1].notes, `"field":"price"`)
}

func TestNewUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "mongodb"}, nil)
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestNewDefaultsToCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")

	sink, err := New(context.Background(), Config{ResultsFile: path}, nil)
	require.NoError(t, err)
	defer sink.Close()

	_, ok := sink.(*CSVSink)
	assert.True(t, ok)
}
