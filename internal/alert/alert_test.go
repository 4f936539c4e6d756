package alert

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/dealhound/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	priced := func(p string) models.ProductReading {
		return models.NewProductReading("https://a.test/1", "Widget",
			decimal.NewNullDecimal(decimal.RequireFromString(p)),
			models.AvailabilityInStock, now, nil)
	}

	tests := []struct {
		name      string
		reading   models.ProductReading
		threshold string
		fires     bool
	}{
		{"below threshold", priced("23.97"), "25.00", true},
		{"equal to threshold", priced("23.97"), "23.97", false},
		{"above threshold", priced("99.99"), "50", false},
		{"one cent below", priced("49.99"), "50", true},
		{"zero threshold", priced("0.01"), "0", false},
		{"absent price", models.NewProductReading("https://a.test/1", "Widget", decimal.NullDecimal{}, models.AvailabilityInStock, now, nil), "1000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			threshold := decimal.RequireFromString(tt.threshold)
			event, fired := Evaluate(tt.reading, threshold, now)

			assert.Equal(t, tt.fires, fired)
			if !tt.fires {
				assert.Equal(t, models.AlertEvent{}, event)
				return
			}
			assert.NotEqual(t, uuid.Nil, event.ID)
			assert.Equal(t, tt.reading, event.Reading)
			assert.True(t, threshold.Equal(event.Threshold))
			assert.Equal(t, now, event.TriggeredAt)
		})
	}
}
