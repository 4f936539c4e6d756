// Package alert decides whether a reading warrants a price-drop alert.
package alert

import (
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/dealhound/internal/models"
	"github.com/shopspring/decimal"
)

// Evaluate fires when the reading carries a price strictly below threshold.
// A reading without a price never fires.
func Evaluate(reading models.ProductReading, threshold decimal.Decimal, now time.Time) (models.AlertEvent, bool) {
	if !reading.Usable() {
		return models.AlertEvent{}, false
	}
	if !reading.Price.Decimal.LessThan(threshold) {
		return models.AlertEvent{}, false
	}

	return models.AlertEvent{
		ID:          uuid.New(),
		Reading:     reading,
		Threshold:   threshold,
		TriggeredAt: now,
	}, true
}
