package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Availability int

const (
	AvailabilityUnknown Availability = iota
	AvailabilityInStock
	AvailabilityOutOfStock
)

func (a Availability) String() string {
	switch a {
	case AvailabilityInStock:
		return "In Stock"
	case AvailabilityOutOfStock:
		return "Out of Stock"
	default:
		return "Unknown"
	}
}

func (a Availability) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts the labels produced by String; anything else is Unknown.
func (a *Availability) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return fmt.Errorf("availability must be a string: %w", err)
	}

	switch label {
	case AvailabilityInStock.String():
		*a = AvailabilityInStock
	case AvailabilityOutOfStock.String():
		*a = AvailabilityOutOfStock
	default:
		*a = AvailabilityUnknown
	}
	return nil
}

// Field names used in extraction error notes and metrics labels.
const (
	FieldName         = "product_name"
	FieldPrice        = "price"
	FieldAvailability = "availability"
)

// Placeholders written for fields that could not be read.
const (
	UnknownName      = "Unknown"
	PriceUnavailable = "N/A"
)

// FieldError notes why a single field of a reading is missing.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ProductReading is one extraction result for one URL at one point in time.
// Readings are built once by NewProductReading and never modified afterwards.
type ProductReading struct {
	URL              string              `json:"url"`
	ProductName      string              `json:"product_name,omitempty"`
	Price            decimal.NullDecimal `json:"price"`
	Availability     Availability        `json:"availability"`
	Timestamp        time.Time           `json:"timestamp"`
	ExtractionErrors []FieldError        `json:"extraction_errors,omitempty"`
}

// NewProductReading copies errs so the reading does not share backing storage with the caller.
func NewProductReading(url, name string, price decimal.NullDecimal, availability Availability, at time.Time, errs []FieldError) ProductReading {
	var notes []FieldError
	if len(errs) > 0 {
		notes = make([]FieldError, len(errs))
		copy(notes, errs)
	}
	if price.Valid {
		price.Decimal = price.Decimal.Round(2)
	}
	return ProductReading{
		URL:              url,
		ProductName:      name,
		Price:            price,
		Availability:     availability,
		Timestamp:        at,
		ExtractionErrors: notes,
	}
}

// MarshalJSON renders the price with exactly two decimals, or null when absent.
func (r ProductReading) MarshalJSON() ([]byte, error) {
	type reading ProductReading

	var price *string
	if r.Price.Valid {
		fixed := r.Price.Decimal.StringFixed(2)
		price = &fixed
	}

	return json.Marshal(struct {
		reading
		Price *string `json:"price"`
	}{
		reading: reading(r),
		Price:   price,
	})
}

// Usable reports whether the reading carries a price.
func (r ProductReading) Usable() bool {
	return r.Price.Valid
}

// HasGaps reports whether any field failed to extract.
func (r ProductReading) HasGaps() bool {
	return len(r.ExtractionErrors) > 0
}

// DisplayName returns the product name or the Unknown placeholder.
func (r ProductReading) DisplayName() string {
	if r.ProductName == "" {
		return UnknownName
	}
	return r.ProductName
}

// PriceString renders the price with exactly two decimals, or N/A when absent.
func (r ProductReading) PriceString() string {
	if !r.Price.Valid {
		return PriceUnavailable
	}
	return r.Price.Decimal.StringFixed(2)
}

// AlertEvent is produced when a reading's price falls strictly under the threshold.
type AlertEvent struct {
	ID          uuid.UUID       `json:"id"`
	Reading     ProductReading  `json:"reading"`
	Threshold   decimal.Decimal `json:"threshold"`
	TriggeredAt time.Time       `json:"triggered_at"`
}

// RunSummary exists only for the duration of one run; it is never persisted.
type RunSummary struct {
	RunID      uuid.UUID    `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Attempted  int          `json:"attempted"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	Degraded   int          `json:"degraded"`
	Alerts     []AlertEvent `json:"alerts"`
}

// URLState is a step of the per-URL lifecycle driven by the run coordinator.
type URLState string

const (
	StatePending      URLState = "pending"
	StateLoading      URLState = "loading"
	StateExtracting   URLState = "extracting"
	StatePersisted    URLState = "persisted"
	StateAlertChecked URLState = "alert_checked"
	StateDone         URLState = "done"
	StateErrored      URLState = "errored"
)
