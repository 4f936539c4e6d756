package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/dealhound/internal/models"
	"github.com/maltedev/dealhound/internal/parser"
	"github.com/shopspring/decimal"
)

const reasonNotFound = "no candidate matched"

// ExtractorOptions configures a ProductExtractor.
type ExtractorOptions struct {
	Selectors SelectorConfig
	Wait      WaitPolicy

	// AssumeInStockWhenPriced reports In Stock when availability could not be
	// read but a price was.
	AssumeInStockWhenPriced bool

	Now func() time.Time
}

// ProductExtractor reads name, price and availability from one page.
type ProductExtractor struct {
	selectors     SelectorConfig
	resolver      *Resolver
	assumeInStock bool
	now           func() time.Time
	logger        *slog.Logger
}

func NewProductExtractor(opts ExtractorOptions, logger *slog.Logger) (*ProductExtractor, error) {
	if err := opts.Selectors.Validate(); err != nil {
		return nil, fmt.Errorf("invalid selectors: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &ProductExtractor{
		selectors:     opts.Selectors,
		resolver:      NewResolver(opts.Wait, logger),
		assumeInStock: opts.AssumeInStockWhenPriced,
		now:           now,
		logger:        logger.With("component", "product_extractor"),
	}, nil
}

// Extract always returns a reading. Fields that could not be read are left at
// their placeholder and noted in ExtractionErrors. The error is non-nil only
// when the page itself became unusable mid-extraction; the partial reading is
// still returned alongside it.
func (pe *ProductExtractor) Extract(ctx context.Context, page PageHandle, url string) (models.ProductReading, error) {
	var notes []models.FieldError
	note := func(field, reason string) {
		notes = append(notes, models.FieldError{Field: field, Reason: reason})
		pe.logger.Warn("field extraction failed", "url", url, "field", field, "reason", reason)
	}

	name, err := pe.extractName(ctx, page, note)
	if err != nil {
		return pe.build(url, name, decimal.NullDecimal{}, models.AvailabilityUnknown, notes), err
	}

	price, err := pe.extractPrice(ctx, page, note)
	if err != nil {
		return pe.build(url, name, price, models.AvailabilityUnknown, notes), err
	}

	availability, err := pe.extractAvailability(ctx, page, note)
	if err != nil {
		return pe.build(url, name, price, availability, notes), err
	}

	if availability == models.AvailabilityUnknown && price.Valid && pe.assumeInStock {
		availability = models.AvailabilityInStock
	}

	reading := pe.build(url, name, price, availability, notes)

	pe.logger.Info("extracted product",
		"url", url,
		"name", reading.DisplayName(),
		"price", reading.PriceString(),
		"availability", reading.Availability.String(),
		"gaps", len(reading.ExtractionErrors),
	)

	return reading, nil
}

func (pe *ProductExtractor) build(url, name string, price decimal.NullDecimal, availability models.Availability, notes []models.FieldError) models.ProductReading {
	return models.NewProductReading(url, name, price, availability, pe.now(), notes)
}

func (pe *ProductExtractor) extractName(ctx context.Context, page PageHandle, note func(string, string)) (string, error) {
	raw, err := pe.resolver.Resolve(ctx, page, pe.selectors.Name)
	if err != nil {
		return "", err
	}
	if !raw.Found {
		note(models.FieldName, reasonNotFound)
		return "", nil
	}

	name, err := parser.NormalizeName(raw.Text)
	if err != nil {
		note(models.FieldName, err.Error())
		return "", nil
	}
	return name, nil
}

func (pe *ProductExtractor) extractPrice(ctx context.Context, page PageHandle, note func(string, string)) (decimal.NullDecimal, error) {
	raw, err := pe.resolver.Resolve(ctx, page, pe.selectors.Price)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	if !raw.Found {
		note(models.FieldPrice, reasonNotFound)
		return decimal.NullDecimal{}, nil
	}

	var amount decimal.Decimal
	if len(pe.selectors.PriceFraction.Candidates) > 0 && !strings.Contains(strings.TrimRight(raw.Text, ". "), ".") {
		fraction, err := pe.resolver.FindImmediate(ctx, page, pe.selectors.PriceFraction)
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		amount, err = parser.NormalizeSplitPrice(raw.Text, fraction.Text)
		if err != nil {
			note(models.FieldPrice, fmt.Sprintf("%v: %q", err, raw.Text))
			return decimal.NullDecimal{}, nil
		}
	} else {
		amount, err = parser.NormalizePrice(raw.Text)
		if err != nil {
			note(models.FieldPrice, fmt.Sprintf("%v: %q", err, raw.Text))
			return decimal.NullDecimal{}, nil
		}
	}

	return decimal.NullDecimal{Decimal: amount, Valid: true}, nil
}

func (pe *ProductExtractor) extractAvailability(ctx context.Context, page PageHandle, note func(string, string)) (models.Availability, error) {
	raw, err := pe.resolver.Resolve(ctx, page, pe.selectors.Availability)
	if err != nil {
		return models.AvailabilityUnknown, err
	}
	if !raw.Found {
		note(models.FieldAvailability, reasonNotFound)
		return models.AvailabilityUnknown, nil
	}
	return parser.NormalizeAvailability(raw.Text), nil
}
