// Package parser turns raw text scraped from product pages into typed values.
// Every function here is pure: no page access, no I/O.
package parser

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/maltedev/dealhound/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrUnparseablePrice = errors.New("no price digits in text")
	ErrEmptyName        = errors.New("product name is empty")
)

var priceToken = regexp.MustCompile(`\d(?:[\d.,]*\d)?`)

var (
	outOfStockPhrases = []string{
		"out of stock",
		"unavailable",
		"sold out",
		"no longer available",
	}
	inStockPhrases = []string{
		"in stock",
		"available now",
	}
)

// NormalizePrice parses a combined price token such as "$1,234.56" or
// "1.234,56 €" into an amount with two decimal places. Text without any digit
// run yields ErrUnparseablePrice, never zero.
func NormalizePrice(raw string) (decimal.Decimal, error) {
	cleaned := stripPriceNoise(raw)

	token := priceToken.FindString(cleaned)
	if token == "" {
		return decimal.Decimal{}, ErrUnparseablePrice
	}

	amount, err := decimal.NewFromString(canonicalNumber(token))
	if err != nil {
		return decimal.Decimal{}, ErrUnparseablePrice
	}

	return amount.Round(2), nil
}

// NormalizeSplitPrice joins a whole-unit part and a cents part that a page
// renders in separate nodes ("23." and "97") and parses the result.
// An empty fraction falls back to parsing the whole part alone.
func NormalizeSplitPrice(whole, fraction string) (decimal.Decimal, error) {
	wholeDigits := strings.TrimRight(stripPriceNoise(whole), ".,")
	fractionDigits := strings.Map(keepDigits, fraction)

	if strings.Map(keepDigits, wholeDigits) == "" {
		return decimal.Decimal{}, ErrUnparseablePrice
	}
	if fractionDigits == "" {
		return NormalizePrice(wholeDigits)
	}
	if strings.Contains(wholeDigits, ".") {
		return NormalizePrice(wholeDigits)
	}

	return NormalizePrice(strings.ReplaceAll(wholeDigits, ",", "") + "." + fractionDigits)
}

// NormalizeAvailability maps retailer stock text onto the availability enum by
// case-insensitive substring match. Out-of-stock phrases are checked first so
// that "unavailable" never matches an in-stock phrase.
func NormalizeAvailability(raw string) models.Availability {
	text := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if text == "" {
		return models.AvailabilityUnknown
	}

	for _, phrase := range outOfStockPhrases {
		if strings.Contains(text, phrase) {
			return models.AvailabilityOutOfStock
		}
	}
	for _, phrase := range inStockPhrases {
		if strings.Contains(text, phrase) {
			return models.AvailabilityInStock
		}
	}

	return models.AvailabilityUnknown
}

// NormalizeName collapses whitespace and drops a tagline introduced by a pipe
// ("Widget Pro | Free Shipping" becomes "Widget Pro"). Text without a pipe is
// returned as is.
func NormalizeName(raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")

	if head, _, found := strings.Cut(name, "|"); found {
		if trimmed := strings.TrimSpace(head); trimmed != "" {
			name = trimmed
		}
	}

	if name == "" {
		return "", ErrEmptyName
	}
	return name, nil
}

// canonicalNumber rewrites a digit token to dot-decimal form. When both
// separators appear the last one is the decimal mark. A lone comma is the
// decimal mark only when exactly two digits follow it ("23,97").
func canonicalNumber(token string) string {
	lastDot := strings.LastIndex(token, ".")
	lastComma := strings.LastIndex(token, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			token = strings.ReplaceAll(token, ".", "")
			return strings.Replace(token, ",", ".", 1)
		}
		return strings.ReplaceAll(token, ",", "")
	case lastComma >= 0:
		if strings.Count(token, ",") == 1 && len(token)-lastComma-1 == 2 {
			return strings.Replace(token, ",", ".", 1)
		}
		return strings.ReplaceAll(token, ",", "")
	case strings.Count(token, ".") > 1:
		return strings.ReplaceAll(token, ".", "")
	}
	return token
}

func stripPriceNoise(raw string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return -1
		case unicode.Is(unicode.Sc, r):
			return -1
		}
		return r
	}, raw)
}

func keepDigits(r rune) rune {
	if r >= '0' && r <= '9' {
		return r
	}
	return -1
}
