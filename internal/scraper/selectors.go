package scraper

import (
	"fmt"

	"github.com/maltedev/dealhound/internal/models"
)

// DefaultAmazonSelectors returns the chains used for amazon.com product pages.
// Order encodes priority.
func DefaultAmazonSelectors() SelectorConfig {
	return SelectorConfig{
		Name: Chain{
			Field:    models.FieldName,
			Explicit: true,
			Candidates: []Locator{
				CSS("span#productTitle"),
				CSS("h1.a-size-large"),
				CSS("#title span"),
				CSS("h1 span"),
			},
		},
		Price: Chain{
			Field: models.FieldPrice,
			Candidates: []Locator{
				CSS("span.a-price-whole"),
				CSS("span.a-offscreen"),
				ID("priceblock_ourprice"),
				ID("priceblock_dealprice"),
				CSS(".a-price .a-offscreen"),
				CSS("span[data-a-color='price'] span.a-offscreen"),
				CSS(".a-price span"),
			},
		},
		PriceFraction: Chain{
			Field: models.FieldPrice,
			Candidates: []Locator{
				CSS("span.a-price-fraction"),
			},
		},
		Availability: Chain{
			Field: models.FieldAvailability,
			Candidates: []Locator{
				CSS("#availability span"),
				ID("availability"),
				ID("stockAvailability"),
				CSS("div#availability"),
			},
		},
	}
}

// OverrideChain replaces the candidates of c with the parsed locators in raw.
// An empty raw list keeps c unchanged.
func OverrideChain(c Chain, raw []string) (Chain, error) {
	if len(raw) == 0 {
		return c, nil
	}

	candidates := make([]Locator, 0, len(raw))
	for _, s := range raw {
		loc, err := ParseLocator(s)
		if err != nil {
			return c, fmt.Errorf("invalid %s locator: %w", c.Field, err)
		}
		candidates = append(candidates, loc)
	}

	c.Candidates = candidates
	return c, nil
}
