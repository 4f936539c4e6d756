package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrPageUnavailable marks a page handle that can no longer answer lookups
	// (closed tab, crashed browser). Backends wrap it; everything else a lookup
	// returns is treated as a miss.
	ErrPageUnavailable = errors.New("page unavailable")
	ErrEmptyChain      = errors.New("selector chain has no candidates")
)

type LocatorKind string

const (
	ByCSS   LocatorKind = "css"
	ByID    LocatorKind = "id"
	ByXPath LocatorKind = "xpath"
)

// Locator names one strategy for finding a node on a page.
type Locator struct {
	Kind  LocatorKind
	Value string
}

func CSS(selector string) Locator { return Locator{Kind: ByCSS, Value: selector} }

func ID(id string) Locator { return Locator{Kind: ByID, Value: id} }

func XPath(expr string) Locator { return Locator{Kind: ByXPath, Value: expr} }

func (l Locator) String() string { return string(l.Kind) + ":" + l.Value }

// ParseLocator reads "css:...", "id:..." or "xpath:..." notation. A value
// without a known prefix is taken as a CSS selector.
func ParseLocator(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Locator{}, fmt.Errorf("empty locator")
	}

	if kind, value, found := strings.Cut(s, ":"); found {
		switch LocatorKind(kind) {
		case ByCSS, ByID, ByXPath:
			if strings.TrimSpace(value) == "" {
				return Locator{}, fmt.Errorf("locator %q has no value", s)
			}
			return Locator{Kind: LocatorKind(kind), Value: strings.TrimSpace(value)}, nil
		}
	}

	return CSS(s), nil
}

// Node is an element handle owned by a PageHandle backend.
type Node any

// PageHandle is the page automation capability the extractor runs against.
// Lookups that find nothing return a nil Node and a nil error.
type PageHandle interface {
	Navigate(ctx context.Context, url string) error
	FindMatching(ctx context.Context, loc Locator) (Node, error)
	WaitUntilPresent(ctx context.Context, loc Locator, timeout time.Duration) (Node, error)
	ReadText(node Node) (string, error)
	CaptureScreenshot(path string) error
}

// WaitPolicy bounds how long a single lookup may block. Implicit applies to
// every lookup; Explicit is the longer ceiling for chains that opt into it.
type WaitPolicy struct {
	Implicit time.Duration
	Explicit time.Duration
}

// Chain is the ordered list of locator candidates for one logical field.
type Chain struct {
	Field      string
	Candidates []Locator
	Explicit   bool
}

func (c Chain) timeout(p WaitPolicy) time.Duration {
	if c.Explicit {
		return p.Explicit
	}
	return p.Implicit
}

// SelectorConfig holds the chains for every field a product page yields.
// PriceFraction is optional and only consulted for split price layouts.
type SelectorConfig struct {
	Name          Chain
	Price         Chain
	PriceFraction Chain
	Availability  Chain
}

func (s SelectorConfig) Validate() error {
	for _, c := range []Chain{s.Name, s.Price, s.Availability} {
		if len(c.Candidates) == 0 {
			return fmt.Errorf("%s: %w", c.Field, ErrEmptyChain)
		}
	}
	return nil
}
