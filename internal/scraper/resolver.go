package scraper

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// RawResult is the outcome of resolving one chain: the text of the first
// candidate that produced non-blank text, or not found.
type RawResult struct {
	Found     bool
	Text      string
	Candidate Locator
	Attempts  int
}

// Resolver walks selector chains against a page.
type Resolver struct {
	wait   WaitPolicy
	logger *slog.Logger
}

func NewResolver(wait WaitPolicy, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		wait:   wait,
		logger: logger.With("component", "resolver"),
	}
}

// Resolve tries the candidates of chain strictly in order and stops at the
// first one whose node appears within the wait bound and has non-blank text.
// Misses, timeouts and read failures move on to the next candidate; only
// ErrPageUnavailable aborts the walk.
func (r *Resolver) Resolve(ctx context.Context, page PageHandle, chain Chain) (RawResult, error) {
	timeout := chain.timeout(r.wait)
	result := RawResult{}

	for _, loc := range chain.Candidates {
		result.Attempts++

		node, err := page.WaitUntilPresent(ctx, loc, timeout)
		if err != nil {
			if errors.Is(err, ErrPageUnavailable) {
				return result, err
			}
			r.logger.Debug("candidate lookup failed", "field", chain.Field, "candidate", loc.String(), "error", err)
			continue
		}
		if node == nil {
			r.logger.Debug("candidate missed", "field", chain.Field, "candidate", loc.String())
			continue
		}

		text, err := page.ReadText(node)
		if err != nil {
			if errors.Is(err, ErrPageUnavailable) {
				return result, err
			}
			r.logger.Debug("candidate text unreadable", "field", chain.Field, "candidate", loc.String(), "error", err)
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		result.Found = true
		result.Text = text
		result.Candidate = loc
		return result, nil
	}

	return result, nil
}

// FindImmediate returns the text of the first candidate present right now,
// without waiting.
func (r *Resolver) FindImmediate(ctx context.Context, page PageHandle, chain Chain) (RawResult, error) {
	result := RawResult{}

	for _, loc := range chain.Candidates {
		result.Attempts++

		node, err := page.FindMatching(ctx, loc)
		if err != nil {
			if errors.Is(err, ErrPageUnavailable) {
				return result, err
			}
			continue
		}
		if node == nil {
			continue
		}

		text, err := page.ReadText(node)
		if err != nil {
			if errors.Is(err, ErrPageUnavailable) {
				return result, err
			}
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			result.Found = true
			result.Text = text
			result.Candidate = loc
			return result, nil
		}
	}

	return result, nil
}
