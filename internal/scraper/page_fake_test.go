package scraper

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockPage is a testify mock of PageHandle.
type MockPage struct {
	mock.Mock
}

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockPage) FindMatching(ctx context.Context, loc Locator) (Node, error) {
	args := m.Called(ctx, loc)
	return args.Get(0), args.Error(1)
}

func (m *MockPage) WaitUntilPresent(ctx context.Context, loc Locator, timeout time.Duration) (Node, error) {
	args := m.Called(ctx, loc, timeout)
	return args.Get(0), args.Error(1)
}

func (m *MockPage) ReadText(node Node) (string, error) {
	args := m.Called(node)
	return args.String(0), args.Error(1)
}

func (m *MockPage) CaptureScreenshot(path string) error {
	return m.Called(path).Error(0)
}

// fakePage serves node text keyed by locator string.
type fakePage struct {
	texts  map[string]string
	broken bool
}

func (f *fakePage) Navigate(ctx context.Context, url string) error { return nil }

func (f *fakePage) FindMatching(ctx context.Context, loc Locator) (Node, error) {
	return f.lookup(loc)
}

func (f *fakePage) WaitUntilPresent(ctx context.Context, loc Locator, timeout time.Duration) (Node, error) {
	return f.lookup(loc)
}

func (f *fakePage) ReadText(node Node) (string, error) {
	return f.texts[node.(string)], nil
}

func (f *fakePage) CaptureScreenshot(path string) error { return nil }

func (f *fakePage) lookup(loc Locator) (Node, error) {
	if f.broken {
		return nil, ErrPageUnavailable
	}
	if _, ok := f.texts[loc.String()]; ok {
		return loc.String(), nil
	}
	return nil, nil
}
