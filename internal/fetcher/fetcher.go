// Package fetcher defines the page retrieval contract shared by the static
// and rendered fetch paths.
package fetcher

import (
	"context"
	"net/http"
	"time"
)

// Page is a retrieved document.
type Page struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// Fetcher retrieves a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, rawURL string) (Page, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) (Page, error) {
	return f(ctx, rawURL)
}
