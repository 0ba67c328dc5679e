// Package fetcher performs the blocking remote calls behind the request cache
// and streams local CSV inputs.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote documents. Implementations must be safe for
// concurrent use; callers serialize cache writes themselves.
type Fetcher interface {
	// Download fetches the URL and returns the UTF-8 response body.
	// Non-200 responses are errors.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}
