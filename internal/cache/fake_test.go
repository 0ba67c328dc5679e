package cache

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// countingFetcher serves canned bodies by URL and counts Download calls.
type countingFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	urls   []string
	calls  atomic.Int32
	gate   chan struct{} // when set, Download blocks until closed
}

func newCountingFetcher(bodies map[string]string) *countingFetcher {
	return &countingFetcher{bodies: bodies}
}

func (f *countingFetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.urls = append(f.urls, url)
	body, ok := f.bodies[url]
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return nil, errors.New("fetcher: http 404 from " + url)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}
