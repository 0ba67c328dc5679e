package fetcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/school-atlas/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent   string
	Timeout     time.Duration
	MaxAttempts int           // 1 = no retries
	Backoff     time.Duration // initial retry delay; 0 uses the resilience default

	// RequestsPerSecond caps requests to any one host. 0 means unlimited.
	RequestsPerSecond float64
}

// HTTPFetcher implements Fetcher using net/http. Transient failures are
// retried only when MaxAttempts > 1.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "school-atlas/1.0"
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiter returns the per-host limiter, or nil when unlimited.
func (f *HTTPFetcher) limiter(host string) *rate.Limiter {
	if f.opts.RequestsPerSecond <= 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.opts.RequestsPerSecond), 1)
		f.limiters[host] = l
	}
	return l
}

// Download fetches the URL and returns the response body decoded to UTF-8.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	policy := resilience.DefaultPolicy()
	policy.Attempts = f.opts.MaxAttempts
	if f.opts.Backoff > 0 {
		policy.Backoff = f.opts.Backoff
	}
	policy.OnRetry = resilience.LogRetries("fetcher", displayURL(rawURL))

	return resilience.Retry(ctx, policy, func(ctx context.Context) (io.ReadCloser, error) {
		return f.get(ctx, rawURL)
	})
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(scrubURLError(err), "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	if l := f.limiter(req.URL.Host); l != nil {
		if err := l.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limit wait")
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(scrubURLError(err), "fetcher: request")
	}

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		statusErr := eris.Errorf("fetcher: http %d from %s", resp.StatusCode, displayURL(rawURL))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	zap.L().Debug("fetcher: downloaded",
		zap.String("url", displayURL(rawURL)),
		zap.String("content_type", resp.Header.Get("Content-Type")),
	)
	return decodeBody(resp.Body, resp.Header.Get("Content-Type")), nil
}

// displayURL drops the query string so credentials passed as parameters
// never reach logs or error messages.
func displayURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<unparseable url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

func scrubURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = displayURL(ue.URL)
	}
	return err
}
