package cache

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/school-atlas/internal/fetcher"
)

// Request identifies one remote call. Params are sent on the wire but only
// those not listed in Secret take part in the cache key.
type Request struct {
	Endpoint string
	Params   map[string]string
	Secret   []string

	// Accept optionally validates a fresh body before it is cached. A
	// rejected body is returned as an error and never stored.
	Accept func(body []byte) error
}

// Key returns the request's cache key.
func (r Request) Key() string {
	return RequestKey(r.Endpoint, r.Params, r.Secret)
}

// URL returns the wire URL including every parameter.
func (r Request) URL() string {
	if len(r.Params) == 0 {
		return r.Endpoint
	}
	q := url.Values{}
	for k, v := range r.Params {
		q.Set(k, v)
	}
	sep := "?"
	if strings.Contains(r.Endpoint, "?") {
		sep = "&"
	}
	return r.Endpoint + sep + q.Encode()
}

// Stats counts deduplicator activity.
type Stats struct {
	Hits            int64 `json:"hits"`
	Misses          int64 `json:"misses"`
	Fetches         int64 `json:"fetches"`
	PersistFailures int64 `json:"persist_failures"`
}

// Deduplicator routes every outbound call through a Store so that each
// distinct request key reaches the network at most once. Concurrent misses
// for the same key share a single call.
type Deduplicator struct {
	name    string
	store   Store
	fetcher fetcher.Fetcher
	flight  singleflight.Group
	log     *zap.Logger

	hits            atomic.Int64
	misses          atomic.Int64
	fetches         atomic.Int64
	persistFailures atomic.Int64
}

// NewDeduplicator creates a Deduplicator for one source. name labels log lines.
func NewDeduplicator(name string, store Store, f fetcher.Fetcher) *Deduplicator {
	return &Deduplicator{
		name:    name,
		store:   store,
		fetcher: f,
		log:     zap.L().With(zap.String("component", "cache"), zap.String("source", name)),
	}
}

// FetchText returns the response body as text. The body is cached as a JSON
// string.
func (d *Deduplicator) FetchText(ctx context.Context, req Request) (string, error) {
	raw, err := d.fetch(ctx, req, func(body []byte) (json.RawMessage, error) {
		return json.Marshal(string(body))
	})
	if err != nil {
		return "", err
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", eris.Wrapf(err, "cache: %s entry %q is not text", d.name, req.Key())
	}
	return text, nil
}

// FetchJSON returns the response as a JSON document. Bodies that are not
// valid JSON are returned as errors and not cached.
func (d *Deduplicator) FetchJSON(ctx context.Context, req Request) (json.RawMessage, error) {
	return d.fetch(ctx, req, func(body []byte) (json.RawMessage, error) {
		if !json.Valid(body) {
			return nil, eris.Errorf("cache: %s response is not valid JSON", d.name)
		}
		return json.RawMessage(body), nil
	})
}

// Stats returns a snapshot of the counters.
func (d *Deduplicator) Stats() Stats {
	return Stats{
		Hits:            d.hits.Load(),
		Misses:          d.misses.Load(),
		Fetches:         d.fetches.Load(),
		PersistFailures: d.persistFailures.Load(),
	}
}

func (d *Deduplicator) fetch(ctx context.Context, req Request, encode func([]byte) (json.RawMessage, error)) (json.RawMessage, error) {
	key := req.Key()
	if v, ok := d.store.Get(key); ok {
		d.hits.Add(1)
		d.log.Debug("cache: hit", zap.String("key", key))
		return v, nil
	}
	d.misses.Add(1)

	v, err, _ := d.flight.Do(key, func() (any, error) {
		// A flight that finished between the lookup above and this call
		// has already stored the value.
		if v, ok := d.store.Get(key); ok {
			return v, nil
		}
		return d.fill(ctx, key, req, encode)
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

func (d *Deduplicator) fill(ctx context.Context, key string, req Request, encode func([]byte) (json.RawMessage, error)) (json.RawMessage, error) {
	d.fetches.Add(1)
	d.log.Debug("cache: miss, fetching", zap.String("key", key))

	rc, err := d.fetcher.Download(ctx, req.URL())
	if err != nil {
		return nil, eris.Wrapf(err, "cache: fetch %s", key)
	}
	defer rc.Close() //nolint:errcheck

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "cache: read %s", key)
	}

	if req.Accept != nil {
		if err := req.Accept(body); err != nil {
			return nil, eris.Wrapf(err, "cache: rejected response for %s", key)
		}
	}

	value, err := encode(body)
	if err != nil {
		return nil, eris.Wrapf(err, "cache: encode %s", key)
	}

	if err := d.store.Put(key, value); err != nil {
		d.persistFailures.Add(1)
		d.log.Warn("cache: persist failed, continuing with in-memory value",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return value, nil
}
