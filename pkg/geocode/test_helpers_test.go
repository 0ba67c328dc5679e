package geocode

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sells-group/school-atlas/internal/cache"
	"github.com/sells-group/school-atlas/internal/fetcher"
)

// placesServer serves body for every request and counts calls.
func placesServer(t *testing.T, body string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("key") != "test-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newTestGeocoder wires a PlacesGeocoder to srv through a fresh file cache.
func newTestGeocoder(t *testing.T, srv *httptest.Server) (*PlacesGeocoder, *cache.FileStore) {
	t.Helper()
	return newTestGeocoderStore(t, srv, "test-key")
}

func newTestGeocoderWithKey(t *testing.T, srv *httptest.Server, key string) *PlacesGeocoder {
	t.Helper()
	g, _ := newTestGeocoderStore(t, srv, key)
	return g
}

func newTestGeocoderStore(t *testing.T, srv *httptest.Server, key string) (*PlacesGeocoder, *cache.FileStore) {
	t.Helper()
	store := cache.OpenFileStore(filepath.Join(t.TempDir(), "cache_GOOGLE.json"))
	dedup := cache.NewDeduplicator("geocode", store,
		fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 5 * time.Second}))
	return NewPlaces(dedup, key, WithBaseURL(srv.URL+"/textsearch/json")), store
}
