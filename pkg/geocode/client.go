// Package geocode resolves institution addresses to coordinates using the
// Google Places Text Search API, memoized through the request cache.
package geocode

import (
	"context"
	"encoding/json"

	"github.com/sells-group/school-atlas/internal/cache"
	"github.com/sells-group/school-atlas/internal/model"
)

// DefaultPlacesURL is the Places Text Search endpoint.
const DefaultPlacesURL = "https://maps.googleapis.com/maps/api/place/textsearch/json"

// Geocoder resolves a street address. It never returns an error: a failed
// lookup is an absent coordinate carrying the reason.
type Geocoder interface {
	Geocode(ctx context.Context, street, city, state string) model.Field[model.Coordinate]
}

// JSONFetcher performs a cached JSON request. *cache.Deduplicator satisfies it.
type JSONFetcher interface {
	FetchJSON(ctx context.Context, req cache.Request) (json.RawMessage, error)
}

// Option configures a PlacesGeocoder.
type Option func(*PlacesGeocoder)

// WithBaseURL overrides the Text Search endpoint.
func WithBaseURL(u string) Option {
	return func(g *PlacesGeocoder) {
		if u != "" {
			g.baseURL = u
		}
	}
}

// New returns a PlacesGeocoder, or a disabled geocoder when apiKey is empty.
func New(requests JSONFetcher, apiKey string, opts ...Option) Geocoder {
	if apiKey == "" {
		return Disabled()
	}
	return NewPlaces(requests, apiKey, opts...)
}

type disabled struct{}

// Disabled returns a Geocoder whose lookups are all absent with
// model.ErrNotConfigured.
func Disabled() Geocoder { return disabled{} }

func (disabled) Geocode(context.Context, string, string, string) model.Field[model.Coordinate] {
	return model.Absent[model.Coordinate](model.ErrNotConfigured)
}
