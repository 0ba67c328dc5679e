package geocode

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/school-atlas/internal/cache"
	"github.com/sells-group/school-atlas/internal/model"
)

// ErrRejected marks a response whose status means the request itself failed
// (quota, credentials, bad request). Such responses are never cached.
var ErrRejected = errors.New("geocode: request rejected")

// placesResponse is the JSON response from the Places Text Search API.
type placesResponse struct {
	Status  string        `json:"status"`
	Results []placesPlace `json:"results"`
}

type placesPlace struct {
	Geometry struct {
		Location struct {
			Lat *float64 `json:"lat"`
			Lng *float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// PlacesGeocoder geocodes with the Places Text Search API. The API key is
// sent on the wire but never enters the cache key.
type PlacesGeocoder struct {
	requests JSONFetcher
	apiKey   string
	baseURL  string
}

// NewPlaces creates a PlacesGeocoder.
func NewPlaces(requests JSONFetcher, apiKey string, opts ...Option) *PlacesGeocoder {
	g := &PlacesGeocoder{
		requests: requests,
		apiKey:   apiKey,
		baseURL:  DefaultPlacesURL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FormatQuery builds the free-text query for an address.
func FormatQuery(street, city, state string) string {
	return street + ", " + city + ", " + state
}

// Request returns the cached request for an address.
func (g *PlacesGeocoder) Request(street, city, state string) cache.Request {
	return cache.Request{
		Endpoint: g.baseURL,
		Params: map[string]string{
			"query": FormatQuery(street, city, state),
			"key":   g.apiKey,
		},
		Secret: []string{"key"},
		Accept: acceptStatus,
	}
}

// Geocode returns the location of the first result.
func (g *PlacesGeocoder) Geocode(ctx context.Context, street, city, state string) model.Field[model.Coordinate] {
	req := g.Request(street, city, state)

	raw, err := g.requests.FetchJSON(ctx, req)
	if err != nil {
		zap.L().Debug("geocode: lookup failed", zap.String("key", req.Key()), zap.Error(err))
		return model.Absent[model.Coordinate](err)
	}

	var resp placesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return model.Absent[model.Coordinate](eris.Wrapf(model.ErrMalformed, "geocode: parse response: %v", err))
	}
	if len(resp.Results) == 0 {
		return model.Absent[model.Coordinate](model.ErrNoResults)
	}

	loc := resp.Results[0].Geometry.Location
	if loc.Lat == nil || loc.Lng == nil {
		return model.Absent[model.Coordinate](eris.Wrap(model.ErrMalformed, "geocode: result has no location"))
	}
	return model.Some(model.Coordinate{Latitude: *loc.Lat, Longitude: *loc.Lng})
}

// acceptStatus refuses to cache responses that describe a failed request
// rather than an answer. OK and ZERO_RESULTS are answers.
func acceptStatus(body []byte) error {
	var head struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return nil
	}
	switch head.Status {
	case "OVER_QUERY_LIMIT", "REQUEST_DENIED", "INVALID_REQUEST", "UNKNOWN_ERROR":
		return eris.Wrapf(ErrRejected, "status %s", head.Status)
	}
	return nil
}
