package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/school-atlas/internal/config"
	"github.com/sells-group/school-atlas/internal/directory"
	"github.com/sells-group/school-atlas/internal/export"
	"github.com/sells-group/school-atlas/internal/model"
)

type fakeLister struct {
	mu     sync.Mutex
	pages  map[string][]model.DetailPage
	errs   map[string]error
	onList func(region string)
	listed int64
}

func (f *fakeLister) ListDetailPages(_ context.Context, region string) ([]model.DetailPage, error) {
	if f.onList != nil {
		f.onList(region)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed++
	return f.pages[region], f.errs[region]
}

func (f *fakeLister) Stats() directory.CrawlStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return directory.CrawlStats{Pages: f.listed}
}

type fakeExtractor struct {
	fail  map[string]bool
	delay func(page model.DetailPage) time.Duration
	calls atomic.Int32
}

func (f *fakeExtractor) Extract(ctx context.Context, page model.DetailPage) (model.Institution, error) {
	f.calls.Add(1)
	if f.delay != nil {
		select {
		case <-time.After(f.delay(page)):
		case <-ctx.Done():
			return model.Institution{}, ctx.Err()
		}
	}
	if f.fail[page.URL] {
		return model.Institution{}, errors.New("fetcher: http 404 from " + page.URL)
	}
	return model.Institution{Name: model.Some(page.Name), SourceURL: page.URL}, nil
}

func refs(prefix string, n int) []model.DetailPage {
	out := make([]model.DetailPage, n)
	for i := range out {
		out[i] = model.DetailPage{
			URL:  fmt.Sprintf("https://example.test/%s/%d", prefix, i),
			Name: fmt.Sprintf("%s-%d", prefix, i),
		}
	}
	return out
}

func names(records []model.Institution) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name.OrZero()
	}
	return out
}

func TestDriver_RegionOrder(t *testing.T) {
	lister := &fakeLister{pages: map[string][]model.DetailPage{
		"Ohio": refs("oh", 2),
		"Utah": refs("ut", 1),
	}}
	d := NewDriver(lister, &fakeExtractor{}, 1)

	res, err := d.Run(context.Background(), []model.Region{{Name: "Utah"}, {Name: "Ohio"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ut-0", "oh-0", "oh-1"}, names(res.Records))
	assert.Equal(t, "Utah", res.Records[0].Region)
	assert.Equal(t, "Ohio", res.Records[2].Region)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.Stats.Regions)
	assert.Equal(t, 3, res.Stats.Listings)
	assert.Equal(t, 3, res.Stats.Extracted)
	assert.Equal(t, int64(2), res.Stats.Pages)
	assert.Zero(t, res.Stats.Geocoded)
}

func TestDriver_ConcurrentKeepsListingOrder(t *testing.T) {
	pages := refs("ca", 8)
	lister := &fakeLister{pages: map[string][]model.DetailPage{"California": pages}}
	ext := &fakeExtractor{delay: func(p model.DetailPage) time.Duration {
		for i, ref := range pages {
			if ref.URL == p.URL {
				return time.Duration(len(pages)-i) * 2 * time.Millisecond
			}
		}
		return 0
	}}
	d := NewDriver(lister, ext, 4)

	res, err := d.Run(context.Background(), []model.Region{{Name: "California"}})
	require.NoError(t, err)
	want := make([]string, len(pages))
	for i, p := range pages {
		want[i] = p.Name
	}
	assert.Equal(t, want, names(res.Records))
	assert.Equal(t, int32(8), ext.calls.Load())
}

func TestDriver_RegionFailureIsolated(t *testing.T) {
	lister := &fakeLister{
		pages: map[string][]model.DetailPage{"Utah": refs("ut", 2)},
		errs:  map[string]error{"Nowhere": errors.New("directory: fetch listing: http 500")},
	}
	d := NewDriver(lister, &fakeExtractor{}, 1)

	res, err := d.Run(context.Background(), []model.Region{{Name: "Nowhere"}, {Name: "Utah"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.FailedRegions)
	assert.Equal(t, 2, res.Stats.Regions)
	assert.Equal(t, []string{"ut-0", "ut-1"}, names(res.Records))
}

func TestDriver_PartialRegionKeepsListedPages(t *testing.T) {
	lister := &fakeLister{
		pages: map[string][]model.DetailPage{"Ohio": refs("oh", 1)},
		errs:  map[string]error{"Ohio": errors.New("directory: fetch listing: http 503")},
	}
	d := NewDriver(lister, &fakeExtractor{}, 1)

	res, err := d.Run(context.Background(), []model.Region{{Name: "Ohio"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.FailedRegions)
	assert.Equal(t, []string{"oh-0"}, names(res.Records))
}

func TestDriver_DropsFailedRecords(t *testing.T) {
	pages := refs("tx", 3)
	lister := &fakeLister{pages: map[string][]model.DetailPage{"Texas": pages}}
	d := NewDriver(lister, &fakeExtractor{fail: map[string]bool{pages[1].URL: true}}, 1)

	res, err := d.Run(context.Background(), []model.Region{{Name: "Texas"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"tx-0", "tx-2"}, names(res.Records))
	assert.Equal(t, 3, res.Stats.Listings)
	assert.Equal(t, 2, res.Stats.Extracted)
	assert.Equal(t, 1, res.Stats.Dropped)
}

func TestDriver_CancelReturnsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lister := &fakeLister{
		pages: map[string][]model.DetailPage{"Ohio": refs("oh", 2), "Utah": refs("ut", 2)},
		onList: func(region string) {
			if region == "Utah" {
				cancel()
			}
		},
	}
	d := NewDriver(lister, &fakeExtractor{}, 1)

	res, err := d.Run(ctx, []model.Region{{Name: "Ohio"}, {Name: "Utah"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, []string{"oh-0", "oh-1"}, names(res.Records))
}

func TestDriver_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lister := &fakeLister{pages: map[string][]model.DetailPage{"Ohio": refs("oh", 1)}}
	res, err := NewDriver(lister, &fakeExtractor{}, 1).Run(ctx, []model.Region{{Name: "Ohio"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Records)
	assert.Zero(t, res.Stats.Regions)
}

func TestNewDriver_ClampsConcurrency(t *testing.T) {
	d := NewDriver(&fakeLister{}, &fakeExtractor{}, 0)
	assert.Equal(t, 1, d.concurrency)
}

const detailTemplate = `<html><body>
<div id="yw0"><div class="f-12">%d</div><div class="f-12">1</div><div class="f-12">1</div><div class="f-12">%d</div></div>
<div id="yw1"><div class="f-12">%d</div></div>
<div class="blue">$%d per year</div>
<div class="f-12 mt-2">%s<br>%s</div>
</body></html>`

func directoryServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	card := func(name, href string) string {
		return fmt.Sprintf(`<html><body><div class="col text-secondary">
<h2 class="font-bitter text-left text-danger">%s</h2>
<div class="col text-center order-sm-3"><a href="%s">More</a></div>
</div></body></html>`, name, href)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/school-search/usa/Test/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "175", r.URL.Query().Get("School[searchProgram]"))
		switch r.URL.Query().Get("School_page") {
		case "":
			fmt.Fprint(w, `<html><body><div class="summary">Showing page 1 of 2</div></body></html>`)
		case "1":
			fmt.Fprint(w, card("Alpha College", "/school/alpha/"))
		case "2":
			fmt.Fprint(w, card("Beta University", "/school/beta/"))
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/school/alpha/", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprintf(w, detailTemplate, 1200, 300, 90, 21000, "1 Main St", "Springfield, OH 45501")
	})
	mux.HandleFunc("/school/beta/", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprintf(w, detailTemplate, 5400, 800, 410, 38500, "9 College Ave", "Provo, UT 84601")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func placesServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	locations := map[string]string{
		"1 Main St, Springfield, OH": `{"lat": 39.9242, "lng": -83.8088}`,
		"9 College Ave, Provo, UT":   `{"lat": 40.2338, "lng": -111.6585}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		loc, ok := locations[r.URL.Query().Get("query")]
		if !ok {
			fmt.Fprint(w, `{"status": "ZERO_RESULTS", "results": []}`)
			return
		}
		fmt.Fprintf(w, `{"status": "OK", "results": [{"geometry": {"location": %s}}]}`, loc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBuild_EndToEndCachedRerun(t *testing.T) {
	var hits, geoHits atomic.Int32
	srv := directoryServer(t, &hits)
	places := placesServer(t, &geoHits)
	dir := t.TempDir()

	cfg := &config.Config{
		Directory: config.DirectoryConfig{BaseURL: srv.URL, ProgramID: 175, DegreeID: 4},
		Geocode:   config.GeocodeConfig{APIKey: "test-key", BaseURL: places.URL + "/textsearch/json"},
		Cache: config.CacheConfig{
			DirectoryFile: filepath.Join(dir, "cache_schools.json"),
			GeocodeFile:   filepath.Join(dir, "cache_GOOGLE.json"),
		},
		Fetch:    config.FetchConfig{TimeoutSecs: 5, MaxAttempts: 1, UserAgent: "school-atlas-test"},
		Pipeline: config.PipelineConfig{Concurrency: 1},
	}
	regions := []model.Region{{Name: "Test"}}

	run := func() (*Result, *Components, []byte) {
		c, err := Build(cfg)
		require.NoError(t, err)
		res, err := c.Driver.Run(context.Background(), regions)
		require.NoError(t, err)
		var buf bytes.Buffer
		require.NoError(t, export.WriteCSV(&buf, res.Records))
		return res, c, buf.Bytes()
	}

	first, c1, firstCSV := run()
	assert.Equal(t, int32(5), hits.Load())
	assert.Equal(t, int32(2), geoHits.Load())
	require.Len(t, first.Records, 2)
	assert.Equal(t, []string{"Alpha College", "Beta University"}, names(first.Records))
	assert.Equal(t, 21000, first.Records[0].Tuition.OrZero())
	assert.Equal(t, "UT", first.Records[1].State.OrZero())
	assert.InDelta(t, 39.9242, first.Records[0].Latitude.OrZero(), 1e-9)
	assert.InDelta(t, -111.6585, first.Records[1].Longitude.OrZero(), 1e-9)
	assert.Equal(t, int64(2), first.Stats.Pages)
	assert.Equal(t, 2, first.Stats.Geocoded)
	assert.Equal(t, int64(2), c1.Geocodes.Stats().Fetches)

	second, c2, secondCSV := run()
	assert.Equal(t, int32(5), hits.Load(), "directory rerun must be served from cache")
	assert.Equal(t, int32(2), geoHits.Load(), "geocode rerun must be served from cache")
	assert.Zero(t, c2.Pages.Stats().Fetches)
	assert.Zero(t, c2.Geocodes.Stats().Fetches)
	assert.Equal(t, int64(2), c2.Geocodes.Stats().Hits)
	assert.Equal(t, names(first.Records), names(second.Records))
	assert.Equal(t, 2, second.Stats.Geocoded)
	assert.Equal(t, firstCSV, secondCSV)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestBuild_WithoutAPIKeySkipsGeocoding(t *testing.T) {
	var hits atomic.Int32
	srv := directoryServer(t, &hits)
	dir := t.TempDir()

	c, err := Build(&config.Config{
		Directory: config.DirectoryConfig{BaseURL: srv.URL, ProgramID: 175, DegreeID: 4},
		Cache: config.CacheConfig{
			DirectoryFile: filepath.Join(dir, "cache_schools.json"),
			GeocodeFile:   filepath.Join(dir, "cache_GOOGLE.json"),
		},
		Fetch: config.FetchConfig{TimeoutSecs: 5, MaxAttempts: 1},
	})
	require.NoError(t, err)

	res, err := c.Driver.Run(context.Background(), []model.Region{{Name: "Test"}})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.ErrorIs(t, res.Records[0].Latitude.Reason(), model.ErrNotConfigured)
	assert.Zero(t, res.Stats.Geocoded)
	assert.Zero(t, c.Geocodes.Stats().Fetches)
}

func TestBuild_RejectsRelativeBaseURL(t *testing.T) {
	dir := t.TempDir()
	_, err := Build(&config.Config{
		Directory: config.DirectoryConfig{BaseURL: "/relative"},
		Cache: config.CacheConfig{
			DirectoryFile: filepath.Join(dir, "a.json"),
			GeocodeFile:   filepath.Join(dir, "b.json"),
		},
	})
	require.Error(t, err)
}
