package pipeline

import (
	"time"

	"github.com/sells-group/school-atlas/internal/cache"
	"github.com/sells-group/school-atlas/internal/config"
	"github.com/sells-group/school-atlas/internal/directory"
	"github.com/sells-group/school-atlas/internal/fetcher"
	"github.com/sells-group/school-atlas/pkg/geocode"
)

// Components is a fully wired crawl: the driver plus the caches behind it,
// exposed for stats reporting.
type Components struct {
	Driver   *Driver
	Pages    *cache.Deduplicator
	Geocodes *cache.Deduplicator
}

// Build wires the fetcher, both caches, the crawler, the extractor and the
// geocoder from cfg.
func Build(cfg *config.Config) (*Components, error) {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:   cfg.Fetch.UserAgent,
		Timeout:     time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxAttempts: cfg.Fetch.MaxAttempts,

		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
	})

	pages := cache.NewDeduplicator("directory", cache.OpenFileStore(cfg.Cache.DirectoryFile), f)
	geocodes := cache.NewDeduplicator("geocode", cache.OpenFileStore(cfg.Cache.GeocodeFile), f)

	crawler, err := directory.NewCrawler(pages, directory.Options{
		BaseURL:   cfg.Directory.BaseURL,
		ProgramID: cfg.Directory.ProgramID,
		DegreeID:  cfg.Directory.DegreeID,
	})
	if err != nil {
		return nil, err
	}

	geocoder := geocode.New(geocodes, cfg.Geocode.APIKey, geocode.WithBaseURL(cfg.Geocode.BaseURL))

	return &Components{
		Driver:   NewDriver(crawler, directory.NewExtractor(pages, geocoder), cfg.Pipeline.Concurrency),
		Pages:    pages,
		Geocodes: geocodes,
	}, nil
}
