// Package pipeline drives a directory crawl across regions and collects the
// extracted institution records.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/school-atlas/internal/directory"
	"github.com/sells-group/school-atlas/internal/model"
	"github.com/sells-group/school-atlas/internal/resilience"
)

// Lister discovers the detail pages of one region. *directory.Crawler
// satisfies it.
type Lister interface {
	ListDetailPages(ctx context.Context, region string) ([]model.DetailPage, error)
	Stats() directory.CrawlStats
}

// Extractor builds one record from a detail page. *directory.Extractor
// satisfies it.
type Extractor interface {
	Extract(ctx context.Context, page model.DetailPage) (model.Institution, error)
}

// Stats summarizes one Run.
type Stats struct {
	Regions         int           `json:"regions"`
	FailedRegions   int           `json:"failed_regions"`
	Pages           int64         `json:"pages"`
	Listings        int           `json:"listings"`
	SkippedListings int64         `json:"skipped_listings"`
	Extracted       int           `json:"extracted"`
	Dropped         int           `json:"dropped"`
	Geocoded        int           `json:"geocoded"`
	Duration        time.Duration `json:"duration"`
}

// Result is the output of one Run.
type Result struct {
	RunID   string              `json:"run_id"`
	Records []model.Institution `json:"records"`
	Stats   Stats               `json:"stats"`
}

// Driver runs the crawl region by region.
type Driver struct {
	crawler     Lister
	extractor   Extractor
	concurrency int
}

// NewDriver creates a Driver. concurrency below 1 is treated as 1.
func NewDriver(crawler Lister, extractor Extractor, concurrency int) *Driver {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Driver{crawler: crawler, extractor: extractor, concurrency: concurrency}
}

// Run crawls regions in order and returns their records in region order
// then listing order. A failing region is logged and skipped; a record that
// cannot be fetched is dropped. On cancellation Run returns the records
// gathered so far together with the context error.
func (d *Driver) Run(ctx context.Context, regions []model.Region) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.NewString()}
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", res.RunID))
	log.Info("pipeline: starting run", zap.Int("regions", len(regions)), zap.Int("concurrency", d.concurrency))

	before := d.crawler.Stats()
	var runErr error
	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		res.Stats.Regions++
		rlog := log.With(zap.String("region", region.Name))

		pages, err := d.crawler.ListDetailPages(ctx, region.Name)
		if err != nil {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			res.Stats.FailedRegions++
			rlog.Error("pipeline: region failed",
				zap.Error(err),
				zap.String("class", resilience.Classify(err)),
				zap.Int("partial_listings", len(pages)),
			)
		}
		res.Stats.Listings += len(pages)

		records, dropped, err := d.extractRegion(ctx, region, pages, rlog)
		res.Records = append(res.Records, records...)
		res.Stats.Extracted += len(records)
		res.Stats.Dropped += dropped
		for _, rec := range records {
			if rec.Latitude.Valid() && rec.Longitude.Valid() {
				res.Stats.Geocoded++
			}
		}
		if err != nil {
			runErr = err
			break
		}
		rlog.Info("pipeline: region complete",
			zap.Int("listings", len(pages)),
			zap.Int("extracted", len(records)),
			zap.Int("dropped", dropped),
		)
	}

	after := d.crawler.Stats()
	res.Stats.Pages = after.Pages - before.Pages
	res.Stats.SkippedListings = after.SkippedCards - before.SkippedCards
	res.Stats.Duration = time.Since(start)

	log.Info("pipeline: run complete",
		zap.Int("records", len(res.Records)),
		zap.Int("expected", res.Stats.Listings),
		zap.Int("extracted", res.Stats.Extracted),
		zap.Int("dropped", res.Stats.Dropped),
		zap.Int("geocoded", res.Stats.Geocoded),
		zap.Int("failed_regions", res.Stats.FailedRegions),
		zap.Int64("pages", res.Stats.Pages),
		zap.Int64("skipped_listings", res.Stats.SkippedListings),
		zap.Duration("duration", res.Stats.Duration),
	)
	if runErr != nil {
		return res, eris.Wrap(runErr, "pipeline: run interrupted")
	}
	return res, nil
}

// extractRegion extracts pages with up to d.concurrency workers. Results land
// in index slots so output order matches listing order.
func (d *Driver) extractRegion(ctx context.Context, region model.Region, pages []model.DetailPage, log *zap.Logger) ([]model.Institution, int, error) {
	slots := make([]*model.Institution, len(pages))
	var dropped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, page := range pages {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := d.extractor.Extract(gctx, page)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				dropped.Add(1)
				log.Warn("pipeline: record dropped",
					zap.String("url", page.URL),
					zap.Error(err),
					zap.String("class", resilience.Classify(err)),
				)
				return nil
			}
			rec.Region = region.Name
			slots[i] = &rec
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	out := make([]model.Institution, 0, len(pages))
	for _, rec := range slots {
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, int(dropped.Load()), err
}
