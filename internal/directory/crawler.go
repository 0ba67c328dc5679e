// Package directory crawls the institution directory site and extracts one
// record per institution detail page.
package directory

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/school-atlas/internal/cache"
	"github.com/sells-group/school-atlas/internal/model"
)

// TextFetcher performs a cached text request. *cache.Deduplicator satisfies it.
type TextFetcher interface {
	FetchText(ctx context.Context, req cache.Request) (string, error)
}

// Options selects the site and the search filter applied to every listing.
type Options struct {
	BaseURL   string
	ProgramID int
	DegreeID  int
}

// CrawlStats accumulates across ListDetailPages calls.
type CrawlStats struct {
	Pages        int64 `json:"pages"`
	Cards        int64 `json:"cards"`
	SkippedCards int64 `json:"skipped_cards"`
}

// Crawler discovers detail pages from a region's paginated listing.
type Crawler struct {
	pages TextFetcher
	opts  Options
	base  *url.URL

	listed  atomic.Int64
	cards   atomic.Int64
	skipped atomic.Int64
}

// NewCrawler creates a Crawler. BaseURL must be an absolute URL.
func NewCrawler(pages TextFetcher, opts Options) (*Crawler, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "directory: parse base url")
	}
	if !base.IsAbs() {
		return nil, eris.Errorf("directory: base url %q is not absolute", opts.BaseURL)
	}
	return &Crawler{pages: pages, opts: opts, base: base}, nil
}

// ListingURL returns the listing URL for a region. page 0 is the unpaged
// first listing used to discover the page count.
func (c *Crawler) ListingURL(region string, page int) string {
	u := fmt.Sprintf("%s/school-search/usa/%s/?School%%5BsearchProgram%%5D=%d&School%%5BsearchDegree%%5D=%d",
		strings.TrimRight(c.opts.BaseURL, "/"), region, c.opts.ProgramID, c.opts.DegreeID)
	if page > 0 {
		u += "&School_page=" + strconv.Itoa(page)
	}
	return u
}

// ListDetailPages returns every detail page listed for region, in page order
// then card order. A region whose listing shows no page count yields no
// pages and no error.
func (c *Crawler) ListDetailPages(ctx context.Context, region string) ([]model.DetailPage, error) {
	log := zap.L().With(zap.String("component", "crawler"), zap.String("region", region))

	first, err := c.fetchListing(ctx, c.ListingURL(region, 0))
	if err != nil {
		return nil, err
	}
	numPages := PageCount(first)
	log.Debug("crawler: discovered pages", zap.Int("pages", numPages))

	var out []model.DetailPage
	for n := 1; n <= numPages; n++ {
		if err := ctx.Err(); err != nil {
			return out, eris.Wrap(err, "directory: crawl cancelled")
		}
		doc, err := c.fetchListing(ctx, c.ListingURL(region, n))
		if err != nil {
			return out, err
		}
		c.listed.Add(1)

		refs, skipped := c.cardsOf(doc)
		c.cards.Add(int64(len(refs)))
		c.skipped.Add(int64(skipped))
		if skipped > 0 {
			log.Debug("crawler: skipped incomplete cards", zap.Int("page", n), zap.Int("skipped", skipped))
		}
		out = append(out, refs...)
	}
	return out, nil
}

// Stats returns the counters accumulated so far.
func (c *Crawler) Stats() CrawlStats {
	return CrawlStats{
		Pages:        c.listed.Load(),
		Cards:        c.cards.Load(),
		SkippedCards: c.skipped.Load(),
	}
}

func (c *Crawler) fetchListing(ctx context.Context, pageURL string) (*goquery.Document, error) {
	text, err := c.pages.FetchText(ctx, cache.Request{Endpoint: pageURL})
	if err != nil {
		return nil, eris.Wrap(err, "directory: fetch listing")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil, eris.Wrap(err, "directory: parse listing")
	}
	return doc, nil
}

// cardsOf extracts detail references from one listing page. Cards missing a
// name or link are skipped.
func (c *Crawler) cardsOf(doc *goquery.Document) ([]model.DetailPage, int) {
	var (
		refs    []model.DetailPage
		skipped int
	)
	doc.Find(".col.text-secondary").Each(func(_ int, card *goquery.Selection) {
		name := strings.TrimSpace(card.Find(".font-bitter.text-left.text-danger").First().Text())
		href, ok := card.Find(".col.text-center.order-sm-3").First().Find("a").First().Attr("href")
		href = strings.TrimSpace(href)
		if name == "" || !ok || href == "" {
			skipped++
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			skipped++
			return
		}
		refs = append(refs, model.DetailPage{
			URL:  c.base.ResolveReference(ref).String(),
			Name: name,
		})
	})
	return refs, skipped
}

var trailingInt = regexp.MustCompile(`(\d+)[\s.]*$`)

// PageCount reads the number of listing pages from the summary element:
// the integer ending its text. Missing or unparseable means zero.
func PageCount(doc *goquery.Document) int {
	summary := doc.Find(".summary").First()
	if summary.Length() == 0 {
		return 0
	}
	m := trailingInt.FindStringSubmatch(strings.TrimSpace(summary.Text()))
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 0 {
		return 0
	}
	return n
}
