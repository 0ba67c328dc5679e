package directory

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/school-atlas/internal/model"
)

const testBase = "https://www.internationalstudent.com"

func newTestCrawler(t *testing.T, pages *fakePages) *Crawler {
	t.Helper()
	c, err := NewCrawler(pages, Options{BaseURL: testBase, ProgramID: 175, DegreeID: 4})
	require.NoError(t, err)
	return c
}

func TestListingURL(t *testing.T) {
	c := newTestCrawler(t, newFakePages(nil))
	assert.Equal(t,
		"https://www.internationalstudent.com/school-search/usa/Michigan/?School%5BsearchProgram%5D=175&School%5BsearchDegree%5D=4",
		c.ListingURL("Michigan", 0))
	assert.Equal(t,
		"https://www.internationalstudent.com/school-search/usa/Michigan/?School%5BsearchProgram%5D=175&School%5BsearchDegree%5D=4&School_page=2",
		c.ListingURL("Michigan", 2))
}

func TestListDetailPages_WalksEveryPage(t *testing.T) {
	pages := newFakePages(nil)
	c := newTestCrawler(t, pages)
	pages.bodies = map[string]string{
		c.ListingURL("Michigan", 0): fixture(t, "listing_summary.html"),
		c.ListingURL("Michigan", 1): fixture(t, "listing_page1.html"),
		c.ListingURL("Michigan", 2): fixture(t, "listing_page2.html"),
	}

	refs, err := c.ListDetailPages(context.Background(), "Michigan")
	require.NoError(t, err)

	assert.Equal(t, []model.DetailPage{
		{URL: testBase + "/school-search/school/search/university-of-michigan/", Name: "University of Michigan"},
		{URL: testBase + "/school-search/school/search/wayne-state-university/", Name: "Wayne State University"},
		{URL: testBase + "/school-search/school/search/michigan-state-university/", Name: "Michigan State University"},
	}, refs)

	// One discovery fetch plus one per page.
	assert.Equal(t, 3, pages.total())
	assert.Equal(t, CrawlStats{Pages: 2, Cards: 3, SkippedCards: 2}, c.Stats())
}

func TestListDetailPages_NoSummaryMeansNoPages(t *testing.T) {
	pages := newFakePages(nil)
	c := newTestCrawler(t, pages)
	pages.bodies = map[string]string{
		c.ListingURL("Wyoming", 0): "<html><body><p>No schools found.</p></body></html>",
	}

	refs, err := c.ListDetailPages(context.Background(), "Wyoming")
	require.NoError(t, err)
	assert.Empty(t, refs)
	assert.Equal(t, 1, pages.total())
}

func TestListDetailPages_ListingFetchFails(t *testing.T) {
	pages := newFakePages(nil)
	c := newTestCrawler(t, pages)
	pages.bodies = map[string]string{
		c.ListingURL("Ohio", 0): fixture(t, "listing_summary.html"),
		c.ListingURL("Ohio", 1): fixture(t, "listing_page1.html"),
	}

	refs, err := c.ListDetailPages(context.Background(), "Ohio")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory: fetch listing")
	assert.Len(t, refs, 2)
}

func TestListDetailPages_FirstFetchFails(t *testing.T) {
	c := newTestCrawler(t, newFakePages(nil))
	_, err := c.ListDetailPages(context.Background(), "Ohio")
	require.Error(t, err)
}

func TestNewCrawler_RelativeBase(t *testing.T) {
	_, err := NewCrawler(newFakePages(nil), Options{BaseURL: "/relative"})
	require.Error(t, err)
}

func TestPageCount(t *testing.T) {
	tests := []struct {
		name string
		html string
		want int
	}{
		{"page of", `<div class="summary">Page 1 of 3</div>`, 3},
		{"multi digit", `<div class="summary">Page 1 of 12</div>`, 12},
		{"trailing period", `<div class="summary">Page 1 of 4.</div>`, 4},
		{"no number", `<div class="summary">No results</div>`, 0},
		{"trailing words", `<div class="summary">Displaying 1-25 of 40 results</div>`, 0},
		{"missing", `<div class="other">Page 1 of 3</div>`, 0},
		{"first wins", `<div class="summary">Page 1 of 2</div><div class="summary">Page 1 of 9</div>`, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(tt.html))
			require.NoError(t, err)
			assert.Equal(t, tt.want, PageCount(doc))
		})
	}
}
