package directory

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/school-atlas/internal/cache"
	"github.com/sells-group/school-atlas/internal/model"
	"github.com/sells-group/school-atlas/pkg/geocode"
)

// Extractor turns a detail page into an Institution. Each field group is
// extracted independently; a group that fails leaves only its own fields
// absent.
type Extractor struct {
	pages    TextFetcher
	geocoder geocode.Geocoder
}

// NewExtractor creates an Extractor. A nil geocoder disables geocoding.
func NewExtractor(pages TextFetcher, geocoder geocode.Geocoder) *Extractor {
	if geocoder == nil {
		geocoder = geocode.Disabled()
	}
	return &Extractor{pages: pages, geocoder: geocoder}
}

// fieldGroup extracts a set of related fields. fail marks all of them absent.
type fieldGroup struct {
	name    string
	extract func(doc *goquery.Document, rec *model.Institution)
	fail    func(rec *model.Institution, reason error)
}

var fieldGroups = []fieldGroup{
	{name: "enrollment", extract: extractEnrollment, fail: func(rec *model.Institution, reason error) {
		rec.StudentTotal = model.Absent[int](reason)
		rec.InternationalStudentTotal = model.Absent[int](reason)
	}},
	{name: "faculty", extract: extractFaculty, fail: func(rec *model.Institution, reason error) {
		rec.FacultyTotal = model.Absent[int](reason)
	}},
	{name: "tuition", extract: extractTuition, fail: func(rec *model.Institution, reason error) {
		rec.Tuition = model.Absent[int](reason)
	}},
	{name: "address", extract: extractAddress, fail: func(rec *model.Institution, reason error) {
		rec.Street = model.Absent[string](reason)
		rec.City = model.Absent[string](reason)
		rec.State = model.Absent[string](reason)
		rec.Zipcode = model.Absent[string](reason)
	}},
	{name: "locale", extract: extractLocale, fail: func(rec *model.Institution, reason error) {
		rec.Locale = model.Absent[string](reason)
	}},
}

// Extract fetches page and builds its record. Only a fetch or document parse
// failure is returned as an error.
func (e *Extractor) Extract(ctx context.Context, page model.DetailPage) (model.Institution, error) {
	text, err := e.pages.FetchText(ctx, cache.Request{Endpoint: page.URL})
	if err != nil {
		return model.Institution{}, eris.Wrap(err, "directory: fetch detail page")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return model.Institution{}, eris.Wrap(err, "directory: parse detail page")
	}
	return e.build(ctx, page, doc), nil
}

func (e *Extractor) build(ctx context.Context, page model.DetailPage, doc *goquery.Document) model.Institution {
	rec := model.Institution{SourceURL: page.URL}
	if name := strings.TrimSpace(page.Name); name != "" {
		rec.Name = model.Some(name)
	} else {
		rec.Name = model.Absent[string](model.ErrMissing)
	}

	for _, g := range fieldGroups {
		runGroup(g, doc, &rec)
	}

	street, okStreet := rec.Street.Get()
	city, okCity := rec.City.Get()
	state, okState := rec.State.Get()
	if okStreet && okCity && okState {
		coord := e.geocoder.Geocode(ctx, street, city, state)
		if c, ok := coord.Get(); ok {
			rec.Latitude = model.Some(c.Latitude)
			rec.Longitude = model.Some(c.Longitude)
		} else {
			rec.Latitude = model.Absent[float64](coord.Reason())
			rec.Longitude = model.Absent[float64](coord.Reason())
		}
	} else {
		rec.Latitude = model.Absent[float64](model.ErrNotAttempted)
		rec.Longitude = model.Absent[float64](model.ErrNotAttempted)
	}

	if absent := rec.Absences(); len(absent) > 0 {
		fields := make([]zap.Field, 0, len(absent)+1)
		fields = append(fields, zap.String("url", page.URL))
		for name, reason := range absent {
			fields = append(fields, zap.NamedError(name, reason))
		}
		zap.L().Debug("directory: absent fields", fields...)
	}
	return rec
}

func runGroup(g fieldGroup, doc *goquery.Document, rec *model.Institution) {
	defer func() {
		if r := recover(); r != nil {
			reason := eris.Wrapf(model.ErrMalformed, "%s: %v", g.name, r)
			zap.L().Warn("directory: field group panicked", zap.String("group", g.name), zap.Error(reason))
			g.fail(rec, reason)
		}
	}()
	g.extract(doc, rec)
}

func extractEnrollment(doc *goquery.Document, rec *model.Institution) {
	cells := doc.Find("#yw0 .f-12")
	rec.StudentTotal = countAt(cells, 0)
	rec.InternationalStudentTotal = countAt(cells, 3)
}

func extractFaculty(doc *goquery.Document, rec *model.Institution) {
	rec.FacultyTotal = countAt(doc.Find("#yw1 .f-12"), 0)
}

var dollarAmount = regexp.MustCompile(`\$\s*([0-9][0-9,]*)`)

func extractTuition(doc *goquery.Document, rec *model.Institution) {
	block := doc.Find(".blue").First()
	if block.Length() == 0 {
		rec.Tuition = model.Absent[int](model.ErrMissing)
		return
	}
	m := dollarAmount.FindStringSubmatch(block.Text())
	if m == nil {
		rec.Tuition = model.Absent[int](model.ErrMalformed)
		return
	}
	rec.Tuition = parseCount(m[1])
}

func extractAddress(doc *goquery.Document, rec *model.Institution) {
	loc := doc.Find(".f-12.mt-2").First()
	if loc.Length() == 0 {
		missing := model.Absent[string](model.ErrMissing)
		rec.Street, rec.City, rec.State, rec.Zipcode = missing, missing, missing, missing
		return
	}
	children := childNodes(loc.Get(0))

	rec.Street = textAt(children, 0)

	line := textAt(children, 2)
	text, ok := line.Get()
	if !ok {
		rec.City = model.Absent[string](line.Reason())
		rec.State = model.Absent[string](line.Reason())
		rec.Zipcode = model.Absent[string](line.Reason())
		return
	}
	addr := ParseAddress(text)
	rec.City, rec.State, rec.Zipcode = addr.City, addr.State, addr.Zipcode
}

func extractLocale(doc *goquery.Document, rec *model.Institution) {
	block := doc.Find("#school-info-contact").First().Find(".mb-3").First()
	if block.Length() == 0 {
		rec.Locale = model.Absent[string](model.ErrMissing)
		return
	}
	node := textAt(childNodes(block.Get(0)), 5)
	text, ok := node.Get()
	if !ok {
		rec.Locale = node
		return
	}
	locale, _, _ := strings.Cut(text, ":")
	if locale = strings.TrimSpace(locale); locale == "" {
		rec.Locale = model.Absent[string](model.ErrMalformed)
		return
	}
	rec.Locale = model.Some(locale)
}

// countAt parses the i-th element of sel as a count.
func countAt(sel *goquery.Selection, i int) model.Field[int] {
	if i >= sel.Length() {
		return model.Absent[int](model.ErrMissing)
	}
	return parseCount(sel.Eq(i).Text())
}

// parseCount parses an integer with optional thousands separators.
func parseCount(s string) model.Field[int] {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.Absent[int](model.ErrMissing)
	}
	n, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return model.Absent[int](eris.Wrapf(model.ErrMalformed, "parse %q", s))
	}
	return model.Some(n)
}

func childNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// textAt returns the trimmed text of the i-th child node.
func textAt(nodes []*html.Node, i int) model.Field[string] {
	if i >= len(nodes) {
		return model.Absent[string](model.ErrMissing)
	}
	text := strings.TrimSpace(nodeText(nodes[i]))
	if text == "" {
		return model.Absent[string](model.ErrMissing)
	}
	return model.Some(text)
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
	}
	return sb.String()
}
