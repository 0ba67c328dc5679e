// Package region loads the census region reference list that drives the crawl.
package region

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/school-atlas/internal/fetcher"
	"github.com/sells-group/school-atlas/internal/model"
)

// Load reads a "State,State Code,Region,Division" CSV. Rows whose first cell
// is "State" are headers and are skipped, as are blank rows. Any read or
// parse failure is returned.
func Load(ctx context.Context, path string) ([]model.Region, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "region: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var out []model.Region
	for row, err := range fetcher.CSVRows(ctx, f, fetcher.CSVOptions{TrimSpace: true, SkipBlank: true}) {
		if err != nil {
			return nil, eris.Wrapf(err, "region: parse %s", path)
		}
		if row[0] == "" || row[0] == "State" {
			continue
		}
		r := model.Region{Name: row[0]}
		if len(row) > 1 {
			r.Code = row[1]
		}
		if len(row) > 2 {
			r.Census = row[2]
		}
		if len(row) > 3 {
			r.Division = row[3]
		}
		out = append(out, r)
	}
	return out, nil
}

// Names returns the region names in list order.
func Names(regions []model.Region) []string {
	names := make([]string, len(regions))
	for i, r := range regions {
		names[i] = r.Name
	}
	return names
}

// Filter keeps the regions whose name or code matches one of names,
// case-insensitively, preserving list order. An empty names returns regions
// unchanged. Unknown names are returned so the caller can report them.
func Filter(regions []model.Region, names []string) ([]model.Region, []string) {
	if len(names) == 0 {
		return regions, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			wanted[n] = false
		}
	}

	var out []model.Region
	for _, r := range regions {
		name, code := strings.ToLower(r.Name), strings.ToLower(r.Code)
		_, byName := wanted[name]
		_, byCode := wanted[code]
		if !byName && !byCode {
			continue
		}
		out = append(out, r)
		if byName {
			wanted[name] = true
		}
		if byCode {
			wanted[code] = true
		}
	}

	var unknown []string
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if seen, ok := wanted[key]; ok && !seen {
			unknown = append(unknown, n)
			wanted[key] = true // report once
		}
	}
	return out, unknown
}
