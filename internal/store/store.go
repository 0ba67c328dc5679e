// Package store persists institution records and the region reference
// table in SQLite or PostgreSQL.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/school-atlas/internal/config"
	"github.com/sells-group/school-atlas/internal/model"
)

// Store defines the persistence interface for crawl output.
type Store interface {
	// ReplaceRegions upserts the region reference rows keyed by state name.
	// Existing ids are kept so schools.state_id stays valid.
	ReplaceRegions(ctx context.Context, regions []model.Region) (int64, error)

	// InsertInstitutions appends one schools row per record, tagged with
	// runID. Absent fields are stored as NULL.
	InsertInstitutions(ctx context.Context, runID string, records []model.Institution) (int64, error)

	CountInstitutions(ctx context.Context) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New opens the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		s, err := NewPostgres(ctx, cfg.DatabaseURL, nil)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite", "":
		s, err := NewSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// stateIndex maps lower-cased state names and codes to states.id.
type stateIndex map[string]int64

func (idx stateIndex) add(id int64, name, code string) {
	if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
		idx[name] = id
	}
	if code = strings.ToLower(strings.TrimSpace(code)); code != "" {
		idx[code] = id
	}
}

// lookup returns the id for a record's state, matching either the full
// name or the postal code. Unmatched or absent states give nil (NULL).
func (idx stateIndex) lookup(state model.Field[string]) any {
	v, ok := state.Get()
	if !ok {
		return nil
	}
	if id, ok := idx[strings.ToLower(strings.TrimSpace(v))]; ok {
		return id
	}
	return nil
}

// Column order shared by both drivers' schools inserts.
var schoolColumns = []string{
	"run_id", "name", "student_total", "international_student_total", "faculty_total",
	"tuition", "street", "city", "state", "state_id", "zipcode", "locale",
	"longitude", "latitude", "source_url",
}

func schoolRow(runID string, r model.Institution, states stateIndex) []any {
	return []any{
		runID,
		nullable(r.Name),
		nullInt(r.StudentTotal),
		nullInt(r.InternationalStudentTotal),
		nullInt(r.FacultyTotal),
		nullInt(r.Tuition),
		nullable(r.Street),
		nullable(r.City),
		nullable(r.State),
		states.lookup(r.State),
		nullable(r.Zipcode),
		nullable(r.Locale),
		nullable(r.Longitude),
		nullable(r.Latitude),
		r.SourceURL,
	}
}

func nullable[T any](f model.Field[T]) any {
	if v, ok := f.Get(); ok {
		return v
	}
	return nil
}

func nullInt(f model.Field[int]) any {
	if v, ok := f.Get(); ok {
		return int64(v)
	}
	return nil
}
