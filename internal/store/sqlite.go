package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/school-atlas/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS states (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	state      TEXT NOT NULL UNIQUE,
	state_code TEXT,
	region     TEXT,
	division   TEXT
);

CREATE TABLE IF NOT EXISTS schools (
	id                          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id                      TEXT NOT NULL,
	name                        TEXT,
	student_total               INTEGER,
	international_student_total INTEGER,
	faculty_total               INTEGER,
	tuition                     INTEGER,
	street                      TEXT,
	city                        TEXT,
	state                       TEXT,
	state_id                    INTEGER REFERENCES states(id),
	zipcode                     TEXT,
	locale                      TEXT,
	longitude                   REAL,
	latitude                    REAL,
	source_url                  TEXT,
	created_at                  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_states_state_code ON states(state_code);
CREATE INDEX IF NOT EXISTS idx_schools_run_id ON schools(run_id);
CREATE INDEX IF NOT EXISTS idx_schools_state_id ON schools(state_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ReplaceRegions(ctx context.Context, regions []model.Region) (int64, error) {
	if len(regions) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin regions tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO states (state, state_code, region, division) VALUES (?, ?, ?, ?)
		ON CONFLICT(state) DO UPDATE SET
			state_code = excluded.state_code,
			region = excluded.region,
			division = excluded.division`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare region upsert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, r := range regions {
		if _, err := stmt.ExecContext(ctx, r.Name, r.Code, r.Census, r.Division); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert region %s", r.Name)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit regions")
	}
	return n, nil
}

func (s *SQLiteStore) InsertInstitutions(ctx context.Context, runID string, records []model.Institution) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin schools tx")
	}
	defer tx.Rollback() //nolint:errcheck

	states, err := loadStateIndex(ctx, tx)
	if err != nil {
		return 0, err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(schoolColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO schools (`+strings.Join(schoolColumns, ", ")+`) VALUES (`+placeholders+`)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare school insert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, schoolRow(runID, r, states)...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert school %s", r.SourceURL)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit schools")
	}
	return n, nil
}

func (s *SQLiteStore) CountInstitutions(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schools`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count schools")
	}
	return n, nil
}

func loadStateIndex(ctx context.Context, tx *sql.Tx) (stateIndex, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, state, COALESCE(state_code, '') FROM states`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load states")
	}
	defer rows.Close() //nolint:errcheck

	idx := make(stateIndex)
	for rows.Next() {
		var (
			id         int64
			name, code string
		)
		if err := rows.Scan(&id, &name, &code); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan state")
		}
		idx.add(id, name, code)
	}
	return idx, eris.Wrap(rows.Err(), "sqlite: iterate states")
}
