package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/school-atlas/internal/db"
	"github.com/sells-group/school-atlas/internal/model"
	"github.com/sells-group/school-atlas/internal/resilience"
)

// PostgresStore implements Store using pgxpool. Schools carry a PostGIS
// point alongside the raw longitude/latitude columns.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// pingAttempts covers a database that is still starting up.
const pingAttempts = 3

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	ping := resilience.DefaultPolicy()
	ping.Attempts = pingAttempts
	ping.OnRetry = resilience.LogRetries("postgres", "ping")
	if err := resilience.Run(ctx, ping, pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS states (
	id         SERIAL PRIMARY KEY,
	state      TEXT NOT NULL UNIQUE,
	state_code TEXT,
	region     TEXT,
	division   TEXT
);

CREATE TABLE IF NOT EXISTS schools (
	id                          BIGSERIAL PRIMARY KEY,
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
	longitude                   DOUBLE PRECISION,
	latitude                    DOUBLE PRECISION,
	location                    geometry(Point, 4326),
	source_url                  TEXT,
	created_at                  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_states_state_code ON states(state_code);
CREATE INDEX IF NOT EXISTS idx_schools_run_id ON schools(run_id);
CREATE INDEX IF NOT EXISTS idx_schools_state_id ON schools(state_id);
CREATE INDEX IF NOT EXISTS idx_schools_location ON schools USING GIST (location);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var regionUpsert = db.UpsertConfig{
	Table:        "states",
	Columns:      []string{"state", "state_code", "region", "division"},
	ConflictKeys: []string{"state"},
}

func (s *PostgresStore) ReplaceRegions(ctx context.Context, regions []model.Region) (int64, error) {
	rows := make([][]any, 0, len(regions))
	for _, r := range regions {
		rows = append(rows, []any{r.Name, r.Code, r.Census, r.Division})
	}
	n, err := db.BulkUpsert(ctx, s.pool, regionUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: replace regions")
	}
	return n, nil
}

func (s *PostgresStore) InsertInstitutions(ctx context.Context, runID string, records []model.Institution) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	states, err := s.loadStateIndex(ctx)
	if err != nil {
		return 0, err
	}

	columns := append(append([]string{}, schoolColumns...), "location")
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		var location any
		if c, ok := r.Coordinate(); ok {
			ewkb, err := db.PointEWKB(c.Longitude, c.Latitude)
			if err != nil {
				return 0, eris.Wrapf(err, "postgres: location for %s", r.SourceURL)
			}
			location = ewkb
		}
		rows = append(rows, append(schoolRow(runID, r, states), location))
	}

	n, err := db.CopyFrom(ctx, s.pool, "schools", columns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert schools")
	}
	return n, nil
}

func (s *PostgresStore) CountInstitutions(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM schools`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count schools")
	}
	return n, nil
}

func (s *PostgresStore) loadStateIndex(ctx context.Context) (stateIndex, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, state, COALESCE(state_code, '') FROM states`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load states")
	}
	defer rows.Close()

	idx := make(stateIndex)
	for rows.Next() {
		var (
			id         int64
			name, code string
		)
		if err := rows.Scan(&id, &name, &code); err != nil {
			return nil, eris.Wrap(err, "postgres: scan state")
		}
		idx.add(id, name, code)
	}
	return idx, eris.Wrap(rows.Err(), "postgres: iterate states")
}
