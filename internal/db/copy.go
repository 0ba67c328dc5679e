package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom appends rows to table with the COPY protocol and returns the
// number of rows written. Every row must have one value per column; nil is
// written as NULL.
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := checkWidth(columns, rows); err != nil {
		return 0, err
	}

	n, err := pool.CopyFrom(ctx, tableIdent(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: copy into %s", table)
	}
	return n, nil
}

func checkWidth(columns []string, rows [][]any) error {
	for i, row := range rows {
		if len(row) != len(columns) {
			return eris.Errorf("db: row %d has %d values for %d columns", i, len(row), len(columns))
		}
	}
	return nil
}
