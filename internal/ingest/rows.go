package ingest

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agentic-research/crawl/internal/assemble"
	_ "modernc.org/sqlite"
)

// Stream decodes every row of rs and calls fn for each one. Values are
// normalized to row scalars; SQL NULL stays nil. Stream does not close rs.
func Stream(rs RowScanner, fn func(assemble.Row) error, opts ...Option) error {
	o := buildOptions(opts)
	cols, err := rs.Columns()
	if err != nil {
		return fmt.Errorf("columns: %w", err)
	}

	raw := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}

	n := 0
	for rs.Next() {
		if err := rs.Scan(dest...); err != nil {
			return fmt.Errorf("scan row %d: %w", n, err)
		}
		vals := make([]any, len(cols))
		for i, v := range raw {
			nv, err := o.normalize(v)
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", n, cols[i], err)
			}
			vals[i] = nv
		}
		if err := fn(assemble.NewRow(cols, vals)); err != nil {
			return err
		}
		n++
	}
	if err := rs.Err(); err != nil {
		return fmt.Errorf("iterate rows: %w", err)
	}
	return nil
}

// Scan materializes every row of rs.
func Scan(rs RowScanner, opts ...Option) ([]assemble.Row, error) {
	rows := []assemble.Row{}
	err := Stream(rs, func(r assemble.Row) error {
		rows = append(rows, r)
		return nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// LoadSQLite runs query against the SQLite database at dbPath and returns
// the decoded rows. It is meant for fixtures and exported snapshots.
func LoadSQLite(ctx context.Context, dbPath, query string, opts ...Option) ([]assemble.Row, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }() // safe to ignore

	rs, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", dbPath, err)
	}
	defer func() { _ = rs.Close() }() // safe to ignore

	return Scan(rs, opts...)
}
