// Package query executes named-parameter SQL through database/sql and hands
// back decoded rows for assembly. Postgres (pgx or lib/pq), MySQL and SQLite
// drivers are registered on import.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agentic-research/crawl/internal/assemble"
	"github.com/agentic-research/crawl/internal/ingest"
)

// DefaultTimeout bounds a single query.
const DefaultTimeout = 30 * time.Second

// Querier runs one query with :name arguments and returns all of its rows.
type Querier interface {
	Query(ctx context.Context, q string, args map[string]any) ([]assemble.Row, error)
}

// DB is a Querier over a database/sql pool.
type DB struct {
	db      *sql.DB
	driver  string
	style   Style
	timeout time.Duration
	rowOpts []ingest.Option
}

// Option configures a DB.
type Option func(*DB)

// WithTimeout overrides DefaultTimeout. Zero disables the per-query timeout.
func WithTimeout(d time.Duration) Option {
	return func(db *DB) { db.timeout = d }
}

// WithRowOptions passes decoding options, such as null tokens, to every scan.
func WithRowOptions(opts ...ingest.Option) Option {
	return func(db *DB) { db.rowOpts = append(db.rowOpts, opts...) }
}

// Open opens a pool for driver and dsn. The connection is not checked;
// call Ping for that.
func Open(driver, dsn string, opts ...Option) (*DB, error) {
	name, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)
	return Wrap(db, name, opts...), nil
}

// Wrap adapts an existing pool. driver selects the placeholder style.
func Wrap(db *sql.DB, driver string, opts ...Option) *DB {
	d := &DB{
		db:      db,
		driver:  driver,
		style:   StyleFor(driver),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Driver returns the canonical driver name.
func (d *DB) Driver() string { return d.driver }

// Ping checks that the database answers.
func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return d.db.PingContext(ctx)
}

// Query binds args into q, runs it and decodes every row.
func (d *DB) Query(ctx context.Context, q string, args map[string]any) ([]assemble.Row, error) {
	bound, params, err := Bind(q, d.style, args)
	if err != nil {
		return nil, err
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	rs, err := d.db.QueryContext(ctx, bound, params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rs.Close() }()

	rows, err := ingest.Scan(rs, d.rowOpts...)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	return rows, nil
}

// Close releases the pool.
func (d *DB) Close() error { return d.db.Close() }
