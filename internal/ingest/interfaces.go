package ingest

// RowScanner is the part of *sql.Rows that Scan and Stream need.
// Tests and alternative drivers can supply their own cursor.
type RowScanner interface {
	// Columns returns the result column names in select order.
	Columns() ([]string, error)
	// Next advances to the next row and reports whether there is one.
	Next() bool
	// Scan copies the current row into dest.
	Scan(dest ...any) error
	// Err returns the error, if any, that ended iteration.
	Err() error
}
