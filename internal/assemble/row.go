// Package assemble reshapes flat, denormalized query rows into grouped and
// hierarchical records.
//
// A SQL join yields one row per parent/child combination with the parent
// columns repeated on every row. The functions in this package undo that
// duplication: they group rows by a natural key, keep the first-seen values of
// each entity, preserve first-seen ordering and build parent→child trees.
//
// Every call owns all of its state. Nothing here is cached between calls, so
// concurrent request handlers can use the package without locking.
package assemble

import (
	"fmt"
	"strconv"
	"strings"
)

// Row is one flat result row: an ordered mapping from column name to a scalar
// (string, int64, float64, bool) or nil for SQL NULL.
//
// Rows are immutable once built; the assembler never modifies them.
type Row struct {
	cols []string
	vals map[string]any
}

// NewRow builds a row from parallel column and value slices. Missing values are
// treated as NULL. If a column name repeats, the first occurrence wins.
func NewRow(cols []string, vals []any) Row {
	r := Row{
		cols: make([]string, 0, len(cols)),
		vals: make(map[string]any, len(cols)),
	}
	for i, c := range cols {
		if _, dup := r.vals[c]; dup {
			continue
		}
		var v any
		if i < len(vals) {
			v = vals[i]
		}
		r.cols = append(r.cols, c)
		r.vals[c] = v
	}
	return r
}

// RowOf builds a row from alternating column/value pairs:
//
//	RowOf("g", "G1", "p", "red")
//
// It panics if a column name is not a string or a value is missing.
func RowOf(pairs ...any) Row {
	if len(pairs)%2 != 0 {
		panic("assemble: RowOf needs column/value pairs")
	}
	cols := make([]string, 0, len(pairs)/2)
	vals := make([]any, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("assemble: RowOf column %d is %T, not string", i/2, pairs[i]))
		}
		cols = append(cols, name)
		vals = append(vals, pairs[i+1])
	}
	return NewRow(cols, vals)
}

// Columns returns the column names in row order. Callers must not modify it.
func (r Row) Columns() []string { return r.cols }

// Len returns the number of columns.
func (r Row) Len() int { return len(r.cols) }

// Get returns the value of col and whether the column exists at all.
// A present column may still hold nil.
func (r Row) Get(col string) (any, bool) {
	v, ok := r.vals[col]
	return v, ok
}

// Value returns the value of col, or nil when the column is absent.
func (r Row) Value(col string) any { return r.vals[col] }

// Has reports whether the row carries col, null or not.
func (r Row) Has(col string) bool {
	_, ok := r.vals[col]
	return ok
}

// IsNull reports whether col is absent or NULL.
func (r Row) IsNull(col string) bool { return r.vals[col] == nil }

// Record copies the row into a record with the same field order.
func (r Row) Record() *Record {
	rec := NewRecord(len(r.cols))
	for _, c := range r.cols {
		rec.Set(c, r.vals[c])
	}
	return rec
}

// String renders the row for debugging.
func (r Row) String() string {
	var b strings.Builder
	b.WriteString("Row{")
	for i, c := range r.cols {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", c, r.vals[c])
	}
	b.WriteByte('}')
	return b.String()
}

// Key is a natural key: one or more column values encoded as a comparable
// string. Each part carries its type and length, so values of different types
// never share a key and no part can run into the next.
type Key string

// KeyOf encodes parts into a Key. Two keys are equal exactly when their parts
// are pairwise equal and of the same kind. All integer types are one kind.
func KeyOf(parts ...any) Key {
	var b strings.Builder
	for _, p := range parts {
		writeKeyPart(&b, p)
	}
	return Key(b.String())
}

func writeKeyPart(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteByte('n')
	case string:
		writeTagged(b, 's', t)
	case int64:
		writeTagged(b, 'i', strconv.FormatInt(t, 10))
	case int:
		writeTagged(b, 'i', strconv.Itoa(t))
	case int32:
		writeTagged(b, 'i', strconv.FormatInt(int64(t), 10))
	case float64:
		writeTagged(b, 'f', strconv.FormatFloat(t, 'g', -1, 64))
	case bool:
		writeTagged(b, 'b', strconv.FormatBool(t))
	default:
		writeTagged(b, 'x', fmt.Sprintf("%T:%v", t, t))
	}
}

// writeTagged writes tag, the byte length of s, a colon and s.
func writeTagged(b *strings.Builder, tag byte, s string) {
	b.WriteByte(tag)
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}
