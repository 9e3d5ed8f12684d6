package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/agentic-research/crawl/internal/assemble"
)

// DecodeJSON reads rows from r. Two layouts are accepted:
//
//	[{"feature": "F1", "prop": "a"}, ...]
//	{"columns": ["feature", "prop"], "rows": [["F1", "a"], ...]}
//
// Object keys keep their document order. Numbers decode as int64 when they
// are integral and float64 otherwise. Empty input yields no rows.
func DecodeJSON(r io.Reader, opts ...Option) ([]assemble.Row, error) {
	o := buildOptions(opts)
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return []assemble.Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	switch tok {
	case json.Delim('['):
		return decodeObjects(dec, o)
	case json.Delim('{'):
		return decodePage(dec, o)
	}
	return nil, fmt.Errorf("decode rows: expected array or object, got %v", tok)
}

func decodeObjects(dec *json.Decoder, o options) ([]assemble.Row, error) {
	rows := []assemble.Row{}
	for dec.More() {
		row, err := decodeObject(dec, o)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(rows), err)
		}
		rows = append(rows, row)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

func decodeObject(dec *json.Decoder, o options) (assemble.Row, error) {
	tok, err := dec.Token()
	if err != nil {
		return assemble.Row{}, err
	}
	if tok != json.Delim('{') {
		return assemble.Row{}, fmt.Errorf("expected object, got %v", tok)
	}
	var cols []string
	var vals []any
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return assemble.Row{}, err
		}
		col, _ := kt.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return assemble.Row{}, fmt.Errorf("column %q: %w", col, err)
		}
		nv, err := o.normalize(v)
		if err != nil {
			return assemble.Row{}, fmt.Errorf("column %q: %w", col, err)
		}
		cols = append(cols, col)
		vals = append(vals, nv)
	}
	if _, err := dec.Token(); err != nil {
		return assemble.Row{}, err
	}
	return assemble.NewRow(cols, vals), nil
}

func decodePage(dec *json.Decoder, o options) ([]assemble.Row, error) {
	var cols []string
	var raw [][]any
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode page: %w", err)
		}
		switch kt {
		case "columns":
			err = dec.Decode(&cols)
		case "rows":
			err = dec.Decode(&raw)
		default:
			var skip json.RawMessage
			err = dec.Decode(&skip)
		}
		if err != nil {
			return nil, fmt.Errorf("decode page %v: %w", kt, err)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	if cols == nil && len(raw) > 0 {
		return nil, errors.New("decode page: rows without columns")
	}

	rows := make([]assemble.Row, 0, len(raw))
	for i, r := range raw {
		if len(r) != len(cols) {
			return nil, fmt.Errorf("row %d: %d values for %d columns", i, len(r), len(cols))
		}
		vals := make([]any, len(r))
		for j, v := range r {
			nv, err := o.normalize(v)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, cols[j], err)
			}
			vals[j] = nv
		}
		rows = append(rows, assemble.NewRow(cols, vals))
	}
	return rows, nil
}
