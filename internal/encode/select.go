package encode

import (
	"encoding/json"
	"fmt"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Select evaluates a JSONPath expression against the JSON form of v and
// returns the matches in document order. Ordered records go through their
// JSON encoding, so paths see the same field names the output shows.
func Select(v any, path string) ([]any, error) {
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", path, err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode for select: %w", err)
	}
	doc, err := oj.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse for select: %w", err)
	}
	return x.Get(doc), nil
}
