package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Option configures row decoding.
type Option func(*options)

type options struct {
	nullTokens map[string]struct{}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithNullTokens makes the listed strings decode as NULL. Legacy exports
// render missing values as text such as "None"; mapping them here keeps the
// assembler free of string comparisons against null renderings.
func WithNullTokens(tokens ...string) Option {
	return func(o *options) {
		if o.nullTokens == nil {
			o.nullTokens = make(map[string]struct{}, len(tokens))
		}
		for _, t := range tokens {
			o.nullTokens[t] = struct{}{}
		}
	}
}

func (o options) text(s string) any {
	if _, ok := o.nullTokens[s]; ok {
		return nil
	}
	return s
}

// normalize converts a driver or JSON value into one of the scalar types rows
// carry: string, int64, float64, bool or nil.
func (o options) normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return o.text(t), nil
	case []byte:
		return o.text(string(t)), nil
	case bool, int64, float64:
		return t, nil
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return float64(t), nil
		}
		return int64(t), nil
	case float32:
		return float64(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %q: %w", t, err)
		}
		return f, nil
	case time.Time:
		return t.Format(time.RFC3339), nil
	case map[string]any, []any:
		return nil, fmt.Errorf("nested %T values are not row scalars", t)
	case fmt.Stringer:
		return o.text(t.String()), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", t)
	}
}
