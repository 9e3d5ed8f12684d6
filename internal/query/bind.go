package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMissingArg is returned by Bind when a placeholder has no argument.
var ErrMissingArg = errors.New("missing query argument")

// Style is a driver's positional placeholder syntax.
type Style int

const (
	// Dollar numbers placeholders: $1, $2, ... (Postgres).
	Dollar Style = iota
	// Question uses ? for every placeholder (MySQL, SQLite).
	Question
)

// Bind rewrites :name placeholders in q into the driver's positional syntax
// and returns the arguments in placeholder order. A slice argument expands to
// one placeholder per element, so "IN (:features)" works for lists; an empty
// slice becomes NULL, which matches nothing. Casts (::text), quoted text and
// -- comments are left alone.
func Bind(q string, style Style, args map[string]any) (string, []any, error) {
	var b strings.Builder
	b.Grow(len(q) + 16)
	var out []any
	placeholder := func(v any) {
		out = append(out, v)
		if style == Question {
			b.WriteByte('?')
			return
		}
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(len(out)))
	}

	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case c == '\'' || c == '"':
			end := strings.IndexByte(q[i+1:], c)
			if end < 0 {
				b.WriteString(q[i:])
				i = len(q)
				continue
			}
			b.WriteString(q[i : i+end+2])
			i += end + 1
		case c == '-' && i+1 < len(q) && q[i+1] == '-':
			end := strings.IndexByte(q[i:], '\n')
			if end < 0 {
				end = len(q) - i
			}
			b.WriteString(q[i : i+end])
			i += end - 1
		case c == ':' && i+1 < len(q) && q[i+1] == ':':
			b.WriteString("::")
			i++
		case c == ':' && i+1 < len(q) && isNameStart(q[i+1]):
			j := i + 1
			for j < len(q) && isNamePart(q[j]) {
				j++
			}
			name := q[i+1 : j]
			v, ok := args[name]
			if !ok {
				return "", nil, fmt.Errorf("%w: %s", ErrMissingArg, name)
			}
			if list, isList := expand(v); isList {
				if len(list) == 0 {
					b.WriteString("NULL")
				}
				for k, item := range list {
					if k > 0 {
						b.WriteString(", ")
					}
					placeholder(item)
				}
			} else {
				placeholder(v)
			}
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), out, nil
}

func expand(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case []int64:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, true
	case []int:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = int64(n)
		}
		return out, true
	}
	return nil, false
}

func isNameStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isNamePart(c byte) bool {
	return isNameStart(c) || ('0' <= c && c <= '9')
}
