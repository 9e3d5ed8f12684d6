package assemble

import (
	"fmt"
	"strings"
)

// Record is an ordered output object. Field order is the order in which
// fields were first set; setting an existing field replaces its value in place.
type Record struct {
	names  []string
	values map[string]any
}

// NewRecord returns an empty record with room for n fields.
func NewRecord(n int) *Record {
	return &Record{
		names:  make([]string, 0, n),
		values: make(map[string]any, n),
	}
}

// Set assigns a field and returns the record for chaining.
func (r *Record) Set(name string, v any) *Record {
	if _, ok := r.values[name]; !ok {
		r.names = append(r.names, name)
	}
	r.values[name] = v
	return r
}

// Get returns the field value and whether the field exists.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Value returns the field value or nil.
func (r *Record) Value(name string) any { return r.values[name] }

// Has reports whether the field exists.
func (r *Record) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Names returns field names in order. Callers must not modify it.
func (r *Record) Names() []string { return r.names }

// Len returns the number of fields.
func (r *Record) Len() int { return len(r.names) }

// InitCollection makes sure name holds a non-nil collection, so it encodes
// as [] even when nothing is appended.
func (r *Record) InitCollection(name string) []*Record {
	if c, ok := r.values[name].([]*Record); ok && c != nil {
		return c
	}
	c := []*Record{}
	r.Set(name, c)
	return c
}

// Collection returns the sub-collection stored under name, or nil.
func (r *Record) Collection(name string) []*Record {
	c, _ := r.values[name].([]*Record)
	return c
}

// Append adds child to the sub-collection name, creating it if needed.
func (r *Record) Append(name string, child *Record) {
	c := r.InitCollection(name)
	r.values[name] = append(c, child)
}

// Map converts the record into plain maps and slices. Field order is lost.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, len(r.names))
	for _, n := range r.names {
		out[n] = plain(r.values[n])
	}
	return out
}

func plain(v any) any {
	switch t := v.(type) {
	case *Record:
		return t.Map()
	case []*Record:
		s := make([]any, len(t))
		for i, c := range t {
			s[i] = c.Map()
		}
		return s
	case []*Node:
		s := make([]any, len(t))
		for i, n := range t {
			s[i] = n.view().Map()
		}
		return s
	case *Node:
		return t.view().Map()
	default:
		return v
	}
}

// clone copies own fields. Sub-collections are shared, not copied.
func (r *Record) clone() *Record {
	c := NewRecord(len(r.names))
	for _, n := range r.names {
		c.Set(n, r.values[n])
	}
	return c
}

// contentKey identifies a leaf by its full content, field order included.
func (r *Record) contentKey() Key {
	var b strings.Builder
	for _, n := range r.names {
		writeTagged(&b, 'k', n)
		writeKeyPart(&b, r.values[n])
	}
	return Key(b.String())
}

func (r *Record) String() string {
	b, err := r.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Record(%v)", r.names)
	}
	return string(b)
}
