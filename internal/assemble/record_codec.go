package assemble

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// MarshalJSON writes the fields in order. Nil collections are written as [].
// HTML characters are not escaped.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range r.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSON(&buf, n); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSON(&buf, emptyAsSlice(r.values[n])); err != nil {
			return nil, fmt.Errorf("field %q: %w", n, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1) // Encode appends a newline
	return nil
}

// EncodeMsgpack writes the record as a msgpack map in field order.
func (r *Record) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(len(r.names)); err != nil {
		return err
	}
	for _, n := range r.names {
		if err := enc.EncodeString(n); err != nil {
			return err
		}
		if err := enc.Encode(emptyAsSlice(r.values[n])); err != nil {
			return fmt.Errorf("field %q: %w", n, err)
		}
	}
	return nil
}

// MarshalYAML renders the record as an ordered YAML mapping.
func (r *Record) MarshalYAML() (any, error) {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, n := range r.names {
		k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: n}
		v := &yaml.Node{}
		if err := v.Encode(emptyAsSlice(r.values[n])); err != nil {
			return nil, fmt.Errorf("field %q: %w", n, err)
		}
		m.Content = append(m.Content, k, v)
	}
	return m, nil
}

func emptyAsSlice(v any) any {
	switch t := v.(type) {
	case []*Record:
		if t == nil {
			return []*Record{}
		}
	case []*Node:
		if t == nil {
			return []*Node{}
		}
	}
	return v
}
