// Package encode writes assembled values as JSON, MessagePack or YAML and
// selects parts of them with JSONPath.
package encode

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Format is an output encoding.
type Format string

const (
	JSON    Format = "json"
	Msgpack Format = "msgpack"
	YAML    Format = "yaml"
)

// ParseFormat accepts json, msgpack (or mp) and yaml (or yml).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "msgpack", "mp":
		return Msgpack, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// Write encodes v to w. Pretty indents JSON; the other formats ignore it.
func Write(w io.Writer, v any, f Format, pretty bool) error {
	switch f {
	case JSON, "":
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		if pretty {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(v)
	case Msgpack:
		enc := msgpack.NewEncoder(w)
		enc.SetSortMapKeys(true)
		return enc.Encode(v)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q", f)
}
