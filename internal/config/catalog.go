// Package config loads the operation catalog and the runtime settings.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"gopkg.in/yaml.v3"

	"github.com/agentic-research/crawl/api"
	"github.com/agentic-research/crawl/internal/assemble"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// ErrInvalidCatalog wraps every catalog validation failure.
var ErrInvalidCatalog = errors.New("invalid catalog")

// DefaultCatalog returns the built-in Chado catalog.
func DefaultCatalog() (*api.Catalog, error) {
	return ParseCatalog("catalog.yaml", defaultCatalog)
}

// LoadCatalog reads a catalog file. The extension picks the syntax:
// .yaml/.yml, .json or .hcl.
func LoadCatalog(path string) (*api.Catalog, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(path, src)
}

// ParseCatalog decodes src using the syntax implied by filename and
// validates the result.
func ParseCatalog(filename string, src []byte) (*api.Catalog, error) {
	var c api.Catalog
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(src))
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", filename, err)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(src))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", filename, err)
		}
	case ".hcl":
		if err := hclsimple.Decode(filepath.Base(filename), src, nil, &c); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", filename, err)
		}
	default:
		return nil, fmt.Errorf("parse catalog %s: unsupported extension %q", filename, ext)
	}
	if err := Validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every operation can run: names are unique, shapes
// are complete and summary parts point at group or nest operations.
func Validate(c *api.Catalog) error {
	var errs []error
	seen := make(map[string]bool, len(c.Operations))
	for i := range c.Operations {
		op := &c.Operations[i]
		if op.Name == "" {
			errs = append(errs, fmt.Errorf("operation %d has no name", i))
			continue
		}
		if seen[op.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate operation", op.Name))
		}
		seen[op.Name] = true
		if err := validateOperation(op); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", op.Name, err))
		}
	}
	for i := range c.Operations {
		op := &c.Operations[i]
		for _, p := range op.Parts {
			target, ok := c.Operation(p.Operation)
			if !ok {
				errs = append(errs, fmt.Errorf("%s: part %q: unknown operation %q", op.Name, p.Name, p.Operation))
				continue
			}
			if target.Shape == nil || (target.Shape.Kind != api.ShapeGroup && target.Shape.Kind != api.ShapeNest) {
				errs = append(errs, fmt.Errorf("%s: part %q: operation %q is not grouped", op.Name, p.Name, p.Operation))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidCatalog, errors.Join(errs...))
	}
	return nil
}

func validateOperation(op *api.Operation) error {
	args := make(map[string]bool, len(op.Arguments))
	for _, a := range op.Arguments {
		switch a.Type {
		case "", "string", "list", "bool", "int":
		default:
			return fmt.Errorf("argument %q: unknown type %q", a.Name, a.Type)
		}
		args[a.Name] = true
	}
	for _, e := range op.Echo {
		if !args[e] {
			return fmt.Errorf("echo %q is not an argument", e)
		}
	}

	if len(op.Parts) > 0 {
		if op.Shape != nil || op.SQL != "" {
			return errors.New("a summary takes parts, not sql or a shape")
		}
		return nil
	}
	if op.SQL == "" {
		return errors.New("no sql")
	}
	if op.Shape == nil {
		return errors.New("no shape")
	}

	s := op.Shape
	switch s.Kind {
	case api.ShapeRows:
	case api.ShapeGroup:
		if s.Key == "" || s.Collection == "" {
			return errors.New("group shape needs key and collection")
		}
	case api.ShapeNest:
		if _, err := assemble.Nest(nil, NestLevels(s)); err != nil {
			return err
		}
		for _, a := range s.Attach {
			if a.Level < 0 || a.Level >= len(s.Levels) {
				return fmt.Errorf("attach %q: level %d out of range", a.Name, a.Level)
			}
			if a.IDField == "" || a.Key == "" || a.SQL == "" {
				return fmt.Errorf("attach %q needs id_field, key and sql", a.Name)
			}
		}
	case api.ShapeTree:
		if _, err := assemble.ParseMode(s.Mode); err != nil {
			return err
		}
		if s.ModeArg != "" && !args[s.ModeArg] {
			return fmt.Errorf("mode_arg %q is not an argument", s.ModeArg)
		}
		if _, err := assemble.Assemble(nil, TreeLevels(s), assemble.Nested); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown shape kind %q", s.Kind)
	}
	return nil
}

// Fields converts catalog fields to assembler fields. A field without a
// column emits its value, the empty string when none is given.
func Fields(fs []api.Field) []assemble.Field {
	if len(fs) == 0 {
		return nil
	}
	out := make([]assemble.Field, len(fs))
	for i, f := range fs {
		out[i] = assemble.Field{Name: f.Name, Column: f.Column}
		if f.Column == "" {
			out[i].Value = f.Value
		}
	}
	return out
}

// NestLevels converts a nest shape's levels.
func NestLevels(s *api.Shape) []assemble.NestLevel {
	out := make([]assemble.NestLevel, len(s.Levels))
	for i, l := range s.Levels {
		out[i] = assemble.NestLevel{Key: l.Key, Fields: Fields(l.Fields), Collection: l.Collection}
	}
	return out
}

// TreeLevels converts a tree shape's levels. Only the first key column of
// each level is used.
func TreeLevels(s *api.Shape) []assemble.Level {
	out := make([]assemble.Level, len(s.Levels))
	for i, l := range s.Levels {
		var key string
		if len(l.Key) > 0 {
			key = l.Key[0]
		}
		out[i] = assemble.Level{Key: key, Fields: Fields(l.Fields)}
	}
	return out
}
