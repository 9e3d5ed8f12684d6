package crawl

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/agentic-research/crawl/api"
)

// Args are raw request parameters. A name may carry several values.
type Args map[string][]string

// Add appends a value to name.
func (a Args) Add(name, value string) {
	a[name] = append(a[name], value)
}

// ParseArgs reads name=value pairs, as given on the command line.
func ParseArgs(pairs []string) (Args, error) {
	a := Args{}
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, &Error{Code: CodeMisc, Message: fmt.Sprintf("argument %q: want name=value", p)}
		}
		a.Add(name, value)
	}
	return a, nil
}

const delimiterArg = "delimiter"

// binding selects the checks bindArgs applies.
type binding uint8

const (
	// bindStrict rejects parameters the operation does not declare.
	bindStrict binding = 1 << iota
	// bindRequired fails on required arguments without a value.
	bindRequired

	bindRequest = bindStrict | bindRequired
)

// bindArgs coerces raw into the typed values the operation's SQL binds.
// Every declared argument gets an entry, nil when absent and optional. List
// arguments also bind has_<name>, true when the list is not empty.
func bindArgs(op *api.Operation, raw Args, mode binding) (map[string]any, error) {
	known := map[string]bool{delimiterArg: true}
	bound := make(map[string]any, len(op.Arguments)+1)

	for _, a := range op.Arguments {
		known[a.Name] = true
		values := append([]string(nil), raw[a.Name]...)
		for _, alias := range a.Aliases {
			known[alias] = true
			values = append(values, raw[alias]...)
		}
		for _, d := range a.Delimited {
			known[d] = true
			values = append(values, splitDelimited(raw[d], delimiter(raw))...)
		}

		if len(values) == 0 && a.Default != "" {
			if a.Type == "list" {
				values = splitDelimited([]string{a.Default}, ",")
			} else {
				values = []string{a.Default}
			}
		}
		if len(values) == 0 {
			if a.Required && mode&bindRequired != 0 {
				return nil, &Error{
					Code:    CodeMissingParameter,
					Message: fmt.Sprintf("missing required argument %q", a.Name),
				}
			}
			if a.Type == "list" {
				bound[a.Name] = []string{}
				bound["has_"+a.Name] = false
			} else {
				bound[a.Name] = nil
			}
			continue
		}

		v, err := coerce(a, values)
		if err != nil {
			return nil, &Error{Code: CodeMisc, Message: fmt.Sprintf("argument %q: %v", a.Name, err)}
		}
		bound[a.Name] = v
		if a.Type == "list" {
			bound["has_"+a.Name] = true
		}
	}

	if mode&bindStrict != 0 {
		var unknown []string
		for name := range raw {
			if !known[name] {
				unknown = append(unknown, name)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return nil, &Error{
				Code:    CodeMisc,
				Message: fmt.Sprintf("unexpected arguments: %s", strings.Join(unknown, ", ")),
			}
		}
	}
	return bound, nil
}

func coerce(a api.Argument, values []string) (any, error) {
	switch a.Type {
	case "list":
		return values, nil
	case "bool":
		return parseBool(values[0])
	case "int":
		n, err := strconv.ParseInt(strings.TrimSpace(values[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", values[0])
		}
		return n, nil
	default:
		return values[0], nil
	}
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "on":
		return true, nil
	case "false", "0", "no", "n", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

func delimiter(raw Args) string {
	if d := raw[delimiterArg]; len(d) > 0 && d[0] != "" {
		return d[0]
	}
	return ","
}

func splitDelimited(values []string, sep string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, sep) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Usage lists an operation's arguments with their documentation.
func Usage(op *api.Operation) string {
	var b strings.Builder
	b.WriteString("Available query options are:\n")
	for _, a := range op.Arguments {
		b.WriteString("\n-")
		b.WriteString(a.Name)
		b.WriteByte('\t')
		b.WriteString(a.Doc)
		var notes []string
		if a.Required {
			notes = append(notes, "required")
		}
		if a.Type != "" && a.Type != "string" {
			notes = append(notes, a.Type)
		}
		if a.Default != "" {
			notes = append(notes, "default "+a.Default)
		}
		if len(notes) > 0 {
			b.WriteString(" (" + strings.Join(notes, ", ") + ")")
		}
		for _, alias := range a.Aliases {
			b.WriteString("\n-" + alias + "\tsame as -" + a.Name)
		}
	}
	return b.String()
}

// OperationList lists every operation in the catalog.
func OperationList(c *api.Catalog) string {
	var b strings.Builder
	b.WriteString("Available queries are:\n")
	for _, op := range c.Operations {
		b.WriteString("\n" + op.Name)
		if op.Description != "" {
			b.WriteString("\t" + op.Description)
		}
	}
	return b.String()
}
