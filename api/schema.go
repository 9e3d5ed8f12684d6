package api

// Catalog is the root configuration: the named operations crawl can run.
type Catalog struct {
	// Version of the catalog schema.
	Version string `json:"version" yaml:"version" hcl:"version,optional"`
	// Operations, in listing order.
	Operations []Operation `json:"operations" yaml:"operations" hcl:"operation,block"`
}

// Operation is one named query and the shape its rows are assembled into.
type Operation struct {
	// Name, e.g. "features/properties".
	Name        string `json:"name" yaml:"name" hcl:"name,label"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" hcl:"description,optional"`
	// SQL with :name placeholders bound from Arguments.
	SQL string `json:"sql,omitempty" yaml:"sql,omitempty" hcl:"sql,optional"`
	// Result is the response field holding the output. Defaults to "features".
	Result    string     `json:"result,omitempty" yaml:"result,omitempty" hcl:"result,optional"`
	Arguments []Argument `json:"arguments,omitempty" yaml:"arguments,omitempty" hcl:"argument,block"`
	Shape     *Shape     `json:"shape,omitempty" yaml:"shape,omitempty" hcl:"shape,block"`
	// Parts makes this a summary: each part runs another operation and the
	// grouped results are combined per key.
	Parts []Part `json:"parts,omitempty" yaml:"parts,omitempty" hcl:"part,block"`
	// Echo lists arguments copied into the response next to the result.
	Echo []string `json:"echo,omitempty" yaml:"echo,omitempty" hcl:"echo,optional"`
	// RequireRows turns an empty result into a not-found error.
	RequireRows bool `json:"require_rows,omitempty" yaml:"require_rows,omitempty" hcl:"require_rows,optional"`
}

// Argument documents and types one operation parameter.
type Argument struct {
	Name string `json:"name" yaml:"name" hcl:"name,label"`
	Doc  string `json:"doc,omitempty" yaml:"doc,omitempty" hcl:"doc,optional"`
	// Type is one of string, list, bool or int. Defaults to string.
	Type     string `json:"type,omitempty" yaml:"type,omitempty" hcl:"type,optional"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty" hcl:"required,optional"`
	Default  string `json:"default,omitempty" yaml:"default,omitempty" hcl:"default,optional"`
	// Aliases are other parameter names whose values merge into this one.
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty" hcl:"aliases,optional"`
	// Delimited are parameter names holding one string to split on the
	// "delimiter" parameter (default ",") and merge into this list.
	Delimited []string `json:"delimited,omitempty" yaml:"delimited,omitempty" hcl:"delimited,optional"`
}

// Shape kinds.
const (
	ShapeRows  = "rows"
	ShapeGroup = "group"
	ShapeNest  = "nest"
	ShapeTree  = "tree"
)

// Shape tells the runner how to assemble an operation's rows.
type Shape struct {
	// Kind is rows, group, nest or tree.
	Kind string `json:"kind" yaml:"kind" hcl:"kind"`

	// Key and Collection configure group.
	Key         string `json:"key,omitempty" yaml:"key,omitempty" hcl:"key,optional"`
	Collection  string `json:"collection,omitempty" yaml:"collection,omitempty" hcl:"collection,optional"`
	KeepKey     bool   `json:"keep_key,omitempty" yaml:"keep_key,omitempty" hcl:"keep_key,optional"`
	DedupLeaves bool   `json:"dedup_leaves,omitempty" yaml:"dedup_leaves,omitempty" hcl:"dedup_leaves,optional"`

	// Levels configure nest and tree, root first.
	Levels []Level `json:"levels,omitempty" yaml:"levels,omitempty" hcl:"level,block"`

	// Mode is nested or flattened (tree only). ModeArg names a bool argument
	// that, when true, selects flattened.
	Mode     string `json:"mode,omitempty" yaml:"mode,omitempty" hcl:"mode,optional"`
	ModeArg  string `json:"mode_arg,omitempty" yaml:"mode_arg,omitempty" hcl:"mode_arg,optional"`
	Parent   string `json:"parent,omitempty" yaml:"parent,omitempty" hcl:"parent,optional"`
	Children string `json:"children,omitempty" yaml:"children,omitempty" hcl:"children,optional"`

	// Attach hangs extra sub-collections on nest records (nest only).
	Attach []Attach `json:"attach,omitempty" yaml:"attach,omitempty" hcl:"attach,block"`
}

// Level is one level of a nest or tree shape.
type Level struct {
	// Key columns. A tree level uses the first; a nest leaf level has none.
	Key        []string `json:"key,omitempty" yaml:"key,omitempty" hcl:"key,optional"`
	Fields     []Field  `json:"fields,omitempty" yaml:"fields,omitempty" hcl:"field,block"`
	Collection string   `json:"collection,omitempty" yaml:"collection,omitempty" hcl:"collection,optional"`
}

// Field maps an output field to a column, or to the constant Value when
// Column is empty.
type Field struct {
	Name   string `json:"name" yaml:"name" hcl:"name,label"`
	Column string `json:"column,omitempty" yaml:"column,omitempty" hcl:"column,optional"`
	Value  string `json:"value,omitempty" yaml:"value,omitempty" hcl:"value,optional"`
}

// Part is one input of a summary operation.
type Part struct {
	// Name is the field the part fills in each composite record.
	Name      string `json:"name" yaml:"name" hcl:"name,label"`
	Operation string `json:"operation" yaml:"operation" hcl:"operation"`
	// Collection is the sub-collection taken from the part's grouped records.
	// Defaults to the part operation's shape collection.
	Collection string `json:"collection,omitempty" yaml:"collection,omitempty" hcl:"collection,optional"`
}

// Attach runs SQL once for the ids found on one nest level and attaches the
// grouped results to the matching records.
type Attach struct {
	Name string `json:"name" yaml:"name" hcl:"name,label"`
	// Level is the zero-based nest level whose records receive the collection.
	Level int `json:"level" yaml:"level" hcl:"level"`
	// IDField is the record field matched against Key; its values are bound as :ids.
	IDField string `json:"id_field" yaml:"id_field" hcl:"id_field"`
	SQL     string `json:"sql" yaml:"sql" hcl:"sql"`
	// Key is the result column that carries the id.
	Key string `json:"key" yaml:"key" hcl:"key"`
}

// Operation returns the named operation.
func (c *Catalog) Operation(name string) (*Operation, bool) {
	for i := range c.Operations {
		if c.Operations[i].Name == name {
			return &c.Operations[i], true
		}
	}
	return nil, false
}

// ResultField returns Result or its default.
func (o *Operation) ResultField() string {
	if o.Result == "" {
		return "features"
	}
	return o.Result
}
