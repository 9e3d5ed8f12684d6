package assemble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Mode selects how Assemble renders a hierarchy.
type Mode int

const (
	// Nested yields a forest: roots carry their children.
	Nested Mode = iota
	// Flattened yields one list in which every node names its parent.
	Flattened
)

// ParseMode accepts "nested", "flattened" and "flat", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nested", "tree":
		return Nested, nil
	case "flattened", "flat":
		return Flattened, nil
	}
	return Nested, fmt.Errorf("unknown mode %q", s)
}

func (m Mode) String() string {
	if m == Flattened {
		return "flattened"
	}
	return "nested"
}

// Field maps an output field to a row column. When Column is empty the
// constant Value is emitted instead.
type Field struct {
	Name   string
	Column string
	Value  any
}

func (f Field) from(row Row) any {
	if f.Column == "" {
		return f.Value
	}
	return row.Value(f.Column)
}

// Level describes one hierarchy level: the column that identifies its nodes
// and the fields each node carries. With no Fields a node carries only its key.
type Level struct {
	Key    string
	Fields []Field
}

// Node is one entity of an assembled hierarchy.
type Node struct {
	ID       any // value of the level key column
	Parent   any // parent ID, "" for roots
	Level    int // 1 for roots
	Fields   *Record
	Children []*Node

	nested     bool
	parentName string
	childName  string
}

// Nested reports whether the node renders its children.
func (n *Node) Nested() bool { return n.nested }

// Record renders the node as its own fields, the parent reference and, in
// nested mode, the children.
func (n *Node) Record() *Record { return n.view() }

func (n *Node) view() *Record {
	r := n.Fields.clone()
	r.Set(n.parentName, n.Parent)
	if n.nested {
		children := n.Children
		if children == nil {
			children = []*Node{}
		}
		r.Set(n.childName, children)
	}
	return r
}

func (n *Node) MarshalJSON() ([]byte, error) { return n.view().MarshalJSON() }

func (n *Node) EncodeMsgpack(enc *msgpack.Encoder) error { return n.view().EncodeMsgpack(enc) }

func (n *Node) MarshalYAML() (any, error) { return n.view().MarshalYAML() }

// Tree is the result of Assemble.
type Tree struct {
	Nodes  []*Node
	Mode   Mode
	Report Report
}

var errNoLevels = errors.New("assemble: at least one level is required")

// Assemble builds a hierarchy from rows that carry one key column per level,
// root first.
//
// For each row, levels are walked from the root down; a NULL or absent key
// ends the walk. Each level has its own key space. A node is created once, on
// first sight, under the parent seen in that row. A row that sets a level key
// while a shallower key is NULL is skipped and reported as a *BrokenChainError
// in Tree.Report. A row without the root key column fails the call with a
// *MalformedRowError.
func Assemble(rows []Row, levels []Level, mode Mode, opts ...Option) (*Tree, error) {
	if len(levels) == 0 {
		return nil, errNoLevels
	}
	for i, l := range levels {
		if l.Key == "" {
			return nil, fmt.Errorf("assemble: level %d has no key column", i+1)
		}
	}
	o := buildOptions(opts)

	t := &Tree{Mode: mode, Report: newReport()}
	t.Report.Rows = len(rows)
	index := make([]*Deduper[*Node], len(levels))
	for i := range index {
		index[i] = NewDeduper[*Node]()
	}

	for i, row := range rows {
		if !row.Has(levels[0].Key) {
			return nil, &MalformedRowError{Row: i, Column: levels[0].Key}
		}
		depth, err := chainDepth(i, row, levels)
		if err != nil {
			t.Report.skip(i, err)
			o.log.Warn("skipping row",
				zap.Int("row", i),
				zap.String("kind", string(KindBrokenChain)),
				zap.Error(err))
			continue
		}

		var parent *Node
		for l := 0; l < depth; l++ {
			lvl := levels[l]
			id := row.Value(lvl.Key)
			node, created := index[l].GetOrCreate(KeyOf(id), func() *Node {
				return newNode(row, lvl, l+1, id, parent, mode, o)
			})
			if created {
				switch {
				case parent == nil:
					t.Nodes = append(t.Nodes, node)
				case mode == Nested:
					parent.Children = append(parent.Children, node)
				default:
					t.Nodes = append(t.Nodes, node)
				}
			}
			parent = node
		}
	}
	if t.Nodes == nil {
		t.Nodes = []*Node{}
	}
	return t, nil
}

// chainDepth returns how many levels, from the root, the row populates.
func chainDepth(i int, row Row, levels []Level) (int, error) {
	depth := 0
	for depth < len(levels) && !row.IsNull(levels[depth].Key) {
		depth++
	}
	for l := depth + 1; l < len(levels); l++ {
		if !row.IsNull(levels[l].Key) {
			return 0, &BrokenChainError{
				Row:          i,
				Level:        l + 1,
				Column:       levels[l].Key,
				ParentColumn: levels[depth].Key,
			}
		}
	}
	return depth, nil
}

func newNode(row Row, lvl Level, level int, id any, parent *Node, mode Mode, o options) *Node {
	n := &Node{
		ID:         id,
		Parent:     "",
		Level:      level,
		nested:     mode == Nested,
		parentName: o.parentName,
		childName:  o.childName,
	}
	if parent != nil {
		n.Parent = parent.ID
	}
	if len(lvl.Fields) == 0 {
		n.Fields = NewRecord(1).Set(lvl.Key, id)
		return n
	}
	n.Fields = NewRecord(len(lvl.Fields))
	for _, f := range lvl.Fields {
		n.Fields.Set(f.Name, f.from(row))
	}
	return n
}

// Flatten lists a nested forest in pre-order. The returned nodes are copies
// that render without children; the input is left untouched.
func Flatten(nodes []*Node) []*Node {
	out := make([]*Node, 0, len(nodes))
	var walk func([]*Node)
	walk = func(ns []*Node) {
		for _, n := range ns {
			c := *n
			c.Children = nil
			c.nested = false
			out = append(out, &c)
			walk(n.Children)
		}
	}
	walk(nodes)
	return out
}

// Rebuild reconstructs a nested forest from a flat list of nodes. Parents must
// precede their children, which holds for both Flatten and Flattened output.
// Child order follows list order.
func Rebuild(flat []*Node) ([]*Node, error) {
	type levelKey struct {
		level int
		key   Key
	}
	byKey := make(map[levelKey]*Node, len(flat))
	roots := []*Node{}
	for i, n := range flat {
		c := *n
		c.Children = nil
		c.nested = true
		node := &c
		byKey[levelKey{n.Level, KeyOf(n.ID)}] = node
		if n.Level <= 1 {
			roots = append(roots, node)
			continue
		}
		parent, ok := byKey[levelKey{n.Level - 1, KeyOf(n.Parent)}]
		if !ok {
			return nil, fmt.Errorf("node %d (%v): %w: parent %v not found at level %d",
				i, n.ID, ErrBrokenChain, n.Parent, n.Level-1)
		}
		parent.Children = append(parent.Children, node)
	}
	return roots, nil
}
