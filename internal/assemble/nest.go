package assemble

import (
	"errors"
	"fmt"
)

// NestLevel is one level of a multi-level grouping. Key names the columns that
// identify a record within its parent; Collection names the field that holds
// the next level's records.
//
// The last level may leave Key empty, making it a leaf level: every row adds
// one leaf, unless the row holds NULL in the first field's column.
type NestLevel struct {
	Key        []string
	Fields     []Field
	Collection string
}

const scopeSep = "\x1e"

// Nest groups rows over several levels. Records at level 0 form the output;
// records at deeper levels are keyed by their parent's key plus their own
// key columns, so equal keys under different parents stay apart.
//
// A NULL in a level's first key column ends the descent for that row. A row
// missing a key column entirely fails the call with a *MalformedRowError.
// Field columns missing from a row render as NULL.
func Nest(rows []Row, levels []NestLevel, opts ...Option) ([]*Record, error) {
	if err := validateNest(levels); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	last := len(levels) - 1
	index := make([]*Deduper[*Record], len(levels))
	for i := range index {
		index[i] = NewDeduper[*Record]()
	}
	var seen map[Key]map[Key]struct{}
	if o.dedupLeaves {
		seen = make(map[Key]map[Key]struct{})
	}

	for i, row := range rows {
		var parent *Record
		var scope Key
		for li, lvl := range levels {
			if len(lvl.Key) == 0 {
				if row.IsNull(lvl.Fields[0].Column) {
					break
				}
				leaf := nestRecord(row, lvl)
				if seen != nil && !firstLeaf(seen, scope, leaf) {
					break
				}
				parent.Append(levels[li-1].Collection, leaf)
				break
			}

			parts := make([]any, len(lvl.Key))
			for k, col := range lvl.Key {
				v, ok := row.Get(col)
				if !ok {
					return nil, &MalformedRowError{Row: i, Column: col}
				}
				parts[k] = v
			}
			if parts[0] == nil {
				break
			}
			key := KeyOf(parts...)
			if li > 0 {
				key = scope + scopeSep + key
			}
			node, created := index[li].GetOrCreate(key, func() *Record {
				r := nestRecord(row, lvl)
				if li < last {
					r.InitCollection(lvl.Collection)
				}
				return r
			})
			if created && parent != nil {
				parent.Append(levels[li-1].Collection, node)
			}
			parent, scope = node, key
		}
	}

	out := index[0].Items()
	if out == nil {
		out = []*Record{}
	}
	return out, nil
}

func nestRecord(row Row, lvl NestLevel) *Record {
	if len(lvl.Fields) == 0 {
		r := NewRecord(len(lvl.Key))
		for _, c := range lvl.Key {
			r.Set(c, row.Value(c))
		}
		return r
	}
	r := NewRecord(len(lvl.Fields) + 1)
	for _, f := range lvl.Fields {
		r.Set(f.Name, f.from(row))
	}
	return r
}

func firstLeaf(seen map[Key]map[Key]struct{}, scope Key, leaf *Record) bool {
	leaves := seen[scope]
	if leaves == nil {
		leaves = make(map[Key]struct{})
		seen[scope] = leaves
	}
	ck := leaf.contentKey()
	if _, dup := leaves[ck]; dup {
		return false
	}
	leaves[ck] = struct{}{}
	return true
}

func validateNest(levels []NestLevel) error {
	if len(levels) == 0 {
		return errNoLevels
	}
	if len(levels[0].Key) == 0 {
		return errors.New("assemble: the first level needs key columns")
	}
	for i, l := range levels {
		if len(l.Key) == 0 {
			if i != len(levels)-1 {
				return fmt.Errorf("assemble: level %d: only the last level may be a leaf level", i+1)
			}
			if len(l.Fields) == 0 || l.Fields[0].Column == "" {
				return fmt.Errorf("assemble: leaf level %d needs a column field", i+1)
			}
		}
		if i < len(levels)-1 && l.Collection == "" {
			return fmt.Errorf("assemble: level %d has no collection name", i+1)
		}
	}
	return nil
}
