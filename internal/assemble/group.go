package assemble

// Group collapses rows into one record per distinct value of keyColumn. Each
// record holds the key and a collection of leaves built from the remaining
// columns of every row that carried the key, in row order.
//
// A row that lacks keyColumn, or holds NULL in it, fails the whole call with a
// *MalformedRowError and no output.
func Group(rows []Row, keyColumn, collection string, opts ...Option) ([]*Record, error) {
	o := buildOptions(opts)
	parents := NewDeduper[*Record]()
	var seen map[Key]map[Key]struct{}
	if o.dedupLeaves {
		seen = make(map[Key]map[Key]struct{})
	}

	for i, row := range rows {
		v, ok := row.Get(keyColumn)
		if !ok || v == nil {
			return nil, &MalformedRowError{Row: i, Column: keyColumn, Null: ok}
		}
		key := KeyOf(v)
		parent, _ := parents.GetOrCreate(key, func() *Record {
			r := NewRecord(2).Set(keyColumn, v)
			r.InitCollection(collection)
			return r
		})

		leaf := NewRecord(row.Len())
		for _, c := range row.Columns() {
			if c == keyColumn && !o.keepKey {
				continue
			}
			leaf.Set(c, row.Value(c))
		}
		if seen != nil {
			leaves := seen[key]
			if leaves == nil {
				leaves = make(map[Key]struct{})
				seen[key] = leaves
			}
			ck := leaf.contentKey()
			if _, dup := leaves[ck]; dup {
				continue
			}
			leaves[ck] = struct{}{}
		}
		parent.Append(collection, leaf)
	}

	out := parents.Items()
	if out == nil {
		out = []*Record{}
	}
	return out, nil
}
