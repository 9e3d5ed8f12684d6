package assemble

// Input is one grouped result fed to Combine or Attach.
type Input struct {
	Name       string // field name in the composite
	Key        string // key field of each grouped record
	Collection string // sub-collection to take from each record; defaults to Name
	Records    []*Record
}

func (in Input) collection() string {
	if in.Collection != "" {
		return in.Collection
	}
	return in.Name
}

// Combine merges grouped results that share a key space into one composite
// record per key. The composite carries the key under the first input's Key
// name, then one field per input in argument order. A key missing from an
// input gets an empty collection for it. Composites appear in first-seen order
// across the inputs, the first input leading.
func Combine(inputs ...Input) ([]*Record, error) {
	out := NewDeduper[*Record]()
	if len(inputs) == 0 {
		return []*Record{}, nil
	}
	keyName := inputs[0].Key

	for _, in := range inputs {
		for j, rec := range in.Records {
			v, ok := rec.Get(in.Key)
			if !ok || v == nil {
				return nil, &MalformedRowError{Row: j, Column: in.Key, Null: ok, Input: in.Name}
			}
			comp, _ := out.GetOrCreate(KeyOf(v), func() *Record {
				c := NewRecord(len(inputs) + 1).Set(keyName, v)
				for _, other := range inputs {
					c.InitCollection(other.Name)
				}
				return c
			})
			merged := append(comp.Collection(in.Name), rec.Collection(in.collection())...)
			comp.Set(in.Name, merged)
		}
	}
	if out.Len() == 0 {
		return []*Record{}, nil
	}
	return out.Items(), nil
}

// Attach sets parent[in.Name] on every parent to the collection of the grouped
// record whose key equals the parent's idField. Parents with no match, or with
// a NULL idField, get an empty collection.
func Attach(parents []*Record, idField string, in Input) error {
	groups := NewDeduper[*Record]()
	for j, rec := range in.Records {
		v, ok := rec.Get(in.Key)
		if !ok || v == nil {
			return &MalformedRowError{Row: j, Column: in.Key, Null: ok, Input: in.Name}
		}
		groups.GetOrCreate(KeyOf(v), func() *Record { return rec })
	}
	for _, p := range parents {
		children := []*Record{}
		if v := p.Value(idField); v != nil {
			if g, ok := groups.Get(KeyOf(v)); ok {
				children = append(children, g.Collection(in.collection())...)
			}
		}
		p.Set(in.Name, children)
	}
	return nil
}
