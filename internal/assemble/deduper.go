package assemble

// Deduper maps natural keys to already-built values and remembers the order
// in which keys were first seen. It is not safe for concurrent use; every
// grouping call builds its own.
type Deduper[T any] struct {
	index map[Key]int
	items []T
}

// NewDeduper returns an empty Deduper.
func NewDeduper[T any]() *Deduper[T] {
	return &Deduper[T]{index: make(map[Key]int)}
}

// GetOrCreate returns the value stored for key. On first sight of key it calls
// factory, stores the result and reports created=true.
func (d *Deduper[T]) GetOrCreate(key Key, factory func() T) (v T, created bool) {
	if i, ok := d.index[key]; ok {
		return d.items[i], false
	}
	v = factory()
	d.index[key] = len(d.items)
	d.items = append(d.items, v)
	return v, true
}

// Get returns the value for key without creating one.
func (d *Deduper[T]) Get(key Key) (T, bool) {
	if i, ok := d.index[key]; ok {
		return d.items[i], true
	}
	var zero T
	return zero, false
}

// Items returns values in first-seen order. Callers must not modify it.
func (d *Deduper[T]) Items() []T { return d.items }

// Len returns the number of distinct keys.
func (d *Deduper[T]) Len() int { return len(d.items) }
