package assemble

import "go.uber.org/zap"

// Option tunes a grouping or assembly call.
type Option func(*options)

type options struct {
	keepKey     bool
	dedupLeaves bool
	log         *zap.Logger
	parentName  string
	childName   string
}

func buildOptions(opts []Option) options {
	o := options{
		log:        zap.NewNop(),
		parentName: "parent",
		childName:  "features",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// KeepKey keeps the grouping column inside each leaf as well as on the parent.
func KeepKey() Option {
	return func(o *options) { o.keepKey = true }
}

// DedupLeaves collapses a leaf whose full content equals an earlier leaf of
// the same parent. By default such leaves are kept, since they may come from
// distinct database rows.
func DedupLeaves() Option {
	return func(o *options) { o.dedupLeaves = true }
}

// WithLogger sets the logger used for skipped-row warnings.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithNodeFields renames the parent-reference and children fields of tree
// nodes. Empty names keep the defaults "parent" and "features".
func WithNodeFields(parent, children string) Option {
	return func(o *options) {
		if parent != "" {
			o.parentName = parent
		}
		if children != "" {
			o.childName = children
		}
	}
}
