package assemble

import (
	"errors"

	"github.com/RoaringBitmap/roaring"
)

// Report collects the recoverable problems found during one assembly.
type Report struct {
	Rows         int             // rows consumed
	BrokenChains int             // rows skipped as broken chains
	Skipped      *roaring.Bitmap // indexes of skipped rows
	Warnings     []error
}

func newReport() Report {
	return Report{Skipped: roaring.New()}
}

func (r *Report) skip(row int, err error) {
	r.Skipped.Add(uint32(row))
	r.Warnings = append(r.Warnings, err)
	var bc *BrokenChainError
	if errors.As(err, &bc) {
		r.BrokenChains++
	}
}

// OK reports whether no row was skipped.
func (r *Report) OK() bool { return len(r.Warnings) == 0 }

// Err joins all warnings into one error, or returns nil.
func (r *Report) Err() error { return errors.Join(r.Warnings...) }

// WarningStrings renders the warnings for a response envelope.
func (r *Report) WarningStrings() []string {
	out := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		out[i] = w.Error()
	}
	return out
}
