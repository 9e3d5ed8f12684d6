package assemble

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRow marks a row that lacks a required key column.
	ErrMalformedRow = errors.New("malformed row")
	// ErrBrokenChain marks a row that carries a level key without its parent key.
	ErrBrokenChain = errors.New("broken chain")
)

// Kind classifies assembler errors for callers that map them to transport codes.
type Kind string

const (
	KindMalformedRow Kind = "MALFORMED_ROW"
	KindBrokenChain  Kind = "BROKEN_CHAIN"
)

// MalformedRowError reports a row that cannot be keyed. It is fatal to the call.
type MalformedRowError struct {
	Row    int // zero-based index in the input
	Column string
	Null   bool // column present but NULL
	Input  string
}

func (e *MalformedRowError) Error() string {
	what := "missing key column"
	if e.Null {
		what = "null key column"
	}
	if e.Input != "" {
		return fmt.Sprintf("%s: input %q record %d: %s %q", ErrMalformedRow, e.Input, e.Row, what, e.Column)
	}
	return fmt.Sprintf("%s: row %d: %s %q", ErrMalformedRow, e.Row, what, e.Column)
}

func (e *MalformedRowError) Unwrap() error { return ErrMalformedRow }

// Kind returns KindMalformedRow.
func (e *MalformedRowError) Kind() Kind { return KindMalformedRow }

// BrokenChainError reports a row whose level key is set while a shallower
// level key is not. The row is skipped; assembly continues.
type BrokenChainError struct {
	Row          int
	Level        int // 1-based level that carried the orphaned key
	Column       string
	ParentColumn string
}

func (e *BrokenChainError) Error() string {
	return fmt.Sprintf("%s: row %d: level %d column %q set without parent column %q",
		ErrBrokenChain, e.Row, e.Level, e.Column, e.ParentColumn)
}

func (e *BrokenChainError) Unwrap() error { return ErrBrokenChain }

// Kind returns KindBrokenChain.
func (e *BrokenChainError) Kind() Kind { return KindBrokenChain }

// KindOf returns the Kind of the first assembler error in err's chain,
// or "" when there is none.
func KindOf(err error) Kind {
	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}
