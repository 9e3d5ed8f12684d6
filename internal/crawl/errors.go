package crawl

import (
	"errors"
	"fmt"

	"github.com/agentic-research/crawl/internal/assemble"
)

// Code is the transport-level classification of a failed operation.
type Code string

const (
	CodeUnknownQuery     Code = "UNKNOWN_QUERY"
	CodeMissingParameter Code = "MISSING_PARAMETER"
	CodeDataNotFound     Code = "DATA_NOT_FOUND"
	CodeDataParsing      Code = "DATA_PARSING_ERROR"
	CodeMisc             Code = "MISC_ERROR"
)

// ExitStatus is the process exit status the CLI uses for the code.
func (c Code) ExitStatus() int {
	switch c {
	case CodeUnknownQuery:
		return 2
	case CodeMissingParameter:
		return 3
	case CodeDataNotFound:
		return 4
	case CodeDataParsing:
		return 5
	default:
		return 1
	}
}

// Error is the single structured error a failed operation returns.
type Error struct {
	Operation   string
	Code        Code
	Kind        assemble.Kind // set when the assembler failed
	Message     string
	Remediation string // usage text or the list of operations
	Err         error
}

func (e *Error) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Operation, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the Code carried by err, or CodeMisc.
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeMisc
}

// classify wraps err for op. Assembler errors become DATA_PARSING_ERROR;
// errors that already carry a code are passed through.
func classify(op string, err error, usage string) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		if ce.Operation == "" {
			ce.Operation = op
		}
		if ce.Remediation == "" {
			ce.Remediation = usage
		}
		return ce
	}
	e := &Error{Operation: op, Code: CodeMisc, Message: err.Error(), Remediation: usage, Err: err}
	if k := assemble.KindOf(err); k != "" {
		e.Code = CodeDataParsing
		e.Kind = k
	}
	return e
}

// Record renders the error for a JSON error response.
func (e *Error) Record() *assemble.Record {
	r := assemble.NewRecord(5).
		Set("code", string(e.Code)).
		Set("message", e.Message)
	if e.Kind != "" {
		r.Set("kind", string(e.Kind))
	}
	if e.Remediation != "" {
		r.Set("remediation", e.Remediation)
	}
	return assemble.NewRecord(1).Set("response", assemble.NewRecord(2).
		Set("name", e.Operation).
		Set("error", r))
}
