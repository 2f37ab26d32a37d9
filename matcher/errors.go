package matcher

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a missing input file.
	ErrNotFound = errors.New("not found")
	// ErrFormat indicates a malformed reference table.
	ErrFormat = errors.New("malformed reference table")
	// ErrEmptyInput indicates an item without candidate statements.
	ErrEmptyInput = errors.New("no candidate statements")
	// ErrModelUnavailable indicates the scorer could not be initialized.
	ErrModelUnavailable = errors.New("similarity model unavailable")
)

// FormatError describes a malformed header or row in the reference table.
// Row is the 1-based data row (0 for the header) and Line the CSV line number.
type FormatError struct {
	Row    int
	Line   int
	Column string
	Err    error
}

func (e *FormatError) Error() string {
	msg := "malformed reference table"
	switch {
	case e.Row == 0 && e.Column != "":
		msg = fmt.Sprintf("%s: missing column %q", msg, e.Column)
	case e.Row > 0 && e.Column != "":
		msg = fmt.Sprintf("%s: row %d (line %d): missing %s", msg, e.Row, e.Line, e.Column)
	case e.Row > 0:
		msg = fmt.Sprintf("%s: row %d (line %d)", msg, e.Row, e.Line)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap lets errors.Is match both ErrFormat and the underlying cause.
func (e *FormatError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFormat}
	}
	return []error{ErrFormat, e.Err}
}

func notFound(kind, path string, err error) error {
	return fmt.Errorf("%s file %q: %w: %w", kind, path, ErrNotFound, err)
}

func modelUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
}
