package export

import (
	"errors"
	"fmt"
)

// ErrNilDocument is returned when a nil document is handed to the writer.
var ErrNilDocument = errors.New("document is nil")

// ErrMalformedInput indicates that the input is not valid JSON, or not a
// readable ZIP container.
type ErrMalformedInput struct {
	Path    string // Input path, "-" for stdin
	Entry   string // Archive entry, if the failure is inside a container
	Details string
	Err     error
}

func (e *ErrMalformedInput) Error() string {
	msg := fmt.Sprintf("malformed input %q", e.Path)
	if e.Entry != "" {
		msg += fmt.Sprintf(" (entry %s)", e.Entry)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ErrMalformedInput) Unwrap() error {
	return e.Err
}

// ErrSchema indicates valid JSON that lacks the structure of a 1PUX export.
type ErrSchema struct {
	Path    string
	Details string
}

func (e *ErrSchema) Error() string {
	return fmt.Sprintf("invalid export %q: %s", e.Path, e.Details)
}

// ErrIO indicates a read or write failure at the filesystem boundary.
type ErrIO struct {
	Op   string // read, write, rename, ...
	Path string
	Err  error
}

func (e *ErrIO) Error() string {
	msg := fmt.Sprintf("cannot %s %q", e.Op, e.Path)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ErrIO) Unwrap() error {
	return e.Err
}

// IsMalformed returns true if the error is a malformed input error.
func IsMalformed(err error) bool {
	var malformed *ErrMalformedInput
	return errors.As(err, &malformed)
}

// IsSchema returns true if the error is a schema error.
func IsSchema(err error) bool {
	var schemaErr *ErrSchema
	return errors.As(err, &schemaErr)
}

// IsIO returns true if the error is an I/O error.
func IsIO(err error) bool {
	var ioErr *ErrIO
	return errors.As(err, &ioErr)
}

func schemaErrorf(path, format string, args ...any) error {
	return &ErrSchema{Path: path, Details: fmt.Sprintf(format, args...)}
}
