package main

import (
	"errors"
	"fmt"

	"github.com/nvinuesa/filter1pux/internal/export"
	"github.com/nvinuesa/filter1pux/internal/filter"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitInvalid   = 1 // malformed input, schema violation or usage error
	ExitNoSuchSel = 2 // a vault or account selector matched nothing
	ExitIO        = 3 // read or write failure
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

func usageError(format string, args ...any) error {
	return &ExitError{Code: ExitInvalid, Err: fmt.Errorf(format, args...)}
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &exitErr):
		return exitErr.Code
	case filter.IsUnmatched(err):
		return ExitNoSuchSel
	case export.IsIO(err):
		return ExitIO
	default:
		// malformed input, schema errors and everything else
		return ExitInvalid
	}
}
