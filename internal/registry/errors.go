package registry

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a library or function has not been registered.
var ErrNotFound = errors.New("registry: not found")

// CompileError reports a kernel library that could not be read or compiled.
type CompileError struct {
	Library    string
	Path       string
	Diagnostic string
	Err        error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("registry: library %q (%s): %s", e.Library, e.Path, e.Diagnostic)
}

// Unwrap returns the underlying I/O or compiler error.
func (e *CompileError) Unwrap() error { return e.Err }
