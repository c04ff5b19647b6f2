package radix

import "errors"

var (
	// ErrShapeMismatch is returned when input and output lengths differ.
	ErrShapeMismatch = errors.New("radix: shape mismatch")

	// ErrCapacityExceeded is returned when more keys are passed than the
	// scratch space was allocated for.
	ErrCapacityExceeded = errors.New("radix: capacity exceeded")

	// ErrForeignScratch is returned when scratch space allocated by one
	// engine is passed to another.
	ErrForeignScratch = errors.New("radix: scratch belongs to another engine")
)
