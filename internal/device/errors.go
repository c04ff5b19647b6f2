package device

import "errors"

// Sentinel errors returned by device implementations.
var (
	// ErrOutOfMemory is returned when the device cannot satisfy an allocation.
	ErrOutOfMemory = errors.New("device: out of memory")

	// ErrForeignResource is returned when a buffer or pipeline created by one
	// device is handed to another.
	ErrForeignResource = errors.New("device: resource belongs to another device")

	// ErrStreamState is returned for commands issued to a stream in the wrong
	// state (recording after commit, waiting before commit, committing twice).
	ErrStreamState = errors.New("device: invalid stream state")

	// ErrExecution is returned by Wait when a submitted command failed on the
	// device. Such failures indicate a configuration or resource defect and
	// are never retried.
	ErrExecution = errors.New("device: command execution failed")

	// ErrUnavailable is returned when a device backend cannot be opened on
	// this system.
	ErrUnavailable = errors.New("device: backend unavailable")
)
