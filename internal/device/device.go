// Package device defines the compute abstraction the sort engine and the
// elementwise dispatcher are written against: raw device buffers, compiled
// compute pipelines, and command streams.
//
// Two implementations live under internal/backend: a WebGPU device backed by
// go-webgpu and a software device that runs the same kernels on goroutines.
package device

import (
	"context"
	"fmt"
)

// MemoryMode describes how host-visible memory relates to device writes.
type MemoryMode int

const (
	// HostCoherent memory is kept consistent with the device automatically.
	HostCoherent MemoryMode = iota
	// ExplicitSync memory needs a Synchronize command before the host sees
	// device writes, and before the device sees host writes.
	ExplicitSync
)

// String returns a human-readable name for the memory mode.
func (m MemoryMode) String() string {
	switch m {
	case HostCoherent:
		return "host-coherent"
	case ExplicitSync:
		return "explicit-sync"
	default:
		return fmt.Sprintf("MemoryMode(%d)", int(m))
	}
}

// ParseMemoryMode converts a config or flag value to a MemoryMode.
// "shared" and "managed" are accepted as aliases.
func ParseMemoryMode(s string) (MemoryMode, error) {
	switch s {
	case "", "host-coherent", "coherent", "shared":
		return HostCoherent, nil
	case "explicit-sync", "explicit", "managed":
		return ExplicitSync, nil
	default:
		return HostCoherent, fmt.Errorf("device: unknown memory mode %q", s)
	}
}

// Buffer is a raw device allocation with a host-visible copy.
type Buffer interface {
	// Size returns the buffer length in bytes.
	Size() uint64

	// Mode returns the memory mode the buffer was allocated with.
	Mode() MemoryMode

	// Contents returns the host-visible bytes. For ExplicitSync buffers the
	// contents reflect the device only as of the last completed sync.
	Contents() []byte

	// DidModify records that the host wrote through Contents, so the next
	// sync uploads instead of downloading.
	DidModify()

	// Release frees the allocation. The buffer must not be used afterwards.
	Release()
}

// Pipeline is a compiled compute entry point.
type Pipeline interface {
	// Name returns the entry point name.
	Name() string

	// ThreadGroupSize returns the number of threads in one thread group,
	// as declared by the kernel's workgroup size.
	ThreadGroupSize() uint32
}

// Binding attaches a buffer range to a kernel binding slot.
type Binding struct {
	Slot   uint32
	Buffer Buffer
	Offset uint64
	// Size is the bound length in bytes. Zero binds the rest of the buffer.
	Size uint64
}

// Len returns the effective byte length of the binding.
func (b Binding) Len() uint64 {
	if b.Size != 0 {
		return b.Size
	}
	if b.Buffer == nil || b.Offset > b.Buffer.Size() {
		return 0
	}
	return b.Buffer.Size() - b.Offset
}

// Validate checks the binding against its buffer.
func (b Binding) Validate() error {
	if b.Buffer == nil {
		return fmt.Errorf("device: binding %d: nil buffer", b.Slot)
	}
	if b.Offset+b.Len() > b.Buffer.Size() {
		return fmt.Errorf("device: binding %d: range [%d, %d) exceeds buffer of %d bytes",
			b.Slot, b.Offset, b.Offset+b.Len(), b.Buffer.Size())
	}
	return nil
}

// Stream records commands and submits them to the device queue.
// Commands run in record order; a stream is committed once.
type Stream interface {
	// ID identifies the stream in logs.
	ID() string

	// Dispatch records a kernel launch of groups thread groups.
	// A zero group count records nothing.
	Dispatch(p Pipeline, groups uint32, bindings ...Binding) error

	// Synchronize records a host/device synchronisation of an ExplicitSync
	// buffer. It is a no-op for HostCoherent buffers.
	Synchronize(b Buffer)

	// Commit submits the recorded commands.
	Commit() error

	// Wait blocks until the committed commands complete. A cancelled context
	// abandons the wait; the device still runs the commands to completion.
	Wait(ctx context.Context) error
}

// CompileOptions control kernel compilation.
type CompileOptions struct {
	// Label names the compiled module in diagnostics.
	Label string
	// Prelude is source text prepended before compilation.
	Prelude string
}

// Apply returns source with the prelude prepended.
func (o CompileOptions) Apply(source string) string {
	if o.Prelude == "" {
		return source
	}
	return o.Prelude + "\n" + source
}

// Device is a compute device able to allocate buffers, compile kernels and
// execute command streams.
type Device interface {
	// Name returns a human-readable device name.
	Name() string

	// NewBuffer allocates a zero-filled buffer of size bytes.
	NewBuffer(size uint64, mode MemoryMode) (Buffer, error)

	// NewBufferWithBytes allocates a buffer initialised with a copy of data.
	NewBufferWithBytes(data []byte, mode MemoryMode) (Buffer, error)

	// CompileLibrary compiles kernel source and returns one pipeline per
	// compute entry point it declares.
	CompileLibrary(source string, opts CompileOptions) ([]Pipeline, error)

	// NewStream creates an empty command stream.
	NewStream() Stream

	// Release frees all device resources.
	Release()
}
