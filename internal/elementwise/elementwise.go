// Package elementwise dispatches binary elementwise kernels such as sum.
package elementwise

import (
	"context"
	"errors"
	"fmt"

	"github.com/born-ml/gsort/internal/array"
	"github.com/born-ml/gsort/internal/device"
	"github.com/born-ml/gsort/internal/registry"
)

// ErrLengthMismatch is returned when operand and result lengths differ.
var ErrLengthMismatch = errors.New("elementwise: length mismatch")

// Kernel is a compiled binary elementwise kernel: out[i] = f(a[i], b[i]).
// The kernel binds a, b and out to slots 0, 1 and 2 and bounds-checks
// against the length of out.
type Kernel struct {
	pipeline device.Pipeline
}

// New resolves function in library as an elementwise kernel.
func New(reg *registry.Registry, library, function string) (*Kernel, error) {
	p, err := reg.Function(library, function)
	if err != nil {
		return nil, fmt.Errorf("elementwise: %w", err)
	}
	return &Kernel{pipeline: p}, nil
}

// NewSum resolves the sum kernel.
func NewSum(reg *registry.Registry) (*Kernel, error) {
	return New(reg, "sum", "sum")
}

// Name returns the kernel entry point name.
func (k *Kernel) Name() string { return k.pipeline.Name() }

// Groups returns the thread-group count for n elements.
func (k *Kernel) Groups(n int) uint32 {
	size := int(k.pipeline.ThreadGroupSize())
	return uint32((n + size - 1) / size)
}

// Encode records one dispatch computing out from a and b. Zero-length
// operands record nothing.
func (k *Kernel) Encode(stream device.Stream, a, b, out *array.Array[float32]) error {
	n := out.Len()
	if a.Len() != n || b.Len() != n {
		return fmt.Errorf("%w: a=%d b=%d out=%d", ErrLengthMismatch, a.Len(), b.Len(), n)
	}
	if n == 0 {
		return nil
	}
	return stream.Dispatch(k.pipeline, k.Groups(n),
		a.Binding(0),
		b.Binding(1),
		out.Binding(2),
	)
}

// Run computes out from a and b on a new stream of dev and waits for it.
func (k *Kernel) Run(ctx context.Context, dev device.Device, a, b, out *array.Array[float32]) error {
	if out.Len() == 0 && a.Len() == 0 && b.Len() == 0 {
		return nil
	}
	stream := dev.NewStream()
	a.Sync(stream)
	b.Sync(stream)
	out.Sync(stream)
	if err := k.Encode(stream, a, b, out); err != nil {
		return err
	}
	out.Sync(stream)
	if err := stream.Commit(); err != nil {
		return fmt.Errorf("elementwise: commit: %w", err)
	}
	if err := stream.Wait(ctx); err != nil {
		return fmt.Errorf("elementwise: %s: %w", k.Name(), err)
	}
	return nil
}
