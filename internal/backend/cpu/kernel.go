package cpu

import (
	"fmt"
	"unsafe"

	"github.com/born-ml/gsort/internal/device"
)

// Grid describes the shape of one dispatch.
type Grid struct {
	Groups    uint32 // Number of thread groups dispatched.
	GroupSize uint32 // Threads per group, from the entry point's workgroup size.
}

// Kernel executes one thread group of a dispatch. Invocations for different
// groups may run concurrently and in any order.
type Kernel func(grid Grid, group uint32, args *Args) error

// Args gives a kernel typed access to the device-side bytes of its bindings.
// Accessors panic on an unbound slot; the dispatch reports the panic as an
// execution error.
type Args struct {
	slots map[uint32][]byte
}

func newArgs(bindings []device.Binding) (*Args, error) {
	a := &Args{slots: make(map[uint32][]byte, len(bindings))}
	for _, b := range bindings {
		if err := b.Validate(); err != nil {
			return nil, err
		}
		buf, ok := b.Buffer.(*buffer)
		if !ok {
			return nil, fmt.Errorf("%w: binding %d", device.ErrForeignResource, b.Slot)
		}
		if b.Offset%4 != 0 {
			return nil, fmt.Errorf("device: binding %d: offset %d is not 4-byte aligned", b.Slot, b.Offset)
		}
		if _, dup := a.slots[b.Slot]; dup {
			return nil, fmt.Errorf("device: binding %d bound twice", b.Slot)
		}
		a.slots[b.Slot] = buf.storage[b.Offset : b.Offset+b.Len()]
	}
	return a, nil
}

// Has reports whether slot is bound.
func (a *Args) Has(slot uint32) bool {
	_, ok := a.slots[slot]
	return ok
}

// Bytes returns the raw bytes bound at slot.
func (a *Args) Bytes(slot uint32) []byte {
	b, ok := a.slots[slot]
	if !ok {
		panic(fmt.Sprintf("binding %d is not bound", slot))
	}
	return b
}

// Uint32 returns the binding at slot as a []uint32.
func (a *Args) Uint32(slot uint32) []uint32 {
	b := a.Bytes(slot)
	if len(b) < 4 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy view of device bytes, offset checked 4-byte aligned
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// Float32 returns the binding at slot as a []float32.
func (a *Args) Float32(slot uint32) []float32 {
	b := a.Bytes(slot)
	if len(b) < 4 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy view of device bytes, offset checked 4-byte aligned
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

func builtinKernels() map[string]Kernel {
	return map[string]Kernel{
		"sum":                   sumKernel,
		"sort_upsweep_u32":      sortUpsweep,
		"sort_scan_u32":         sortScan,
		"sort_downsweep_u32":    sortDownsweep,
		"sort_downsweep_kv_u32": sortDownsweepPairs,
	}
}
