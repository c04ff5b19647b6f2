package cpu

import (
	"sync/atomic"
	"unsafe"

	"github.com/born-ml/gsort/internal/device"
)

// buffer is a software device allocation. HostCoherent buffers share one
// backing array between host and kernels; ExplicitSync buffers keep two.
type buffer struct {
	dev  *Device
	size uint64
	mode device.MemoryMode

	storage []byte // what kernels read and write
	host    []byte // what Contents exposes

	hostDirty atomic.Bool
	released  atomic.Bool
}

func (d *Device) newBuffer(size uint64, mode device.MemoryMode) (*buffer, error) {
	if err := d.reserve(size); err != nil {
		return nil, err
	}
	b := &buffer{
		dev:     d,
		size:    size,
		mode:    mode,
		storage: alignedBytes(size),
	}
	if mode == device.ExplicitSync {
		b.host = alignedBytes(size)
	} else {
		b.host = b.storage
	}
	return b, nil
}

// alignedBytes returns size zeroed bytes backed by 8-byte aligned memory so
// views of any element type up to 8 bytes are correctly aligned.
func alignedBytes(size uint64) []byte {
	if size == 0 {
		return []byte{}
	}
	words := make([]uint64, (size+7)/8)
	//nolint:gosec // unsafe.Slice for zero-copy reinterpretation, length bounded by allocation
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size)
}

func (b *buffer) Size() uint64            { return b.size }
func (b *buffer) Mode() device.MemoryMode { return b.mode }
func (b *buffer) Contents() []byte        { return b.host }

// DidModify marks the host copy as newer than the device copy.
func (b *buffer) DidModify() {
	if b.mode == device.ExplicitSync {
		b.hostDirty.Store(true)
	}
}

// Release returns the allocation to the device accounting.
func (b *buffer) Release() {
	if b.released.CompareAndSwap(false, true) {
		b.dev.free(b.size)
	}
}

// synchronize uploads pending host writes, or else downloads device writes.
func (b *buffer) synchronize() {
	if b.mode != device.ExplicitSync {
		return
	}
	if b.hostDirty.CompareAndSwap(true, false) {
		copy(b.storage, b.host)
		return
	}
	copy(b.host, b.storage)
}
