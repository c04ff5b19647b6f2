//go:build windows

package webgpu

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/gsort/internal/device"
)

const bufferUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageUniform |
	wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// buffer is a device allocation shadowed by a host copy. HostCoherent
// buffers are uploaded before and downloaded after every stream that binds
// them; ExplicitSync buffers move only on Synchronize.
type buffer struct {
	dev   *Device
	size  uint64
	alloc uint64 // device size, rounded up to a 4-byte multiple
	mode  device.MemoryMode
	gpu   *wgpu.Buffer
	host  []byte

	hostDirty atomic.Bool
	released  atomic.Bool
}

func (d *Device) newBuffer(host []byte, mode device.MemoryMode) (*buffer, error) {
	size := uint64(len(host))
	alloc := max((size+3)&^3, 4)
	if limit := d.opts.maxBufferBytes; limit > 0 && alloc > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte buffer limit",
			device.ErrOutOfMemory, alloc, limit)
	}

	gpu := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            bufferUsage,
		Size:             alloc,
		MappedAtCreation: wgpu.True,
	})
	if gpu == nil {
		return nil, fmt.Errorf("%w: %d bytes", device.ErrOutOfMemory, alloc)
	}
	mapped := gpu.GetMappedRange(0, alloc)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mapped), alloc), host)
	gpu.Unmap()

	d.track(int64(alloc))
	return &buffer{dev: d, size: size, alloc: alloc, mode: mode, gpu: gpu, host: host}, nil
}

func (b *buffer) Size() uint64            { return b.size }
func (b *buffer) Mode() device.MemoryMode { return b.mode }
func (b *buffer) Contents() []byte        { return b.host }

func (b *buffer) DidModify() {
	b.hostDirty.Store(true)
}

func (b *buffer) Release() {
	if b.released.CompareAndSwap(false, true) {
		b.gpu.Release()
		b.dev.track(-int64(b.alloc))
	}
}

// upload copies the host shadow to the device through a mapped staging
// buffer, recorded on enc.
func (b *buffer) upload(enc *wgpu.CommandEncoder) *wgpu.Buffer {
	b.hostDirty.Store(false)
	staging := b.dev.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageCopySrc,
		Size:             b.alloc,
		MappedAtCreation: wgpu.True,
	})
	mapped := staging.GetMappedRange(0, b.alloc)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mapped), b.alloc), b.host)
	staging.Unmap()
	enc.CopyBufferToBuffer(staging, 0, b.gpu, 0, b.alloc)
	return staging
}

// download reads the device copy into the host shadow. All commands that
// write b must already be submitted.
func (b *buffer) download() error {
	d := b.dev
	staging, capacity := d.staging.acquire(b.alloc)
	defer d.staging.release(staging, capacity)

	enc := d.device.CreateCommandEncoder(nil)
	enc.CopyBufferToBuffer(b.gpu, 0, staging, 0, b.alloc)
	d.queue.Submit(enc.Finish(nil))

	if err := staging.MapAsync(d.device, wgpu.MapModeRead, 0, b.alloc); err != nil {
		return fmt.Errorf("map staging buffer: %w", err)
	}
	mapped := staging.GetMappedRange(0, b.alloc)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(b.host, unsafe.Slice((*byte)(mapped), b.size))
	staging.Unmap()
	return nil
}
