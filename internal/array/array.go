// Package array provides typed views over raw device buffers.
package array

import (
	"fmt"
	"unsafe"

	"github.com/born-ml/gsort/internal/device"
)

// Element is the constraint for array element types.
//
// Arrays move elements between host and device as raw bytes, so T must be a
// fixed-size value type without pointers whose host layout matches the
// kernel's layout exactly. The type set admits sized integers, floats and
// 16-bucket histogram rows; no padding or endianness translation is done.
type Element interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64 |
		~[16]uint32
}

// Array is a device buffer holding elements of type T. Its byte length is
// always a whole number of elements.
type Array[T Element] struct {
	buf device.Buffer
}

func sizeOf[T Element]() uint64 {
	var zero T
	return uint64(unsafe.Sizeof(zero))
}

func asBytes[T Element](data []T) []byte {
	if len(data) == 0 {
		return []byte{}
	}
	//nolint:gosec // unsafe.Slice for zero-copy reinterpretation, length from the typed slice
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), uint64(len(data))*sizeOf[T]())
}

// FromData allocates an array on dev holding a copy of data.
func FromData[T Element](dev device.Device, data []T, mode device.MemoryMode) (*Array[T], error) {
	buf, err := dev.NewBufferWithBytes(asBytes(data), mode)
	if err != nil {
		return nil, fmt.Errorf("array: allocate %d elements: %w", len(data), err)
	}
	return &Array[T]{buf: buf}, nil
}

// Empty allocates a zero-filled array of n elements on dev.
func Empty[T Element](dev device.Device, n int, mode device.MemoryMode) (*Array[T], error) {
	if n < 0 {
		return nil, fmt.Errorf("array: negative length %d", n)
	}
	buf, err := dev.NewBuffer(uint64(n)*sizeOf[T](), mode)
	if err != nil {
		return nil, fmt.Errorf("array: allocate %d elements: %w", n, err)
	}
	return &Array[T]{buf: buf}, nil
}

// Wrap returns a typed view over an existing buffer. The buffer's byte
// length must be a multiple of the element size.
func Wrap[T Element](buf device.Buffer) (*Array[T], error) {
	if size := sizeOf[T](); buf.Size()%size != 0 {
		return nil, fmt.Errorf("array: buffer of %d bytes is not a multiple of element size %d", buf.Size(), size)
	}
	return &Array[T]{buf: buf}, nil
}

// Len returns the number of elements, derived from the byte length.
func (a *Array[T]) Len() int {
	size := sizeOf[T]()
	if a.buf.Size()%size != 0 {
		panic(fmt.Sprintf("array: buffer of %d bytes is not a multiple of element size %d", a.buf.Size(), size))
	}
	return int(a.buf.Size() / size)
}

// View returns the host-visible elements. For ExplicitSync arrays the view
// reflects device writes only after a Sync has completed; nothing detects a
// stale read.
func (a *Array[T]) View() []T {
	n := a.Len()
	if n == 0 {
		return []T{}
	}
	b := a.buf.Contents()
	//nolint:gosec // unsafe.Slice for zero-copy view, length bounded by buffer size
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}

// MutableView returns the host-visible elements for writing and marks the
// host copy modified, so the next Sync uploads it.
func (a *Array[T]) MutableView() []T {
	a.buf.DidModify()
	return a.View()
}

// Sync records a host/device synchronisation on s. No-op for HostCoherent.
func (a *Array[T]) Sync(s device.Stream) {
	s.Synchronize(a.buf)
}

// Binding binds the whole array to slot.
func (a *Array[T]) Binding(slot uint32) device.Binding {
	return device.Binding{Slot: slot, Buffer: a.buf, Size: a.buf.Size()}
}

// BindingRange binds count elements starting at element first to slot.
func (a *Array[T]) BindingRange(slot uint32, first, count int) device.Binding {
	size := sizeOf[T]()
	return device.Binding{
		Slot:   slot,
		Buffer: a.buf,
		Offset: uint64(first) * size,
		Size:   uint64(count) * size,
	}
}

// Buffer returns the underlying device buffer.
func (a *Array[T]) Buffer() device.Buffer { return a.buf }

// Mode returns the memory mode.
func (a *Array[T]) Mode() device.MemoryMode { return a.buf.Mode() }

// Release frees the device allocation.
func (a *Array[T]) Release() { a.buf.Release() }
