//go:build windows

package webgpu

import (
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

// sizeClass groups staging buffers for reuse.
type sizeClass int

const (
	smallClass sizeClass = iota
	mediumClass
	largeClass
)

const (
	smallThreshold  = 4 * 1024    // 4KB
	mediumThreshold = 1024 * 1024 // 1MB
	maxPooled       = 32          // per class
)

type pooledBuffer struct {
	buffer *wgpu.Buffer
	size   uint64
}

// stagingPool recycles MapRead|CopyDst buffers used to read device buffers
// back to the host. A download acquires one, copies into it, maps it and
// returns it to the pool after unmapping.
type stagingPool struct {
	device *wgpu.Device

	mu      sync.Mutex
	classes [3][]*pooledBuffer

	allocated uint64
	hits      uint64
	misses    uint64
}

func newStagingPool(device *wgpu.Device) *stagingPool {
	return &stagingPool{device: device}
}

// acquire returns an unmapped readback buffer of at least size bytes.
func (p *stagingPool) acquire(size uint64) (*wgpu.Buffer, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	class := classify(size)
	for i, pb := range p.classes[class] {
		if pb.size >= size {
			p.classes[class] = append(p.classes[class][:i], p.classes[class][i+1:]...)
			p.hits++
			return pb.buffer, pb.size
		}
	}

	p.misses++
	p.allocated++
	buf := p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	return buf, size
}

// release returns buf to the pool, or frees it when its class is full.
func (p *stagingPool) release(buf *wgpu.Buffer, size uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	class := classify(size)
	if len(p.classes[class]) >= maxPooled {
		buf.Release()
		return
	}
	p.classes[class] = append(p.classes[class], &pooledBuffer{buffer: buf, size: size})
}

// clear frees every pooled buffer.
func (p *stagingPool) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for c := range p.classes {
		for _, pb := range p.classes[c] {
			pb.buffer.Release()
		}
		p.classes[c] = nil
	}
}

// PoolStats reports staging buffer reuse.
type PoolStats struct {
	Allocated uint64
	Hits      uint64
	Misses    uint64
	Pooled    int
}

func (p *stagingPool) stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	pooled := 0
	for _, c := range p.classes {
		pooled += len(c)
	}
	return PoolStats{Allocated: p.allocated, Hits: p.hits, Misses: p.misses, Pooled: pooled}
}

func classify(size uint64) sizeClass {
	switch {
	case size < smallThreshold:
		return smallClass
	case size < mediumThreshold:
		return mediumClass
	default:
		return largeClass
	}
}
