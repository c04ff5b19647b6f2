//go:build windows

package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/google/uuid"

	"github.com/born-ml/gsort/internal/device"
	"github.com/born-ml/gsort/internal/logger"
	"github.com/born-ml/gsort/internal/metrics"
)

// Device is a WebGPU compute device.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	name    string
	opts    options
	log     logger.Logger
	staging *stagingPool

	mu        sync.Mutex
	shaders   []*wgpu.ShaderModule
	pipelines []*pipeline
	allocated uint64
	peak      uint64
	buffers   int64
}

// New opens the default WebGPU adapter.
// Returns device.ErrUnavailable if wgpu-native cannot be loaded or no
// adapter is present.
func New(opts ...Option) (d *Device, err error) {
	// go-webgpu panics when the native library is missing.
	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = fmt.Errorf("%w: native library not available: %v", device.ErrUnavailable, r)
		}
	}()

	o := buildOptions(opts)

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %v", device.ErrUnavailable, err)
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{PowerPreference: wgpu.PowerPreferenceHighPerformance})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: request adapter: %v", device.ErrUnavailable, err)
	}
	info := adapter.GetInfo()

	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: request device: %v", device.ErrUnavailable, err)
	}
	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: no queue", device.ErrUnavailable)
	}

	d = &Device{
		instance: instance,
		adapter:  adapter,
		device:   dev,
		queue:    queue,
		name:     fmt.Sprintf("WebGPU (%s %s)", info.Name, info.VendorName),
		opts:     o,
		staging:  newStagingPool(dev),
	}
	d.log = o.log.With("device", d.name)
	d.log.Info("webgpu device opened")
	return d, nil
}

// IsAvailable reports whether a WebGPU adapter can be opened.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return false
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// Name returns the adapter name.
func (d *Device) Name() string { return d.name }

// NewBuffer allocates a zero-filled buffer.
func (d *Device) NewBuffer(size uint64, mode device.MemoryMode) (device.Buffer, error) {
	return d.newBuffer(make([]byte, size), mode)
}

// NewBufferWithBytes allocates a buffer initialised with a copy of data.
func (d *Device) NewBufferWithBytes(data []byte, mode device.MemoryMode) (device.Buffer, error) {
	host := make([]byte, len(data))
	copy(host, data)
	return d.newBuffer(host, mode)
}

// CompileLibrary compiles source as one shader module and creates a
// compute pipeline for every entry point it declares.
func (d *Device) CompileLibrary(source string, opts device.CompileOptions) (pipelines []device.Pipeline, err error) {
	src := opts.Apply(source)
	label := opts.Label
	if label == "" {
		label = "<source>"
	}

	entries, err := device.EntryPoints(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}

	// Shader validation failures surface as panics from wgpu-native.
	defer func() {
		if r := recover(); r != nil {
			pipelines = nil
			err = fmt.Errorf("%s: %v", label, r)
		}
	}()

	shader := d.device.CreateShaderModuleWGSL(src)
	if shader == nil {
		return nil, fmt.Errorf("%s: shader module creation failed", label)
	}

	created := make([]*pipeline, 0, len(entries))
	for _, e := range entries {
		cp := d.device.CreateComputePipelineSimple(nil, shader, e.Name)
		if cp == nil {
			return nil, fmt.Errorf("%s: entry point %q: pipeline creation failed", label, e.Name)
		}
		created = append(created, &pipeline{
			dev:     d,
			name:    e.Name,
			threads: e.Threads(),
			compute: cp,
			layout:  cp.GetBindGroupLayout(0),
		})
	}

	d.mu.Lock()
	d.shaders = append(d.shaders, shader)
	d.pipelines = append(d.pipelines, created...)
	d.mu.Unlock()

	pipelines = make([]device.Pipeline, len(created))
	for i, p := range created {
		pipelines[i] = p
	}
	d.log.Debug("library compiled", "label", label, "entry_points", len(pipelines))
	return pipelines, nil
}

// NewStream creates a command stream.
func (d *Device) NewStream() device.Stream {
	return &stream{dev: d, id: uuid.NewString()}
}

// Stats returns allocation and staging pool statistics.
func (d *Device) Stats() (allocated, peak uint64, buffers int64, pool PoolStats) {
	d.mu.Lock()
	allocated, peak, buffers = d.allocated, d.peak, d.buffers
	d.mu.Unlock()
	return allocated, peak, buffers, d.staging.stats()
}

// Release frees the pipelines, shader modules, staging buffers and the
// device itself. Buffers still held by callers must be released first.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.staging.clear()
	for _, p := range d.pipelines {
		p.compute.Release()
	}
	d.pipelines = nil
	for _, s := range d.shaders {
		s.Release()
	}
	d.shaders = nil

	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

func (d *Device) track(delta int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if delta > 0 {
		d.allocated += uint64(delta)
		d.buffers++
		d.peak = max(d.peak, d.allocated)
	} else {
		d.allocated -= uint64(-delta)
		d.buffers--
	}
	metrics.Allocated(d.name, delta)
}

type pipeline struct {
	dev     *Device
	name    string
	threads uint32
	compute *wgpu.ComputePipeline
	layout  *wgpu.BindGroupLayout
}

func (p *pipeline) Name() string            { return p.name }
func (p *pipeline) ThreadGroupSize() uint32 { return p.threads }
