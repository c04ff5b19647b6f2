package cpu

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	xcpu "golang.org/x/sys/cpu"

	"github.com/born-ml/gsort/internal/device"
	"github.com/born-ml/gsort/internal/logger"
	"github.com/born-ml/gsort/internal/metrics"
	"github.com/born-ml/gsort/internal/parallel"
)

// Device is the software compute device.
type Device struct {
	name    string
	kernels map[string]Kernel
	par     parallel.Config
	log     logger.Logger

	// Memory accounting
	mu        sync.Mutex
	limit     uint64
	allocated uint64
	peak      uint64
	buffers   int64
}

// Option configures a Device.
type Option func(*Device)

// WithWorkers bounds the goroutines a dispatch fans out to.
// Zero or negative means one per CPU; one disables concurrency.
func WithWorkers(n int) Option {
	return func(d *Device) {
		d.par = parallel.GroupConfig(n)
	}
}

// WithMemoryLimit caps the total bytes the device allocates.
// Allocations beyond the cap fail with device.ErrOutOfMemory.
func WithMemoryLimit(bytes uint64) Option {
	return func(d *Device) {
		d.limit = bytes
	}
}

// WithLogger sets the device logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Device) {
		d.log = l
	}
}

// WithKernel adds or replaces the software implementation of an entry point.
func WithKernel(name string, k Kernel) Option {
	return func(d *Device) {
		d.kernels[name] = k
	}
}

// New creates a software device with the built-in kernels.
func New(opts ...Option) *Device {
	d := &Device{
		name:    fmt.Sprintf("CPU (%s%s)", runtime.GOARCH, featureSuffix()),
		kernels: builtinKernels(),
		par:     parallel.GroupConfig(0),
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With("device", d.name)
	return d
}

func featureSuffix() string {
	var feats []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if xcpu.X86.HasAVX2 {
			feats = append(feats, "avx2")
		}
		if xcpu.X86.HasAVX512F {
			feats = append(feats, "avx512f")
		}
	case "arm64":
		if xcpu.ARM64.HasASIMD {
			feats = append(feats, "asimd")
		}
		if xcpu.ARM64.HasSVE {
			feats = append(feats, "sve")
		}
	}
	if len(feats) == 0 {
		return ""
	}
	return " " + strings.Join(feats, ",")
}

// Name returns the device name.
func (d *Device) Name() string {
	return d.name
}

// NewBuffer allocates a zero-filled buffer.
func (d *Device) NewBuffer(size uint64, mode device.MemoryMode) (device.Buffer, error) {
	return d.newBuffer(size, mode)
}

// NewBufferWithBytes allocates a buffer holding a copy of data on both the
// host and device side.
func (d *Device) NewBufferWithBytes(data []byte, mode device.MemoryMode) (device.Buffer, error) {
	b, err := d.newBuffer(uint64(len(data)), mode)
	if err != nil {
		return nil, err
	}
	copy(b.storage, data)
	if mode == device.ExplicitSync {
		copy(b.host, data)
	}
	return b, nil
}

// CompileLibrary binds every compute entry point in source to its software
// kernel. Entry points without a software implementation fail compilation.
func (d *Device) CompileLibrary(source string, opts device.CompileOptions) ([]device.Pipeline, error) {
	src := opts.Apply(source)
	label := opts.Label
	if label == "" {
		label = "<source>"
	}

	if err := checkBalanced(device.StripComments(src)); err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	entries, err := device.EntryPoints(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}

	pipelines := make([]device.Pipeline, 0, len(entries))
	for _, e := range entries {
		k, ok := d.kernels[e.Name]
		if !ok {
			return nil, fmt.Errorf("%s: entry point %q has no software implementation", label, e.Name)
		}
		pipelines = append(pipelines, &pipeline{
			dev:     d,
			name:    e.Name,
			threads: e.Threads(),
			kernel:  k,
		})
	}
	d.log.Debug("library compiled", "label", label, "entry_points", len(pipelines))
	return pipelines, nil
}

// checkBalanced rejects sources with unbalanced brackets, the one class of
// syntax error the software device can detect without a WGSL front end.
func checkBalanced(src string) error {
	var stack []rune
	line := 1
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	for _, r := range src {
		switch r {
		case '\n':
			line++
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return fmt.Errorf("line %d: unexpected %q", line, r)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Errorf("unexpected end of source: unclosed %q", stack[len(stack)-1])
	}
	return nil
}

// NewStream creates a command stream.
func (d *Device) NewStream() device.Stream {
	return &stream{
		dev: d,
		id:  uuid.NewString(),
	}
}

// Release is a no-op for the software device; buffers are garbage collected.
func (d *Device) Release() {}

// MemoryStats reports current, peak and live-buffer allocation counts.
func (d *Device) MemoryStats() (allocated, peak uint64, buffers int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated, d.peak, d.buffers
}

func (d *Device) reserve(size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.limit > 0 && d.allocated+size > d.limit {
		return fmt.Errorf("%w: requested %d bytes with %d of %d in use",
			device.ErrOutOfMemory, size, d.allocated, d.limit)
	}
	d.allocated += size
	d.buffers++
	if d.allocated > d.peak {
		d.peak = d.allocated
	}
	metrics.Allocated(d.name, int64(size))
	return nil
}

func (d *Device) free(size uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.allocated >= size {
		d.allocated -= size
	}
	d.buffers--
	metrics.Allocated(d.name, -int64(size))
}

type pipeline struct {
	dev     *Device
	name    string
	threads uint32
	kernel  Kernel
}

func (p *pipeline) Name() string            { return p.name }
func (p *pipeline) ThreadGroupSize() uint32 { return p.threads }
