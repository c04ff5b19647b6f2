// Package backend opens a compute device by name.
package backend

import (
	"errors"
	"fmt"

	"github.com/born-ml/gsort/internal/backend/cpu"
	"github.com/born-ml/gsort/internal/backend/webgpu"
	"github.com/born-ml/gsort/internal/device"
	"github.com/born-ml/gsort/internal/logger"
)

// Backend names accepted by Open.
const (
	Auto   = "auto"
	CPU    = "cpu"
	WebGPU = "webgpu"
)

// Options configure the device Open creates.
type Options struct {
	Logger logger.Logger

	// CPUWorkers bounds the software device's goroutines; zero means one
	// per CPU.
	CPUWorkers int

	// CPUMemoryLimit caps software device allocations; zero is unlimited.
	CPUMemoryLimit uint64
}

// Open returns the device named by name. "auto" (or "") tries WebGPU and
// falls back to the software device when no adapter is available.
func Open(name string, opts Options) (device.Device, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	switch name {
	case "", Auto:
		d, err := webgpu.New(webgpu.WithLogger(log))
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, device.ErrUnavailable) {
			return nil, err
		}
		log.Info("webgpu unavailable, using software device", "reason", err)
		return openCPU(opts, log), nil
	case CPU:
		return openCPU(opts, log), nil
	case WebGPU:
		d, err := webgpu.New(webgpu.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("backend: %w", err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("backend: unknown backend %q", name)
	}
}

func openCPU(opts Options, log logger.Logger) device.Device {
	cpuOpts := []cpu.Option{cpu.WithWorkers(opts.CPUWorkers), cpu.WithLogger(log)}
	if opts.CPUMemoryLimit > 0 {
		cpuOpts = append(cpuOpts, cpu.WithMemoryLimit(opts.CPUMemoryLimit))
	}
	return cpu.New(cpuOpts...)
}
