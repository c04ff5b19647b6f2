// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/gsort/internal/backend/cpu"
	"github.com/born-ml/gsort/internal/device"
)

// Device is the software compute device.
type Device = internalcpu.Device

// Option configures a Device.
type Option = internalcpu.Option

// Compile-time check that Device implements device.Device.
var _ device.Device = (*Device)(nil)

// New creates a software device.
//
// Example:
//
//	import (
//	    "github.com/born-ml/gsort/backend/cpu"
//	    "github.com/born-ml/gsort/registry"
//	)
//
//	func main() {
//	    dev := cpu.New(cpu.WithWorkers(4))
//	    reg, err := registry.Embedded(dev)
//	}
func New(opts ...Option) *Device {
	return internalcpu.New(opts...)
}

// WithWorkers bounds the goroutines one dispatch fans out to.
func WithWorkers(n int) Option {
	return internalcpu.WithWorkers(n)
}

// WithMemoryLimit caps the bytes the device allocates.
func WithMemoryLimit(bytes uint64) Option {
	return internalcpu.WithMemoryLimit(bytes)
}
