// Package webgpu implements device.Device on WebGPU through go-webgpu
// (github.com/go-webgpu/webgpu), a zero-CGO binding to wgpu-native.
//
// The backend is built on Windows only; elsewhere New returns
// device.ErrUnavailable and callers fall back to the software device.
package webgpu

import "github.com/born-ml/gsort/internal/logger"

type options struct {
	log            logger.Logger
	maxBufferBytes uint64
}

// Option configures a Device.
type Option func(*options)

// WithLogger sets the device logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithMaxBufferBytes caps the size of a single allocation. Larger requests
// fail with device.ErrOutOfMemory instead of a device validation error.
func WithMaxBufferBytes(n uint64) Option {
	return func(o *options) {
		o.maxBufferBytes = n
	}
}

func buildOptions(opts []Option) options {
	o := options{log: logger.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
