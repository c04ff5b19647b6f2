//go:build !windows

package webgpu

import (
	"context"

	"github.com/born-ml/gsort/internal/device"
)

// Device is a placeholder on platforms without the WebGPU backend. It is
// never returned by New.
type Device struct{}

// New reports device.ErrUnavailable on this platform.
func New(opts ...Option) (*Device, error) {
	_ = buildOptions(opts)
	return nil, device.ErrUnavailable
}

// IsAvailable reports whether a WebGPU adapter can be opened.
func IsAvailable() bool { return false }

func (*Device) Name() string { return "WebGPU (unavailable)" }

func (*Device) NewBuffer(uint64, device.MemoryMode) (device.Buffer, error) {
	return nil, device.ErrUnavailable
}

func (*Device) NewBufferWithBytes([]byte, device.MemoryMode) (device.Buffer, error) {
	return nil, device.ErrUnavailable
}

func (*Device) CompileLibrary(string, device.CompileOptions) ([]device.Pipeline, error) {
	return nil, device.ErrUnavailable
}

func (*Device) NewStream() device.Stream { return unavailableStream{} }

func (*Device) Release() {}

type unavailableStream struct{}

func (unavailableStream) ID() string { return "" }
func (unavailableStream) Dispatch(device.Pipeline, uint32, ...device.Binding) error {
	return device.ErrUnavailable
}
func (unavailableStream) Synchronize(device.Buffer)  {}
func (unavailableStream) Commit() error              { return device.ErrUnavailable }
func (unavailableStream) Wait(context.Context) error { return device.ErrUnavailable }
