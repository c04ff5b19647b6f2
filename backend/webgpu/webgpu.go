// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU compute device.
//
// WebGPU support is built on Windows through go-webgpu; on other platforms
// New returns an error wrapping device.ErrUnavailable.
//
// Example:
//
//	var dev device.Device
//	if webgpu.IsAvailable() {
//	    gpu, _ := webgpu.New()
//	    dev = gpu
//	} else {
//	    dev = cpu.New()
//	}
package webgpu

import (
	internalwebgpu "github.com/born-ml/gsort/internal/backend/webgpu"
	"github.com/born-ml/gsort/internal/device"
)

// Device is a WebGPU compute device.
type Device = internalwebgpu.Device

// Option configures a Device.
type Option = internalwebgpu.Option

// Compile-time check that Device implements device.Device.
var _ device.Device = (*Device)(nil)

// New opens the default WebGPU adapter.
func New(opts ...Option) (*Device, error) {
	return internalwebgpu.New(opts...)
}

// IsAvailable checks if WebGPU is available on the current system.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
