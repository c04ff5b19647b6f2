// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package backend selects a compute device and re-exports the device
// abstraction the sort engine is written against.
package backend

import (
	internalbackend "github.com/born-ml/gsort/internal/backend"
	"github.com/born-ml/gsort/internal/device"
)

// Device is a compute device able to allocate buffers, compile kernels and
// execute command streams.
type Device = device.Device

// Stream records commands and submits them to the device queue.
type Stream = device.Stream

// MemoryMode describes how host-visible memory relates to device writes.
type MemoryMode = device.MemoryMode

// Memory modes.
const (
	HostCoherent = device.HostCoherent
	ExplicitSync = device.ExplicitSync
)

// Options configure the device Open creates.
type Options = internalbackend.Options

// Device errors.
var (
	ErrOutOfMemory     = device.ErrOutOfMemory
	ErrExecution       = device.ErrExecution
	ErrUnavailable     = device.ErrUnavailable
	ErrStreamState     = device.ErrStreamState
	ErrForeignResource = device.ErrForeignResource
)

// Open returns the device named by name: "auto", "cpu" or "webgpu".
// "auto" falls back to the software device when WebGPU is unavailable.
func Open(name string, opts Options) (Device, error) {
	return internalbackend.Open(name, opts)
}
