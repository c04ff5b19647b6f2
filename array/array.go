// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package array provides typed device arrays.
//
// # Basic Usage
//
//	dev := cpu.New()
//	keys, err := array.FromData(dev, []uint32{5, 3, 1}, backend.HostCoherent)
//	out, err := array.Empty[uint32](dev, 3, backend.HostCoherent)
//
// # Memory Modes
//
// HostCoherent arrays are visible to the host as soon as a stream completes.
// ExplicitSync arrays keep separate host and device copies: write through
// MutableView, and call Sync on a stream before reading device results.
package array

import (
	internalarray "github.com/born-ml/gsort/internal/array"
	"github.com/born-ml/gsort/internal/device"
)

// Element is the constraint for array element types.
type Element = internalarray.Element

// Array is a device buffer holding elements of type T.
type Array[T Element] = internalarray.Array[T]

// FromData allocates an array on dev holding a copy of data.
func FromData[T Element](dev device.Device, data []T, mode device.MemoryMode) (*Array[T], error) {
	return internalarray.FromData(dev, data, mode)
}

// Empty allocates a zero-filled array of n elements on dev.
func Empty[T Element](dev device.Device, n int, mode device.MemoryMode) (*Array[T], error) {
	return internalarray.Empty[T](dev, n, mode)
}
