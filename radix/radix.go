// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package radix sorts 32-bit unsigned keys, optionally with a 32-bit
// payload, on a compute device.
//
// # Basic Usage
//
//	dev := cpu.New()
//	reg, _ := registry.Embedded(dev)
//	engine, _ := radix.NewEngine(dev, reg)
//	scratch, _ := engine.Allocate(len(data))
//	defer scratch.Release()
//
//	keys, _ := array.FromData(dev, data, backend.HostCoherent)
//	err := engine.Sort(ctx, scratch, keys, keys)
//
// The sort is stable: equal keys keep their input order, so SortPairs can
// be used to compute a stable sorting permutation.
package radix

import (
	"github.com/born-ml/gsort/internal/device"
	internalradix "github.com/born-ml/gsort/internal/radix"
	"github.com/born-ml/gsort/internal/registry"
)

// Engine records radix sort passes on a device.
type Engine = internalradix.Engine

// Scratch is the device working space of an Engine.
type Scratch = internalradix.Scratch

// Histogram is one thread group's per-digit key counts.
type Histogram = internalradix.Histogram

// Option configures an Engine.
type Option = internalradix.Option

// Sort errors.
var (
	ErrShapeMismatch    = internalradix.ErrShapeMismatch
	ErrCapacityExceeded = internalradix.ErrCapacityExceeded
)

// NewEngine resolves the sort pipelines from reg.
func NewEngine(dev device.Device, reg *registry.Registry, opts ...Option) (*Engine, error) {
	return internalradix.NewEngine(dev, reg, opts...)
}

// WithKeysPerThread sets the number of consecutive keys one thread owns.
func WithKeysPerThread(n int) Option {
	return internalradix.WithKeysPerThread(n)
}
