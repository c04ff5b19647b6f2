// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package registry compiles kernel libraries and resolves entry points by
// (library, function) name.
package registry

import (
	"github.com/born-ml/gsort/internal/device"
	internalregistry "github.com/born-ml/gsort/internal/registry"
)

// Registry maps library and function names to compiled pipelines.
type Registry = internalregistry.Registry

// CompileError reports a kernel library that could not be read or compiled.
type CompileError = internalregistry.CompileError

// ErrNotFound is returned when a library or function has not been registered.
var ErrNotFound = internalregistry.ErrNotFound

// Default registers the sum and sort libraries from root, falling back to
// $REGISTRY_PATH and then the working directory when root is empty.
func Default(dev device.Device, root string) (*Registry, error) {
	return internalregistry.Default(dev, root)
}

// Embedded registers the sum and sort libraries compiled into the binary.
func Embedded(dev device.Device) (*Registry, error) {
	return internalregistry.Embedded(dev)
}
