// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package kernels embeds the WGSL kernel libraries so a registry can be built
// without a kernel search root on disk.
package kernels

import "embed"

// FS holds sum.wgsl and sort.wgsl at its root.
//
//go:embed *.wgsl
var FS embed.FS
