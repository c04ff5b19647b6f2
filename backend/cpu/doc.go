// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the software compute device.
//
// # Overview
//
// The software device runs the bundled WGSL kernels as Go functions:
//   - Pure Go implementation (no CGO)
//   - Thread groups of one dispatch run concurrently on goroutines
//   - ExplicitSync buffers keep separate host and device copies, so code
//     that forgets a sync fails here the way it would on a GPU
//   - Optional memory limit for exercising allocation failures
//
// # Thread Safety
//
// A Device is safe for concurrent use. Streams are independent; commands of
// one stream run in the order they were recorded.
package cpu
