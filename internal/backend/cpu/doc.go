// Package cpu implements a software compute device.
//
// The device satisfies device.Device without a GPU: "compiling" a WGSL
// library discovers its compute entry points and binds each one to a Go
// kernel with the same binding layout and semantics. A dispatch runs its
// thread groups concurrently on goroutines with no ordering between groups,
// so kernels written for it obey the same cross-group rules as on a GPU:
// groups coordinate only across dispatch boundaries.
//
// ExplicitSync buffers keep separate host and device copies, so code that
// reads a view without synchronising observes stale data exactly as it
// would on hardware with managed memory.
package cpu
