// Package radix sorts 32-bit unsigned keys, optionally carrying a 32-bit
// payload, with a least-significant-digit radix sort run on a compute device.
//
// Each of the eight passes sorts one 4-bit digit and is recorded as three
// dispatches: a per-group histogram (upsweep), a digit-major exclusive scan
// of all histograms, and a stable scatter (downsweep). Stability of every
// pass makes the whole sort stable.
package radix

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/born-ml/gsort/internal/array"
	"github.com/born-ml/gsort/internal/device"
	"github.com/born-ml/gsort/internal/logger"
	"github.com/born-ml/gsort/internal/metrics"
	"github.com/born-ml/gsort/internal/registry"
)

// Kernel binding slots shared by the sort entry points.
const (
	slotKeysIn    = 0
	slotKeysOut   = 1
	slotHist      = 2
	slotParams    = 3
	slotValuesIn  = 4
	slotValuesOut = 5
)

// Entry point names in the sort library.
const (
	DefaultLibrary  = "sort"
	FuncUpsweep     = "sort_upsweep_u32"
	FuncScan        = "sort_scan_u32"
	FuncDownsweep   = "sort_downsweep_u32"
	FuncDownsweepKV = "sort_downsweep_kv_u32"
)

// Metric labels.
const (
	kindKeys  = "keys"
	kindPairs = "pairs"

	reasonShape     = "shape"
	reasonCapacity  = "capacity"
	reasonEncode    = "encode"
	reasonExecution = "execution"
	reasonCancelled = "cancelled"
)

// Engine records radix sort passes using the sort pipelines of a registry.
// An Engine is immutable after construction and safe for concurrent use;
// per-sort state lives in Scratch.
type Engine struct {
	dev           device.Device
	log           logger.Logger
	library       string
	keysPerThread int
	groupSize     int

	upsweep     device.Pipeline
	scan        device.Pipeline
	downsweep   device.Pipeline
	downsweepKV device.Pipeline
}

// Option configures an Engine.
type Option func(*Engine)

// WithKeysPerThread sets the number of consecutive keys one thread owns.
func WithKeysPerThread(n int) Option {
	return func(e *Engine) {
		e.keysPerThread = n
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithLibrary selects the registry library holding the sort entry points.
func WithLibrary(name string) Option {
	return func(e *Engine) {
		e.library = name
	}
}

// NewEngine resolves the sort pipelines from reg. The thread-group size is
// taken from the upsweep pipeline and must match the downsweep pipelines.
func NewEngine(dev device.Device, reg *registry.Registry, opts ...Option) (*Engine, error) {
	e := &Engine{
		dev:           dev,
		log:           logger.Discard(),
		library:       DefaultLibrary,
		keysPerThread: DefaultKeysPerThread,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.keysPerThread < 1 {
		return nil, fmt.Errorf("radix: keys per thread must be positive, got %d", e.keysPerThread)
	}

	for _, f := range []struct {
		name string
		dst  *device.Pipeline
	}{
		{FuncUpsweep, &e.upsweep},
		{FuncScan, &e.scan},
		{FuncDownsweep, &e.downsweep},
		{FuncDownsweepKV, &e.downsweepKV},
	} {
		p, err := reg.Function(e.library, f.name)
		if err != nil {
			return nil, fmt.Errorf("radix: %w", err)
		}
		*f.dst = p
	}

	e.groupSize = int(e.upsweep.ThreadGroupSize())
	for _, p := range []device.Pipeline{e.downsweep, e.downsweepKV} {
		if int(p.ThreadGroupSize()) != e.groupSize {
			return nil, fmt.Errorf("radix: %s thread-group size %d does not match %s (%d)",
				p.Name(), p.ThreadGroupSize(), e.upsweep.Name(), e.groupSize)
		}
	}
	if e.scan.ThreadGroupSize() != Radix {
		return nil, fmt.Errorf("radix: %s thread-group size %d, want %d", e.scan.Name(), e.scan.ThreadGroupSize(), Radix)
	}
	// Kernels index keys with 32-bit thread offsets.
	if uint64(e.keysPerThread) > math.MaxUint32/uint64(e.groupSize) {
		return nil, fmt.Errorf("radix: %d keys per thread overflow 32-bit indexing at group size %d",
			e.keysPerThread, e.groupSize)
	}

	e.log = e.log.With("component", "radix", "device", dev.Name())
	e.log.Debug("engine ready", "group_size", e.groupSize, "keys_per_thread", e.keysPerThread)
	return e, nil
}

// GroupSize returns the threads per group of the sort pipelines.
func (e *Engine) GroupSize() int { return e.groupSize }

// KeysPerThread returns the number of keys one thread owns.
func (e *Engine) KeysPerThread() int { return e.keysPerThread }

// Groups returns the thread-group count for sorting n keys.
func (e *Engine) Groups(n int) int {
	return GroupCount(n, e.keysPerThread, e.groupSize)
}

func (e *Engine) checkScratch(s *Scratch, n int) error {
	if s == nil || s.engine != e {
		return ErrForeignScratch
	}
	if n > s.capacity {
		return fmt.Errorf("%w: %d keys, capacity %d", ErrCapacityExceeded, n, s.capacity)
	}
	return nil
}

// EncodeHistogram records a single upsweep dispatch computing the digit
// histogram at bit offset shift of every thread group. Read the result with
// SyncHistograms and Histograms once the stream completes.
func (e *Engine) EncodeHistogram(stream device.Stream, s *Scratch, keys *array.Array[uint32], shift uint32) error {
	n := keys.Len()
	if err := e.checkScratch(s, n); err != nil {
		return err
	}
	if shift > KeyBits-RadixBits {
		return fmt.Errorf("radix: digit shift %d out of range", shift)
	}
	groups := e.Groups(n)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.encoded.Store(int64(groups))
	if n == 0 {
		return nil
	}

	s.writeParams(0, n, shift, groups)
	return stream.Dispatch(e.upsweep, uint32(groups),
		keys.Binding(slotKeysIn),
		s.hist.Binding(slotHist),
		s.paramsBinding(0),
	)
}

// Encode records the full sort on stream. values and outValues are nil for a
// keys-only sort. outKeys may alias keys, and outValues may alias values.
//
// Encode neither synchronises nor commits: ExplicitSync inputs must be
// synced onto the stream first and outputs synced after.
func (e *Engine) Encode(stream device.Stream, s *Scratch, keys, values, outKeys, outValues *array.Array[uint32]) error {
	if s == nil || s.engine != e {
		return ErrForeignScratch
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.encode(stream, s, keys, values, outKeys, outValues)
}

// encode is Encode with the scratch lock held.
func (e *Engine) encode(stream device.Stream, s *Scratch, keys, values, outKeys, outValues *array.Array[uint32]) error {
	n := keys.Len()
	if err := checkShapes(n, values, outKeys, outValues); err != nil {
		return err
	}
	if err := e.checkScratch(s, n); err != nil {
		return err
	}
	groups := e.Groups(n)
	s.encoded.Store(int64(groups))
	if n == 0 {
		return nil
	}

	pairs := values != nil
	down := e.downsweep
	if pairs {
		down = e.downsweepKV
	}

	for p := range Passes {
		s.writeParams(p, n, passShift(p), groups)
	}

	// Even passes write the scratch partner and odd passes the output, so
	// with an even pass count the last pass lands in outKeys.
	for p := range Passes {
		var src, dst device.Binding
		if p%2 == 0 {
			src = passSource(p, keys, outKeys, slotKeysIn)
			dst = s.keysTmp.BindingRange(slotKeysOut, 0, n)
		} else {
			src = s.keysTmp.BindingRange(slotKeysIn, 0, n)
			dst = outKeys.Binding(slotKeysOut)
		}
		params := s.paramsBinding(p)
		hist := s.hist.BindingRange(slotHist, 0, groups)

		if err := stream.Dispatch(e.upsweep, uint32(groups), src, hist, params); err != nil {
			return fmt.Errorf("radix: pass %d upsweep: %w", p, err)
		}
		if err := stream.Dispatch(e.scan, 1, hist, params); err != nil {
			return fmt.Errorf("radix: pass %d scan: %w", p, err)
		}

		bindings := []device.Binding{src, dst, hist, params}
		if pairs {
			var vsrc, vdst device.Binding
			if p%2 == 0 {
				vsrc = passSource(p, values, outValues, slotValuesIn)
				vdst = s.valuesTmp.BindingRange(slotValuesOut, 0, n)
			} else {
				vsrc = s.valuesTmp.BindingRange(slotValuesIn, 0, n)
				vdst = outValues.Binding(slotValuesOut)
			}
			bindings = append(bindings, vsrc, vdst)
		}
		if err := stream.Dispatch(down, uint32(groups), bindings...); err != nil {
			return fmt.Errorf("radix: pass %d downsweep: %w", p, err)
		}
	}
	return nil
}

// passSource returns the input of even pass p: the caller's array on the
// first pass, the previous odd pass's output after that.
func passSource(p int, in, out *array.Array[uint32], slot uint32) device.Binding {
	if p == 0 {
		return in.Binding(slot)
	}
	return out.Binding(slot)
}

func checkShapes(n int, values, outKeys, outValues *array.Array[uint32]) error {
	if outKeys.Len() != n {
		return fmt.Errorf("%w: %d keys, %d output keys", ErrShapeMismatch, n, outKeys.Len())
	}
	if (values == nil) != (outValues == nil) {
		return fmt.Errorf("%w: values and output values must both be set", ErrShapeMismatch)
	}
	if values == nil {
		return nil
	}
	if values.Len() != n || outValues.Len() != n {
		return fmt.Errorf("%w: %d keys, %d values, %d output values",
			ErrShapeMismatch, n, values.Len(), outValues.Len())
	}
	return nil
}

// Sort sorts keys into out on a new stream and waits for completion.
// out may be keys itself. Sorting zero keys does nothing.
func (e *Engine) Sort(ctx context.Context, s *Scratch, keys, out *array.Array[uint32]) error {
	return e.run(ctx, kindKeys, s, keys, nil, out, nil)
}

// SortPairs sorts keys into outKeys, moving values into outValues in
// lockstep. Equal keys keep their input order.
func (e *Engine) SortPairs(ctx context.Context, s *Scratch, keys, values, outKeys, outValues *array.Array[uint32]) error {
	if values == nil || outValues == nil {
		return fmt.Errorf("%w: SortPairs needs values and output values", ErrShapeMismatch)
	}
	return e.run(ctx, kindPairs, s, keys, values, outKeys, outValues)
}

func (e *Engine) run(ctx context.Context, kind string, s *Scratch, keys, values, outKeys, outValues *array.Array[uint32]) error {
	if s == nil || s.engine != e {
		return ErrForeignScratch
	}
	s.mu.Lock()
	pending, err := e.runLocked(ctx, kind, s, keys, values, outKeys, outValues)
	if pending == nil {
		s.mu.Unlock()
		return err
	}
	// The wait was abandoned but the device is still using the scratch.
	go func() {
		_ = pending.Wait(context.Background())
		s.mu.Unlock()
	}()
	return err
}

// runLocked performs one sort with the scratch lock held. It returns the
// stream if the wait was abandoned before the stream completed.
func (e *Engine) runLocked(ctx context.Context, kind string, s *Scratch, keys, values, outKeys, outValues *array.Array[uint32]) (device.Stream, error) {
	n := keys.Len()
	if err := checkShapes(n, values, outKeys, outValues); err != nil {
		metrics.SortFailed(e.dev.Name(), reasonShape)
		return nil, err
	}
	if err := e.checkScratch(s, n); err != nil {
		metrics.SortFailed(e.dev.Name(), reasonCapacity)
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	start := time.Now()
	stream := e.dev.NewStream()
	log := e.log.With("stream", stream.ID())

	// Syncing the outputs first flushes any pending host writes, so the
	// final sync downloads instead of uploading.
	for _, a := range []*array.Array[uint32]{keys, values, outKeys, outValues} {
		if a != nil {
			a.Sync(stream)
		}
	}
	if err := e.encode(stream, s, keys, values, outKeys, outValues); err != nil {
		metrics.SortFailed(e.dev.Name(), reasonEncode)
		return nil, err
	}
	outKeys.Sync(stream)
	if outValues != nil {
		outValues.Sync(stream)
	}

	if err := stream.Commit(); err != nil {
		metrics.SortFailed(e.dev.Name(), reasonExecution)
		return nil, fmt.Errorf("radix: commit: %w", err)
	}
	if err := stream.Wait(ctx); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			metrics.SortFailed(e.dev.Name(), reasonCancelled)
			log.Warn("sort wait abandoned", "kind", kind, "n", n, "error", err)
			return stream, fmt.Errorf("radix: sort %d keys: %w", n, err)
		}
		metrics.SortFailed(e.dev.Name(), reasonExecution)
		log.Error("sort failed", "kind", kind, "n", n, "error", err)
		return nil, fmt.Errorf("radix: sort %d keys: %w", n, err)
	}

	elapsed := time.Since(start)
	metrics.Sort(e.dev.Name(), kind, n, elapsed)
	log.Debug("sort completed", "kind", kind, "n", n, "groups", e.Groups(n), "elapsed", elapsed)
	return nil, nil
}
