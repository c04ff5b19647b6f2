package radix

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/born-ml/gsort/internal/array"
	"github.com/born-ml/gsort/internal/device"
)

// Scratch is the device working space for sorting up to Capacity keys:
// per-pass parameter blocks, per-group histograms and the ping-pong partner
// buffers.
//
// Sort and SortPairs hold the scratch lock for the whole call, so concurrent
// calls on one Scratch run one at a time. Encode and EncodeHistogram take the
// lock only while recording; their callers must not encode onto the same
// Scratch again, or sort with it, before the stream has completed.
type Scratch struct {
	engine   *Engine
	capacity int
	groups   int

	mu      sync.Mutex
	encoded atomic.Int64 // groups covered by the most recent encode

	params    *array.Array[uint32]
	hist      *array.Array[Histogram]
	keysTmp   *array.Array[uint32]
	valuesTmp *array.Array[uint32]
}

// Allocate reserves scratch space for sorting up to maxN keys.
func (e *Engine) Allocate(maxN int) (*Scratch, error) {
	if maxN < 0 || uint64(maxN) > math.MaxUint32 {
		return nil, fmt.Errorf("radix: invalid capacity %d", maxN)
	}
	groups := GroupCount(maxN, e.keysPerThread, e.groupSize)
	if padded := uint64(groups) * uint64(e.groupSize) * uint64(e.keysPerThread); padded > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d keys pad to %d slots, past 32-bit indexing", ErrCapacityExceeded, maxN, padded)
	}

	s := &Scratch{engine: e, capacity: maxN, groups: groups}
	var err error
	defer func() {
		if err != nil {
			s.Release()
		}
	}()

	// Zero-length bindings are invalid on some devices.
	slots := max(maxN, 1)
	if s.params, err = array.Empty[uint32](e.dev, Passes*paramStride, device.HostCoherent); err != nil {
		return nil, fmt.Errorf("radix: allocate params: %w", err)
	}
	if s.hist, err = array.Empty[Histogram](e.dev, max(groups, 1), device.ExplicitSync); err != nil {
		return nil, fmt.Errorf("radix: allocate histograms: %w", err)
	}
	if s.keysTmp, err = array.Empty[uint32](e.dev, slots, device.ExplicitSync); err != nil {
		return nil, fmt.Errorf("radix: allocate key scratch: %w", err)
	}
	if s.valuesTmp, err = array.Empty[uint32](e.dev, slots, device.ExplicitSync); err != nil {
		return nil, fmt.Errorf("radix: allocate value scratch: %w", err)
	}

	e.log.Debug("scratch allocated", "capacity", maxN, "groups", groups)
	return s, nil
}

// Capacity returns the maximum number of keys the scratch can sort.
func (s *Scratch) Capacity() int { return s.capacity }

// Groups returns the thread-group count for a full-capacity sort.
func (s *Scratch) Groups() int { return s.groups }

// Histograms returns the histogram rows of the most recent encode, one per
// thread group. After EncodeHistogram they hold raw digit counts; after a
// full Encode they hold the scanned offsets of the last pass. Rows are
// current only once SyncHistograms has completed on a stream.
func (s *Scratch) Histograms() []Histogram {
	return s.hist.View()[:s.encoded.Load()]
}

// SyncHistograms records a download of the histogram rows on stream.
func (s *Scratch) SyncHistograms(stream device.Stream) {
	s.hist.Sync(stream)
}

// Release frees the scratch buffers.
func (s *Scratch) Release() {
	for _, a := range []*array.Array[uint32]{s.params, s.keysTmp, s.valuesTmp} {
		if a != nil {
			a.Release()
		}
	}
	if s.hist != nil {
		s.hist.Release()
	}
}

// writeParams fills the parameter block of pass p.
func (s *Scratch) writeParams(p, n int, shift uint32, groups int) {
	words := s.params.MutableView()[p*paramStride : p*paramStride+paramWords]
	words[0] = uint32(n)
	words[1] = uint32(s.engine.keysPerThread)
	words[2] = shift
	words[3] = uint32(groups)
}

// paramsBinding binds the parameter block of pass p to the uniform slot.
func (s *Scratch) paramsBinding(p int) device.Binding {
	return s.params.BindingRange(slotParams, p*paramStride, paramWords)
}
