package radix

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gsort/internal/array"
	"github.com/born-ml/gsort/internal/backend/cpu"
	"github.com/born-ml/gsort/internal/device"
	"github.com/born-ml/gsort/internal/registry"
)

func newTestEngine(t *testing.T, opts ...Option) (*cpu.Device, *Engine) {
	t.Helper()
	dev := cpu.New()
	reg, err := registry.Embedded(dev)
	require.NoError(t, err)
	e, err := NewEngine(dev, reg, opts...)
	require.NoError(t, err)
	return dev, e
}

func randomKeys(n int, seed uint64) []uint32 {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	keys := make([]uint32, n)
	for i := range keys {
		keys[i] = r.Uint32()
	}
	return keys
}

func sortOnDevice(t *testing.T, dev device.Device, e *Engine, keys []uint32, mode device.MemoryMode) []uint32 {
	t.Helper()
	in, err := array.FromData(dev, keys, mode)
	require.NoError(t, err)
	out, err := array.Empty[uint32](dev, len(keys), mode)
	require.NoError(t, err)
	s, err := e.Allocate(len(keys))
	require.NoError(t, err)
	defer s.Release()

	require.NoError(t, e.Sort(context.Background(), s, in, out))
	return slices.Clone(out.View())
}

func TestTiling(t *testing.T) {
	tests := []struct {
		n, kpt, groupSize int
		threads, groups   int
	}{
		{0, 8, 256, 0, 0},
		{1, 8, 256, 1, 1},
		{8, 8, 256, 1, 1},
		{9, 8, 256, 2, 1},
		{2048, 8, 256, 256, 1},
		{2049, 8, 256, 257, 2},
		{100, 1, 16, 100, 7},
		{1 << 20, 8, 256, 1 << 17, 512},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.threads, ThreadsNeeded(tt.n, tt.kpt), "threads n=%d kpt=%d", tt.n, tt.kpt)
		groups := GroupCount(tt.n, tt.kpt, tt.groupSize)
		assert.Equal(t, tt.groups, groups, "groups n=%d kpt=%d", tt.n, tt.kpt)
		assert.GreaterOrEqual(t, groups*tt.groupSize*tt.kpt, tt.n)
	}
	assert.Equal(t, 8, Passes)
	assert.Equal(t, 16, Radix)
}

func TestNewEngine(t *testing.T) {
	dev, e := newTestEngine(t)
	assert.Equal(t, DefaultGroupSize, e.GroupSize())
	assert.Equal(t, DefaultKeysPerThread, e.KeysPerThread())

	t.Run("MissingLibrary", func(t *testing.T) {
		_, err := NewEngine(dev, registry.New(dev))
		require.ErrorIs(t, err, registry.ErrNotFound)
	})

	t.Run("WrongLibrary", func(t *testing.T) {
		reg, err := registry.Embedded(dev)
		require.NoError(t, err)
		_, err = NewEngine(dev, reg, WithLibrary("sum"))
		require.ErrorIs(t, err, registry.ErrNotFound)
	})

	t.Run("InvalidKeysPerThread", func(t *testing.T) {
		reg, err := registry.Embedded(dev)
		require.NoError(t, err)
		_, err = NewEngine(dev, reg, WithKeysPerThread(0))
		require.Error(t, err)

		// 256 threads of 1<<24 keys span 2^32 indices.
		_, err = NewEngine(dev, reg, WithKeysPerThread(1<<24))
		require.Error(t, err)
		_, err = NewEngine(dev, reg, WithKeysPerThread(1<<23))
		require.NoError(t, err)
	})
}

func TestSort_RoundTrip(t *testing.T) {
	dev, e := newTestEngine(t)

	for _, n := range []int{0, 1, 2, 15, 16, 17, 300, 2048, 2049, 5000} {
		keys := randomKeys(n, uint64(n))
		want := slices.Clone(keys)
		slices.Sort(want)

		got := sortOnDevice(t, dev, e, keys, device.HostCoherent)
		assert.Equal(t, want, got, "n=%d", n)
	}
}

func TestSort_AlreadySortedAndReversed(t *testing.T) {
	dev, e := newTestEngine(t)

	sorted := make([]uint32, 3000)
	for i := range sorted {
		sorted[i] = uint32(i) * 7919
	}
	assert.Equal(t, sorted, sortOnDevice(t, dev, e, sorted, device.HostCoherent))

	reversed := slices.Clone(sorted)
	slices.Reverse(reversed)
	assert.Equal(t, sorted, sortOnDevice(t, dev, e, reversed, device.HostCoherent))
}

func TestSort_ExtremeKeys(t *testing.T) {
	dev, e := newTestEngine(t)
	keys := []uint32{0xFFFFFFFF, 0, 0x80000000, 1, 0x7FFFFFFF, 0xFFFFFFFF, 0}
	got := sortOnDevice(t, dev, e, keys, device.HostCoherent)
	assert.Equal(t, []uint32{0, 0, 1, 0x7FFFFFFF, 0x80000000, 0xFFFFFFFF, 0xFFFFFFFF}, got)
}

func TestSort_SmallKeysPerThread(t *testing.T) {
	dev, e := newTestEngine(t, WithKeysPerThread(1))
	assert.Equal(t, 4, e.Groups(1000))

	keys := randomKeys(1000, 7)
	want := slices.Clone(keys)
	slices.Sort(want)
	assert.Equal(t, want, sortOnDevice(t, dev, e, keys, device.HostCoherent))
}

func TestSort_ExplicitSync(t *testing.T) {
	dev, e := newTestEngine(t)
	ctx := context.Background()

	keys, err := array.FromData(dev, []uint32{9, 4, 7, 1}, device.ExplicitSync)
	require.NoError(t, err)
	out, err := array.Empty[uint32](dev, 4, device.ExplicitSync)
	require.NoError(t, err)
	s, err := e.Allocate(4)
	require.NoError(t, err)

	require.NoError(t, e.Sort(ctx, s, keys, out))
	assert.Equal(t, []uint32{1, 4, 7, 9}, out.View())

	// Host writes reach the device through the sort's own sync.
	copy(keys.MutableView(), []uint32{3, 2, 1, 0})
	require.NoError(t, e.Sort(ctx, s, keys, out))
	assert.Equal(t, []uint32{0, 1, 2, 3}, out.View())
}

func TestSort_InPlace(t *testing.T) {
	dev, e := newTestEngine(t)

	data := randomKeys(4000, 11)
	want := slices.Clone(data)
	slices.Sort(want)

	keys, err := array.FromData(dev, data, device.HostCoherent)
	require.NoError(t, err)
	s, err := e.Allocate(len(data))
	require.NoError(t, err)

	require.NoError(t, e.Sort(context.Background(), s, keys, keys))
	assert.Equal(t, want, keys.View())
}

func TestSortPairs_Scenario(t *testing.T) {
	dev, e := newTestEngine(t)
	names := []string{"a", "b", "c", "d", "e", "f"}

	keys, err := array.FromData(dev, []uint32{5, 3, 5, 1, 4, 1}, device.HostCoherent)
	require.NoError(t, err)
	values, err := array.FromData(dev, []uint32{0, 1, 2, 3, 4, 5}, device.HostCoherent)
	require.NoError(t, err)
	outKeys, err := array.Empty[uint32](dev, 6, device.HostCoherent)
	require.NoError(t, err)
	outValues, err := array.Empty[uint32](dev, 6, device.HostCoherent)
	require.NoError(t, err)
	s, err := e.Allocate(6)
	require.NoError(t, err)

	require.NoError(t, e.SortPairs(context.Background(), s, keys, values, outKeys, outValues))

	assert.Equal(t, []uint32{1, 1, 3, 4, 5, 5}, outKeys.View())
	got := make([]string, 0, 6)
	for _, v := range outValues.View() {
		got = append(got, names[v])
	}
	assert.Equal(t, []string{"d", "f", "b", "e", "a", "c"}, got)
}

func TestSortPairs_Stable(t *testing.T) {
	dev, e := newTestEngine(t)

	const n = 6000
	raw := randomKeys(n, 3)
	data := make([]uint32, n)
	index := make([]uint32, n)
	for i := range data {
		// Few distinct keys, spread over every digit position.
		data[i] = (raw[i] % 5) * 0x11111111
		index[i] = uint32(i)
	}

	keys, err := array.FromData(dev, data, device.HostCoherent)
	require.NoError(t, err)
	values, err := array.FromData(dev, index, device.HostCoherent)
	require.NoError(t, err)
	outKeys, err := array.Empty[uint32](dev, n, device.HostCoherent)
	require.NoError(t, err)
	outValues, err := array.Empty[uint32](dev, n, device.HostCoherent)
	require.NoError(t, err)
	s, err := e.Allocate(n)
	require.NoError(t, err)

	require.NoError(t, e.SortPairs(context.Background(), s, keys, values, outKeys, outValues))

	gotKeys, gotValues := outKeys.View(), outValues.View()
	require.True(t, slices.IsSorted(gotKeys))
	for i := range gotKeys {
		assert.Equal(t, data[gotValues[i]], gotKeys[i], "payload moved with its key at %d", i)
		if i > 0 && gotKeys[i] == gotKeys[i-1] {
			assert.Less(t, gotValues[i-1], gotValues[i], "equal keys out of input order at %d", i)
		}
	}
}

func TestEncodeHistogram_Conservation(t *testing.T) {
	dev, e := newTestEngine(t)

	const n = 5000
	data := randomKeys(n, 5)
	keys, err := array.FromData(dev, data, device.HostCoherent)
	require.NoError(t, err)
	s, err := e.Allocate(n)
	require.NoError(t, err)

	for _, shift := range []uint32{0, 12, 28} {
		stream := dev.NewStream()
		require.NoError(t, e.EncodeHistogram(stream, s, keys, shift))
		s.SyncHistograms(stream)
		require.NoError(t, stream.Commit())
		require.NoError(t, stream.Wait(context.Background()))

		hist := s.Histograms()
		require.Len(t, hist, e.Groups(n))

		var want Histogram
		for _, k := range data {
			want[(k>>shift)&(Radix-1)]++
		}
		var got Histogram
		var total uint32
		for _, h := range hist {
			total += h.Total()
			for d, c := range h {
				got[d] += c
			}
		}
		assert.Equal(t, uint32(n), total, "shift=%d", shift)
		assert.Equal(t, want, got, "shift=%d", shift)
	}

	stream := dev.NewStream()
	require.Error(t, e.EncodeHistogram(stream, s, keys, 29))
}

func TestSort_Preconditions(t *testing.T) {
	dev, e := newTestEngine(t)
	ctx := context.Background()

	s, err := e.Allocate(100)
	require.NoError(t, err)
	assert.Equal(t, 100, s.Capacity())
	assert.Equal(t, 1, s.Groups())

	t.Run("AtCapacity", func(t *testing.T) {
		keys, err := array.FromData(dev, randomKeys(100, 1), device.HostCoherent)
		require.NoError(t, err)
		require.NoError(t, e.Sort(ctx, s, keys, keys))
		assert.True(t, slices.IsSorted(keys.View()))
	})

	t.Run("OverCapacity", func(t *testing.T) {
		keys, err := array.Empty[uint32](dev, 101, device.HostCoherent)
		require.NoError(t, err)
		require.ErrorIs(t, e.Sort(ctx, s, keys, keys), ErrCapacityExceeded)
	})

	t.Run("ShapeMismatch", func(t *testing.T) {
		keys, err := array.Empty[uint32](dev, 10, device.HostCoherent)
		require.NoError(t, err)
		out, err := array.Empty[uint32](dev, 9, device.HostCoherent)
		require.NoError(t, err)
		require.ErrorIs(t, e.Sort(ctx, s, keys, out), ErrShapeMismatch)

		values, err := array.Empty[uint32](dev, 10, device.HostCoherent)
		require.NoError(t, err)
		outValues, err := array.Empty[uint32](dev, 11, device.HostCoherent)
		require.NoError(t, err)
		require.ErrorIs(t, e.SortPairs(ctx, s, keys, values, keys, outValues), ErrShapeMismatch)
		require.ErrorIs(t, e.SortPairs(ctx, s, keys, nil, keys, nil), ErrShapeMismatch)
	})

	t.Run("Empty", func(t *testing.T) {
		keys, err := array.Empty[uint32](dev, 0, device.HostCoherent)
		require.NoError(t, err)
		require.NoError(t, e.Sort(ctx, s, keys, keys))

		stream := dev.NewStream()
		require.NoError(t, e.Encode(stream, s, keys, nil, keys, nil))
		require.NoError(t, stream.Commit())
		require.NoError(t, stream.Wait(ctx))
	})

	t.Run("ForeignScratch", func(t *testing.T) {
		_, other := newTestEngine(t)
		keys, err := array.Empty[uint32](dev, 4, device.HostCoherent)
		require.NoError(t, err)
		require.ErrorIs(t, other.Sort(ctx, s, keys, keys), ErrForeignScratch)
		require.ErrorIs(t, e.Sort(ctx, nil, keys, keys), ErrForeignScratch)
	})

	t.Run("InvalidCapacity", func(t *testing.T) {
		_, err := e.Allocate(-1)
		require.Error(t, err)
	})

	t.Run("PaddedPastUint32", func(t *testing.T) {
		// 2^32-1 keys pad to 2^21 groups of 2048 slots, one past the last
		// 32-bit index.
		_, err := e.Allocate(math.MaxUint32)
		require.ErrorIs(t, err, ErrCapacityExceeded)

		// One group spans 2^31 keys; a second group would reach 2^32.
		_, wide := newTestEngine(t, WithKeysPerThread(1<<23))
		ws, err := wide.Allocate(1)
		require.NoError(t, err)
		ws.Release()
		_, err = wide.Allocate(1<<31 + 1)
		require.ErrorIs(t, err, ErrCapacityExceeded)
	})
}

func TestSort_AllocationFailure(t *testing.T) {
	dev := cpu.New(cpu.WithMemoryLimit(1024))
	reg, err := registry.Embedded(dev)
	require.NoError(t, err)
	e, err := NewEngine(dev, reg)
	require.NoError(t, err)

	_, err = e.Allocate(1 << 16)
	require.ErrorIs(t, err, device.ErrOutOfMemory)

	allocated, _, buffers := dev.MemoryStats()
	assert.Equal(t, uint64(0), allocated, "partial scratch released")
	assert.Equal(t, int64(0), buffers)
}

func TestSort_ConcurrentScratch(t *testing.T) {
	dev, e := newTestEngine(t)
	s, err := e.Allocate(3000)
	require.NoError(t, err)

	errs := make(chan error, 4)
	for w := range 4 {
		go func() {
			keys, err := array.FromData(dev, randomKeys(3000, uint64(w)+100), device.HostCoherent)
			if err != nil {
				errs <- err
				return
			}
			out, err := array.Empty[uint32](dev, 3000, device.HostCoherent)
			if err != nil {
				errs <- err
				return
			}
			if err := e.Sort(context.Background(), s, keys, out); err != nil {
				errs <- err
				return
			}
			if !slices.IsSorted(out.View()) {
				errs <- assert.AnError
				return
			}
			errs <- nil
		}()
	}
	for range 4 {
		require.NoError(t, <-errs)
	}
}

func TestScratch_HistogramsDuringSort(t *testing.T) {
	dev, e := newTestEngine(t)
	s, err := e.Allocate(3000)
	require.NoError(t, err)

	keys, err := array.FromData(dev, randomKeys(3000, 7), device.HostCoherent)
	require.NoError(t, err)
	out, err := array.Empty[uint32](dev, 3000, device.HostCoherent)
	require.NoError(t, err)

	done := make(chan error)
	go func() {
		for range 4 {
			if err := e.Sort(context.Background(), s, keys, out); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for sorting := true; sorting; {
		select {
		case err := <-done:
			require.NoError(t, err)
			sorting = false
		default:
			assert.LessOrEqual(t, len(s.Histograms()), s.Groups())
		}
	}
	assert.Len(t, s.Histograms(), e.Groups(3000))
	assert.True(t, slices.IsSorted(out.View()))

	small, err := array.FromData(dev, []uint32{3, 1, 2}, device.HostCoherent)
	require.NoError(t, err)
	stream := dev.NewStream()
	require.NoError(t, e.EncodeHistogram(stream, s, small, 0))
	require.NoError(t, stream.Commit())
	require.NoError(t, stream.Wait(context.Background()))
	assert.Len(t, s.Histograms(), 1)
}
