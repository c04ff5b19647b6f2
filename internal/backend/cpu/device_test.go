package cpu

import (
	"context"
	"encoding/binary"
	"errors"
	"io/fs"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gsort/internal/device"
	"github.com/born-ml/gsort/kernels"
)

func readKernel(t *testing.T, name string) string {
	t.Helper()
	src, err := fs.ReadFile(kernels.FS, name)
	require.NoError(t, err)
	return string(src)
}

func compile(t *testing.T, d *Device, name string) map[string]device.Pipeline {
	t.Helper()
	pipelines, err := d.CompileLibrary(readKernel(t, name), device.CompileOptions{Label: name})
	require.NoError(t, err)
	byName := make(map[string]device.Pipeline, len(pipelines))
	for _, p := range pipelines {
		byName[p.Name()] = p
	}
	return byName
}

func float32Bytes(vals ...float32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func bytesFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

func TestCompileLibrary_EmbeddedKernels(t *testing.T) {
	d := New()

	sum := compile(t, d, "sum.wgsl")
	require.Contains(t, sum, "sum")
	assert.Equal(t, uint32(256), sum["sum"].ThreadGroupSize())

	sort := compile(t, d, "sort.wgsl")
	assert.Len(t, sort, 4)
	assert.Equal(t, uint32(256), sort["sort_upsweep_u32"].ThreadGroupSize())
	assert.Equal(t, uint32(16), sort["sort_scan_u32"].ThreadGroupSize())
	assert.Equal(t, uint32(256), sort["sort_downsweep_u32"].ThreadGroupSize())
	assert.Equal(t, uint32(256), sort["sort_downsweep_kv_u32"].ThreadGroupSize())
}

func TestCompileLibrary_Errors(t *testing.T) {
	d := New()

	t.Run("UnknownEntryPoint", func(t *testing.T) {
		_, err := d.CompileLibrary("@compute @workgroup_size(64) fn mystery() {}", device.CompileOptions{Label: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mystery")
	})

	t.Run("Unbalanced", func(t *testing.T) {
		_, err := d.CompileLibrary("@compute @workgroup_size(256) fn sum( {", device.CompileOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "<source>")
	})

	t.Run("BracketsInComments", func(t *testing.T) {
		src := "// (unclosed\n@compute @workgroup_size(256) fn sum() {}\n/* ] */"
		p, err := d.CompileLibrary(src, device.CompileOptions{})
		require.NoError(t, err)
		assert.Len(t, p, 1)
	})

	t.Run("Prelude", func(t *testing.T) {
		p, err := d.CompileLibrary("@compute @workgroup_size(WG) fn sum() {}",
			device.CompileOptions{Prelude: "const WG: u32 = 32u;"})
		require.NoError(t, err)
		require.Len(t, p, 1)
		assert.Equal(t, uint32(32), p[0].ThreadGroupSize())
	})

	t.Run("CustomKernel", func(t *testing.T) {
		custom := New(WithKernel("mystery", func(Grid, uint32, *Args) error { return nil }))
		p, err := custom.CompileLibrary("@compute @workgroup_size(8) fn mystery() {}", device.CompileOptions{})
		require.NoError(t, err)
		assert.Equal(t, "mystery", p[0].Name())
	})
}

func TestSumDispatch(t *testing.T) {
	d := New()
	sum := compile(t, d, "sum.wgsl")["sum"]

	a, err := d.NewBufferWithBytes(float32Bytes(1, 2, 3, 4, 5), device.HostCoherent)
	require.NoError(t, err)
	b, err := d.NewBufferWithBytes(float32Bytes(10, 20, 30, 40, 50), device.HostCoherent)
	require.NoError(t, err)
	out, err := d.NewBuffer(20, device.HostCoherent)
	require.NoError(t, err)

	s := d.NewStream()
	require.NoError(t, s.Dispatch(sum, 1,
		device.Binding{Slot: 0, Buffer: a},
		device.Binding{Slot: 1, Buffer: b},
		device.Binding{Slot: 2, Buffer: out},
	))
	require.NoError(t, s.Commit())
	require.NoError(t, s.Wait(context.Background()))

	assert.Equal(t, []float32{11, 22, 33, 44, 55}, bytesFloat32(out.Contents()))
}

func TestExplicitSync(t *testing.T) {
	d := New()
	sum := compile(t, d, "sum.wgsl")["sum"]

	a, err := d.NewBufferWithBytes(float32Bytes(1, 1), device.ExplicitSync)
	require.NoError(t, err)
	b, err := d.NewBufferWithBytes(float32Bytes(2, 2), device.ExplicitSync)
	require.NoError(t, err)
	out, err := d.NewBuffer(8, device.ExplicitSync)
	require.NoError(t, err)

	// Host write not yet uploaded.
	copy(a.Contents(), float32Bytes(5, 5))
	a.DidModify()

	s := d.NewStream()
	s.Synchronize(a)
	require.NoError(t, s.Dispatch(sum, 1,
		device.Binding{Slot: 0, Buffer: a},
		device.Binding{Slot: 1, Buffer: b},
		device.Binding{Slot: 2, Buffer: out},
	))
	require.NoError(t, s.Commit())
	require.NoError(t, s.Wait(context.Background()))

	// Device wrote out but the host copy is stale until synced.
	assert.Equal(t, []float32{0, 0}, bytesFloat32(out.Contents()))

	s = d.NewStream()
	s.Synchronize(out)
	require.NoError(t, s.Commit())
	require.NoError(t, s.Wait(context.Background()))
	assert.Equal(t, []float32{7, 7}, bytesFloat32(out.Contents()))
}

func TestMemoryLimit(t *testing.T) {
	d := New(WithMemoryLimit(64))

	b, err := d.NewBuffer(48, device.HostCoherent)
	require.NoError(t, err)

	_, err = d.NewBuffer(32, device.HostCoherent)
	require.ErrorIs(t, err, device.ErrOutOfMemory)

	b.Release()
	b.Release()
	allocated, peak, buffers := d.MemoryStats()
	assert.Equal(t, uint64(0), allocated)
	assert.Equal(t, uint64(48), peak)
	assert.Equal(t, int64(0), buffers)

	_, err = d.NewBuffer(64, device.HostCoherent)
	require.NoError(t, err)
}

func TestStreamState(t *testing.T) {
	d := New()
	sum := compile(t, d, "sum.wgsl")["sum"]
	buf, err := d.NewBuffer(16, device.HostCoherent)
	require.NoError(t, err)

	s := d.NewStream()
	assert.NotEmpty(t, s.ID())
	require.ErrorIs(t, s.Wait(context.Background()), device.ErrStreamState)

	require.NoError(t, s.Commit())
	require.ErrorIs(t, s.Commit(), device.ErrStreamState)
	err = s.Dispatch(sum, 1, device.Binding{Slot: 0, Buffer: buf})
	require.ErrorIs(t, err, device.ErrStreamState)
	require.NoError(t, s.Wait(context.Background()))
}

func TestDispatch_Validation(t *testing.T) {
	d := New()
	other := New()
	sum := compile(t, d, "sum.wgsl")["sum"]
	foreign, err := other.NewBuffer(16, device.HostCoherent)
	require.NoError(t, err)
	local, err := d.NewBuffer(16, device.HostCoherent)
	require.NoError(t, err)

	s := d.NewStream()
	require.Error(t, s.Dispatch(nil, 1))
	require.ErrorIs(t, s.Dispatch(sum, 1, device.Binding{Slot: 0, Buffer: foreign}), device.ErrForeignResource)
	require.Error(t, s.Dispatch(sum, 1, device.Binding{Slot: 0, Buffer: local, Offset: 8, Size: 16}))
	require.Error(t, s.Dispatch(sum, 1, device.Binding{Slot: 0, Buffer: local, Offset: 2}))
	require.Error(t, s.Dispatch(sum, 1,
		device.Binding{Slot: 0, Buffer: local},
		device.Binding{Slot: 0, Buffer: local},
	))

	otherSum := compile(t, other, "sum.wgsl")["sum"]
	require.ErrorIs(t, s.Dispatch(otherSum, 1), device.ErrForeignResource)
}

func TestExecutionError(t *testing.T) {
	boom := errors.New("boom")
	d := New(
		WithKernel("fails", func(Grid, uint32, *Args) error { return boom }),
		WithKernel("panics", func(_ Grid, _ uint32, args *Args) error {
			args.Bytes(7)
			return nil
		}),
	)
	pipelines, err := d.CompileLibrary(`
@compute @workgroup_size(1) fn fails() {}
@compute @workgroup_size(1) fn panics() {}
`, device.CompileOptions{})
	require.NoError(t, err)

	for _, p := range pipelines {
		t.Run(p.Name(), func(t *testing.T) {
			s := d.NewStream()
			require.NoError(t, s.Dispatch(p, 4))
			require.NoError(t, s.Commit())
			require.ErrorIs(t, s.Wait(context.Background()), device.ErrExecution)
		})
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	d := New(WithKernel("block", func(Grid, uint32, *Args) error {
		<-release
		return nil
	}))
	p, err := d.CompileLibrary("@compute @workgroup_size(1) fn block() {}", device.CompileOptions{})
	require.NoError(t, err)

	s := d.NewStream()
	require.NoError(t, s.Dispatch(p[0], 1))
	require.NoError(t, s.Commit())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, s.Wait(context.Background()))
}

func TestDispatch_ZeroGroups(t *testing.T) {
	called := false
	d := New(WithKernel("k", func(Grid, uint32, *Args) error {
		called = true
		return nil
	}))
	p, err := d.CompileLibrary("@compute @workgroup_size(1) fn k() {}", device.CompileOptions{})
	require.NoError(t, err)

	s := d.NewStream()
	require.NoError(t, s.Dispatch(p[0], 0))
	require.NoError(t, s.Commit())
	require.NoError(t, s.Wait(context.Background()))
	assert.False(t, called)
}
