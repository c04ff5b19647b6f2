//go:build windows

package webgpu

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gsort/internal/device"
	"github.com/born-ml/gsort/kernels"
)

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	if !IsAvailable() {
		t.Skip("WebGPU not available")
	}
	d, err := New()
	require.NoError(t, err)
	t.Cleanup(d.Release)
	return d
}

func TestNew_ReportsUnavailable(t *testing.T) {
	d, err := New()
	if err != nil {
		assert.ErrorIs(t, err, device.ErrUnavailable)
		assert.False(t, IsAvailable())
		return
	}
	defer d.Release()
	assert.True(t, IsAvailable())
	assert.Contains(t, d.Name(), "WebGPU")
}

func TestClassify(t *testing.T) {
	assert.Equal(t, smallClass, classify(16))
	assert.Equal(t, mediumClass, classify(smallThreshold))
	assert.Equal(t, largeClass, classify(mediumThreshold))
}

func TestStagingPool_Reuse(t *testing.T) {
	d := newTestDevice(t)
	pool := d.staging

	buf, size := pool.acquire(1024)
	assert.Equal(t, uint64(1024), size)
	pool.release(buf, size)

	again, size := pool.acquire(512)
	assert.Equal(t, uint64(1024), size)
	pool.release(again, size)

	stats := pool.stats()
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, 1, stats.Pooled)
}

func TestSum(t *testing.T) {
	d := newTestDevice(t)

	src, err := fs.ReadFile(kernels.FS, "sum.wgsl")
	require.NoError(t, err)
	pipelines, err := d.CompileLibrary(string(src), device.CompileOptions{Label: "sum.wgsl"})
	require.NoError(t, err)
	require.Len(t, pipelines, 1)

	a, err := d.NewBufferWithBytes([]byte{0, 0, 128, 63, 0, 0, 128, 63}, device.ExplicitSync) // 1.0, 1.0
	require.NoError(t, err)
	out, err := d.NewBuffer(8, device.ExplicitSync)
	require.NoError(t, err)

	s := d.NewStream()
	require.NoError(t, s.Dispatch(pipelines[0], 1,
		device.Binding{Slot: 0, Buffer: a},
		device.Binding{Slot: 1, Buffer: a},
		device.Binding{Slot: 2, Buffer: out},
	))
	s.Synchronize(out)
	require.NoError(t, s.Commit())
	require.NoError(t, s.Wait(context.Background()))

	assert.Equal(t, []byte{0, 0, 0, 64, 0, 0, 0, 64}, out.Contents()) // 2.0, 2.0
}
