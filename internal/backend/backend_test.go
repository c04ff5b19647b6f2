package backend

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gsort/internal/device"
)

func TestOpen_CPU(t *testing.T) {
	d, err := Open(CPU, Options{CPUWorkers: 2, CPUMemoryLimit: 1 << 20})
	require.NoError(t, err)
	defer d.Release()
	assert.True(t, strings.HasPrefix(d.Name(), "CPU"))

	_, err = d.NewBuffer(2<<20, device.HostCoherent)
	require.ErrorIs(t, err, device.ErrOutOfMemory)
}

func TestOpen_Auto(t *testing.T) {
	d, err := Open(Auto, Options{})
	require.NoError(t, err)
	defer d.Release()
	if runtime.GOOS != "windows" {
		assert.True(t, strings.HasPrefix(d.Name(), "CPU"))
	}
}

func TestOpen_WebGPUUnavailable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("WebGPU may be present")
	}
	_, err := Open(WebGPU, Options{})
	require.ErrorIs(t, err, device.ErrUnavailable)
}

func TestOpen_Unknown(t *testing.T) {
	_, err := Open("metal", Options{})
	require.Error(t, err)
}
