package platform

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTypeString(t *testing.T) {
	assert.Equal(t, "GPU", GPU.String())
	assert.Equal(t, "CPU", CPU.String())
	assert.Equal(t, "PINNED", Pinned.String())
	assert.Equal(t, "MemoryType(7)", MemoryType(7).String())
}

func TestParseMemoryType(t *testing.T) {
	tests := []struct {
		in   string
		want MemoryType
	}{
		{"GPU", GPU},
		{"device", GPU},
		{"cpu", CPU},
		{" Host ", CPU},
		{"PINNED", Pinned},
	}
	for _, tt := range tests {
		got, err := ParseMemoryType(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseMemoryType("tpu")
	assert.Error(t, err)
}

func TestRegistryClassify(t *testing.T) {
	r := NewRegistry()
	backing := make([]byte, 256)
	base := unsafe.Pointer(&backing[0])

	require.NoError(t, r.Register(unsafe.Add(base, 64), 64, Pinned, "staging"))

	assert.Equal(t, CPU, r.Classify(base))
	assert.Equal(t, CPU, r.Classify(unsafe.Add(base, 63)))
	assert.Equal(t, Pinned, r.Classify(unsafe.Add(base, 64)))
	assert.Equal(t, Pinned, r.Classify(unsafe.Add(base, 127)))
	assert.Equal(t, CPU, r.Classify(unsafe.Add(base, 128)))
	assert.Equal(t, CPU, r.Classify(nil))

	region, ok := r.Lookup(unsafe.Add(base, 100))
	require.True(t, ok)
	assert.Equal(t, "staging", region.Label)
	assert.Equal(t, 64, region.Bytes)

	r.Unregister(unsafe.Add(base, 64))
	assert.Equal(t, CPU, r.Classify(unsafe.Add(base, 100)))
	assert.Empty(t, r.Regions())
}

func TestRegistryRejectsOverlap(t *testing.T) {
	r := NewRegistry()
	backing := make([]byte, 256)
	base := unsafe.Pointer(&backing[0])

	require.NoError(t, r.Register(unsafe.Add(base, 64), 64, GPU, "a"))

	err := r.Register(unsafe.Add(base, 100), 64, Pinned, "b")
	assert.ErrorIs(t, err, ErrOverlap)

	err = r.Register(unsafe.Add(base, 32), 64, Pinned, "c")
	assert.ErrorIs(t, err, ErrOverlap)

	require.NoError(t, r.Register(unsafe.Add(base, 128), 64, Pinned, "d"))
	require.NoError(t, r.Register(base, 64, Pinned, "e"))

	regions := r.Regions()
	require.Len(t, regions, 3)
	assert.Equal(t, "e", regions[0].Label)
	assert.Equal(t, "a", regions[1].Label)
	assert.Equal(t, "d", regions[2].Label)
}

func TestRegistryIgnoresHostAndEmpty(t *testing.T) {
	r := NewRegistry()
	backing := make([]byte, 16)
	base := unsafe.Pointer(&backing[0])

	require.NoError(t, r.Register(base, 16, CPU, "host"))
	require.NoError(t, r.Register(base, 0, GPU, "empty"))
	require.NoError(t, r.Register(nil, 16, GPU, "nil"))
	assert.Empty(t, r.Regions())
}
