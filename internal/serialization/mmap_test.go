package serialization

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/membuf/internal/alloc"
	"github.com/born-ml/membuf/internal/buffer"
)

func TestMmapReader(t *testing.T) {
	r, err := NewMmapReader(writeTestFile(t))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, uint32(FormatVersion), r.Version())
	assert.Equal(t, FlagHasMetadata, r.Flags()&FlagHasMetadata)
	assert.Equal(t, []string{"weights", "scale", "ids", "empty", "mask"}, r.BufferNames())
	require.NoError(t, r.VerifyChecksum())

	data, err := r.BufferData("weights")
	require.NoError(t, err)
	assert.Len(t, data, 16)

	b, err := r.Buffer("weights")
	require.NoError(t, err)
	assert.Equal(t, buffer.Float.Tag(), b.DataType())
	assert.False(t, buffer.Owns(b))

	weights, err := buffer.Cast[float32](b)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2.5, -3, 4}, weights)

	empty, err := r.Buffer("empty")
	require.NoError(t, err)
	assert.Zero(t, empty.Size())
	assert.Nil(t, empty.Data())
}

func TestMmapReaderLoadBufferCopies(t *testing.T) {
	r, err := NewMmapReader(writeTestFile(t))
	require.NoError(t, err)

	b, err := r.LoadBuffer("ids", alloc.NewHost())
	require.NoError(t, err)
	defer b.Release()

	dataCopy, err := r.BufferDataCopy("mask")
	require.NoError(t, err)

	require.NoError(t, r.Close())

	ids, err := buffer.Cast[uint32](b)
	require.NoError(t, err)
	assert.Equal(t, []uint32{7, 1 << 31}, ids)
	assert.Equal(t, []byte{1, 0, 1}, dataCopy)

	_, err = r.BufferData("ids")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, r.VerifyChecksum(), ErrClosed)
}

func TestMmapReaderVerifyChecksum(t *testing.T) {
	path := writeTestFile(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-2] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o600))

	// Opening only reads the header.
	r, err := NewMmapReader(path)
	require.NoError(t, err)
	defer r.Close()

	assert.ErrorIs(t, r.VerifyChecksum(), ErrChecksumMismatch)
}

func TestMmapReaderRejectsSmallFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.bbuf")
	require.NoError(t, os.WriteFile(path, []byte(MagicBytes), 0o600))

	_, err := NewMmapReader(path)
	assert.ErrorContains(t, err, "file too small")
}

func TestMmapReaderNotFound(t *testing.T) {
	_, err := NewMmapReader(filepath.Join(t.TempDir(), "missing.bbuf"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
