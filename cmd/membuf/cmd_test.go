package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/membuf/internal/alloc"
	"github.com/born-ml/membuf/internal/buffer"
	"github.com/born-ml/membuf/internal/serialization"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newCLI()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute(), out.String())
	return out.String()
}

func TestPackInspectExport(t *testing.T) {
	for _, key := range []string{"BORN_DEVICE", "BORN_POOL_MAX_BLOCKS", "BORN_PINNED_LOCK", "BORN_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "in.safetensors")
	packed := filepath.Join(dir, "packed.bbuf")
	back := filepath.Join(dir, "back.safetensors")

	require.NoError(t, serialization.WriteSafeTensors(src, map[string]buffer.ConstBuffer{
		"weight": buffer.WrapSlice([]float32{1, 2, 3}),
		"ids":    buffer.WrapSlice([]int32{4, 5, 6, 7, 8}),
	}, map[string]string{"source": "unit"}))

	out := run(t, "pack", packed, src, "--log-level", "error")
	assert.Contains(t, out, "wrote 2 buffers")

	out = run(t, "inspect", packed, "--verify", "--log-level", "error")
	assert.Contains(t, out, "source = unit")
	assert.Contains(t, out, "weight")
	assert.Contains(t, out, "[1 2 3]")
	assert.Contains(t, out, "[4 5 6 7 ...]")

	out = run(t, "export", packed, back, "--log-level", "error")
	assert.Contains(t, out, "wrote 2 tensors")

	got, metadata, err := serialization.ReadSafeTensors(back, alloc.NewHost())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"source": "unit"}, metadata)
	ids, err := buffer.Cast[int32](got["ids"])
	require.NoError(t, err)
	assert.Equal(t, []int32{4, 5, 6, 7, 8}, ids)
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "membuf "+version+"\n", run(t, "version"))
}

func TestDevicesListsHostMemory(t *testing.T) {
	out := run(t, "devices", "--log-level", "error")
	assert.Contains(t, out, "CPU")
	assert.Contains(t, out, "ok")
}

func TestRejectsBadMemoryFlag(t *testing.T) {
	cmd := newCLI()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"devices", "--memory", "tpu"})
	assert.Error(t, cmd.Execute())
}
