package buffer

import (
	"math"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestTagOf(t *testing.T) {
	assert.Equal(t, Float.Tag(), TagOf[float32]())
	assert.Equal(t, Half.Tag(), TagOf[float16.Float16]())
	assert.Equal(t, BF16.Tag(), TagOf[BFloat16]())
	assert.Equal(t, FP8.Tag(), TagOf[FP8E4M3]())
	assert.Equal(t, Int8.Tag(), TagOf[int8]())
	assert.Equal(t, UInt8.Tag(), TagOf[uint8]())
	assert.Equal(t, Int32.Tag(), TagOf[int32]())
	assert.Equal(t, NewBufferDataType(Int32, true, false), TagOf[uint32]())
	assert.Equal(t, Int64.Tag(), TagOf[int64]())
	assert.Equal(t, NewBufferDataType(Int64, true, false), TagOf[uint64]())
	assert.Equal(t, Bool.Tag(), TagOf[bool]())
	assert.Equal(t, PointerDataType.Tag(), TagOf[uintptr]())
}

func TestPointerTagOf(t *testing.T) {
	tag := PointerTagOf[uint32]()
	assert.True(t, tag.IsPointer())
	assert.True(t, tag.IsUnsigned())
	assert.Equal(t, Int32, tag.ID())
	assert.Equal(t, PointerDataType, tag.Canonical())

	tag = PointerTagOf[float16.Float16]()
	assert.Equal(t, Half, tag.ID())
	assert.False(t, tag.IsUnsigned())
}

func TestHostType(t *testing.T) {
	tests := []struct {
		tag  BufferDataType
		want reflect.Type
	}{
		{Float.Tag(), reflect.TypeFor[float32]()},
		{Half.Tag(), reflect.TypeFor[float16.Float16]()},
		{NewBufferDataType(Int32, true, false), reflect.TypeFor[uint32]()},
		{Int64.Tag(), reflect.TypeFor[int64]()},
		{NewBufferDataType(Float, false, true), reflect.TypeFor[uintptr]()},
	}
	for _, tt := range tests {
		got, err := HostType(tt.tag)
		require.NoError(t, err, tt.tag.String())
		assert.Equal(t, tt.want, got, tt.tag.String())
	}

	_, err := HostType(DataType(99).Tag())
	assert.ErrorIs(t, err, ErrUnsupportedDataType)
}

func TestElementAt(t *testing.T) {
	b := WrapSlice([]uint32{7, math.MaxUint32})

	v, err := ElementAt(b, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), v)

	_, err = ElementAt(b, 2)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	h := WrapSlice([]float16.Float16{float16.Fromfloat32(1.5)})
	v, err = ElementAt(h, 0)
	require.NoError(t, err)
	assert.Equal(t, float16.Fromfloat32(1.5), v)
}

func TestFloat32s(t *testing.T) {
	half := []float16.Float16{float16.Fromfloat32(0.5), float16.Fromfloat32(-2)}
	bf := []BFloat16{BFloat16FromFloat32(1.5), BFloat16FromFloat32(-4)}
	fp8 := []FP8E4M3{FP8FromFloat32(1), FP8FromFloat32(-0.25)}

	tests := []struct {
		name string
		buf  ConstBuffer
		want []float32
	}{
		{"float32", WrapSlice([]float32{1, 2.5}), []float32{1, 2.5}},
		{"float16", WrapSlice(half), []float32{0.5, -2}},
		{"bfloat16", WrapSlice(bf), []float32{1.5, -4}},
		{"fp8", WrapSlice(fp8), []float32{1, -0.25}},
		{"int8", WrapSlice([]int8{-3, 4}), []float32{-3, 4}},
		{"uint8", WrapSlice([]uint8{200}), []float32{200}},
		{"bool", WrapSlice([]bool{true, false}), []float32{1, 0}},
		{"int32", WrapSlice([]int32{-7}), []float32{-7}},
		{"uint32", WrapSlice([]uint32{4000000000}), []float32{4000000000}},
		{"int64", WrapSlice([]int64{1 << 40}), []float32{1 << 40}},
		{"uint64", WrapSlice([]uint64{9}), []float32{9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Float32s(tt.buf)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Float32s mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFloat32sLargeBuffers(t *testing.T) {
	const n = 100_003

	ints := make([]int32, n)
	halves := make([]BFloat16, n)
	for i := range ints {
		ints[i] = int32(i - n/2)
		halves[i] = BFloat16FromFloat32(float32(i % 256))
	}

	got, err := Float32s(WrapSlice(ints))
	require.NoError(t, err)
	require.Len(t, got, n)
	for i, v := range got {
		if v != float32(ints[i]) {
			t.Fatalf("element %d: got %v, want %v", i, v, ints[i])
		}
	}

	got, err = Float32s(WrapSlice(halves))
	require.NoError(t, err)
	for i, v := range got {
		if v != float32(i%256) {
			t.Fatalf("bfloat16 element %d: got %v, want %v", i, v, i%256)
		}
	}
}

func TestFloat32sRejectsPointers(t *testing.T) {
	words := []uintptr{0, 0}
	b, err := Wrap(WrapSlice(words).Data(), PointerTagOf[float32](), 2, 2)
	require.NoError(t, err)

	_, err = Float32s(b)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestBFloat16RoundTrip(t *testing.T) {
	for _, f := range []float32{0, 1, -1, 1.5, 256, -0.125} {
		assert.Equal(t, f, BFloat16FromFloat32(f).Float32(), "%v", f)
	}
	assert.Equal(t, BFloat16(0x3F80), BFloat16FromFloat32(1))
}

func TestFP8E4M3(t *testing.T) {
	tests := []struct {
		in   float32
		bits FP8E4M3
		out  float32
	}{
		{0, 0x00, 0},
		{1, 0x38, 1},
		{-1, 0xB8, -1},
		{448, 0x7E, 448},
		{1000, 0x7E, 448},
		{-1000, 0xFE, -448},
		{0.015625, 0x08, 0.015625},      // smallest normal, 2^-6
		{0.001953125, 0x01, 0.001953125}, // smallest subnormal, 2^-9
		{1.0625, 0x38, 1},                // ties to even
		{1.1875, 0x3A, 1.25},             // ties to even, rounds up
	}
	for _, tt := range tests {
		got := FP8FromFloat32(tt.in)
		assert.Equal(t, tt.bits, got, "encode %v", tt.in)
		assert.Equal(t, tt.out, got.Float32(), "decode %#x", uint8(got))
	}

	assert.True(t, math.IsNaN(float64(FP8FromFloat32(float32(math.NaN())).Float32())))
	assert.True(t, math.IsNaN(float64(FP8E4M3(0xFF).Float32())))
}
