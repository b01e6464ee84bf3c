package buffer

import (
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/born-ml/membuf/internal/platform"
)

// countingAllocator hands out Go-heap blocks and records how many are live.
type countingAllocator struct {
	memory platform.MemoryType
	allocs atomic.Int32
	frees  atomic.Int32
	fail   error
}

type countingBlock struct {
	words []uint64
	n     int
	owner *countingAllocator
	freed atomic.Bool
}

func (b *countingBlock) Pointer() unsafe.Pointer {
	if len(b.words) == 0 {
		return nil
	}
	return unsafe.Pointer(&b.words[0])
}

func (b *countingBlock) Len() int { return b.n }

func (b *countingBlock) Free() error {
	if !b.freed.CompareAndSwap(false, true) {
		return errors.New("double free")
	}
	b.owner.frees.Add(1)
	return nil
}

func (a *countingAllocator) MemoryType() platform.MemoryType { return a.memory }

func (a *countingAllocator) Allocate(nbytes int) (Block, error) {
	if a.fail != nil {
		return nil, a.fail
	}
	a.allocs.Add(1)
	return &countingBlock{words: make([]uint64, (nbytes+7)/8), n: nbytes, owner: a}, nil
}

func (a *countingAllocator) live() int32 { return a.allocs.Load() - a.frees.Load() }

func newHost() *countingAllocator {
	return &countingAllocator{memory: platform.CPU}
}

func fill[T Element](t *testing.T, b Buffer, values ...T) {
	t.Helper()
	data, err := MutableCast[T](b)
	require.NoError(t, err)
	require.Len(t, data, len(values))
	copy(data, values)
}

func TestAllocate(t *testing.T) {
	a := newHost()
	b, err := Allocate(a, Float.Tag(), 10)
	require.NoError(t, err)
	defer b.Release()

	assert.True(t, Owns(b))
	assert.Equal(t, 10, b.Size())
	assert.Equal(t, 10, b.Capacity())
	assert.Equal(t, 40, b.SizeInBytes())
	assert.Len(t, b.Bytes(), 40)
	assert.Equal(t, platform.CPU, b.MemoryType())
	assert.NotNil(t, b.Data())
	assert.EqualValues(t, 1, a.allocs.Load())
}

func TestAllocateEmpty(t *testing.T) {
	a := newHost()
	b, err := Allocate(a, Half.Tag(), 0)
	require.NoError(t, err)

	assert.Nil(t, b.Data())
	assert.Nil(t, b.DataAt(3))
	assert.Nil(t, b.Bytes())
	assert.Zero(t, a.allocs.Load())
}

func TestAllocateErrors(t *testing.T) {
	a := newHost()

	_, err := Allocate(a, DataType(77).Tag(), 4)
	assert.ErrorIs(t, err, ErrUnsupportedDataType)

	_, err = Allocate(a, Float.Tag(), -1)
	assert.ErrorIs(t, err, ErrOutOfCapacity)

	boom := errors.New("device lost")
	a.fail = boom
	_, err = Allocate(a, Float.Tag(), 4)
	assert.ErrorIs(t, err, boom)
}

func TestOwnedResize(t *testing.T) {
	a := newHost()
	b, err := Allocate(a, Int32.Tag(), 8)
	require.NoError(t, err)
	defer b.Release()

	require.NoError(t, b.Resize(4))
	assert.Equal(t, 4, b.Size())
	assert.Equal(t, 8, b.Capacity())
	assert.EqualValues(t, 1, a.allocs.Load(), "shrinking must not reallocate")

	require.NoError(t, b.Resize(8))
	assert.EqualValues(t, 1, a.allocs.Load(), "growing within capacity must not reallocate")

	require.NoError(t, b.Resize(20))
	assert.Equal(t, 20, b.Size())
	assert.Equal(t, 20, b.Capacity())
	assert.EqualValues(t, 2, a.allocs.Load())
	assert.EqualValues(t, 1, a.frees.Load(), "old storage has no other holder")

	err = b.Resize(-1)
	assert.ErrorIs(t, err, ErrOutOfCapacity)
	assert.Equal(t, 20, b.Size())
}

func TestOwnedResizeFailureLeavesBuffer(t *testing.T) {
	a := newHost()
	b, err := Allocate(a, Float.Tag(), 2)
	require.NoError(t, err)
	defer b.Release()
	before := b.Data()

	a.fail = errors.New("out of memory")
	require.Error(t, b.Resize(100))
	assert.Equal(t, 2, b.Size())
	assert.Equal(t, 2, b.Capacity())
	assert.Equal(t, before, b.Data())
}

func TestReleaseIsIdempotent(t *testing.T) {
	a := newHost()
	b, err := Allocate(a, Float.Tag(), 3)
	require.NoError(t, err)

	b.Release()
	b.Release()

	assert.Zero(t, b.Size())
	assert.Zero(t, b.Capacity())
	assert.Nil(t, b.Data())
	assert.EqualValues(t, 1, a.frees.Load())
	assert.Equal(t, Float.Tag(), b.DataType(), "data type survives release")
	assert.Equal(t, platform.CPU, b.MemoryType(), "memory type survives release")
}

func TestSliceSharesStorage(t *testing.T) {
	a := newHost()
	parent, err := Allocate(a, Int32.Tag(), 10)
	require.NoError(t, err)
	defer parent.Release()
	fill[int32](t, parent, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9)

	s, err := Slice(parent, 2, 3)
	require.NoError(t, err)
	defer s.Release()

	assert.False(t, Owns(s))
	assert.Equal(t, 3, s.Size())
	assert.Equal(t, 8, s.Capacity())
	assert.Equal(t, parent.DataAt(2), s.Data())
	assert.Equal(t, parent.Bytes()[8:20], s.Bytes())

	got, err := Cast[int32](s)
	require.NoError(t, err)
	if diff := cmp.Diff([]int32{2, 3, 4}, got); diff != "" {
		t.Errorf("slice contents mismatch (-want +got):\n%s", diff)
	}

	// Writes through the slice are visible in the parent.
	got[0] = 42
	parentData, err := Cast[int32](parent)
	require.NoError(t, err)
	assert.Equal(t, int32(42), parentData[2])
}

func TestSliceBounds(t *testing.T) {
	a := newHost()
	parent, err := Allocate(a, Float.Tag(), 6)
	require.NoError(t, err)
	defer parent.Release()
	require.NoError(t, parent.Resize(4))

	// The window may reach past size up to capacity.
	s, err := Slice(parent, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Capacity())
	s.Release()

	for _, tc := range []struct{ offset, size int }{
		{7, 0},
		{0, 7},
		{5, 2},
		{-1, 1},
		{1, -1},
	} {
		_, err := Slice(parent, tc.offset, tc.size)
		assert.ErrorIs(t, err, ErrOutOfCapacity, "offset %d size %d", tc.offset, tc.size)
	}

	tail, err := SliceFrom(parent, 1)
	require.NoError(t, err)
	defer tail.Release()
	assert.Equal(t, 3, tail.Size())
	assert.Equal(t, 5, tail.Capacity())
}

func TestViewResizeIsIndependent(t *testing.T) {
	a := newHost()
	parent, err := Allocate(a, Float.Tag(), 8)
	require.NoError(t, err)
	defer parent.Release()

	v, err := View(parent)
	require.NoError(t, err)
	defer v.Release()

	require.NoError(t, v.Resize(3))
	assert.Equal(t, 3, v.Size())
	assert.Equal(t, 8, parent.Size())

	err = v.Resize(9)
	assert.ErrorIs(t, err, ErrOutOfCapacity)
	assert.Equal(t, 3, v.Size())

	sized, err := ViewSize(parent, 5)
	require.NoError(t, err)
	defer sized.Release()
	assert.Equal(t, 5, sized.Size())
	assert.Equal(t, parent.Data(), sized.Data())

	_, err = ViewSize(parent, 9)
	assert.ErrorIs(t, err, ErrOutOfCapacity)
}

func TestViewOutlivesParent(t *testing.T) {
	a := newHost()
	parent, err := Allocate(a, Int64.Tag(), 4)
	require.NoError(t, err)
	fill[int64](t, parent, 10, 20, 30, 40)

	v, err := Slice(parent, 1, 2)
	require.NoError(t, err)

	parent.Release()
	assert.Zero(t, a.frees.Load(), "the view still holds the storage")

	got, err := Cast[int64](v)
	require.NoError(t, err)
	assert.Equal(t, []int64{20, 30}, got)

	v.Release()
	assert.EqualValues(t, 1, a.frees.Load())
	assert.Zero(t, a.live())
}

// droppedParentView returns a view whose parent is unreachable and was never
// released.
func droppedParentView(t *testing.T, a *countingAllocator) Buffer {
	t.Helper()
	parent, err := Allocate(a, Int64.Tag(), 4)
	require.NoError(t, err)
	fill[int64](t, parent, 10, 20, 30, 40)
	v, err := Slice(parent, 1, 2)
	require.NoError(t, err)
	return v
}

func TestUnreachableHandlesDropStorage(t *testing.T) {
	a := newHost()
	v := droppedParentView(t, a)

	for range 5 {
		runtime.GC()
		time.Sleep(time.Millisecond)
	}
	assert.Zero(t, a.frees.Load(), "the view still holds the storage")
	got, err := Cast[int64](v)
	require.NoError(t, err)
	assert.Equal(t, []int64{20, 30}, got)
	runtime.KeepAlive(v)

	assert.Eventually(t, func() bool {
		runtime.GC()
		return a.frees.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	for range 3 {
		runtime.GC()
		time.Sleep(time.Millisecond)
	}
	assert.EqualValues(t, 1, a.frees.Load())
	assert.Zero(t, a.live())
}

func TestViewSurvivesParentRealloc(t *testing.T) {
	a := newHost()
	parent, err := Allocate(a, Int32.Tag(), 2)
	require.NoError(t, err)
	defer parent.Release()
	fill[int32](t, parent, 5, 6)

	v, err := View(parent)
	require.NoError(t, err)

	require.NoError(t, parent.Resize(64))
	assert.EqualValues(t, 2, a.allocs.Load())
	assert.Zero(t, a.frees.Load(), "the view keeps the first block")

	got, err := Cast[int32](v)
	require.NoError(t, err)
	assert.Equal(t, []int32{5, 6}, got)
	assert.NotEqual(t, parent.Data(), v.Data())

	v.Release()
	assert.EqualValues(t, 1, a.frees.Load())
}

func TestViewOfView(t *testing.T) {
	a := newHost()
	parent, err := Allocate(a, UInt8.Tag(), 16)
	require.NoError(t, err)
	defer parent.Release()

	outer, err := Slice(parent, 4, 8)
	require.NoError(t, err)
	defer outer.Release()

	inner, err := Slice(outer, 2, 2)
	require.NoError(t, err)
	defer inner.Release()

	assert.Equal(t, parent.DataAt(6), inner.Data())
	assert.Equal(t, 10, inner.Capacity())
}

func TestWrapFixedCapacity(t *testing.T) {
	backing := make([]int32, 8)
	b, err := Wrap(unsafe.Pointer(&backing[0]), Int32.Tag(), 8, 8)
	require.NoError(t, err)

	assert.False(t, Owns(b))
	assert.Equal(t, platform.CPU, b.MemoryType())

	err = b.Resize(10)
	assert.ErrorIs(t, err, ErrOutOfCapacity)
	assert.Equal(t, 8, b.Size())

	require.NoError(t, b.Resize(5))
	assert.Equal(t, 5, b.Size())
	assert.Equal(t, 8, b.Capacity())

	b.Release()
	assert.Nil(t, b.Data())
	assert.Len(t, backing, 8)
}

func TestWrapClassifiesRegisteredMemory(t *testing.T) {
	backing := make([]float32, 16)
	ptr := unsafe.Pointer(&backing[0])
	require.NoError(t, platform.Default().Register(ptr, 64, platform.GPU, "test"))
	defer platform.Default().Unregister(ptr)

	b, err := WrapSize(unsafe.Add(ptr, 16), Float.Tag(), 4)
	require.NoError(t, err)
	defer b.Release()
	assert.Equal(t, platform.GPU, b.MemoryType())

	s, err := SliceConst(b, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, platform.GPU, s.MemoryType())
}

func TestWrapErrors(t *testing.T) {
	x := int32(0)

	_, err := Wrap(unsafe.Pointer(&x), Int32.Tag(), 2, 1)
	assert.ErrorIs(t, err, ErrOutOfCapacity)

	_, err = Wrap(nil, Int32.Tag(), 0, 4)
	assert.ErrorIs(t, err, ErrNilPointer)

	_, err = Wrap(unsafe.Pointer(&x), DataType(12).Tag(), 1, 1)
	assert.ErrorIs(t, err, ErrUnsupportedDataType)

	empty, err := Wrap(nil, Int32.Tag(), 0, 0)
	require.NoError(t, err)
	assert.Nil(t, empty.Data())
	assert.Equal(t, platform.CPU, empty.MemoryType())
}

func TestWrapPointerAndSlice(t *testing.T) {
	values := make([]uint32, 3, 6)
	values[1] = 9

	b, err := WrapPointer(&values[0], 3, 6)
	require.NoError(t, err)
	defer b.Release()
	assert.Equal(t, NewBufferDataType(Int32, true, false), b.DataType())

	fixed, err := WrapPointerSize(&values[1], 2)
	require.NoError(t, err)
	defer fixed.Release()
	assert.Equal(t, 2, fixed.Capacity())
	assert.ErrorIs(t, fixed.Resize(3), ErrOutOfCapacity)
	got, err := Cast[uint32](fixed)
	require.NoError(t, err)
	assert.Equal(t, []uint32{9, 0}, got)

	s := WrapSlice(values)
	defer s.Release()
	assert.Equal(t, 3, s.Size())
	assert.Equal(t, 6, s.Capacity())
	require.NoError(t, s.Resize(6))

	got, err = Cast[uint32](s)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 9, 0, 0, 0, 0}, got)

	none := WrapSlice[float32](nil)
	assert.Nil(t, none.Data())
	assert.Zero(t, none.Capacity())
}

func TestCast(t *testing.T) {
	b := WrapSlice([]float32{1, 2, 3})

	got, err := Cast[float32](b)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, got)

	_, err = Cast[float16.Float16](b)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = MutableCast[int32](b)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	// Signedness is not part of the check.
	ints := WrapSlice([]int32{-1})
	unsigned, err := Cast[uint32](ints)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFFFFFFFF), unsigned[0])
}

func TestUnsafeCast(t *testing.T) {
	b := WrapSlice([]uint32{0x01020304, 0x05060708})
	bytes := UnsafeCast[uint8](b)
	assert.Len(t, bytes, 8)

	halves := UnsafeCast[int64](b)
	assert.Len(t, halves, 1)
}

func TestRange(t *testing.T) {
	a := newHost()
	b, err := Allocate(a, Int32.Tag(), 5)
	require.NoError(t, err)
	defer b.Release()
	fill[int32](t, b, 1, 2, 3, 4, 5)

	r, err := NewRange[int32](b)
	require.NoError(t, err)
	assert.Equal(t, 5, r.Len())

	var seen []int32
	for i, v := range r.All() {
		assert.Equal(t, r.At(i), v)
		seen = append(seen, v)
	}
	assert.Equal(t, []int32{1, 2, 3, 4, 5}, seen)

	r.Set(0, 100)
	data, err := Cast[int32](b)
	require.NoError(t, err)
	assert.Equal(t, int32(100), data[0])

	var sum int32
	for v := range r.Values() {
		if v == 4 {
			break
		}
		sum += v
	}
	assert.Equal(t, int32(105), sum)

	_, err = NewRange[float32](b)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestBufferString(t *testing.T) {
	a := newHost()
	b, err := Allocate(a, Half.Tag(), 6)
	require.NoError(t, err)
	defer b.Release()
	require.NoError(t, b.Resize(2))

	assert.Equal(t, "[float16 size=2 capacity=6 memory=CPU]", b.String())
}

type foreign struct{ ConstBuffer }

func TestSliceForeignBuffer(t *testing.T) {
	_, err := SliceConst(foreign{WrapSlice([]int8{1})}, 0, 1)
	assert.ErrorIs(t, err, ErrForeignBuffer)
}

func TestConstVariants(t *testing.T) {
	var b ConstBuffer = WrapSlice([]int64{1, 2, 3, 4})

	v, err := ViewConst(b)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Size())

	tail, err := SliceFromConst(b, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, tail.Size())
	assert.Equal(t, b.DataAt(3), tail.Data())

	short, err := ViewSizeConst(b, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, short.Size())

	_, err = ViewSizeConst(b, 5)
	assert.ErrorIs(t, err, ErrOutOfCapacity)
}
