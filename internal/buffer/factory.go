package buffer

import (
	"fmt"
	"unsafe"

	"github.com/born-ml/membuf/internal/platform"
)

// sharer is implemented by every buffer variant in this package.
type sharer interface {
	share() (*storage, int)
}

func slice(b ConstBuffer, offset, size int) (*view, error) {
	sh, ok := b.(sharer)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrForeignBuffer, b)
	}

	capacity := b.Capacity()
	if offset < 0 || size < 0 || offset > capacity || size > capacity-offset {
		return nil, fmt.Errorf("%w: slice [%d, %d) of capacity %d",
			ErrOutOfCapacity, offset, offset+size, capacity)
	}

	v := &view{}
	v.dtype = b.DataType()
	v.memory = b.MemoryType()
	v.size = size
	v.capacity = capacity - offset
	if s, base := sh.share(); s != nil {
		bindStorage(v, &v.handle, s, base+offset*v.dtype.Size())
	}
	return v, nil
}

// Slice returns a view of elements [offset, offset+size) of b. The view
// keeps b's storage alive and can later grow up to b.Capacity()-offset.
func Slice(b Buffer, offset, size int) (Buffer, error) {
	v, err := slice(b, offset, size)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// SliceFrom returns a view of b from offset to b.Size().
func SliceFrom(b Buffer, offset int) (Buffer, error) {
	return Slice(b, offset, b.Size()-offset)
}

// View returns a view of all of b whose size can change independently of b.
func View(b Buffer) (Buffer, error) {
	return SliceFrom(b, 0)
}

// ViewSize returns View(b) resized to size.
func ViewSize(b Buffer, size int) (Buffer, error) {
	v, err := View(b)
	if err != nil {
		return nil, err
	}
	if err := v.Resize(size); err != nil {
		v.Release()
		return nil, err
	}
	return v, nil
}

// SliceConst is Slice for read-only buffers. The shared storage is reused,
// not copied.
func SliceConst(b ConstBuffer, offset, size int) (ConstBuffer, error) {
	v, err := slice(b, offset, size)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// SliceFromConst is SliceFrom for read-only buffers.
func SliceFromConst(b ConstBuffer, offset int) (ConstBuffer, error) {
	return SliceConst(b, offset, b.Size()-offset)
}

// ViewConst is View for read-only buffers.
func ViewConst(b ConstBuffer) (ConstBuffer, error) {
	return SliceFromConst(b, 0)
}

// ViewSizeConst is ViewSize for read-only buffers.
func ViewSizeConst(b ConstBuffer, size int) (ConstBuffer, error) {
	v, err := slice(b, 0, b.Size())
	if err != nil {
		return nil, err
	}
	if err := v.Resize(size); err != nil {
		v.Release()
		return nil, err
	}
	return v, nil
}

func wrap(ptr unsafe.Pointer, dt BufferDataType, size, capacity int, keep any) (*wrapped, error) {
	if err := dt.Validate(); err != nil {
		return nil, err
	}
	if size < 0 || capacity < 0 || size > capacity {
		return nil, fmt.Errorf("%w: size %d, capacity %d", ErrOutOfCapacity, size, capacity)
	}
	if ptr == nil && capacity > 0 {
		return nil, fmt.Errorf("%w: capacity %d", ErrNilPointer, capacity)
	}

	b := &wrapped{}
	b.dtype = dt
	b.memory = MemoryTypeOf(ptr)
	b.size = size
	b.capacity = capacity
	if ptr != nil {
		bindStorage(b, &b.handle, newBorrowedStorage(ptr, capacity*dt.Size(), b.memory, keep), 0)
	}
	return b, nil
}

// Wrap returns a non-owning buffer over capacity elements at ptr. The memory
// type is classified from ptr. The buffer never frees ptr and cannot grow
// past capacity.
func Wrap(ptr unsafe.Pointer, dt BufferDataType, size, capacity int) (Buffer, error) {
	b, err := wrap(ptr, dt, size, capacity, nil)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// WrapSize is Wrap with capacity equal to size.
func WrapSize(ptr unsafe.Pointer, dt BufferDataType, size int) (Buffer, error) {
	return Wrap(ptr, dt, size, size)
}

// WrapPointer wraps capacity elements of type T starting at p.
func WrapPointer[T Element](p *T, size, capacity int) (Buffer, error) {
	return Wrap(unsafe.Pointer(p), TagOf[T](), size, capacity)
}

// WrapPointerSize is WrapPointer with capacity equal to size.
func WrapPointerSize[T Element](p *T, size int) (Buffer, error) {
	return WrapPointer(p, size, size)
}

// WrapSlice wraps s without copying: size is len(s) and capacity is cap(s).
// The buffer keeps s reachable.
func WrapSlice[T Element](s []T) Buffer {
	var ptr unsafe.Pointer
	if cap(s) > 0 {
		ptr = unsafe.Pointer(unsafe.SliceData(s))
	}
	b, err := wrap(ptr, TagOf[T](), len(s), cap(s), s)
	if err != nil {
		// len <= cap and the tag comes from the registry.
		panic(err)
	}
	return b
}

// MemoryTypeOf asks the platform where the byte at ptr lives.
func MemoryTypeOf(ptr unsafe.Pointer) platform.MemoryType {
	return platform.Classify(ptr)
}
