package buffer

import (
	"fmt"
	"iter"
	"runtime"
	"unsafe"
)

// Cast returns the valid elements of b as []T aliasing the storage.
// It fails with ErrTypeMismatch when T's canonical identifier differs from
// the buffer's; signedness is not compared, so uint32 reads an Int32 buffer.
//
// The slice does not keep b reachable. An unreachable handle drops its
// storage, so b must stay reachable while the slice is used; call
// runtime.KeepAlive(b) after the last access, or use NewRange.
func Cast[T Element](b ConstBuffer) ([]T, error) {
	want := TagOf[T]()
	if got := b.DataType(); want.Canonical() != got.Canonical() {
		return nil, fmt.Errorf("%w: buffer holds %s, requested %s", ErrTypeMismatch, got, want)
	}
	return sliceOf[T](b.Data(), b.Size()), nil
}

// MutableCast is Cast for writable buffers, with the same type check and the
// same reachability requirement on b.
func MutableCast[T Element](b Buffer) ([]T, error) {
	return Cast[T](b)
}

// UnsafeCast reinterprets the valid bytes of b as []T without checking the
// data type. The length is SizeInBytes divided by the width of T.
// As with Cast, b must stay reachable while the slice is used.
func UnsafeCast[T Element](b Buffer) []T {
	var zero T
	return sliceOf[T](b.Data(), b.SizeInBytes()/int(unsafe.Sizeof(zero)))
}

// Range is a typed window over the elements a buffer held when the range was
// built. The range keeps its source handle reachable, but it does not follow
// it: after Resize or Release on the source the window may point at freed or
// reallocated memory and must not be used.
type Range[T Element] struct {
	src  ConstBuffer
	data []T
}

// NewRange type-checks b once and captures its data pointer and size.
func NewRange[T Element](b Buffer) (Range[T], error) {
	data, err := MutableCast[T](b)
	if err != nil {
		return Range[T]{}, err
	}
	return Range[T]{src: b, data: data}, nil
}

// Len returns the element count captured at construction.
func (r Range[T]) Len() int { return len(r.data) }

// At returns element i. It panics when i is out of range.
func (r Range[T]) At(i int) T {
	v := r.data[i]
	runtime.KeepAlive(r.src)
	return v
}

// Set stores v at element i. It panics when i is out of range.
func (r Range[T]) Set(i int, v T) {
	r.data[i] = v
	runtime.KeepAlive(r.src)
}

// Slice returns the window as a slice aliasing the storage. The slice alone
// does not keep the source reachable; keep r alive while using it.
func (r Range[T]) Slice() []T { return r.data }

// All yields index/value pairs in order.
func (r Range[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		defer runtime.KeepAlive(r.src)
		for i, v := range r.data {
			if !yield(i, v) {
				return
			}
		}
	}
}

// Values yields the elements in order.
func (r Range[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		defer runtime.KeepAlive(r.src)
		for _, v := range r.data {
			if !yield(v) {
				return
			}
		}
	}
}
