// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package buffer

import (
	"unsafe"

	"github.com/born-ml/membuf/internal/buffer"
	"github.com/born-ml/membuf/internal/platform"
)

// Type aliases for public API

// DataType is an element type identifier.
type DataType = buffer.DataType

// Element type identifiers.
const (
	Float DataType = buffer.Float
	Half  DataType = buffer.Half
	Int8  DataType = buffer.Int8
	Int32 DataType = buffer.Int32
	Bool  DataType = buffer.Bool
	UInt8 DataType = buffer.UInt8
	FP8   DataType = buffer.FP8
	BF16  DataType = buffer.BF16
	Int64 DataType = buffer.Int64
)

// PointerDataType is the identifier that stores a pointer on this platform.
const PointerDataType = buffer.PointerDataType

// BufferDataType is an element tag: identifier, signedness and pointer flag.
//
//nolint:revive // matches the internal name
type BufferDataType = buffer.BufferDataType

// MemoryType is the memory class a buffer lives in.
type MemoryType = platform.MemoryType

// Memory types.
const (
	GPU    MemoryType = platform.GPU
	CPU    MemoryType = platform.CPU
	Pinned MemoryType = platform.Pinned
)

// ConstBuffer is the read-only buffer contract.
type ConstBuffer = buffer.ConstBuffer

// Buffer is a typed, contiguous run of elements in one memory class.
type Buffer = buffer.Buffer

// Allocator supplies raw blocks of one memory class.
type Allocator = buffer.Allocator

// Block is a raw allocation.
type Block = buffer.Block

// Element is the set of host types a buffer can be viewed as.
type Element = buffer.Element

// BFloat16 is a bfloat16 element.
type BFloat16 = buffer.BFloat16

// FP8E4M3 is a float8 e4m3 element.
type FP8E4M3 = buffer.FP8E4M3

// Range gives indexed and iterator access to a typed buffer.
type Range[T Element] = buffer.Range[T]

// Errors.
var (
	ErrTypeMismatch        = buffer.ErrTypeMismatch
	ErrOutOfCapacity       = buffer.ErrOutOfCapacity
	ErrUnsupportedDataType = buffer.ErrUnsupportedDataType
	ErrForeignBuffer       = buffer.ErrForeignBuffer
	ErrIndexOutOfRange     = buffer.ErrIndexOutOfRange
	ErrNilPointer          = buffer.ErrNilPointer
)

// NewBufferDataType builds a tag.
func NewBufferDataType(id DataType, unsigned, pointer bool) BufferDataType {
	return buffer.NewBufferDataType(id, unsigned, pointer)
}

// ParseBufferDataType parses a tag name such as "float16" or "*uint32".
func ParseBufferDataType(s string) (BufferDataType, error) {
	return buffer.ParseBufferDataType(s)
}

// TagOf returns the tag for host type T.
func TagOf[T Element]() BufferDataType {
	return buffer.TagOf[T]()
}

// PointerTagOf returns the tag for slots holding pointers to T.
func PointerTagOf[T Element]() BufferDataType {
	return buffer.PointerTagOf[T]()
}

// Allocate creates an owning buffer of size elements.
func Allocate(a Allocator, dt BufferDataType, size int) (Buffer, error) {
	return buffer.Allocate(a, dt, size)
}

// Owns reports whether b owns its storage.
func Owns(b ConstBuffer) bool {
	return buffer.Owns(b)
}

// Slice returns a view of size elements starting at offset.
func Slice(b Buffer, offset, size int) (Buffer, error) {
	return buffer.Slice(b, offset, size)
}

// SliceFrom returns a view of everything from offset to the end.
func SliceFrom(b Buffer, offset int) (Buffer, error) {
	return buffer.SliceFrom(b, offset)
}

// View returns a view of the whole buffer.
func View(b Buffer) (Buffer, error) {
	return buffer.View(b)
}

// ViewSize returns a view of the first size elements.
func ViewSize(b Buffer, size int) (Buffer, error) {
	return buffer.ViewSize(b, size)
}

// SliceConst is Slice for read-only buffers.
func SliceConst(b ConstBuffer, offset, size int) (ConstBuffer, error) {
	return buffer.SliceConst(b, offset, size)
}

// ViewConst is View for read-only buffers.
func ViewConst(b ConstBuffer) (ConstBuffer, error) {
	return buffer.ViewConst(b)
}

// Wrap borrows capacity elements at ptr without taking ownership.
func Wrap(ptr unsafe.Pointer, dt BufferDataType, size, capacity int) (Buffer, error) {
	return buffer.Wrap(ptr, dt, size, capacity)
}

// WrapPointer wraps capacity elements of type T starting at p.
func WrapPointer[T Element](p *T, size, capacity int) (Buffer, error) {
	return buffer.WrapPointer(p, size, capacity)
}

// WrapPointerSize is WrapPointer with capacity equal to size.
func WrapPointerSize[T Element](p *T, size int) (Buffer, error) {
	return buffer.WrapPointerSize(p, size)
}

// WrapSlice wraps s without copying.
func WrapSlice[T Element](s []T) Buffer {
	return buffer.WrapSlice(s)
}

// Cast returns the valid elements as []T after checking the data type.
func Cast[T Element](b ConstBuffer) ([]T, error) {
	return buffer.Cast[T](b)
}

// MutableCast is Cast for writable buffers.
func MutableCast[T Element](b Buffer) ([]T, error) {
	return buffer.MutableCast[T](b)
}

// UnsafeCast reinterprets the valid elements as []T without checking.
func UnsafeCast[T Element](b Buffer) []T {
	return buffer.UnsafeCast[T](b)
}

// NewRange returns a typed window over b's current elements.
func NewRange[T Element](b Buffer) (Range[T], error) {
	return buffer.NewRange[T](b)
}

// Float32s converts any numeric buffer to float32 values.
func Float32s(b ConstBuffer) ([]float32, error) {
	return buffer.Float32s(b)
}
