package buffer

import (
	"fmt"
	"runtime"
	"unsafe"

	"go.uber.org/zap"

	"github.com/born-ml/membuf/internal/logging"
	"github.com/born-ml/membuf/internal/platform"
)

// ConstBuffer is the read-only part of the buffer contract.
//
// Data, DataAt and Bytes do not keep the handle reachable. A handle that
// becomes unreachable drops its storage, so callers working through a raw
// pointer or byte slice keep the handle alive with runtime.KeepAlive until
// the last access.
type ConstBuffer interface {
	// Data returns the first valid element, or nil when nothing is allocated.
	Data() unsafe.Pointer
	// DataAt returns Data advanced by index elements, or nil when nothing is
	// allocated. The index is not bounds checked.
	DataAt(index int) unsafe.Pointer
	// Bytes returns the valid elements as a byte slice aliasing the storage.
	Bytes() []byte
	// Size returns the number of valid elements.
	Size() int
	// SizeInBytes returns Size times the element width.
	SizeInBytes() int
	// Capacity returns how many elements fit without reallocation.
	Capacity() int
	// DataType returns the element tag. It never changes.
	DataType() BufferDataType
	// MemoryType returns where the bytes live. It never changes.
	MemoryType() platform.MemoryType
	// String renders the data type, size, capacity and memory type, in that order.
	String() string
}

// Buffer is a typed, contiguous run of elements in one memory class.
//
// Handles are not safe for concurrent mutation.
type Buffer interface {
	ConstBuffer

	// Resize sets the number of valid elements. Within capacity it only
	// updates bookkeeping. Beyond capacity an owning buffer reallocates
	// (contents are not preserved and earlier data pointers go stale); a
	// wrapped buffer or a view fails with ErrOutOfCapacity and is unchanged.
	Resize(newSize int) error

	// Release drops the storage, freeing it if this was the last owner, and
	// resets size and capacity to zero. Releasing twice is a no-op.
	Release()
}

// handle carries the state common to every buffer variant.
type handle struct {
	ref      *storageRef
	cleanup  runtime.Cleanup
	offset   int // bytes from the start of the storage
	size     int
	capacity int
	dtype    BufferDataType
	memory   platform.MemoryType
}

// bindStorage makes owner a holder of s. If owner becomes unreachable without
// Release, the runtime drops the reference.
func bindStorage[T any](owner *T, h *handle, s *storage, offset int) {
	h.ref = newStorageRef(s)
	h.offset = offset
	h.cleanup = runtime.AddCleanup(owner, (*storageRef).drop, h.ref)
}

// unbind drops the handle's storage reference.
func (h *handle) unbind() {
	if h.ref == nil {
		return
	}
	h.cleanup.Stop()
	h.ref.drop()
	h.ref = nil
	h.offset = 0
}

// share exposes the storage and byte offset to slice construction.
func (h *handle) share() (*storage, int) {
	if h.ref == nil {
		return nil, 0
	}
	return h.ref.s, h.offset
}

func (h *handle) Data() unsafe.Pointer {
	if h.ref == nil || h.ref.s.ptr == nil {
		return nil
	}
	return unsafe.Add(h.ref.s.ptr, h.offset)
}

func (h *handle) DataAt(index int) unsafe.Pointer {
	p := h.Data()
	if p == nil {
		return nil
	}
	return unsafe.Add(p, index*h.dtype.Size())
}

func (h *handle) Bytes() []byte {
	return sliceOf[byte](h.Data(), h.SizeInBytes())
}

func (h *handle) Size() int                       { return h.size }
func (h *handle) SizeInBytes() int                { return h.size * h.dtype.Size() }
func (h *handle) Capacity() int                   { return h.capacity }
func (h *handle) DataType() BufferDataType        { return h.dtype }
func (h *handle) MemoryType() platform.MemoryType { return h.memory }

func (h *handle) String() string {
	return fmt.Sprintf("[%s size=%d capacity=%d memory=%s]", h.dtype, h.size, h.capacity, h.memory)
}

// resizeWithin updates the size of a buffer that cannot reallocate.
func (h *handle) resizeWithin(newSize int) error {
	if newSize < 0 || newSize > h.capacity {
		return fmt.Errorf("%w: resize to %d, capacity %d", ErrOutOfCapacity, newSize, h.capacity)
	}
	h.size = newSize
	return nil
}

func (h *handle) reset() {
	h.unbind()
	h.size = 0
	h.capacity = 0
}

// owned is a buffer that allocated its storage and may reallocate it.
type owned struct {
	handle
	alloc Allocator
}

// Allocate creates an owning buffer of size elements from a.
// Capacity equals size; growing past it allocates exactly the new size.
func Allocate(a Allocator, dt BufferDataType, size int) (Buffer, error) {
	if err := dt.Validate(); err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrOutOfCapacity, size)
	}

	b := &owned{alloc: a}
	b.dtype = dt
	b.memory = a.MemoryType()
	if err := b.Resize(size); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *owned) Resize(newSize int) error {
	if newSize < 0 {
		return fmt.Errorf("%w: negative size %d", ErrOutOfCapacity, newSize)
	}
	if newSize <= b.capacity {
		b.size = newSize
		return nil
	}

	nbytes := newSize * b.dtype.Size()
	block, err := b.alloc.Allocate(nbytes)
	if err != nil {
		return fmt.Errorf("allocate %d x %s in %s memory: %w", newSize, b.dtype, b.memory, err)
	}
	if block.Len() < nbytes {
		_ = block.Free()
		return fmt.Errorf("allocator returned %d bytes, need %d", block.Len(), nbytes)
	}

	logging.Logger().Debug("buffer reallocated",
		zap.Stringer("dtype", b.dtype),
		zap.Stringer("memory", b.memory),
		zap.Int("old_capacity", b.capacity),
		zap.Int("new_capacity", newSize))

	b.unbind()
	bindStorage(b, &b.handle, newOwnedStorage(block, b.memory), 0)
	b.capacity = newSize
	b.size = newSize
	return nil
}

func (b *owned) Release() { b.reset() }

// wrapped borrows memory owned by the caller and never frees it.
type wrapped struct {
	handle
}

func (b *wrapped) Resize(newSize int) error { return b.resizeWithin(newSize) }
func (b *wrapped) Release()                 { b.reset() }

// view shares another buffer's storage from a fixed offset. Its capacity is
// frozen at construction; parent resizes and releases do not affect it.
type view struct {
	handle
}

func (b *view) Resize(newSize int) error { return b.resizeWithin(newSize) }
func (b *view) Release()                 { b.reset() }

// Owns reports whether b owns its storage and may reallocate it.
// Wrapped buffers, views and buffers from other packages report false.
func Owns(b ConstBuffer) bool {
	_, ok := b.(*owned)
	return ok
}
