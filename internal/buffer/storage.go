package buffer

import (
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"github.com/born-ml/membuf/internal/logging"
	"github.com/born-ml/membuf/internal/platform"
)

// Block is one allocation handed out by an Allocator.
type Block interface {
	// Pointer returns the first byte of the block, nil for an empty block.
	Pointer() unsafe.Pointer
	// Len returns the usable size of the block in bytes.
	Len() int
	// Free returns the block to its allocator. It is called exactly once.
	Free() error
}

// Allocator acquires blocks of one memory type. The allocation policy
// (alignment, pooling, page locking) belongs to the implementation.
type Allocator interface {
	MemoryType() platform.MemoryType
	Allocate(nbytes int) (Block, error)
}

// storage is a reference-counted backing region shared by a buffer and every
// view derived from it. It is freed when the last holder drops it.
type storage struct {
	ptr    unsafe.Pointer
	nbytes int
	memory platform.MemoryType
	block  Block // nil when the memory is borrowed
	keep   any   // keeps borrowed Go memory reachable
	refs   atomic.Int32
}

// newOwnedStorage takes ownership of block with a reference count of zero.
func newOwnedStorage(block Block, memory platform.MemoryType) *storage {
	return &storage{
		ptr:    block.Pointer(),
		nbytes: block.Len(),
		memory: memory,
		block:  block,
	}
}

// newBorrowedStorage references memory this package must never free.
func newBorrowedStorage(ptr unsafe.Pointer, nbytes int, memory platform.MemoryType, keep any) *storage {
	return &storage{
		ptr:    ptr,
		nbytes: nbytes,
		memory: memory,
		keep:   keep,
	}
}

// owned reports whether dropping the last reference frees memory.
func (s *storage) owned() bool {
	return s.block != nil
}

// release decrements the reference count and frees the block at zero.
func (s *storage) release() {
	if s.refs.Add(-1) != 0 {
		return
	}
	if s.block == nil {
		return
	}
	if err := s.block.Free(); err != nil {
		logging.Logger().Warn("failed to free buffer storage",
			zap.Stringer("memory", s.memory),
			zap.Int("bytes", s.nbytes),
			zap.Error(err))
	}
	s.ptr = nil
	s.block = nil
}

// storageRef is one handle's claim on a storage. Dropping it twice is a no-op,
// which lets explicit Release and the GC cleanup race safely.
type storageRef struct {
	s       *storage
	dropped atomic.Bool
}

func newStorageRef(s *storage) *storageRef {
	s.refs.Add(1)
	return &storageRef{s: s}
}

func (r *storageRef) drop() {
	if r.dropped.CompareAndSwap(false, true) {
		r.s.release()
	}
}
