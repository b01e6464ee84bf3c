// Package alloc provides the allocators behind owning buffers: Go heap,
// page-locked host memory, WebGPU device memory, and a size-class pool that
// recycles blocks from any of them.
package alloc

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/born-ml/membuf/internal/buffer"
	"github.com/born-ml/membuf/internal/platform"
)

var (
	// ErrPinnedUnavailable is returned when page-locked memory cannot be mapped.
	ErrPinnedUnavailable = errors.New("pinned memory unavailable")
	// ErrDeviceUnavailable is returned when no GPU device can be opened.
	ErrDeviceUnavailable = errors.New("device memory unavailable")
	// ErrInvalidSize is returned for negative allocation sizes.
	ErrInvalidSize = errors.New("invalid allocation size")
)

// Allocator is a buffer.Allocator that holds resources of its own.
type Allocator interface {
	buffer.Allocator
	// Close releases pooled blocks and devices. Blocks still held by buffers
	// stay valid until they are freed.
	Close() error
}

// Options selects and tunes the allocator built by New.
type Options struct {
	Memory        platform.MemoryType
	PinnedLock    bool
	PoolMaxBlocks int // 0 disables pooling
}

// New builds the allocator for opts.Memory, placing a Pool in front of it
// when PoolMaxBlocks is positive.
func New(opts Options) (Allocator, error) {
	var base Allocator
	switch opts.Memory {
	case platform.CPU:
		base = NewHost()
	case platform.Pinned:
		base = NewPinned(opts.PinnedLock)
	case platform.GPU:
		dev, err := NewDevice()
		if err != nil {
			return nil, err
		}
		base = dev
	default:
		return nil, fmt.Errorf("no allocator for memory type %s", opts.Memory)
	}

	if opts.PoolMaxBlocks > 0 {
		return NewPool(base, opts.PoolMaxBlocks), nil
	}
	return base, nil
}

func checkSize(nbytes int) error {
	if nbytes < 0 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidSize, nbytes)
	}
	return nil
}

// emptyBlock is returned for zero-byte requests.
type emptyBlock struct{}

func (emptyBlock) Pointer() unsafe.Pointer { return nil }
func (emptyBlock) Len() int                { return 0 }
func (emptyBlock) Free() error             { return nil }
