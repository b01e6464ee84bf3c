package alloc

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/born-ml/membuf/internal/buffer"
	"github.com/born-ml/membuf/internal/logging"
	"github.com/born-ml/membuf/internal/platform"
)

// Host allocates from the Go heap. Blocks are 8-byte aligned so that every
// element type can be read in place.
type Host struct{}

// NewHost returns a Go heap allocator.
func NewHost() *Host {
	return &Host{}
}

func (*Host) MemoryType() platform.MemoryType { return platform.CPU }

func (*Host) Allocate(nbytes int) (buffer.Block, error) {
	if err := checkSize(nbytes); err != nil {
		return nil, err
	}
	if nbytes == 0 {
		return emptyBlock{}, nil
	}

	logging.Logger().Debug("host allocate", zap.Int("bytes", nbytes))
	return &hostBlock{
		words: make([]uint64, (nbytes+7)/8),
		n:     nbytes,
	}, nil
}

func (*Host) Close() error { return nil }

type hostBlock struct {
	words []uint64
	n     int
}

func (b *hostBlock) Pointer() unsafe.Pointer {
	if b.words == nil {
		return nil
	}
	return unsafe.Pointer(&b.words[0])
}

func (b *hostBlock) Len() int { return b.n }

// Free drops the block's reference; the collector reclaims the memory.
func (b *hostBlock) Free() error {
	b.words = nil
	logging.Logger().Debug("host free", zap.Int("bytes", b.n))
	return nil
}
