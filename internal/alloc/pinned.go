package alloc

import (
	"fmt"
	"unsafe"

	"go.uber.org/zap"

	"github.com/born-ml/membuf/internal/buffer"
	"github.com/born-ml/membuf/internal/logging"
	"github.com/born-ml/membuf/internal/platform"
)

// Pinned maps anonymous pages outside the Go heap and, when lock is set,
// page-locks them. Every block is registered with the platform registry so
// that wrapping a pointer into it classifies as PINNED.
type Pinned struct {
	lock    bool
	regions *platform.Registry
}

// NewPinned returns a pinned allocator that registers with the default registry.
func NewPinned(lock bool) *Pinned {
	return &Pinned{lock: lock, regions: platform.Default()}
}

func (p *Pinned) MemoryType() platform.MemoryType { return platform.Pinned }

func (p *Pinned) Allocate(nbytes int) (buffer.Block, error) {
	if err := checkSize(nbytes); err != nil {
		return nil, err
	}
	if nbytes == 0 {
		return emptyBlock{}, nil
	}

	mem, err := mapPinned(nbytes, p.lock)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPinnedUnavailable, err)
	}
	ptr := unsafe.Pointer(unsafe.SliceData(mem))
	if err := p.regions.Register(ptr, len(mem), platform.Pinned, "pinned"); err != nil {
		_ = unmapPinned(mem, p.lock)
		return nil, err
	}

	logging.Logger().Debug("pinned allocate",
		zap.Int("bytes", nbytes),
		zap.Int("mapped", len(mem)),
		zap.Bool("locked", p.lock))
	return &pinnedBlock{mem: mem, n: nbytes, owner: p}, nil
}

func (*Pinned) Close() error { return nil }

type pinnedBlock struct {
	mem   []byte
	n     int
	owner *Pinned
}

func (b *pinnedBlock) Pointer() unsafe.Pointer {
	if b.mem == nil {
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(b.mem))
}

func (b *pinnedBlock) Len() int { return b.n }

func (b *pinnedBlock) Free() error {
	if b.mem == nil {
		return nil
	}
	b.owner.regions.Unregister(b.Pointer())
	err := unmapPinned(b.mem, b.owner.lock)
	b.mem = nil
	logging.Logger().Debug("pinned free", zap.Int("bytes", b.n), zap.Error(err))
	return err
}
