package alloc

import (
	"errors"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/born-ml/membuf/internal/buffer"
	"github.com/born-ml/membuf/internal/logging"
	"github.com/born-ml/membuf/internal/platform"
)

// SizeClass represents the block size categories used for pooling.
type SizeClass int

const (
	// SmallBlock for blocks < 4KB.
	SmallBlock SizeClass = iota
	// MediumBlock for blocks 4KB-1MB.
	MediumBlock
	// LargeBlock for blocks >= 1MB.
	LargeBlock
)

const (
	smallThreshold  = 4 * 1024    // 4KB
	mediumThreshold = 1024 * 1024 // 1MB
)

// Stats reports pool usage.
type Stats struct {
	Allocated uint64 // blocks obtained from the underlying allocator
	Released  uint64 // blocks returned by buffers
	Hits      uint64
	Misses    uint64
	Pooled    int // free blocks currently held
}

// Pool recycles freed blocks of an underlying allocator. Blocks are grouped
// by size class; a request is served by the first free block of its class
// that is large enough.
type Pool struct {
	next      Allocator
	maxBlocks int

	// Free blocks organized by size class
	small  []buffer.Block
	medium []buffer.Block
	large  []buffer.Block

	mu sync.Mutex

	stats Stats
}

// NewPool puts a pool in front of next, keeping at most maxBlocks free
// blocks per size class.
func NewPool(next Allocator, maxBlocks int) *Pool {
	return &Pool{
		next:      next,
		maxBlocks: maxBlocks,
		small:     make([]buffer.Block, 0, maxBlocks),
		medium:    make([]buffer.Block, 0, maxBlocks),
		large:     make([]buffer.Block, 0, maxBlocks),
	}
}

func (p *Pool) MemoryType() platform.MemoryType { return p.next.MemoryType() }

// Allocate returns a pooled block of at least nbytes or allocates a new one.
// The block's Free returns it to the pool.
func (p *Pool) Allocate(nbytes int) (buffer.Block, error) {
	if err := checkSize(nbytes); err != nil {
		return nil, err
	}
	if nbytes == 0 {
		return emptyBlock{}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	category := categorize(nbytes)
	pool := p.getPool(category)

	for i, b := range pool {
		if b.Len() >= nbytes {
			p.removeFromPool(category, i)
			p.stats.Hits++
			return &pooledBlock{Block: b, pool: p}, nil
		}
	}

	p.stats.Misses++
	b, err := p.next.Allocate(nbytes)
	if err != nil {
		return nil, err
	}
	p.stats.Allocated++
	return &pooledBlock{Block: b, pool: p}, nil
}

// release returns a block to its class, freeing it when the class is full.
func (p *Pool) release(b buffer.Block) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Released++

	category := categorize(b.Len())
	if len(p.getPool(category)) >= p.maxBlocks {
		return b.Free()
	}
	p.addToPool(category, b)
	return nil
}

// Clear frees every pooled block.
func (p *Pool) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, pool := range [][]buffer.Block{p.small, p.medium, p.large} {
		for _, b := range pool {
			errs = append(errs, b.Free())
		}
	}
	p.small = p.small[:0]
	p.medium = p.medium[:0]
	p.large = p.large[:0]

	err := errors.Join(errs...)
	if err != nil {
		logging.Logger().Warn("pool clear", zap.Error(err))
	}
	return err
}

// Close clears the pool and closes the underlying allocator.
func (p *Pool) Close() error {
	return errors.Join(p.Clear(), p.next.Close())
}

// Stats returns statistics about pool usage.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.Pooled = len(p.small) + len(p.medium) + len(p.large)
	return s
}

// categorize determines the size class for a block.
func categorize(nbytes int) SizeClass {
	if nbytes < smallThreshold {
		return SmallBlock
	}
	if nbytes < mediumThreshold {
		return MediumBlock
	}
	return LargeBlock
}

func (p *Pool) getPool(category SizeClass) []buffer.Block {
	switch category {
	case SmallBlock:
		return p.small
	case MediumBlock:
		return p.medium
	case LargeBlock:
		return p.large
	default:
		return nil
	}
}

func (p *Pool) addToPool(category SizeClass, b buffer.Block) {
	switch category {
	case SmallBlock:
		p.small = append(p.small, b)
	case MediumBlock:
		p.medium = append(p.medium, b)
	case LargeBlock:
		p.large = append(p.large, b)
	}
}

func (p *Pool) removeFromPool(category SizeClass, i int) {
	switch category {
	case SmallBlock:
		p.small = append(p.small[:i], p.small[i+1:]...)
	case MediumBlock:
		p.medium = append(p.medium[:i], p.medium[i+1:]...)
	case LargeBlock:
		p.large = append(p.large[:i], p.large[i+1:]...)
	}
}

// pooledBlock hands a block back to its pool instead of freeing it.
type pooledBlock struct {
	buffer.Block
	pool *Pool
	done bool
}

func (b *pooledBlock) Pointer() unsafe.Pointer {
	if b.done {
		return nil
	}
	return b.Block.Pointer()
}

func (b *pooledBlock) Free() error {
	if b.done {
		return nil
	}
	b.done = true
	return b.pool.release(b.Block)
}
