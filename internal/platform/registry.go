package platform

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/emirpasic/gods/v2/maps/treemap"
	"go.uber.org/zap"

	"github.com/born-ml/membuf/internal/logging"
)

// ErrOverlap is returned when a registered region intersects an existing one.
var ErrOverlap = errors.New("memory region overlaps an existing region")

// Region is a registered range of non-pageable memory.
type Region struct {
	Start  uintptr
	Bytes  int
	Memory MemoryType
	Label  string
}

// End returns the first address past the region.
func (r Region) End() uintptr {
	return r.Start + uintptr(r.Bytes)
}

// Contains reports whether addr falls inside the region.
func (r Region) Contains(addr uintptr) bool {
	return addr >= r.Start && addr < r.End()
}

// Registry tracks device and pinned regions keyed by start address.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	regions *treemap.Map[uintptr, Region]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{regions: treemap.New[uintptr, Region]()}
}

// Register records [ptr, ptr+nbytes) as memory of the given type.
// Registering host memory or an empty range is a no-op.
func (r *Registry) Register(ptr unsafe.Pointer, nbytes int, mem MemoryType, label string) error {
	if ptr == nil || nbytes <= 0 || mem == CPU {
		return nil
	}

	region := Region{Start: uintptr(ptr), Bytes: nbytes, Memory: mem, Label: label}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, prev, ok := r.regions.Floor(region.End() - 1); ok && prev.End() > region.Start {
		return fmt.Errorf("%w: [%#x, %#x) intersects %s region %q at %#x",
			ErrOverlap, region.Start, region.End(), prev.Memory, prev.Label, prev.Start)
	}
	r.regions.Put(region.Start, region)

	logging.Logger().Debug("registered memory region",
		zap.Stringer("memory", mem),
		zap.Uintptr("start", region.Start),
		zap.Int("bytes", nbytes),
		zap.String("label", label))
	return nil
}

// Unregister removes the region that starts at ptr.
func (r *Registry) Unregister(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if region, ok := r.regions.Get(uintptr(ptr)); ok {
		r.regions.Remove(region.Start)
		logging.Logger().Debug("unregistered memory region",
			zap.Stringer("memory", region.Memory),
			zap.Uintptr("start", region.Start))
	}
}

// Lookup returns the region containing ptr, if any.
func (r *Registry) Lookup(ptr unsafe.Pointer) (Region, bool) {
	if ptr == nil {
		return Region{}, false
	}
	addr := uintptr(ptr)

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, region, ok := r.regions.Floor(addr)
	if !ok || !region.Contains(addr) {
		return Region{}, false
	}
	return region, true
}

// Classify returns the memory type of the byte at ptr.
func (r *Registry) Classify(ptr unsafe.Pointer) MemoryType {
	if region, ok := r.Lookup(ptr); ok {
		return region.Memory
	}
	return CPU
}

// Regions returns a snapshot of all registered regions ordered by address.
func (r *Registry) Regions() []Region {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.regions.Values()
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used by the built-in allocators.
func Default() *Registry {
	return defaultRegistry
}

// Classify queries the process-wide registry for the memory type of ptr.
func Classify(ptr unsafe.Pointer) MemoryType {
	return defaultRegistry.Classify(ptr)
}
