// Package platform answers where a pointer's bytes physically live.
//
// Allocators that hand out device or pinned memory register their regions
// here; any address outside a registered region is ordinary host memory.
package platform

import (
	"fmt"
	"strings"
)

// MemoryType is the physical memory class of a buffer.
type MemoryType int32

// Supported memory classes.
const (
	GPU    MemoryType = iota // accelerator device memory
	CPU                      // pageable host memory
	Pinned                   // page-locked host memory
)

// String returns the canonical memory type name.
func (m MemoryType) String() string {
	switch m {
	case GPU:
		return "GPU"
	case CPU:
		return "CPU"
	case Pinned:
		return "PINNED"
	default:
		return fmt.Sprintf("MemoryType(%d)", int32(m))
	}
}

// ParseMemoryType parses a memory type name. Matching is case-insensitive and
// accepts "device" and "host" as aliases for GPU and CPU.
func ParseMemoryType(s string) (MemoryType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gpu", "device":
		return GPU, nil
	case "cpu", "host":
		return CPU, nil
	case "pinned":
		return Pinned, nil
	default:
		return 0, fmt.Errorf("unknown memory type %q", s)
	}
}
