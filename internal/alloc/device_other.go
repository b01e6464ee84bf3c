//go:build !windows

package alloc

import (
	"fmt"
	"runtime"

	"github.com/born-ml/membuf/internal/buffer"
	"github.com/born-ml/membuf/internal/platform"
)

// Device is the WebGPU allocator. It is only built on windows, where the
// go-webgpu bindings load wgpu_native; elsewhere NewDevice always fails.
type Device struct{}

// NewDevice returns ErrDeviceUnavailable on this platform.
func NewDevice() (*Device, error) {
	return nil, fmt.Errorf("%w: webgpu is not supported on %s", ErrDeviceUnavailable, runtime.GOOS)
}

func (*Device) Name() string                    { return "" }
func (*Device) MemoryType() platform.MemoryType { return platform.GPU }

func (*Device) Allocate(int) (buffer.Block, error) {
	return nil, ErrDeviceUnavailable
}

func (*Device) Close() error { return nil }
