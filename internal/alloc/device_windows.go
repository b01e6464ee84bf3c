//go:build windows

package alloc

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"go.uber.org/zap"

	"github.com/born-ml/membuf/internal/buffer"
	"github.com/born-ml/membuf/internal/logging"
	"github.com/born-ml/membuf/internal/platform"
)

// deviceUsage lets a block serve as a compute storage binding and be copied
// in either direction.
const deviceUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// Device allocates WebGPU storage buffers created mapped and kept mapped, so
// their contents are addressable from the host until the block is freed.
// Mapped ranges are registered as GPU memory.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	info     wgpu.AdapterInfo
	regions  *platform.Registry

	mu     sync.Mutex
	live   int
	closed bool
}

// NewDevice opens the high-performance adapter. It returns
// ErrDeviceUnavailable when the native library or an adapter is missing.
func NewDevice() (dev *Device, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			dev = nil
			err = fmt.Errorf("%w: native library not available: %v", ErrDeviceUnavailable, r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: request adapter: %w", ErrDeviceUnavailable, err)
	}

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: request device: %w", ErrDeviceUnavailable, err)
	}

	return &Device{
		instance: instance,
		adapter:  adapter,
		device:   device,
		info:     adapter.GetInfo(),
		regions:  platform.Default(),
	}, nil
}

// Name describes the adapter.
func (d *Device) Name() string {
	return fmt.Sprintf("%s %s", d.info.Name, d.info.VendorName)
}

func (d *Device) MemoryType() platform.MemoryType { return platform.GPU }

func (d *Device) Allocate(nbytes int) (buffer.Block, error) {
	if err := checkSize(nbytes); err != nil {
		return nil, err
	}
	if nbytes == 0 {
		return emptyBlock{}, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("%w: device closed", ErrDeviceUnavailable)
	}

	// Mapped ranges must be a multiple of 4 bytes.
	size := uint64((nbytes + 3) &^ 3)
	buf := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            deviceUsage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	if buf == nil {
		return nil, fmt.Errorf("create %d byte device buffer failed", size)
	}

	ptr := buf.GetMappedRange(0, size)
	if ptr == nil {
		buf.Release()
		return nil, fmt.Errorf("map %d byte device buffer failed", size)
	}
	if err := d.regions.Register(ptr, int(size), platform.GPU, "webgpu"); err != nil {
		buf.Unmap()
		buf.Release()
		return nil, err
	}

	d.live++
	logging.Logger().Debug("device allocate", zap.Int("bytes", nbytes), zap.Uint64("mapped", size))
	return &deviceBlock{buf: buf, ptr: ptr, n: nbytes, owner: d}, nil
}

// Close releases the device once every block has been freed; blocks still
// live keep it open and the last Free releases it.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.live == 0 {
		d.releaseLocked()
	}
	return nil
}

func (d *Device) releaseLocked() {
	if d.device == nil {
		return
	}
	d.device.Release()
	d.adapter.Release()
	d.instance.Release()
	d.device = nil
	d.adapter = nil
	d.instance = nil
}

type deviceBlock struct {
	buf   *wgpu.Buffer
	ptr   unsafe.Pointer
	n     int
	owner *Device
}

func (b *deviceBlock) Pointer() unsafe.Pointer { return b.ptr }
func (b *deviceBlock) Len() int                { return b.n }

func (b *deviceBlock) Free() error {
	if b.buf == nil {
		return nil
	}
	d := b.owner
	d.regions.Unregister(b.ptr)
	b.buf.Unmap()
	b.buf.Release()
	b.buf = nil
	b.ptr = nil

	d.mu.Lock()
	d.live--
	if d.closed && d.live == 0 {
		d.releaseLocked()
	}
	d.mu.Unlock()

	logging.Logger().Debug("device free", zap.Int("bytes", b.n))
	return nil
}
