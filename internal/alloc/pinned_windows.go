//go:build windows

package alloc

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

func mapPinned(nbytes int, lock bool) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(nbytes), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, fmt.Errorf("VirtualAlloc %d bytes: %w", nbytes, err)
	}
	if lock {
		if err := windows.VirtualLock(addr, uintptr(nbytes)); err != nil {
			_ = windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
			return nil, fmt.Errorf("VirtualLock %d bytes: %w", nbytes, err)
		}
	}
	//nolint:govet,gosec // memory outside the Go heap, released by unmapPinned
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), nbytes), nil
}

func unmapPinned(mem []byte, lock bool) error {
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	if lock {
		_ = windows.VirtualUnlock(addr, uintptr(len(mem)))
	}
	if err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE); err != nil {
		return fmt.Errorf("VirtualFree: %w", err)
	}
	return nil
}
