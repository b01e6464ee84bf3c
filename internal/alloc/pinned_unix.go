//go:build linux || darwin || freebsd || netbsd || openbsd

package alloc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func mapPinned(nbytes int, lock bool) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, nbytes, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", nbytes, err)
	}
	if lock {
		if err := unix.Mlock(mem); err != nil {
			_ = unix.Munmap(mem)
			return nil, fmt.Errorf("mlock %d bytes: %w", nbytes, err)
		}
	}
	return mem, nil
}

func unmapPinned(mem []byte, lock bool) error {
	if lock {
		if err := unix.Munlock(mem); err != nil {
			_ = unix.Munmap(mem)
			return fmt.Errorf("munlock: %w", err)
		}
	}
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
