//go:build !(linux || darwin || freebsd || netbsd || openbsd || windows)

package alloc

import (
	"errors"
	"runtime"
)

func mapPinned(int, bool) ([]byte, error) {
	return nil, errors.New("page-locked memory is not supported on " + runtime.GOOS)
}

func unmapPinned([]byte, bool) error {
	return nil
}
