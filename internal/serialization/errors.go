package serialization

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrOffsetOverlap      = errors.New("buffer offsets overlap")
	ErrOutOfBounds        = errors.New("buffer extends beyond data section")
	ErrNegativeOffset     = errors.New("negative offset or size")
	ErrMisaligned         = errors.New("buffer offset is not aligned")
	ErrSizeMismatch       = errors.New("buffer byte size does not match element count")
	ErrTooManyBuffers     = errors.New("too many buffers in file")
	ErrBufferNameTooLong  = errors.New("buffer name too long")
	ErrInvalidBufferName  = errors.New("invalid buffer name")
	ErrDuplicateBuffer    = errors.New("duplicate buffer name")
	ErrBufferNotFound     = errors.New("buffer not found")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrClosed             = errors.New("file is closed")
)

// ValidationError provides detailed information about validation failures.
type ValidationError struct {
	Type    string // Type of error (e.g., "offset_overlap", "out_of_bounds")
	Buffer  string // Primary buffer name involved
	Buffer2 string // Secondary buffer name (for overlap errors)
	Details string // Additional details
	Err     error  // Sentinel matched by errors.Is
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Buffer2 != "" {
		return fmt.Sprintf("%s: buffers %q and %q: %s", e.Type, e.Buffer, e.Buffer2, e.Details)
	}
	if e.Buffer != "" {
		return fmt.Sprintf("%s: buffer %q: %s", e.Type, e.Buffer, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}

// Unwrap returns the sentinel for the failure type.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
