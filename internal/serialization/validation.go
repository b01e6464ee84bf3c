package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for security and resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB - maximum header size
	MaxBufferCount   = 100_000           // Maximum number of buffers in a file
	MaxBufferNameLen = 4096              // Maximum buffer name length
)

// ValidationLevel controls the strictness of validation.
type ValidationLevel int

const (
	// ValidationStrict performs all validation checks (default).
	ValidationStrict ValidationLevel = iota
	// ValidationNormal checks names, data types and sizes but not offsets.
	ValidationNormal
	// ValidationNone skips validation. Use only with trusted input.
	ValidationNone
)

// ValidateBufferOffsets checks for negative, misaligned, overlapping and
// out-of-bounds buffer regions. Malformed files could otherwise make a
// mapped buffer read past the data section.
func ValidateBufferOffsets(buffers []BufferMeta, dataSize int64) error {
	if len(buffers) > MaxBufferCount {
		return &ValidationError{
			Type:    "too_many_buffers",
			Details: fmt.Sprintf("got %d, max %d", len(buffers), MaxBufferCount),
			Err:     ErrTooManyBuffers,
		}
	}

	sorted := make([]BufferMeta, len(buffers))
	copy(sorted, buffers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	for i, b := range sorted {
		if b.Offset < 0 || b.Bytes < 0 || b.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Buffer:  b.Name,
				Details: fmt.Sprintf("offset=%d, bytes=%d, size=%d (negative values not allowed)", b.Offset, b.Bytes, b.Size),
				Err:     ErrNegativeOffset,
			}
		}

		if b.Offset%HeaderAlignment != 0 {
			return &ValidationError{
				Type:    "misaligned",
				Buffer:  b.Name,
				Details: fmt.Sprintf("offset %d is not a multiple of %d", b.Offset, HeaderAlignment),
				Err:     ErrMisaligned,
			}
		}

		if b.Bytes > dataSize-b.Offset {
			return &ValidationError{
				Type:    "out_of_bounds",
				Buffer:  b.Name,
				Details: fmt.Sprintf("offset %d + bytes %d > data_size %d", b.Offset, b.Bytes, dataSize),
				Err:     ErrOutOfBounds,
			}
		}

		if i < len(sorted)-1 {
			next := sorted[i+1]
			if b.Offset+b.Bytes > next.Offset {
				return &ValidationError{
					Type:    "offset_overlap",
					Buffer:  b.Name,
					Buffer2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						b.Offset, b.Offset+b.Bytes, next.Offset, next.Offset+next.Bytes),
					Err: ErrOffsetOverlap,
				}
			}
		}
	}

	return nil
}

// ValidateBufferName rejects empty names, names with path separators or
// traversal sequences, and names with null bytes.
func ValidateBufferName(name string) error {
	if name == "" {
		return &ValidationError{
			Type:    "invalid_name",
			Details: "empty name",
			Err:     ErrInvalidBufferName,
		}
	}

	if len(name) > MaxBufferNameLen {
		return &ValidationError{
			Type:    "name_too_long",
			Buffer:  name,
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxBufferNameLen),
			Err:     ErrBufferNameTooLong,
		}
	}

	if strings.Contains(name, "..") {
		return &ValidationError{
			Type:    "invalid_name",
			Buffer:  name,
			Details: "contains '..' (path traversal attempt)",
			Err:     ErrInvalidBufferName,
		}
	}

	if strings.ContainsAny(name, "/\\") {
		return &ValidationError{
			Type:    "invalid_name",
			Buffer:  name,
			Details: "contains path separator (/ or \\)",
			Err:     ErrInvalidBufferName,
		}
	}

	if strings.Contains(name, "\x00") {
		return &ValidationError{
			Type:    "invalid_name",
			Buffer:  name,
			Details: "contains null byte",
			Err:     ErrInvalidBufferName,
		}
	}

	return nil
}

// validateBufferMeta checks that the data type parses and that the byte
// size matches the element count.
func validateBufferMeta(m BufferMeta) error {
	dt, err := m.DataType()
	if err != nil {
		return &ValidationError{
			Type:    "invalid_dtype",
			Buffer:  m.Name,
			Details: err.Error(),
			Err:     err,
		}
	}
	if m.Size < 0 || m.Bytes != m.Size*int64(dt.Size()) {
		return &ValidationError{
			Type:    "size_mismatch",
			Buffer:  m.Name,
			Details: fmt.Sprintf("%d x %s is not %d bytes", m.Size, dt, m.Bytes),
			Err:     ErrSizeMismatch,
		}
	}
	return nil
}

// ValidateHeader performs comprehensive header validation.
func ValidateHeader(h *Header, dataSize int64, level ValidationLevel) error {
	if level == ValidationNone {
		return nil
	}

	if len(h.Buffers) > MaxBufferCount {
		return &ValidationError{
			Type:    "too_many_buffers",
			Details: fmt.Sprintf("got %d, max %d", len(h.Buffers), MaxBufferCount),
			Err:     ErrTooManyBuffers,
		}
	}

	seen := make(map[string]struct{}, len(h.Buffers))
	for _, b := range h.Buffers {
		if err := ValidateBufferName(b.Name); err != nil {
			return err
		}
		if _, dup := seen[b.Name]; dup {
			return &ValidationError{
				Type:    "duplicate_name",
				Buffer:  b.Name,
				Details: "name appears more than once",
				Err:     ErrDuplicateBuffer,
			}
		}
		seen[b.Name] = struct{}{}

		if err := validateBufferMeta(b); err != nil {
			return err
		}
	}

	if level == ValidationStrict {
		if err := ValidateBufferOffsets(h.Buffers, dataSize); err != nil {
			return err
		}
	}

	return nil
}
