package serialization

import (
	"encoding/json"
	"fmt"
	"os"
	"unsafe"

	"go.uber.org/zap"

	"github.com/born-ml/membuf/internal/buffer"
	"github.com/born-ml/membuf/internal/logging"
)

// MmapReader provides memory-mapped access to .bbuf files. Only the header
// is parsed on open; buffer bytes are paged in on demand.
//
// Buffers returned by Buffer wrap the mapping without copying. They are
// read-only and valid only until Close.
type MmapReader struct {
	file       *os.File
	data       []byte // mmap'd region (read-only)
	size       int64
	header     Header
	fixed      fixedHeader
	dataOffset int64
	closed     bool
}

// NewMmapReader maps a .bbuf file read-only and validates its header. The
// checksum is not verified; call VerifyChecksum to read every page.
//
// Important: Always call Close() when done to unmap the file (use defer).
func NewMmapReader(path string) (*MmapReader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.Size() < FixedHeaderSize {
		_ = file.Close()
		return nil, fmt.Errorf("file too small: %d bytes (minimum %d bytes required)", stat.Size(), FixedHeaderSize)
	}

	data, err := mmapFile(file, stat.Size())
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	r := &MmapReader{
		file: file,
		data: data,
		size: stat.Size(),
	}

	if err := r.parseHeader(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	logging.Logger().Debug("mapped buffer file",
		zap.String("path", path),
		zap.Int64("bytes", r.size),
		zap.Int("buffers", len(r.header.Buffers)))
	return r, nil
}

func (r *MmapReader) parseHeader() error {
	fixed, err := decodeFixedHeader(r.data[:FixedHeaderSize])
	if err != nil {
		return err
	}
	r.fixed = fixed

	headerEnd := FixedHeaderSize + fixed.headerSize
	if headerEnd > r.size {
		return fmt.Errorf("header extends beyond file: header_end=%d, file_size=%d", headerEnd, r.size)
	}
	if err := json.Unmarshal(r.data[FixedHeaderSize:headerEnd], &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}

	r.dataOffset = fixed.dataOffset()
	if r.dataOffset+fixed.dataSize > r.size {
		return fmt.Errorf("%w: data section [%d, %d) exceeds file size %d",
			ErrOutOfBounds, r.dataOffset, r.dataOffset+fixed.dataSize, r.size)
	}

	if err := ValidateHeader(&r.header, fixed.dataSize, ValidationStrict); err != nil {
		return fmt.Errorf("header validation failed: %w", err)
	}
	return nil
}

// Close unmaps and closes the file. Buffers obtained from the reader must
// not be used afterwards.
func (r *MmapReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.data != nil {
		err = munmapFile(r.data)
		r.data = nil
	}

	if closeErr := r.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	return err
}

// Header returns the file header.
func (r *MmapReader) Header() Header {
	return r.header
}

// Version returns the format version.
func (r *MmapReader) Version() uint32 {
	return r.fixed.version
}

// Flags returns the flags bitfield.
func (r *MmapReader) Flags() uint32 {
	return r.fixed.flags
}

// Checksum returns the stored SHA-256 of the data section.
func (r *MmapReader) Checksum() [32]byte {
	return r.fixed.checksum
}

// VerifyChecksum hashes the mapped data section and compares it with the
// stored checksum.
func (r *MmapReader) VerifyChecksum() error {
	if r.closed {
		return fmt.Errorf("reader: %w", ErrClosed)
	}
	section := r.data[r.dataOffset : r.dataOffset+r.fixed.dataSize]
	return ValidateChecksum(ComputeChecksum(section), r.fixed.checksum)
}

// BufferNames returns the buffer names in file order.
func (r *MmapReader) BufferNames() []string {
	return bufferNames(r.header)
}

// BufferInfo returns metadata about a specific buffer.
func (r *MmapReader) BufferInfo(name string) (*BufferMeta, error) {
	return findBuffer(r.header, name)
}

// BufferData returns a zero-copy slice of the buffer's bytes. The slice is
// read-only and valid only while the reader is open.
func (r *MmapReader) BufferData(name string) ([]byte, error) {
	if r.closed {
		return nil, fmt.Errorf("reader: %w", ErrClosed)
	}

	meta, err := r.BufferInfo(name)
	if err != nil {
		return nil, err
	}

	start := r.dataOffset + meta.Offset
	end := start + meta.Bytes
	if end > r.size {
		return nil, fmt.Errorf("%w: buffer %q: offset %d + bytes %d > file_size %d",
			ErrOutOfBounds, name, start, meta.Bytes, r.size)
	}

	return r.data[start:end], nil
}

// BufferDataCopy returns a copy of the buffer's bytes.
func (r *MmapReader) BufferDataCopy(name string) ([]byte, error) {
	data, err := r.BufferData(name)
	if err != nil {
		return nil, err
	}

	result := make([]byte, len(data))
	copy(result, data)
	return result, nil
}

// Buffer wraps the named buffer's bytes in place. The memory type is
// classified from the mapped address.
func (r *MmapReader) Buffer(name string) (buffer.ConstBuffer, error) {
	data, err := r.BufferData(name)
	if err != nil {
		return nil, err
	}
	meta, err := r.BufferInfo(name)
	if err != nil {
		return nil, err
	}
	dt, err := meta.DataType()
	if err != nil {
		return nil, err
	}

	var ptr unsafe.Pointer
	if len(data) > 0 {
		ptr = unsafe.Pointer(unsafe.SliceData(data))
	}
	return buffer.WrapSize(ptr, dt, int(meta.Size))
}

// LoadBuffer copies the named buffer into a new buffer allocated from a.
func (r *MmapReader) LoadBuffer(name string, a buffer.Allocator) (buffer.Buffer, error) {
	data, err := r.BufferData(name)
	if err != nil {
		return nil, err
	}
	meta, err := r.BufferInfo(name)
	if err != nil {
		return nil, err
	}
	dt, err := meta.DataType()
	if err != nil {
		return nil, err
	}

	b, err := buffer.Allocate(a, dt, int(meta.Size))
	if err != nil {
		return nil, fmt.Errorf("failed to allocate buffer %s: %w", name, err)
	}
	copy(b.Bytes(), data)
	return b, nil
}
