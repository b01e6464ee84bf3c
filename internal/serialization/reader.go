package serialization

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/membuf/internal/buffer"
	"github.com/born-ml/membuf/internal/logging"
)

// Reader reads .bbuf files into freshly allocated buffers.
type Reader struct {
	file       *os.File
	header     Header
	fixed      fixedHeader
	dataOffset int64
	opts       ReaderOptions
	closed     bool
}

// ReaderOptions configures the behavior of Reader.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level
}

// NewReader opens a .bbuf file with strict validation.
func NewReader(path string) (*Reader, error) {
	return NewReaderWithOptions(path, ReaderOptions{
		ValidationLevel: ValidationStrict,
	})
}

// NewReaderWithOptions opens a .bbuf file with custom options.
func NewReaderWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	r := &Reader{file: file, opts: opts}
	if err := r.parseHeader(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	logging.Logger().Debug("opened buffer file",
		zap.String("path", path),
		zap.Int("buffers", len(r.header.Buffers)),
		zap.Int64("data_bytes", r.fixed.dataSize))
	return r, nil
}

func (r *Reader) parseHeader() error {
	raw := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r.file, raw); err != nil {
		return fmt.Errorf("failed to read fixed header: %w", err)
	}
	fixed, err := decodeFixedHeader(raw)
	if err != nil {
		return err
	}
	r.fixed = fixed
	r.dataOffset = fixed.dataOffset()

	headerBytes := make([]byte, fixed.headerSize)
	if _, err := io.ReadFull(r.file, headerBytes); err != nil {
		return fmt.Errorf("failed to read header JSON: %w", err)
	}
	if err := json.Unmarshal(headerBytes, &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}

	stat, err := r.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if r.dataOffset+fixed.dataSize > stat.Size() {
		return fmt.Errorf("%w: data section [%d, %d) exceeds file size %d",
			ErrOutOfBounds, r.dataOffset, r.dataOffset+fixed.dataSize, stat.Size())
	}

	if err := ValidateHeader(&r.header, fixed.dataSize, r.opts.ValidationLevel); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if !r.opts.SkipChecksumValidation {
		computed, err := ComputeChecksumReader(io.NewSectionReader(r.file, r.dataOffset, fixed.dataSize))
		if err != nil {
			return fmt.Errorf("failed to read data for checksum: %w", err)
		}
		if err := ValidateChecksum(computed, fixed.checksum); err != nil {
			return err
		}
	}

	return nil
}

// Header returns the file header.
func (r *Reader) Header() Header {
	return r.header
}

// Metadata returns the metadata map from the header.
func (r *Reader) Metadata() map[string]string {
	return r.header.Metadata
}

// Checksum returns the stored SHA-256 of the data section.
func (r *Reader) Checksum() [32]byte {
	return r.fixed.checksum
}

// BufferNames returns the buffer names in file order.
func (r *Reader) BufferNames() []string {
	return bufferNames(r.header)
}

// BufferInfo returns information about a specific buffer.
func (r *Reader) BufferInfo(name string) (*BufferMeta, error) {
	return findBuffer(r.header, name)
}

// ReadBufferData reads the raw bytes of a buffer.
func (r *Reader) ReadBufferData(name string) ([]byte, error) {
	if r.closed {
		return nil, fmt.Errorf("reader: %w", ErrClosed)
	}

	meta, err := r.BufferInfo(name)
	if err != nil {
		return nil, err
	}

	data := make([]byte, meta.Bytes)
	if _, err := r.file.ReadAt(data, r.dataOffset+meta.Offset); err != nil {
		return nil, fmt.Errorf("failed to read buffer data: %w", err)
	}
	return data, nil
}

// LoadBuffer allocates a buffer from a and reads the named buffer into it.
func (r *Reader) LoadBuffer(name string, a buffer.Allocator) (buffer.Buffer, error) {
	if r.closed {
		return nil, fmt.Errorf("reader: %w", ErrClosed)
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
	if _, err := r.file.ReadAt(b.Bytes(), r.dataOffset+meta.Offset); err != nil {
		b.Release()
		return nil, fmt.Errorf("failed to read buffer %s: %w", name, err)
	}
	return b, nil
}

// ReadAll loads every buffer in the file, reading up to GOMAXPROCS buffers
// concurrently. On error, buffers already loaded are released.
func (r *Reader) ReadAll(a buffer.Allocator) (map[string]buffer.Buffer, error) {
	if r.closed {
		return nil, fmt.Errorf("reader: %w", ErrClosed)
	}

	loaded := make([]buffer.Buffer, len(r.header.Buffers))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, meta := range r.header.Buffers {
		g.Go(func() error {
			b, err := r.LoadBuffer(meta.Name, a)
			if err != nil {
				return err
			}
			loaded[i] = b
			return nil
		})
	}
	err := g.Wait()

	out := make(map[string]buffer.Buffer, len(loaded))
	for i, b := range loaded {
		if b != nil {
			out[r.header.Buffers[i].Name] = b
		}
	}
	if err != nil {
		releaseAll(out)
		return nil, err
	}
	return out, nil
}

// Close closes the reader and the underlying file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// ReadFrom reads every buffer from a stream, allocating from a. The checksum
// is verified after the data section has been consumed.
//
//nolint:gocognit,gocyclo,cyclop // Sequential stream parsing
func ReadFrom(in io.Reader, a buffer.Allocator) (map[string]buffer.Buffer, Header, error) {
	raw := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(in, raw); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read fixed header: %w", err)
	}
	fixed, err := decodeFixedHeader(raw)
	if err != nil {
		return nil, Header{}, err
	}

	headerBytes := make([]byte, fixed.headerSize)
	if _, err := io.ReadFull(in, headerBytes); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read header JSON: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, Header{}, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	if err := ValidateHeader(&header, fixed.dataSize, ValidationStrict); err != nil {
		return nil, Header{}, fmt.Errorf("validation failed: %w", err)
	}

	padding := fixed.dataOffset() - FixedHeaderSize - fixed.headerSize
	if _, err := io.CopyN(io.Discard, in, padding); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read padding: %w", err)
	}

	// A stream only moves forward, so buffers must appear in offset order.
	h := sha256.New()
	data := io.TeeReader(io.LimitReader(in, fixed.dataSize), h)
	out := make(map[string]buffer.Buffer, len(header.Buffers))
	fail := func(err error) (map[string]buffer.Buffer, Header, error) {
		releaseAll(out)
		return nil, Header{}, err
	}

	var pos int64
	for _, meta := range header.Buffers {
		if meta.Offset < pos {
			return fail(fmt.Errorf("%w: buffer %s is out of order", ErrOffsetOverlap, meta.Name))
		}
		if _, err := io.CopyN(io.Discard, data, meta.Offset-pos); err != nil {
			return fail(fmt.Errorf("failed to read padding: %w", err))
		}

		dt, err := meta.DataType()
		if err != nil {
			return fail(err)
		}
		b, err := buffer.Allocate(a, dt, int(meta.Size))
		if err != nil {
			return fail(fmt.Errorf("failed to allocate buffer %s: %w", meta.Name, err))
		}
		out[meta.Name] = b
		if _, err := io.ReadFull(data, b.Bytes()); err != nil {
			return fail(fmt.Errorf("failed to read buffer %s: %w", meta.Name, err))
		}
		pos = meta.Offset + meta.Bytes
	}

	if _, err := io.Copy(io.Discard, data); err != nil {
		return fail(fmt.Errorf("failed to read data section: %w", err))
	}
	var computed [32]byte
	copy(computed[:], h.Sum(nil))
	if err := ValidateChecksum(computed, fixed.checksum); err != nil {
		return fail(err)
	}
	return out, header, nil
}

func releaseAll(buffers map[string]buffer.Buffer) {
	for _, b := range buffers {
		b.Release()
	}
}

func bufferNames(h Header) []string {
	names := make([]string, len(h.Buffers))
	for i, meta := range h.Buffers {
		names[i] = meta.Name
	}
	return names
}

func findBuffer(h Header, name string) (*BufferMeta, error) {
	for i := range h.Buffers {
		if h.Buffers[i].Name == name {
			return &h.Buffers[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrBufferNotFound, name)
}

// IsCorrupt reports whether err means the file content cannot be trusted,
// as opposed to an I/O or allocation failure.
func IsCorrupt(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) ||
		errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrInvalidMagic) ||
		errors.Is(err, ErrUnsupportedVersion) ||
		errors.Is(err, ErrHeaderTooLarge) ||
		errors.Is(err, ErrOutOfBounds)
}
