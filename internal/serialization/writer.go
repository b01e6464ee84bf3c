package serialization

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/born-ml/membuf/internal/buffer"
	"github.com/born-ml/membuf/internal/logging"
)

// Producer is recorded in the header of every file this package writes.
const Producer = "membuf"

// NamedBuffer pairs a buffer with the name it is stored under.
type NamedBuffer struct {
	Name   string
	Buffer buffer.ConstBuffer
}

// Writer writes buffers in .bbuf format.
type Writer struct {
	file   *os.File
	path   string
	closed bool
}

// NewWriter creates a new .bbuf file writer.
func NewWriter(path string) (*Writer, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for saving
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	return &Writer{file: file, path: path}, nil
}

// Write stores buffers in order, with optional metadata.
func (w *Writer) Write(buffers []NamedBuffer, metadata map[string]string) error {
	if w.closed {
		return fmt.Errorf("writer: %w", ErrClosed)
	}
	if err := WriteTo(w.file, buffers, metadata); err != nil {
		return err
	}
	logging.Logger().Debug("wrote buffer file",
		zap.String("path", w.path),
		zap.Int("buffers", len(buffers)))
	return nil
}

// Close closes the writer and the underlying file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// WriteFile writes buffers to a new .bbuf file at path.
func WriteFile(path string, buffers []NamedBuffer, metadata map[string]string) error {
	w, err := NewWriter(path)
	if err != nil {
		return err
	}
	if err := w.Write(buffers, metadata); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// WriteTo writes buffers to out in .bbuf format. The data section is read
// twice: once for the checksum and once to write it.
func WriteTo(out io.Writer, buffers []NamedBuffer, metadata map[string]string) error {
	header, err := buildHeader(buffers, metadata)
	if err != nil {
		return err
	}

	checksum, err := checksumData(header.Buffers, buffers)
	if err != nil {
		return fmt.Errorf("failed to checksum data: %w", err)
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	fixed := fixedHeader{
		version:    FormatVersion,
		headerSize: int64(len(headerJSON)),
		dataSize:   dataSectionSize(header.Buffers),
		checksum:   checksum,
	}
	if len(header.Metadata) > 0 {
		fixed.flags |= FlagHasMetadata
	}

	if _, err := out.Write(fixed.encode()); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := out.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header JSON: %w", err)
	}

	end := int64(FixedHeaderSize) + fixed.headerSize
	if padding := fixed.dataOffset() - end; padding > 0 {
		if _, err := out.Write(zeroPad[:padding]); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}

	return writeData(out, header.Buffers, buffers)
}

var zeroPad [HeaderAlignment]byte

// buildHeader lays the buffers out back to back, each starting on a
// HeaderAlignment boundary.
func buildHeader(buffers []NamedBuffer, metadata map[string]string) (Header, error) {
	header := Header{
		FormatVersion: FormatVersion,
		Producer:      Producer,
		CreatedAt:     time.Now().UTC(),
		Buffers:       make([]BufferMeta, 0, len(buffers)),
		Metadata:      metadata,
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	seen := make(map[string]struct{}, len(buffers))
	var offset int64
	for _, nb := range buffers {
		if err := ValidateBufferName(nb.Name); err != nil {
			return Header{}, err
		}
		if _, dup := seen[nb.Name]; dup {
			return Header{}, fmt.Errorf("%w: %q", ErrDuplicateBuffer, nb.Name)
		}
		seen[nb.Name] = struct{}{}

		b := nb.Buffer
		offset = alignUp(offset)
		meta := BufferMeta{
			Name:   nb.Name,
			DType:  b.DataType().String(),
			Size:   int64(b.Size()),
			Memory: b.MemoryType().String(),
			Offset: offset,
			Bytes:  int64(b.SizeInBytes()),
		}
		header.Buffers = append(header.Buffers, meta)
		offset += meta.Bytes
	}

	return header, nil
}

func dataSectionSize(metas []BufferMeta) int64 {
	if len(metas) == 0 {
		return 0
	}
	last := metas[len(metas)-1]
	return last.Offset + last.Bytes
}

// writeData writes each buffer's bytes at its offset, zero-filling the gaps.
func writeData(out io.Writer, metas []BufferMeta, buffers []NamedBuffer) error {
	var pos int64
	for i, meta := range metas {
		if gap := meta.Offset - pos; gap > 0 {
			if _, err := out.Write(zeroPad[:gap]); err != nil {
				return fmt.Errorf("failed to write padding: %w", err)
			}
		}
		if _, err := out.Write(buffers[i].Buffer.Bytes()); err != nil {
			return fmt.Errorf("failed to write buffer %s: %w", meta.Name, err)
		}
		pos = meta.Offset + meta.Bytes
	}
	return nil
}
