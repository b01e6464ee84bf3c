package serialization

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/born-ml/membuf/internal/buffer"
)

// SafeTensorsWriter exports buffers as 1-D tensors in SafeTensors format,
// the interchange format used by HuggingFace tooling.
type SafeTensorsWriter struct {
	file   *os.File
	closed bool
}

// SafeTensorHeader represents a tensor in the SafeTensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// NewSafeTensorsWriter creates a new SafeTensors file writer.
func NewSafeTensorsWriter(path string) (*SafeTensorsWriter, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for export
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	return &SafeTensorsWriter{file: file}, nil
}

// WriteSafeTensors writes buffers to a SafeTensors file.
//
// Format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]
//
// Tensors are written in alphabetical order by name.
func WriteSafeTensors(path string, buffers map[string]buffer.ConstBuffer, metadata map[string]string) error {
	writer, err := NewSafeTensorsWriter(path)
	if err != nil {
		return err
	}
	if err := writer.Write(buffers, metadata); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

// Write writes every buffer as a tensor of shape [Size].
// Pointer buffers have no SafeTensors equivalent and are rejected.
func (w *SafeTensorsWriter) Write(buffers map[string]buffer.ConstBuffer, metadata map[string]string) error {
	if w.closed {
		return fmt.Errorf("writer: %w", ErrClosed)
	}

	names := make([]string, 0, len(buffers))
	for name := range buffers {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}

	var offset int64
	for _, name := range names {
		b := buffers[name]
		dtype, err := dtypeToSafeTensors(b.DataType())
		if err != nil {
			return fmt.Errorf("buffer %s: %w", name, err)
		}
		size := int64(b.SizeInBytes())
		header[name] = SafeTensorHeader{
			DType:       dtype,
			Shape:       []int64{int64(b.Size())},
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	if err := binary.Write(w.file, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.file.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, name := range names {
		if _, err := w.file.Write(buffers[name].Bytes()); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the writer and the underlying file.
func (w *SafeTensorsWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// ReadSafeTensors loads every tensor of a SafeTensors file into a flat
// buffer allocated from a. Shapes are flattened.
func ReadSafeTensors(path string, a buffer.Allocator) (map[string]buffer.Buffer, map[string]string, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for import
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		return nil, nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerJSON); err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse header: %w", err)
	}

	var metadata map[string]string
	if m, ok := raw["__metadata__"]; ok {
		if err := json.Unmarshal(m, &metadata); err != nil {
			return nil, nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
		delete(raw, "__metadata__")
	}

	base := int64(8) + int64(headerSize) //nolint:gosec // G115: bounded by MaxHeaderSize
	out := make(map[string]buffer.Buffer, len(raw))
	for name, msg := range raw {
		b, err := readSafeTensor(file, base, name, msg, a)
		if err != nil {
			releaseAll(out)
			return nil, nil, err
		}
		out[name] = b
	}
	return out, metadata, nil
}

func readSafeTensor(file *os.File, base int64, name string, msg json.RawMessage, a buffer.Allocator) (buffer.Buffer, error) {
	var th SafeTensorHeader
	if err := json.Unmarshal(msg, &th); err != nil {
		return nil, fmt.Errorf("tensor %s: failed to parse header: %w", name, err)
	}
	dt, err := dtypeFromSafeTensors(th.DType)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}

	elements := int64(1)
	for _, dim := range th.Shape {
		if dim < 0 {
			return nil, fmt.Errorf("tensor %s: negative dimension %d", name, dim)
		}
		elements *= dim
	}
	start, end := th.DataOffsets[0], th.DataOffsets[1]
	if start < 0 || end < start || end-start != elements*int64(dt.Size()) {
		return nil, fmt.Errorf("%w: tensor %s: offsets [%d, %d) do not match %d elements of %s",
			ErrSizeMismatch, name, start, end, elements, dt)
	}

	b, err := buffer.Allocate(a, dt, int(elements))
	if err != nil {
		return nil, fmt.Errorf("failed to allocate tensor %s: %w", name, err)
	}
	if _, err := file.ReadAt(b.Bytes(), base+start); err != nil {
		b.Release()
		return nil, fmt.Errorf("failed to read tensor %s: %w", name, err)
	}
	return b, nil
}

var errNoSafeTensorsType = errors.New("no SafeTensors equivalent")

// dtypeToSafeTensors converts an element tag to a SafeTensors dtype string.
func dtypeToSafeTensors(t buffer.BufferDataType) (string, error) {
	if t.IsPointer() {
		return "", fmt.Errorf("%w: %s", errNoSafeTensorsType, t)
	}
	switch t.ID() {
	case buffer.Float:
		return "F32", nil
	case buffer.Half:
		return "F16", nil
	case buffer.BF16:
		return "BF16", nil
	case buffer.FP8:
		return "F8_E4M3", nil
	case buffer.Int8:
		return "I8", nil
	case buffer.UInt8:
		return "U8", nil
	case buffer.Bool:
		return "BOOL", nil
	case buffer.Int32:
		if t.IsUnsigned() {
			return "U32", nil
		}
		return "I32", nil
	case buffer.Int64:
		if t.IsUnsigned() {
			return "U64", nil
		}
		return "I64", nil
	default:
		return "", fmt.Errorf("%w: %s", errNoSafeTensorsType, t)
	}
}

// dtypeFromSafeTensors is the inverse of dtypeToSafeTensors.
func dtypeFromSafeTensors(s string) (buffer.BufferDataType, error) {
	switch s {
	case "F32":
		return buffer.Float.Tag(), nil
	case "F16":
		return buffer.Half.Tag(), nil
	case "BF16":
		return buffer.BF16.Tag(), nil
	case "F8_E4M3":
		return buffer.FP8.Tag(), nil
	case "I8":
		return buffer.Int8.Tag(), nil
	case "U8":
		return buffer.UInt8.Tag(), nil
	case "BOOL":
		return buffer.Bool.Tag(), nil
	case "I32":
		return buffer.Int32.Tag(), nil
	case "U32":
		return buffer.NewBufferDataType(buffer.Int32, true, false), nil
	case "I64":
		return buffer.Int64.Tag(), nil
	case "U64":
		return buffer.NewBufferDataType(buffer.Int64, true, false), nil
	default:
		return buffer.BufferDataType{}, fmt.Errorf("%w: SafeTensors dtype %q", buffer.ErrUnsupportedDataType, s)
	}
}
