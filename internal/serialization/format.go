package serialization

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/born-ml/membuf/internal/buffer"
)

// Format constants.
const (
	MagicBytes      = "BBUF"
	FormatVersion   = 1
	HeaderAlignment = 64   // Buffer data is aligned to 64 bytes
	FixedHeaderSize = 64   // Fixed header size (0x40 bytes)
	ChecksumSize    = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffset  = 0x20 // Checksum offset in the fixed header
)

// Flags for the .bbuf format.
const (
	FlagHasMetadata uint32 = 1 << 0 // bit 0: custom metadata included
)

// Header represents the JSON header in a .bbuf file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	Producer      string            `json:"producer"`   // Tool that wrote the file
	CreatedAt     time.Time         `json:"created_at"` // When the file was created
	Buffers       []BufferMeta      `json:"buffers"`
	Metadata      map[string]string `json:"metadata"`
}

// BufferMeta describes one buffer in the data section.
type BufferMeta struct {
	Name   string `json:"name"`   // Buffer name (e.g., "layer.0.weight")
	DType  string `json:"dtype"`  // Tag name (e.g., "float16", "uint32", "*int64")
	Size   int64  `json:"size"`   // Element count
	Memory string `json:"memory"` // Memory type the buffer was saved from
	Offset int64  `json:"offset"` // Bytes from the start of the data section
	Bytes  int64  `json:"bytes"`  // Size in bytes
}

// DataType parses DType.
func (m BufferMeta) DataType() (buffer.BufferDataType, error) {
	return buffer.ParseBufferDataType(m.DType)
}

// fixedHeader is the decoded 64-byte prefix of a .bbuf file.
//
//	0x00-0x03: magic "BBUF"
//	0x04-0x07: version (uint32 LE)
//	0x08-0x0B: flags (uint32 LE)
//	0x0C-0x0F: reserved
//	0x10-0x17: JSON header size (uint64 LE)
//	0x18-0x1F: data section size (uint64 LE)
//	0x20-0x3F: SHA-256 of the data section
type fixedHeader struct {
	version    uint32
	flags      uint32
	headerSize int64
	dataSize   int64
	checksum   [ChecksumSize]byte
}

func (f fixedHeader) encode() []byte {
	b := make([]byte, FixedHeaderSize)
	copy(b[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(b[4:8], f.version)
	binary.LittleEndian.PutUint32(b[8:12], f.flags)
	binary.LittleEndian.PutUint64(b[16:24], uint64(f.headerSize)) //nolint:gosec // G115: non-negative by construction
	binary.LittleEndian.PutUint64(b[24:32], uint64(f.dataSize))   //nolint:gosec // G115: non-negative by construction
	copy(b[ChecksumOffset:ChecksumOffset+ChecksumSize], f.checksum[:])
	return b
}

func decodeFixedHeader(b []byte) (fixedHeader, error) {
	var f fixedHeader
	if len(b) < FixedHeaderSize {
		return f, fmt.Errorf("file too small: %d bytes (minimum %d bytes required)", len(b), FixedHeaderSize)
	}
	if string(b[0:4]) != MagicBytes {
		return f, ErrInvalidMagic
	}

	f.version = binary.LittleEndian.Uint32(b[4:8])
	if f.version != FormatVersion {
		return f, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, f.version, FormatVersion)
	}
	f.flags = binary.LittleEndian.Uint32(b[8:12])

	headerSize := binary.LittleEndian.Uint64(b[16:24])
	if headerSize > MaxHeaderSize {
		return f, ErrHeaderTooLarge
	}
	f.headerSize = int64(headerSize)

	dataSize := binary.LittleEndian.Uint64(b[24:32])
	if dataSize > math.MaxInt64 {
		return f, fmt.Errorf("data size too large: %d", dataSize)
	}
	f.dataSize = int64(dataSize)

	copy(f.checksum[:], b[ChecksumOffset:ChecksumOffset+ChecksumSize])
	return f, nil
}

// dataOffset is where the data section starts: the JSON header end rounded
// up to HeaderAlignment.
func (f fixedHeader) dataOffset() int64 {
	return alignUp(FixedHeaderSize + f.headerSize)
}

func alignUp(n int64) int64 {
	return (n + HeaderAlignment - 1) / HeaderAlignment * HeaderAlignment
}
