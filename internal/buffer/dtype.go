// Package buffer provides typed, contiguous memory buffers that may live in
// device, host or pinned memory, with zero-copy views and type-checked access.
package buffer

import (
	"fmt"
	"strconv"
)

// DataType is an element type identifier. The numeric values follow the
// engine catalog encoding so they can cross process and file boundaries.
type DataType int32

// Supported element type identifiers.
const (
	Float DataType = 0 // IEEE 754 binary32
	Half  DataType = 1 // IEEE 754 binary16
	Int8  DataType = 2
	Int32 DataType = 3
	Bool  DataType = 4
	UInt8 DataType = 5
	FP8   DataType = 6 // float8 e4m3
	BF16  DataType = 7 // bfloat16
	Int64 DataType = 8
)

// PointerDataType is the identifier that stores a pointer on this platform:
// Int64 on 64-bit targets, Int32 on 32-bit targets.
const PointerDataType = Int32 + (Int64-Int32)*DataType(strconv.IntSize/64)

// Size returns the byte width of one element.
// It panics on an identifier outside the catalog; use Validate first on
// identifiers that come from outside the process.
func (dt DataType) Size() int {
	switch dt {
	case Int64:
		return 8
	case Int32, Float:
		return 4
	case BF16, Half:
		return 2
	case Bool, UInt8, Int8, FP8:
		return 1
	default:
		panic(fmt.Sprintf("buffer: unknown data type %d", int32(dt)))
	}
}

// Validate reports ErrUnsupportedDataType for identifiers outside the catalog.
func (dt DataType) Validate() error {
	switch dt {
	case Float, Half, Int8, Int32, Bool, UInt8, FP8, BF16, Int64:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedDataType, int32(dt))
	}
}

// String returns a human-readable name for the identifier.
func (dt DataType) String() string {
	switch dt {
	case Float:
		return "float32"
	case Half:
		return "float16"
	case Int8:
		return "int8"
	case Int32:
		return "int32"
	case Bool:
		return "bool"
	case UInt8:
		return "uint8"
	case FP8:
		return "fp8e4m3"
	case BF16:
		return "bfloat16"
	case Int64:
		return "int64"
	default:
		return fmt.Sprintf("DataType(%d)", int32(dt))
	}
}
