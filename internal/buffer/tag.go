package buffer

import (
	"fmt"
	"strings"
)

// BufferDataType describes one element: an identifier, a signedness flag and
// a flag marking slots that hold pointers to elements of that identifier.
//
//nolint:revive // the name mirrors the wire-level tag it models
type BufferDataType struct {
	id       DataType
	unsigned bool
	pointer  bool
}

// NewBufferDataType builds a tag.
func NewBufferDataType(id DataType, unsigned, pointer bool) BufferDataType {
	return BufferDataType{id: id, unsigned: unsigned, pointer: pointer}
}

// Tag returns the plain, signed, non-pointer tag for an identifier.
func (dt DataType) Tag() BufferDataType {
	return BufferDataType{id: dt}
}

// Canonical returns the identifier the engine sees. Pointer slots are stored
// as platform-width integers, so their canonical identifier is PointerDataType.
func (t BufferDataType) Canonical() DataType {
	if t.pointer {
		return PointerDataType
	}
	return t.id
}

// ID returns the element (or pointee) identifier.
func (t BufferDataType) ID() DataType {
	return t.id
}

// IsPointer reports whether the slots hold pointers.
func (t BufferDataType) IsPointer() bool {
	return t.pointer
}

// IsUnsigned reports the signedness of the element (or pointee).
// Bool and UInt8 are always unsigned.
func (t BufferDataType) IsUnsigned() bool {
	switch t.id {
	case Bool, UInt8:
		return true
	default:
		return t.unsigned
	}
}

// Size returns the byte width of one slot.
func (t BufferDataType) Size() int {
	return t.Canonical().Size()
}

// Validate reports ErrUnsupportedDataType when the identifier is unknown.
func (t BufferDataType) Validate() error {
	return t.id.Validate()
}

// String returns the host-facing name: "uint32" for an unsigned Int32,
// "*float16" for a pointer to Half.
func (t BufferDataType) String() string {
	name := t.id.String()
	switch {
	case t.unsigned && t.id == Int32:
		name = "uint32"
	case t.unsigned && t.id == Int64:
		name = "uint64"
	}
	if t.pointer {
		return "*" + name
	}
	return name
}

// ParseBufferDataType parses the output of BufferDataType.String.
func ParseBufferDataType(s string) (BufferDataType, error) {
	var t BufferDataType
	if rest, ok := strings.CutPrefix(s, "*"); ok {
		t.pointer = true
		s = rest
	}

	switch s {
	case "float32":
		t.id = Float
	case "float16":
		t.id = Half
	case "bfloat16":
		t.id = BF16
	case "fp8e4m3":
		t.id = FP8
	case "int8":
		t.id = Int8
	case "uint8":
		t.id = UInt8
	case "int32":
		t.id = Int32
	case "uint32":
		t.id, t.unsigned = Int32, true
	case "int64":
		t.id = Int64
	case "uint64":
		t.id, t.unsigned = Int64, true
	case "bool":
		t.id = Bool
	default:
		return BufferDataType{}, fmt.Errorf("%w: %q", ErrUnsupportedDataType, s)
	}
	return t, nil
}
