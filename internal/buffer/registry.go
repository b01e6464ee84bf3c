package buffer

import (
	"fmt"
	"reflect"
	"runtime"
	"unsafe"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/born-ml/membuf/internal/parallel"
)

// Element is the set of host types a buffer can be viewed as.
// uintptr stands for an untyped pointer slot.
type Element interface {
	float32 | float16.Float16 | BFloat16 | FP8E4M3 |
		int8 | uint8 | int32 | uint32 | int64 | uint64 | bool | uintptr
}

// TagOf returns the tag that describes host type T.
// uint32 and uint64 map to the signed identifier with the unsigned flag set.
func TagOf[T Element]() BufferDataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float.Tag()
	case float16.Float16:
		return Half.Tag()
	case BFloat16:
		return BF16.Tag()
	case FP8E4M3:
		return FP8.Tag()
	case int8:
		return Int8.Tag()
	case uint8:
		return UInt8.Tag()
	case int32:
		return Int32.Tag()
	case uint32:
		return NewBufferDataType(Int32, true, false)
	case int64:
		return Int64.Tag()
	case uint64:
		return NewBufferDataType(Int64, true, false)
	case bool:
		return Bool.Tag()
	case uintptr:
		return PointerDataType.Tag()
	default:
		panic(fmt.Sprintf("buffer: no data type for %T", zero))
	}
}

// PointerTagOf returns the tag for slots holding pointers to T: the pointee
// identifier and signedness with the pointer flag set.
func PointerTagOf[T Element]() BufferDataType {
	under := TagOf[T]()
	return NewBufferDataType(under.ID(), under.IsUnsigned(), true)
}

// typeInfo is one row of the reverse registry.
type typeInfo struct {
	signed   reflect.Type
	unsigned reflect.Type
	load     func(p unsafe.Pointer, unsigned bool) any
}

var registry = map[DataType]typeInfo{
	Float: {
		signed: reflect.TypeFor[float32](),
		load:   func(p unsafe.Pointer, _ bool) any { return *(*float32)(p) },
	},
	Half: {
		signed: reflect.TypeFor[float16.Float16](),
		load:   func(p unsafe.Pointer, _ bool) any { return *(*float16.Float16)(p) },
	},
	BF16: {
		signed: reflect.TypeFor[BFloat16](),
		load:   func(p unsafe.Pointer, _ bool) any { return *(*BFloat16)(p) },
	},
	FP8: {
		signed: reflect.TypeFor[FP8E4M3](),
		load:   func(p unsafe.Pointer, _ bool) any { return *(*FP8E4M3)(p) },
	},
	Int8: {
		signed: reflect.TypeFor[int8](),
		load:   func(p unsafe.Pointer, _ bool) any { return *(*int8)(p) },
	},
	UInt8: {
		signed: reflect.TypeFor[uint8](),
		load:   func(p unsafe.Pointer, _ bool) any { return *(*uint8)(p) },
	},
	Bool: {
		signed: reflect.TypeFor[bool](),
		load:   func(p unsafe.Pointer, _ bool) any { return *(*bool)(p) },
	},
	Int32: {
		signed:   reflect.TypeFor[int32](),
		unsigned: reflect.TypeFor[uint32](),
		load: func(p unsafe.Pointer, unsigned bool) any {
			if unsigned {
				return *(*uint32)(p)
			}
			return *(*int32)(p)
		},
	},
	Int64: {
		signed:   reflect.TypeFor[int64](),
		unsigned: reflect.TypeFor[uint64](),
		load: func(p unsafe.Pointer, unsigned bool) any {
			if unsigned {
				return *(*uint64)(p)
			}
			return *(*int64)(p)
		},
	},
}

// HostType returns the host type that storage tagged t is read as.
// Pointer slots read as uintptr.
func HostType(t BufferDataType) (reflect.Type, error) {
	if t.IsPointer() {
		return reflect.TypeFor[uintptr](), nil
	}
	info, ok := registry[t.ID()]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDataType, int32(t.ID()))
	}
	if t.IsUnsigned() && info.unsigned != nil {
		return info.unsigned, nil
	}
	return info.signed, nil
}

// ElementAt reads element i of b as its host type.
func ElementAt(b ConstBuffer, i int) (any, error) {
	if i < 0 || i >= b.Size() {
		return nil, fmt.Errorf("%w: index %d, size %d", ErrIndexOutOfRange, i, b.Size())
	}

	t := b.DataType()
	p := b.DataAt(i)
	if t.IsPointer() {
		return *(*uintptr)(p), nil
	}
	info, ok := registry[t.ID()]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDataType, int32(t.ID()))
	}
	return info.load(p, t.IsUnsigned()), nil
}

// widenConfig splits conversions of large buffers across CPUs.
var widenConfig = parallel.DefaultConfig()

// Float32s widens every valid element of a numeric buffer to float32.
// Pointer buffers are rejected with ErrTypeMismatch.
func Float32s(b ConstBuffer) ([]float32, error) {
	t := b.DataType()
	if t.IsPointer() {
		return nil, fmt.Errorf("%w: cannot widen %s to float32", ErrTypeMismatch, t)
	}

	n := b.Size()
	out := make([]float32, n)
	if n == 0 {
		return out, nil
	}

	p := b.Data()
	defer runtime.KeepAlive(b)
	switch t.ID() {
	case Float:
		copy(out, sliceOf[float32](p, n))
	case Half:
		widen(out, sliceOf[float16.Float16](p, n), float16.Float16.Float32)
	case BF16:
		raw := b.Bytes()
		parallel.Chunks(n, func(start, end int) {
			copy(out[start:end], bfloat16.DecodeFloat32(raw[2*start:2*end]))
		}, widenConfig)
	case FP8:
		widen(out, sliceOf[FP8E4M3](p, n), FP8E4M3.Float32)
	case Int8:
		widen(out, sliceOf[int8](p, n), toFloat32[int8])
	case UInt8:
		widen(out, sliceOf[uint8](p, n), toFloat32[uint8])
	case Bool:
		widen(out, sliceOf[bool](p, n), boolToFloat32)
	case Int32:
		if t.IsUnsigned() {
			widen(out, sliceOf[uint32](p, n), toFloat32[uint32])
		} else {
			widen(out, sliceOf[int32](p, n), toFloat32[int32])
		}
	case Int64:
		if t.IsUnsigned() {
			widen(out, sliceOf[uint64](p, n), toFloat32[uint64])
		} else {
			widen(out, sliceOf[int64](p, n), toFloat32[int64])
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDataType, int32(t.ID()))
	}
	return out, nil
}

func widen[T any](out []float32, in []T, conv func(T) float32) {
	parallel.Chunks(len(in), func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = conv(in[i])
		}
	}, widenConfig)
}

func toFloat32[T int8 | uint8 | int32 | uint32 | int64 | uint64](v T) float32 {
	return float32(v)
}

func boolToFloat32(v bool) float32 {
	if v {
		return 1
	}
	return 0
}

// sliceOf reinterprets n elements at p as []T.
func sliceOf[T any](p unsafe.Pointer, n int) []T {
	if p == nil || n == 0 {
		return nil
	}
	//nolint:gosec // zero-copy view, length bounded by the buffer size
	return unsafe.Slice((*T)(p), n)
}
