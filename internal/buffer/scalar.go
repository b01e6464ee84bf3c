package buffer

import (
	"encoding/binary"
	"math"

	"github.com/d4l3k/go-bfloat16"
)

// BFloat16 is a bfloat16 value: the upper half of an IEEE binary32.
type BFloat16 uint16

// BFloat16FromFloat32 converts f to bfloat16.
func BFloat16FromFloat32(f float32) BFloat16 {
	return BFloat16(binary.LittleEndian.Uint16(bfloat16.EncodeFloat32([]float32{f})))
}

// Float32 widens b to float32 exactly.
func (b BFloat16) Float32() float32 {
	var raw [2]byte
	binary.LittleEndian.PutUint16(raw[:], uint16(b))
	return bfloat16.DecodeFloat32(raw[:])[0]
}

// FP8E4M3 is an 8-bit float with 4 exponent bits (bias 7) and 3 mantissa
// bits. It has no infinities; 0x7F and 0xFF are NaN and the largest finite
// magnitude is 448.
type FP8E4M3 uint8

const (
	fp8MaxFinite = 448.0
	fp8NaN       = FP8E4M3(0x7F)
	fp8Max       = FP8E4M3(0x7E)
)

// FP8FromFloat32 converts f to e4m3 with round-to-nearest-even, saturating
// out-of-range magnitudes to ±448.
func FP8FromFloat32(f float32) FP8E4M3 {
	v := float64(f)
	if math.IsNaN(v) {
		return fp8NaN
	}

	var sign FP8E4M3
	if math.Signbit(v) {
		sign = 0x80
		v = -v
	}
	if v >= fp8MaxFinite {
		return sign | fp8Max
	}

	// Subnormals are multiples of 2^-9 below 2^-6; a mantissa of 8 rolls
	// into the smallest normal encoding on its own.
	if v < 0x1p-6 {
		return sign | FP8E4M3(math.RoundToEven(v*512))
	}

	frac, exp := math.Frexp(v) // v = frac * 2^exp, frac in [0.5, 1)
	e := exp - 1
	m := math.RoundToEven((frac*2 - 1) * 8)
	if m == 8 {
		m = 0
		e++
	}
	biased := e + 7
	if biased > 15 || (biased == 15 && m == 7) {
		return sign | fp8Max
	}
	return sign | FP8E4M3(biased<<3) | FP8E4M3(m)
}

// Float32 widens v to float32 exactly.
func (v FP8E4M3) Float32() float32 {
	exp := int(v>>3) & 0xF
	mant := float64(v & 0x7)
	if exp == 0xF && mant == 7 {
		return float32(math.NaN())
	}

	var out float64
	if exp == 0 {
		out = math.Ldexp(mant/8, -6)
	} else {
		out = math.Ldexp(1+mant/8, exp-7)
	}
	if v&0x80 != 0 {
		out = -out
	}
	return float32(out)
}
