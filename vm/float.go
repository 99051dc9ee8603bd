package vm

import (
	"math"
)

// ---------------------------------------------------------------------------
// Float32 codec
// ---------------------------------------------------------------------------
//
// A Glulx float is the IEEE-754 single-precision bit pattern of the value,
// nothing more. Encoding and decoding are bit-casts, which Go guarantees
// to be exact. initFloat still confirms the representation at startup so a
// host with a non-IEEE float32 is rejected before any code runs.

// initFloat verifies the native single-precision format.
func initFloat() error {
	if EncodeFloat(-1) != 0xBF800000 {
		return fatal("the float32 format of -1 did not match")
	}
	return nil
}

// EncodeFloat returns the IEEE-754 bit pattern of val.
func EncodeFloat(val float32) uint32 {
	return math.Float32bits(val)
}

// DecodeFloat returns the float32 with the given IEEE-754 bit pattern.
func DecodeFloat(val uint32) float32 {
	return math.Float32frombits(val)
}

// ---------------------------------------------------------------------------
// Float64 codec
// ---------------------------------------------------------------------------
//
// Doubles cross the wire as two 32-bit words: hi holds the sign, the
// 11-bit exponent, and the top 20 mantissa bits; lo holds the remaining 32
// mantissa bits. Unlike the float32 case this conversion is computed
// arithmetically, by mantissa/exponent decomposition, so it cannot depend
// on the native double layout.

// EncodeDouble converts a double to its (hi, lo) wire words. Every NaN
// canonicalizes to (sign|0x7FF80000, 1).
func EncodeDouble(val float64) (hi, lo uint32) {
	var sign uint32
	absval := val
	if math.Signbit(val) {
		sign = 0x80000000
		absval = -val
	}

	if math.IsInf(val, 0) {
		return sign | 0x7FF00000, 0
	}
	if math.IsNaN(val) {
		return sign | 0x7FF80000, 1
	}

	mant, expo := math.Frexp(absval)

	// Normalize the mantissa to [1.0, 2.0).
	switch {
	case 0.5 <= mant && mant < 1.0:
		mant *= 2.0
		expo--
	case mant == 0.0:
		expo = 0
	default:
		return sign | 0x7FF00000, 0
	}

	if expo >= 1024 {
		return sign | 0x7FF00000, 0
	} else if expo < -1022 {
		// Denormalized (very small) number.
		mant = math.Ldexp(mant, 1022+expo)
		expo = 0
	} else if !(expo == 0 && mant == 0.0) {
		expo += 1023
		mant -= 1.0 // drop the leading 1
	}

	// fhi receives the high 28 mantissa bits, truncated; flo the low 24,
	// rounded to nearest.
	mant *= 268435456.0 // 2^28
	fhi := uint32(mant)
	mant -= float64(fhi)
	mant *= 16777216.0 // 2^24
	flo := uint32(mant + 0.5)

	if flo>>24 != 0 {
		// The rounding carry propagated out of a string of 24 one bits.
		flo = 0
		fhi++
		if fhi>>28 != 0 {
			// And out of the next 28 bits as well.
			fhi = 0
			expo++
			if expo >= 255 {
				return sign | 0x7FF00000, 0
			}
		}
	}

	hi = sign | uint32(expo)<<20 | fhi>>8
	lo = (fhi&0xFF)<<24 | flo
	return hi, lo
}

// DecodeDouble converts (hi, lo) wire words back to a double. The value is
// rebuilt by explicit mantissa-fraction summation and a final exponent
// scaling, with the sign applied last.
func DecodeDouble(hi, lo uint32) float64 {
	sign := hi&0x80000000 != 0
	expo := int(hi>>20) & 0x7FF
	manthi := hi & 0xFFFFF
	mantlo := lo

	if expo == 2047 {
		if manthi == 0 && mantlo == 0 {
			if sign {
				return math.Inf(-1)
			}
			return math.Inf(1)
		}
		if sign {
			return -math.NaN()
		}
		return math.NaN()
	}

	res := float64(mantlo)/4503599627370496.0 + float64(manthi)/1048576.0

	if expo == 0 {
		expo = -1022
	} else {
		res += 1.0
		expo -= 1023
	}
	res = math.Ldexp(res, expo)

	if sign {
		return -res
	}
	return res
}
