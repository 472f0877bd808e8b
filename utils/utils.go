package utils

import (
	"os"
	"unsafe"

	"specleak/constants"
)

///////////////////////////////////////////////////////////////////////////////
// Conversion Utilities: Zero-Alloc Casts
///////////////////////////////////////////////////////////////////////////////

// B2s converts a []byte to a string **without** allocation.
// ⚠️ Caller must ensure the input slice remains valid and unchanged.
// Used for human-readable print paths.
//
//go:nosplit
//go:inline
func B2s(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// B2i reinterprets a bool as 0 or 1 without a conditional jump.
// The harness uses it wherever a branch would train the predictor under test.
//
//go:nosplit
//go:inline
func B2i(b bool) int {
	return int(*(*uint8)(unsafe.Pointer(&b)))
}

///////////////////////////////////////////////////////////////////////////////
// Integer Formatting for Cold-Path Diagnostics
///////////////////////////////////////////////////////////////////////////////

// Itoa renders a signed integer in base 10 using a fixed stack buffer.
//
//go:nosplit
//go:inline
func Itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	neg := n < 0
	u := uint64(n)
	if neg {
		u = uint64(-n)
	}
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Hex2 renders one byte as two lowercase hex digits.
//
//go:nosplit
//go:inline
func Hex2(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0x0f]})
}

// Printable returns b as a one-character string, or "." for control bytes.
//
//go:nosplit
//go:inline
func Printable(b byte) string {
	if b < 0x20 || b > 0x7e {
		return "."
	}
	return string([]byte{b})
}

///////////////////////////////////////////////////////////////////////////////
// Output Sinks: Unbuffered stdout / stderr
///////////////////////////////////////////////////////////////////////////////

// PrintWarning writes msg to stderr without formatting.
//
//go:nosplit
func PrintWarning(msg string) {
	_, _ = os.Stderr.WriteString(msg)
}

// PrintInfo writes msg to stdout without formatting.
//
//go:nosplit
func PrintInfo(msg string) {
	_, _ = os.Stdout.WriteString(msg)
}

///////////////////////////////////////////////////////////////////////////////
// Probe Ordering & Mixers
///////////////////////////////////////////////////////////////////////////////

// MixIndex maps probe step i to the slot visited at that step.
// The map depends only on i, never on the secret, and is a bijection over 0–255.
//
//go:nosplit
//go:inline
func MixIndex(i int) int {
	return (i*constants.ProbeMul + constants.ProbeAdd) & (constants.OracleSize - 1)
}

// Mix64 applies a Murmur3-style avalanche to a 64-bit value.
// Used to spread simulator seeds before they key the noise stream.
//
//go:nosplit
//go:inline
func Mix64(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}
