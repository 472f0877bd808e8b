//go:build amd64 && !noasm

// primitives_amd64.go
//
// Go declarations for the amd64 primitives. The bodies live in
// primitives_amd64.s; each one is a handful of instructions with no stack frame.

package hw

import "golang.org/x/sys/cpu"

// flushLine executes CLFLUSH on addr.
//
//go:noescape
func flushLine(addr uintptr)

// fence executes MFENCE followed by LFENCE.
//
//go:noescape
func fence()

// readLatency times a single byte load from addr between two LFENCE-ordered
// RDTSC reads.
//
//go:noescape
func readLatency(addr uintptr) uint64

// touch performs a single byte load from addr.
//
//go:noescape
func touch(addr uintptr)

// Supported reports whether CLFLUSH, MFENCE and LFENCE are available.
// All three ship with SSE2; RDTSC is present on every amd64 part.
func Supported() bool {
	return cpu.X86.HasSSE2
}
