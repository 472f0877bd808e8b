//go:build !amd64 || noasm

// primitives_stub.go
//
// Portable fall-back for non-amd64 builds or when assembly stubs are
// disabled. Declares every primitive so source compiles unchanged; nothing
// here is a timing source.

package hw

func flushLine(addr uintptr) {}

func fence() {}

func readLatency(addr uintptr) uint64 { return 0 }

func touch(addr uintptr) {}

// Supported is always false without the assembly primitives.
func Supported() bool { return false }
