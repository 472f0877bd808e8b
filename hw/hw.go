// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: hw.go — Cache & cycle-counter primitives for the timing oracle
//
// Purpose:
//   - Exposes CLFLUSH, MFENCE+LFENCE, a fenced TSC-timed load and a forced load.
//   - Backend wraps them behind the oracle.Backend method set.
//
// Notes:
//   - Every address is a uintptr. Callers keep the underlying memory alive.
//   - Stack addresses are passed as uintptr so taking them never forces an escape.
//   - The portable stub compiles everywhere but measures nothing; Supported()
//     reports false there and the driver falls back to the simulator.
//
// ⚠️ Single-threaded use only. A sibling core's traffic is indistinguishable from signal.
// ─────────────────────────────────────────────────────────────────────────────

package hw

import "errors"

// ErrPinUnsupported is returned by Pin on platforms without thread affinity.
var ErrPinUnsupported = errors.New("hw: cpu pinning not supported on this platform")

// Backend drives the real cache hierarchy.
type Backend struct{}

// FlushLine evicts the line holding addr from every cache level.
//
//go:nosplit
//go:inline
func (Backend) FlushLine(addr uintptr) { flushLine(addr) }

// Fence orders all prior loads, stores and flushes and closes the speculation window.
//
//go:nosplit
//go:inline
func (Backend) Fence() { fence() }

// ReadLatency loads one byte from addr and returns the round trip in TSC ticks.
//
//go:nosplit
//go:inline
func (Backend) ReadLatency(addr uintptr) uint64 { return readLatency(addr) }

// Touch loads one byte from addr and discards it.
//
//go:nosplit
//go:inline
func (Backend) Touch(addr uintptr) { touch(addr) }
