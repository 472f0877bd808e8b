// control.go — Run-level stop flag for the leak driver
// ============================================================================
// RUN CONTROL
// ============================================================================
//
// The leak loop itself has no cancellation: a trial either converges or burns
// through the retry ceiling. The driver, however, leaks many offsets in a row
// and should stop cleanly between two of them when the operator hits Ctrl-C,
// so the journal and the accuracy report still see every finished offset.
//
// Threading model:
//   • The signal goroutine calls Shutdown() once.
//   • The driver thread polls Stopped() between offsets, never inside a trial.

package control

import "sync/atomic"

// ============================================================================
// GLOBAL STATE MANAGEMENT
// ============================================================================

var (
	stop    uint32 // 1 = finish the current offset, then stop
	offsets uint64 // offsets completed since start, for the shutdown message
)

// Shutdown requests that the run stop after the offset in flight.
//
//go:nosplit
//go:inline
func Shutdown() {
	atomic.StoreUint32(&stop, 1)
}

// Stopped reports whether Shutdown has been requested.
//
//go:nosplit
//go:inline
func Stopped() bool {
	return atomic.LoadUint32(&stop) != 0
}

// MarkOffset records that one more offset finished.
//
//go:nosplit
//go:inline
func MarkOffset() {
	atomic.AddUint64(&offsets, 1)
}

// Offsets returns the number of offsets finished so far.
func Offsets() uint64 {
	return atomic.LoadUint64(&offsets)
}

// Reset clears every flag. Tests and the depth sweep start from a clean slate.
func Reset() {
	atomic.StoreUint32(&stop, 0)
	atomic.StoreUint64(&offsets, 0)
}
