// ════════════════════════════════════════════════════════════════════════════════════════════════
// Predictor Mistrainer
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: specleak
// Component: Branch-target and return-address mistraining strategies
//
// Description:
//   Each strategy drives one hardware predictor through a train/mistrain cycle so that a
//   short instruction sequence dereferencing secret[offset] runs only transiently and
//   leaves its mark in the timing oracle. The committed path reads public data only.
//
// Contract:
//   After TriggerOnce returns, at most one oracle slot besides the baseline carries a
//   speculative warm signature, and its index is secret[offset]. TriggerOnce never
//   reports failure; convergence is the leak loop's business.
//
// Shadow:
//   On the simulator there is no hardware predictor to mistrain. A Shadow models it: the
//   strategies report every indirect dispatch and every call/return, and when the model
//   predicts the divergent target they run that target's body once, which is exactly
//   what the CPU would have done transiently. On hardware the shadow is nil.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package predictor

import (
	"errors"
	"unsafe"

	"specleak/utils"
)

var (
	// ErrLengthMismatch is returned when the public and private ranges differ in length.
	ErrLengthMismatch = errors.New("predictor: public and private data must have equal non-zero length")

	// ErrDepthTooShallow is returned for a fill depth below the predictor capacity.
	ErrDepthTooShallow = errors.New("predictor: recursion depth below predictor capacity")

	// ErrDepthTooDeep is returned for a fill depth beyond the stack mark table.
	ErrDepthTooDeep = errors.New("predictor: recursion depth exceeds supported maximum")

	// ErrChainDepth is returned for a negative dispatch chain depth.
	ErrChainDepth = errors.New("predictor: chain depth must be non-negative")
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CONTRACTS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Mistrainer forces one transient execution against secret[offset].
// trial selects the mistrained slot or recursion target.
type Mistrainer interface {
	TriggerOnce(offset, trial int)
}

// Shadow models the branch-target buffer and return stack buffer.
type Shadow interface {
	Indirect(site, actual int) (predicted int, ok bool)
	Call(ret int)
	Return(actual int) (predicted int, ok bool)
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// DATA PAIR
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Data is the public/private byte pair a leak targets.
// Both ranges are only ever reached through bases, a two-entry table indexed by
// the wantPrivate flag, so choosing between them compiles to a load, not a branch.
type Data struct {
	bases   [2]unsafe.Pointer // [0] public, [1] private
	public  []byte
	private []byte
}

// NewData pairs public and private ranges of equal length.
func NewData(public, private []byte) (*Data, error) {
	if len(public) == 0 || len(public) != len(private) {
		return nil, ErrLengthMismatch
	}
	return &Data{
		bases:   [2]unsafe.Pointer{unsafe.Pointer(&public[0]), unsafe.Pointer(&private[0])},
		public:  public,
		private: private,
	}, nil
}

// Len returns the number of leakable offsets.
func (d *Data) Len() int { return len(d.public) }

// Public returns the architectural baseline byte at offset.
func (d *Data) Public(offset int) byte { return d.public[offset] }

// load reads the selected range at index. No bounds check: offsets are validated
// once by the leak loop, and a check here would be one more branch for the
// predictor to learn.
//
//go:nosplit
//go:inline
func (d *Data) load(index int, wantPrivate bool) byte {
	return *(*byte)(unsafe.Add(d.bases[utils.B2i(wantPrivate)&1], index))
}
