// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: predictor.go — BTB and RSB models for simulated speculation
//
// Purpose:
//   - Stands in for the hardware predictors when the harness runs on the simulator.
//   - The mistrainers report every indirect call and every return; when the model
//     predicts a target other than the committed one, the mistrainer runs the
//     predicted body once as a "transient" window.
//
// Notes:
//   - BTB: last-target prediction per call site, no aliasing.
//   - RSB: fixed-capacity circular stack. Underflow wraps onto stale entries,
//     exactly the property return-address poisoning relies on.
// ─────────────────────────────────────────────────────────────────────────────

package sim

import "specleak/constants"

// Predictor bundles a BTB and an RSB.
type Predictor struct {
	btb map[int]int

	rsb   []int
	valid []bool
	top   int

	Mispredicts uint64
}

// NewPredictor returns a model whose RSB holds capacity entries.
// A capacity ≤ 0 selects the common 16-entry RSB.
func NewPredictor(capacity int) *Predictor {
	if capacity <= 0 {
		capacity = constants.RSBCapacity
	}
	return &Predictor{
		btb:   make(map[int]int),
		rsb:   make([]int, capacity),
		valid: make([]bool, capacity),
	}
}

// Capacity returns the modeled RSB size.
func (p *Predictor) Capacity() int { return len(p.rsb) }

// Indirect predicts the target of site, then trains the BTB with actual.
// ok is false when the site has never been seen.
func (p *Predictor) Indirect(site, actual int) (predicted int, ok bool) {
	predicted, ok = p.btb[site]
	p.btb[site] = actual
	if ok && predicted != actual {
		p.Mispredicts++
	}
	return predicted, ok
}

// Call pushes ret onto the RSB, overwriting the oldest entry when full.
func (p *Predictor) Call(ret int) {
	i := p.top % len(p.rsb)
	p.rsb[i] = ret
	p.valid[i] = true
	p.top++
}

// Return pops the RSB and reports its prediction for a return to actual.
// ok is false only if the popped entry was never written.
func (p *Predictor) Return(actual int) (predicted int, ok bool) {
	p.top--
	i := ((p.top % len(p.rsb)) + len(p.rsb)) % len(p.rsb)
	predicted, ok = p.rsb[i], p.valid[i]
	if ok && predicted != actual {
		p.Mispredicts++
	}
	return predicted, ok
}

// Reset forgets all predictor history.
func (p *Predictor) Reset() {
	p.btb = make(map[int]int)
	for i := range p.rsb {
		p.rsb[i], p.valid[i] = 0, false
	}
	p.top, p.Mispredicts = 0, 0
}
