// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: capi.go — Oracle sessions behind the C boundary
//
// Purpose:
//   - Holds one timing oracle per C handle.
//   - Keeps all logic on the Go side so it is testable without cgo.
//
// Notes:
//   - A Session is single-threaded. C callers must not share a handle across threads.
//   - The exported symbols live in exports.go and only build with cgo.
// ─────────────────────────────────────────────────────────────────────────────

package capi

import (
	"specleak/constants"
	"specleak/hw"
	"specleak/oracle"
	"specleak/sim"
)

// Session is the state behind one C handle.
type Session struct {
	oracle *oracle.Oracle
	sim    *sim.Cache // nil on hardware
}

// NewSession builds a session on the hardware backend, or on the simulator when
// forceSim is set or the host lacks the timing primitives.
func NewSession(forceSim bool, seed uint64) (*Session, error) {
	s := &Session{}
	var backend oracle.Backend = hw.Backend{}
	if forceSim || !hw.Supported() {
		s.sim = sim.NewCache(seed)
		backend = s.sim
	}
	o, err := oracle.New(backend, constants.ConfidenceThreshold)
	if err != nil {
		return nil, err
	}
	s.oracle = o
	return s, nil
}

// Simulated reports whether the session runs on the simulator.
func (s *Session) Simulated() bool { return s.sim != nil }

// Oracle exposes the underlying oracle to Go callers.
func (s *Session) Oracle() *oracle.Oracle { return s.oracle }

// FlushOracle evicts every oracle slot.
func (s *Session) FlushOracle() { s.oracle.Flush() }

// RecomputeScores probes and rescores against safe.
func (s *Session) RecomputeScores(safe byte) (bool, byte) {
	return s.oracle.RecomputeScores(safe)
}

// AddHitAndRecomputeScores forces a load on the next slot of the probe order and
// rescores with it as the baseline.
func (s *Session) AddHitAndRecomputeScores() (bool, byte) {
	return s.oracle.AddRotatingHit()
}
