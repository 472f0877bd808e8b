// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: noise.go — Deterministic jitter stream for the simulator
//
// Purpose:
//   - Supplies reproducible pseudo-random words keyed only by a seed.
//   - Same seed, same latencies, same convergence trial: tests depend on it.
//
// Notes:
//   - SHAKE-128 is used as an XOF; 64 bytes are squeezed per refill.
// ─────────────────────────────────────────────────────────────────────────────

package sim

import (
	"encoding/binary"

	"specleak/utils"

	"golang.org/x/crypto/sha3"
)

// Noise is a seeded, reproducible source of jitter and coin flips.
type Noise struct {
	xof sha3.ShakeHash
	buf [64]byte
	pos int
}

// NewNoise keys a SHAKE-128 stream with seed.
func NewNoise(seed uint64) *Noise {
	var key [16]byte
	binary.LittleEndian.PutUint64(key[:8], seed)
	binary.LittleEndian.PutUint64(key[8:], utils.Mix64(seed))
	n := &Noise{xof: sha3.NewShake128()}
	_, _ = n.xof.Write(key[:])
	n.pos = len(n.buf)
	return n
}

// Uint64 returns the next 64 bits of the stream.
func (n *Noise) Uint64() uint64 {
	if n.pos+8 > len(n.buf) {
		_, _ = n.xof.Read(n.buf[:])
		n.pos = 0
	}
	v := binary.LittleEndian.Uint64(n.buf[n.pos:])
	n.pos += 8
	return v
}

// Intn returns a value in [0, bound). bound 0 yields 0 without consuming the stream.
func (n *Noise) Intn(bound uint64) uint64 {
	if bound == 0 {
		return 0
	}
	return n.Uint64() % bound
}

// Chance returns true with probability rate. Rates ≤ 0 and ≥ 1 are exact.
func (n *Noise) Chance(rate float64) bool {
	switch {
	case rate <= 0:
		return false
	case rate >= 1:
		return true
	}
	return float64(n.Uint64()>>11)/(1<<53) < rate
}
