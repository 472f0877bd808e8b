// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: injector.go — Signal injection in place of a real mistrainer
//
// Purpose:
//   - Warms the oracle slot of secret[offset] with a fixed probability per trial.
//   - Optionally warms public[offset] every trial, as the committed path of a real
//     mistrainer does, so the baseline slot reads warm.
//   - Isolates the leak loop and scorer from predictor behaviour in tests and in
//     the --strategy=inject mode of the driver.
// ─────────────────────────────────────────────────────────────────────────────

package sim

// Toucher is the oracle side effect the injector produces.
type Toucher interface {
	Touch(b byte)
}

// Injector satisfies the mistrainer contract by construction.
type Injector struct {
	sink   Toucher
	secret []byte
	public []byte // nil: leave the baseline slot cold
	noise  *Noise
	Signal float64 // probability the secret slot is warmed in one trial
	Fired  uint64  // trials that produced a signal
}

// NewInjector returns an injector that fires on every trial.
func NewInjector(sink Toucher, secret, public []byte, seed uint64) *Injector {
	return &Injector{sink: sink, secret: secret, public: public, noise: NewNoise(seed), Signal: 1}
}

// TriggerOnce warms slot secret[offset] with probability Signal.
func (in *Injector) TriggerOnce(offset, trial int) {
	if in.public != nil {
		in.sink.Touch(in.public[offset])
	}
	if in.noise.Chance(in.Signal) {
		in.sink.Touch(in.secret[offset])
		in.Fired++
	}
}
