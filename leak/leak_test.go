package leak

import (
	"errors"
	"testing"

	"specleak/constants"
	"specleak/oracle"
	"specleak/predictor"
	"specleak/sim"
)

// ============================================================================
// STUBS
// ============================================================================

// script records the call order and converges on a chosen trial.
type script struct {
	calls      []string
	convergeAt int // 1-based recompute call that converges; 0 never
	recomputes int
	resets     int
	baselines  []byte
}

func (s *script) Flush() { s.calls = append(s.calls, "flush") }

func (s *script) RecomputeScores(baseline byte) (bool, byte) {
	s.calls = append(s.calls, "score")
	s.baselines = append(s.baselines, baseline)
	s.recomputes++
	return s.convergeAt != 0 && s.recomputes >= s.convergeAt, 'Q'
}

func (s *script) Best() (byte, int) {
	if s.convergeAt != 0 && s.recomputes >= s.convergeAt {
		return 'Q', constants.ConfidenceThreshold + 1
	}
	return 'q', 1
}

func (s *script) RunnerUp() (byte, int) { return 'r', 1 }

func (s *script) Reset() { s.resets++ }

type trigger struct {
	s      *script
	trials []int
}

func (m *trigger) TriggerOnce(offset, trial int) {
	m.s.calls = append(m.s.calls, "trigger")
	m.trials = append(m.trials, trial)
}

var _ predictor.Mistrainer = (*trigger)(nil)
var _ Scorer = (*oracle.Oracle)(nil)

// ============================================================================
// STATE MACHINE
// ============================================================================

func TestNewRejectsCeiling(t *testing.T) {
	s := &script{}
	if _, err := New(s, &trigger{s: s}, []byte("x"), 0); !errors.Is(err, ErrMaxTrials) {
		t.Fatalf("err = %v, want ErrMaxTrials", err)
	}
}

func TestLeakRejectsOffset(t *testing.T) {
	s := &script{convergeAt: 1}
	l, _ := New(s, &trigger{s: s}, []byte("xx"), 10)
	for _, off := range []int{-1, 2} {
		if _, err := l.Leak(off); !errors.Is(err, ErrOffset) {
			t.Fatalf("Leak(%d) err = %v", off, err)
		}
	}
	if len(s.calls) != 0 {
		t.Fatal("rejected offset must not run a trial")
	}
}

func TestTrialOrder(t *testing.T) {
	s := &script{convergeAt: 2}
	m := &trigger{s: s}
	l, _ := New(s, m, []byte("xy"), 10)

	res, err := l.Leak(1)
	if err != nil {
		t.Fatalf("Leak: %v", err)
	}
	want := []string{"flush", "trigger", "score", "flush", "trigger", "score"}
	if len(s.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", s.calls, want)
	}
	for i := range want {
		if s.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", s.calls, want)
		}
	}
	if m.trials[0] != 0 || m.trials[1] != 1 {
		t.Fatalf("trial indices = %v", m.trials)
	}
	for _, b := range s.baselines {
		if b != 'y' {
			t.Fatalf("baseline = %q, want public[1]", b)
		}
	}
	if !res.Converged || res.Value != 'Q' || res.Trials != 2 || res.Offset != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.RunnerUp != 'r' || res.RunnerUpEvidence != 1 {
		t.Fatalf("runner-up = %q/%d", res.RunnerUp, res.RunnerUpEvidence)
	}
	if l.Phase() != PhaseConverged {
		t.Fatalf("phase = %v", l.Phase())
	}
	// Once before the first trial, once after convergence.
	if s.resets != 2 {
		t.Fatalf("resets = %d, want 2", s.resets)
	}
}

func TestCeilingIsExact(t *testing.T) {
	s := &script{}
	m := &trigger{s: s}
	const ceiling = 7
	l, _ := New(s, m, []byte("x"), ceiling)

	res, err := l.Leak(0)
	if !errors.Is(err, ErrNoConvergence) {
		t.Fatalf("err = %v, want ErrNoConvergence", err)
	}
	var ce *ConvergenceError
	if !errors.As(err, &ce) {
		t.Fatalf("err %T is not *ConvergenceError", err)
	}
	if ce.Offset != 0 || ce.Trials != ceiling || ce.Best != 'q' {
		t.Fatalf("ConvergenceError = %+v", ce)
	}
	if s.recomputes != ceiling || len(m.trials) != ceiling {
		t.Fatalf("ran %d recomputes and %d triggers, want %d", s.recomputes, len(m.trials), ceiling)
	}
	if res != (Result{}) {
		t.Fatalf("gave-up offset returned a result: %+v", res)
	}
	if l.Phase() != PhaseGivenUp {
		t.Fatalf("phase = %v", l.Phase())
	}
}

func TestPhaseString(t *testing.T) {
	if PhaseGivenUp.String() != "given-up" || PhaseReset.String() != "reset" {
		t.Fatal("phase names")
	}
	if Phase(99).String() != "phase(99)" {
		t.Fatalf("unknown phase = %q", Phase(99).String())
	}
}

func TestLeakAllStopsOnCallback(t *testing.T) {
	s := &script{convergeAt: 1}
	l, _ := New(s, &trigger{s: s}, []byte("abcd"), 5)
	n := 0
	out, err := l.LeakAll(func(Result) bool { n++; return n < 2 })
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0].Offset != 0 || out[1].Offset != 1 {
		t.Fatalf("results = %+v", out)
	}
}

func TestLeakAllStopsOnError(t *testing.T) {
	s := &script{}
	l, _ := New(s, &trigger{s: s}, []byte("ab"), 3)
	out, err := l.LeakAll(nil)
	if !errors.Is(err, ErrNoConvergence) || len(out) != 0 {
		t.Fatalf("out=%v err=%v", out, err)
	}
}

// ============================================================================
// END TO END ON THE SIMULATOR
// ============================================================================

func simOracle(t *testing.T, seed uint64, jitter uint64) (*sim.Cache, *oracle.Oracle) {
	t.Helper()
	c := sim.NewCache(seed)
	c.Jitter = jitter
	o, err := oracle.New(c, constants.ConfidenceThreshold)
	if err != nil {
		t.Fatal(err)
	}
	return c, o
}

// TestInjectedSignalRecoversSecret uses a cold baseline, so only the secret slot
// ever reads below it.
func TestInjectedSignalRecoversSecret(t *testing.T) {
	_, o := simOracle(t, 1, 0)
	inj := sim.NewInjector(o, []byte("AB"), nil, 1)
	l, _ := New(o, inj, []byte("xx"), constants.MaxTrials)

	out, err := l.LeakAll(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(Recovered(out)) != "AB" {
		t.Fatalf("recovered %q", Recovered(out))
	}
	for _, r := range out {
		if r.Trials != constants.ConfidenceThreshold+1 || r.Evidence != constants.ConfidenceThreshold+1 {
			t.Fatalf("offset %d: %+v", r.Offset, r)
		}
	}
	// Evidence is discarded between offsets.
	if o.Evidence('A') != 0 || o.Evidence('B') != 0 {
		t.Fatal("evidence leaked past the offset")
	}
}

func TestSilentChannelGivesUp(t *testing.T) {
	_, o := simOracle(t, 2, 0)
	inj := sim.NewInjector(o, []byte("A"), []byte("x"), 2)
	inj.Signal = 0
	l, _ := New(o, inj, []byte("x"), 50)

	if _, err := l.Leak(0); !errors.Is(err, ErrNoConvergence) {
		t.Fatalf("err = %v", err)
	}
}

// TestRoundTripEveryByte leaks a single secret byte for each value, with a
// warm baseline and jitter on.
func TestRoundTripEveryByte(t *testing.T) {
	for v := 0; v < constants.OracleSize; v++ {
		secret := []byte{byte(v)}
		public := []byte{byte(v) ^ 0x80}
		_, o := simOracle(t, uint64(v)+1, constants.SimJitter)
		inj := sim.NewInjector(o, secret, public, uint64(v)+1)
		l, _ := New(o, inj, public, 1000)

		r, err := l.Leak(0)
		if err != nil {
			t.Fatalf("byte %#02x: %v", v, err)
		}
		if r.Value != byte(v) {
			t.Fatalf("byte %#02x: recovered %#02x", v, r.Value)
		}
	}
}

func TestBranchTargetLeaksOnSimulator(t *testing.T) {
	_, o := simOracle(t, 3, constants.SimJitter)
	d, err := predictor.NewData([]byte("xxxx"), []byte("Spec"))
	if err != nil {
		t.Fatal(err)
	}
	for _, chain := range []int{0, 2} {
		bt, err := predictor.NewBranchTarget(o, d, chain, sim.NewPredictor(constants.RSBCapacity))
		if err != nil {
			t.Fatal(err)
		}
		l, _ := New(o, bt, []byte("xxxx"), 2000)
		out, err := l.LeakAll(nil)
		if err != nil {
			t.Fatalf("chain %d: %v", chain, err)
		}
		if string(Recovered(out)) != "Spec" {
			t.Fatalf("chain %d: recovered %q", chain, Recovered(out))
		}
	}
}

func TestReturnAddressLeaksOnSimulator(t *testing.T) {
	_, o := simOracle(t, 4, constants.SimJitter)
	d, err := predictor.NewData([]byte("----"), []byte("RSB!"))
	if err != nil {
		t.Fatal(err)
	}
	ra, err := predictor.NewReturnAddress(o, d, constants.RecursionDepth, sim.NewPredictor(constants.RSBCapacity))
	if err != nil {
		t.Fatal(err)
	}
	l, _ := New(o, ra, []byte("----"), 2000)
	out, err := l.LeakAll(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(Recovered(out)) != "RSB!" {
		t.Fatalf("recovered %q", Recovered(out))
	}
}
