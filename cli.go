// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: cli.go — Command-line surface of the leak driver
//
// Purpose:
//   - Parses flags into one flat options value.
//   - Validates combinations the packages below would reject later anyway,
//     so the operator sees the problem before the leak phase starts.
// ─────────────────────────────────────────────────────────────────────────────

package main

import (
	"errors"

	"specleak/constants"
	"specleak/utils"

	"github.com/spf13/pflag"
)

const (
	strategyBTB    = "btb"
	strategyRSB    = "rsb"
	strategyInject = "inject"
)

var (
	errStrategy = errors.New("unknown strategy (want btb, rsb or inject)")
	errSecret   = errors.New("secret must not be empty")
	errPublic   = errors.New("public text must match the secret length")
	errSignal   = errors.New("signal and noise rates must be within [0, 1]")
)

// options is the full run configuration.
type options struct {
	strategy  string
	depth     int
	chain     int
	threshold int
	maxTrials int
	secret    string
	public    string
	sim       bool
	seed      uint64
	signal    float64
	noise     float64
	cpu       int
	json      bool
	db        string
	sweep     []int
}

// parseFlags reads args (without the program name).
func parseFlags(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet("specleak", pflag.ContinueOnError)
	fs.SortFlags = false

	fs.StringVarP(&o.strategy, "strategy", "s", strategyBTB, "mistraining strategy: btb, rsb or inject")
	fs.IntVar(&o.depth, "depth", constants.RecursionDepth, "return stack fill depth (rsb)")
	fs.IntVar(&o.chain, "chain", constants.ChainDepth, "extra indirect hops per dispatch (btb)")
	fs.IntVar(&o.threshold, "threshold", constants.ConfidenceThreshold, "evidence a byte must exceed to be accepted")
	fs.IntVar(&o.maxTrials, "max-trials", constants.MaxTrials, "per-offset retry ceiling")
	fs.StringVar(&o.secret, "secret", constants.DefaultSecret, "private text to leak")
	fs.StringVar(&o.public, "public", "", "public text of the same length (default: derived from the secret)")
	fs.BoolVar(&o.sim, "sim", false, "run on the simulated cache and predictor")
	fs.Uint64Var(&o.seed, "seed", 1, "simulator noise seed")
	fs.Float64Var(&o.signal, "signal", 1, "per-trial signal probability (inject)")
	fs.Float64Var(&o.noise, "noise", 0, "simulated spurious-hit rate per cold read")
	fs.IntVar(&o.cpu, "cpu", -1, "pin the leak thread to this cpu (-1: no pinning)")
	fs.BoolVar(&o.json, "json", false, "print the accuracy report as JSON")
	fs.StringVar(&o.db, "db", "", "append the run to this SQLite journal")
	fs.IntSliceVar(&o.sweep, "sweep", nil, "depths to sweep over the first bytes, e.g. 1,5,15,25")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, o.validate()
}

func (o *options) validate() error {
	switch o.strategy {
	case strategyBTB, strategyRSB, strategyInject:
	default:
		return errors.New(o.strategy + ": " + errStrategy.Error())
	}
	if o.secret == "" {
		return errSecret
	}
	if o.public == "" {
		o.public = derivePublic(o.secret)
	}
	if len(o.public) != len(o.secret) {
		return errors.New(errPublic.Error() + " (" + utils.Itoa(len(o.public)) + " != " + utils.Itoa(len(o.secret)) + ")")
	}
	if o.signal < 0 || o.signal > 1 || o.noise < 0 || o.noise > 1 {
		return errSignal
	}
	return nil
}

// derivePublic fills with 'x', switching to 'y' where the secret itself is 'x'.
// A baseline equal to the secret byte could never be credited.
func derivePublic(secret string) string {
	b := make([]byte, len(secret))
	for i := range b {
		b[i] = 'x'
		if secret[i] == 'x' {
			b[i] = 'y'
		}
	}
	return string(b)
}

// depths returns the depths to run: the sweep list, or the single configured
// depth of the chosen strategy.
func (o *options) depths() []int {
	if len(o.sweep) > 0 {
		return o.sweep
	}
	if o.strategy == strategyBTB {
		return []int{o.chain}
	}
	return []int{o.depth}
}

// span returns how many leading offsets each depth leaks.
func (o *options) span() int {
	if len(o.sweep) > 0 && len(o.secret) > constants.SweepPrefix {
		return constants.SweepPrefix
	}
	return len(o.secret)
}
