// ════════════════════════════════════════════════════════════════════════════════════════════════
// Speculative Leak Harness - Main Entry Point
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: specleak
// Component: Driver & Run Orchestration
//
// Description:
//   Leaks a known secret byte by byte through a cache timing channel, using one of the
//   mistraining strategies, then reports how much of it came back.
//   Setup → Leak (GC off, thread locked) → Report
//
// Architecture:
//   - Phase 1: Flags, pinning, backend selection, optional journal
//   - Phase 2: Per-depth leak loop; finished offsets cross a ring to a consumer thread
//     that prints progress and journals, away from the measuring core
//   - Phase 3: Accuracy report as text or JSON
//
// Exit status:
//   0 on success or interrupt, 1 when an offset gives up or setup fails, 2 on bad flags.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package main

import (
	"errors"
	"io"
	"os"
	"os/signal"
	"runtime"
	rtdebug "runtime/debug"
	"sync/atomic"
	"syscall"

	"specleak/constants"
	"specleak/control"
	"specleak/debug"
	"specleak/hw"
	"specleak/journal"
	"specleak/leak"
	"specleak/oracle"
	"specleak/predictor"
	"specleak/report"
	"specleak/ring"
	"specleak/sim"
	"specleak/utils"

	"github.com/spf13/pflag"
)

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		debug.DropError("FLAGS", err)
		os.Exit(2)
	}
	setupSignalHandling()
	os.Exit(run(opts, os.Stdout))
}

// recordRingSize bounds the offsets in flight between the leak thread and the consumer.
const recordRingSize = 64

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// RUN ORCHESTRATION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// run executes one full run and returns the process exit status.
func run(opts options, out io.Writer) int {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := hw.Pin(opts.cpu); err != nil {
		debug.DropError("PIN", err)
	}
	if !opts.sim && !hw.Supported() {
		utils.PrintWarning("timing primitives unavailable on this host, using the simulator\n")
		opts.sim = true
	}

	var j *journal.Journal
	var runID journal.RunID
	if opts.db != "" {
		var err error
		if j, err = journal.Open(opts.db); err != nil {
			debug.DropError("JOURNAL", err)
			return 1
		}
		defer j.Close()
		runID, err = j.BeginRun(journal.Params{
			Strategy:    opts.strategy,
			Depth:       opts.depth,
			Chain:       opts.chain,
			Threshold:   opts.threshold,
			MaxTrials:   opts.maxTrials,
			Sim:         opts.sim,
			Seed:        opts.seed,
			CPU:         opts.cpu,
			Sweep:       opts.sweep,
			Fingerprint: report.Fingerprint([]byte(opts.secret)),
		})
		if err != nil {
			debug.DropError("JOURNAL", err)
			return 1
		}
	}

	debug.DropMessage("INIT", "strategy "+opts.strategy+", "+utils.Itoa(len(opts.secret))+
		" bytes, threshold "+utils.Itoa(opts.threshold)+", sim "+onOff(opts.sim))

	secret := []byte(opts.secret)
	var preds []report.Prediction
	status := 0

	records := ring.New(recordRingSize)
	var stop uint32
	done := make(chan struct{})
	ring.Consume(consumerCore(opts.cpu), records, &stop, func(rec *ring.Record) {
		printProgress(rec)
		if j != nil {
			if err := j.Record(runID, rec.Depth, secret[rec.Result.Offset], rec.Result); err != nil {
				debug.DropError("JOURNAL", err)
			}
		}
	}, done)

	ran := 0
	for _, depth := range opts.depths() {
		loop, err := build(opts, depth)
		if err != nil {
			debug.DropError("DEPTH "+utils.Itoa(depth), err)
			if len(opts.sweep) > 0 {
				continue
			}
			status = 1
			break
		}
		ran++

		gc := rtdebug.SetGCPercent(-1)
		results, err := leakPrefix(loop, opts.span(), depth, records)
		rtdebug.SetGCPercent(gc)

		preds = append(preds, report.FromResults(secret, depth, results)...)

		var ce *leak.ConvergenceError
		if errors.As(err, &ce) {
			debug.DropError("GIVEUP", err)
			if len(opts.sweep) == 0 {
				status = 1
				break
			}
			// A sweep scores the failure as a miss and moves to the next depth.
			preds = append(preds, report.Prediction{
				Position: ce.Offset, Depth: depth, Expected: secret[ce.Offset], Predicted: ce.Best,
				Evidence: ce.Evidence, Trials: ce.Trials,
			})
		} else if err != nil {
			debug.DropError("LEAK", err)
			status = 1
			break
		}
		if control.Stopped() {
			debug.DropMessage("STOP", utils.Itoa(int(control.Offsets()))+" offsets done")
			break
		}
	}

	atomic.StoreUint32(&stop, 1)
	<-done
	if ran == 0 {
		debug.DropMessage("ABORT", "no depth could be run")
		return 1
	}
	if status != 0 && len(preds) == 0 {
		return status
	}

	analysis := report.Analyze(secret, preds)
	if opts.json {
		raw, err := analysis.JSON()
		if err != nil {
			debug.DropError("JSON", err)
			return 1
		}
		_, _ = out.Write(append(raw, '\n'))
	} else if err := analysis.Render(out); err != nil {
		debug.DropError("REPORT", err)
	}
	return status
}

// build assembles backend, oracle, mistrainer and loop for one depth.
func build(opts options, depth int) (*leak.Loop, error) {
	var backend oracle.Backend = hw.Backend{}
	var shadow predictor.Shadow
	if opts.sim {
		c := sim.NewCache(opts.seed)
		c.Spurious = opts.noise
		backend = c
		shadow = sim.NewPredictor(constants.RSBCapacity)
	}

	o, err := oracle.New(backend, opts.threshold)
	if err != nil {
		return nil, err
	}
	public, secret := []byte(opts.public), []byte(opts.secret)
	data, err := predictor.NewData(public, secret)
	if err != nil {
		return nil, err
	}

	var m predictor.Mistrainer
	switch opts.strategy {
	case strategyBTB:
		m, err = predictor.NewBranchTarget(o, data, depth, shadow)
	case strategyRSB:
		m, err = predictor.NewReturnAddress(o, data, depth, shadow)
	default:
		inj := sim.NewInjector(o, secret, public, opts.seed)
		inj.Signal = opts.signal
		m = inj
	}
	if err != nil {
		return nil, err
	}
	return leak.New(o, m, public, opts.maxTrials)
}

// leakPrefix leaks offsets [0, n) and hands each finished offset to the ring.
// It stops between offsets once a shutdown is requested.
func leakPrefix(loop *leak.Loop, n, depth int, records *ring.Ring) ([]leak.Result, error) {
	results := make([]leak.Result, 0, n)
	var rec ring.Record
	for off := 0; off < n; off++ {
		if control.Stopped() {
			break
		}
		r, err := loop.Leak(off)
		if err != nil {
			var ce *leak.ConvergenceError
			if errors.As(err, &ce) {
				rec = ring.Record{Depth: depth, Failed: true, Result: leak.Result{
					Offset: ce.Offset, Value: ce.Best, Evidence: ce.Evidence, Trials: ce.Trials,
				}}
				records.PushWait(&rec)
			}
			return results, err
		}
		results = append(results, r)
		control.MarkOffset()
		rec = ring.Record{Depth: depth, Result: r}
		records.PushWait(&rec)
	}
	return results, nil
}

// consumerCore keeps the consumer off the leak core when pinning is on.
func consumerCore(cpu int) int {
	if cpu < 0 {
		return -1
	}
	return cpu + 1
}

func printProgress(rec *ring.Record) {
	r := &rec.Result
	if rec.Failed {
		utils.PrintInfo("depth " + utils.Itoa(rec.Depth) + " offset " + utils.Itoa(r.Offset) +
			": gave up after " + utils.Itoa(r.Trials) + " trials (best 0x" + utils.Hex2(r.Value) + ")\n")
		return
	}
	utils.PrintInfo("depth " + utils.Itoa(rec.Depth) + " offset " + utils.Itoa(r.Offset) +
		": 0x" + utils.Hex2(r.Value) + " '" + utils.Printable(r.Value) + "'" +
		" evidence " + utils.Itoa(r.Evidence) + " trials " + utils.Itoa(r.Trials) +
		" (runner-up 0x" + utils.Hex2(r.RunnerUp) + " '" + utils.Printable(r.RunnerUp) +
		"' " + utils.Itoa(r.RunnerUpEvidence) + ")\n")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SIGNAL HANDLING
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// setupSignalHandling turns SIGINT and SIGTERM into a stop between offsets.
func setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		debug.DropMessage("SIGNAL", "Received interrupt, finishing the current offset")
		control.Shutdown()
	}()
}
