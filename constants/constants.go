// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: constants.go — Harness Tunables & Oracle Geometry
//
// Purpose:
//   - Defines the oracle geometry, convergence policy and predictor training depths.
//   - Holds the simulated latencies used by the hardware-independent backend.
//
// Notes:
//   - Every value here is compile-time resolvable; runtime overrides come from CLI flags.
//   - Depth bounds reflect observed predictor capacities (RSB 16–64 entries).
//
// ⚠️ No runtime logic here. Every value must be compile-time resolvable.
// ─────────────────────────────────────────────────────────────────────────────

package constants

// ───────────────────────────── Oracle Geometry ──────────────────────────────

const (
	// OracleSize is the number of slots, one per possible byte value.
	OracleSize = 256

	// CacheLineSize is the flush granularity assumed on every supported target.
	CacheLineSize = 64

	// PageSize is the smallest page on every supported target.
	PageSize = 4096

	// SlotStride is the distance between two oracle slots. Each slot owns a page:
	// hardware prefetchers do not cross page boundaries, so a probe sweep never
	// warms a slot it has not read yet.
	SlotStride = PageSize

	// ProbeMul and ProbeAdd define the fixed probe permutation (i*167+13)&0xFF.
	// 167 is odd, so the map is a bijection over 0–255.
	ProbeMul = 167
	ProbeAdd = 13
)

// ─────────────────────────── Convergence Policy ─────────────────────────────

const (
	// ConfidenceThreshold is the evidence a candidate must exceed to be accepted.
	// A hit on the first measured trial is not trusted.
	ConfidenceThreshold = 3

	// MaxTrials is the per-offset retry ceiling. Reaching it aborts the run.
	MaxTrials = 100000
)

// ───────────────────────────── Predictor Training ───────────────────────────

const (
	// AccessorCount is the number of indirect dispatch slots in the branch-target strategy.
	AccessorCount = 1024

	// ChainDepth is the default number of extra indirect hops per dispatch.
	ChainDepth = 0

	// RecursionDepth is the default fill depth for the return-address strategy.
	RecursionDepth = 30

	// MinRecursionDepth is the smallest return stack observed in practice.
	MinRecursionDepth = 16

	// MaxRecursionDepth bounds the per-frame stack mark table.
	MaxRecursionDepth = 256

	// RSBCapacity is the modeled return stack size for the simulator.
	RSBCapacity = 16
)

// ───────────────────────────── Simulated Timing ─────────────────────────────

const (
	// SimHitLatency is the modeled L1 round trip in cycles.
	SimHitLatency = 40

	// SimMissLatency is the modeled DRAM round trip in cycles.
	SimMissLatency = 220

	// SimJitter bounds the additive noise applied to every simulated read.
	SimJitter = 24
)

// ───────────────────────────── Driver Defaults ──────────────────────────────

const (
	// DefaultSecret is leaked when --secret is not given.
	DefaultSecret = "It's a s3kr3t!!!"

	// SweepPrefix is how many leading bytes a depth sweep leaks at each depth.
	SweepPrefix = 3
)
