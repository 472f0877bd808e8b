// ════════════════════════════════════════════════════════════════════════════════════════════════
// Run Journal
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: specleak
// Component: SQLite store of leak runs and per-offset outcomes
//
// Description:
//   Records each run's parameters and every offset it leaked, converged or not, so accuracy
//   can be compared across strategies, depths and hosts after the fact.
//
// Schema:
//   runs(id, started, strategy, depth, chain, threshold, max_trials, params)
//   results(run_id, pos, depth, expected, predicted, evidence, trials, converged)
//
// Notes:
//   - Written only between offsets. The database never sees a call inside a trial.
//   - params holds the full parameter set as a JSON blob for forward compatibility.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"specleak/leak"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sugawarayuuta/sonnet"
)

// ErrUnknownRun is returned for a run id the journal has no row for.
var ErrUnknownRun = errors.New("journal: unknown run")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	started    INTEGER NOT NULL,
	strategy   TEXT    NOT NULL,
	depth      INTEGER NOT NULL,
	chain      INTEGER NOT NULL,
	threshold  INTEGER NOT NULL,
	max_trials INTEGER NOT NULL,
	params     BLOB    NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	run_id    INTEGER NOT NULL REFERENCES runs(id),
	pos       INTEGER NOT NULL,
	depth     INTEGER NOT NULL,
	expected  INTEGER NOT NULL,
	predicted INTEGER NOT NULL,
	evidence  INTEGER NOT NULL,
	trials    INTEGER NOT NULL,
	converged INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS results_run ON results(run_id, depth);
`

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CORE DATA STRUCTURES
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// RunID identifies one run row.
type RunID int64

// Params is everything needed to reproduce a run.
type Params struct {
	Strategy    string `json:"strategy"`
	Depth       int    `json:"depth"`
	Chain       int    `json:"chain"`
	Threshold   int    `json:"threshold"`
	MaxTrials   int    `json:"max_trials"`
	Sim         bool   `json:"sim"`
	Seed        uint64 `json:"seed"`
	CPU         int    `json:"cpu"`
	Sweep       []int  `json:"sweep,omitempty"`
	Fingerprint string `json:"fingerprint"`
}

// Journal wraps the database and its prepared insert.
type Journal struct {
	db     *sql.DB
	insert *sql.Stmt
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	if err := configureDatabase(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	insert, err := db.Prepare(`INSERT INTO results
		(run_id, pos, depth, expected, predicted, evidence, trials, converged)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: prepare: %w", err)
	}
	return &Journal{db: db, insert: insert}, nil
}

// configureDatabase applies the pragmas for a single-writer journal.
func configureDatabase(db *sql.DB) error {
	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("journal: %s: %w", p, err)
		}
	}
	return nil
}

// Close releases the statement and the database.
func (j *Journal) Close() error {
	j.insert.Close()
	return j.db.Close()
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// WRITES
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// BeginRun inserts a run row and returns its id.
func (j *Journal) BeginRun(p Params) (RunID, error) {
	blob, err := sonnet.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("journal: encode params: %w", err)
	}
	res, err := j.db.Exec(`INSERT INTO runs
		(started, strategy, depth, chain, threshold, max_trials, params)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		time.Now().Unix(), p.Strategy, p.Depth, p.Chain, p.Threshold, p.MaxTrials, blob)
	if err != nil {
		return 0, fmt.Errorf("journal: begin run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("journal: begin run: %w", err)
	}
	return RunID(id), nil
}

// Record stores one offset. A gave-up offset has Converged unset and carries
// the best guess in Value.
func (j *Journal) Record(run RunID, depth int, expected byte, r leak.Result) error {
	_, err := j.insert.Exec(int64(run), r.Offset, depth, int(expected), int(r.Value),
		r.Evidence, r.Trials, r.Converged)
	if err != nil {
		return fmt.Errorf("journal: record offset %d: %w", r.Offset, err)
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// READS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Params decodes the parameter blob of run.
func (j *Journal) Params(run RunID) (Params, error) {
	var blob []byte
	var p Params
	err := j.db.QueryRow(`SELECT params FROM runs WHERE id = ?`, int64(run)).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrUnknownRun
	}
	if err != nil {
		return p, fmt.Errorf("journal: params: %w", err)
	}
	if err := sonnet.Unmarshal(blob, &p); err != nil {
		return p, fmt.Errorf("journal: decode params: %w", err)
	}
	return p, nil
}

// Accuracy returns how many recorded offsets of run were leaked correctly.
// Non-converged offsets count toward total.
func (j *Journal) Accuracy(run RunID) (correct, total int, err error) {
	err = j.db.QueryRow(`SELECT
		COALESCE(SUM(CASE WHEN converged = 1 AND predicted = expected THEN 1 ELSE 0 END), 0),
		COUNT(*)
		FROM results WHERE run_id = ?`, int64(run)).Scan(&correct, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("journal: accuracy: %w", err)
	}
	return correct, total, nil
}

// DepthAccuracy returns correct and total counts of run grouped by depth.
func (j *Journal) DepthAccuracy(run RunID) (map[int][2]int, error) {
	rows, err := j.db.Query(`SELECT depth,
		SUM(CASE WHEN converged = 1 AND predicted = expected THEN 1 ELSE 0 END),
		COUNT(*)
		FROM results WHERE run_id = ? GROUP BY depth`, int64(run))
	if err != nil {
		return nil, fmt.Errorf("journal: depth accuracy: %w", err)
	}
	defer rows.Close()

	out := make(map[int][2]int)
	for rows.Next() {
		var depth, correct, total int
		if err := rows.Scan(&depth, &correct, &total); err != nil {
			return nil, fmt.Errorf("journal: depth accuracy: %w", err)
		}
		out[depth] = [2]int{correct, total}
	}
	return out, rows.Err()
}
