// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: report.go — Accuracy analysis over leaked bytes
//
// Purpose:
//   - Turns leak results into predictions against a known secret.
//   - Aggregates accuracy per position, per depth and overall.
//   - Reconstructs the secret by majority vote and lists the positions it misses.
//
// Notes:
//   - Cold path only. Runs after the leak phase with the GC back on.
//   - Text output is built by concatenation; JSON goes through sonnet.
// ─────────────────────────────────────────────────────────────────────────────

package report

import (
	"encoding/hex"
	"io"
	"sort"
	"strconv"
	"strings"

	"specleak/leak"
	"specleak/utils"

	"github.com/sugawarayuuta/sonnet"
	"golang.org/x/crypto/sha3"
)

///////////////////////////////////////////////////////////////////////////////
// Types
///////////////////////////////////////////////////////////////////////////////

// Prediction is one leaked byte checked against the known secret.
type Prediction struct {
	Position  int  `json:"position"`
	Depth     int  `json:"depth"`
	Expected  byte `json:"expected"`
	Predicted byte `json:"predicted"`
	Evidence  int  `json:"evidence"`
	Trials    int  `json:"trials"`
	Correct   bool `json:"correct"`
}

// Stats is a correct/total pair keyed by position or depth.
type Stats struct {
	Key      int     `json:"key"`
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
	Accuracy float64 `json:"accuracy"`
}

// Difference is a position where the reconstruction disagrees with the secret.
type Difference struct {
	Position  int  `json:"position"`
	Expected  byte `json:"expected"`
	Predicted byte `json:"predicted"`
}

// Analysis is the full accuracy report.
type Analysis struct {
	Fingerprint   string       `json:"fingerprint"`
	Predictions   int          `json:"predictions"`
	Correct       int          `json:"correct"`
	Overall       float64      `json:"overall"`
	Positions     []Stats      `json:"positions"`
	Depths        []Stats      `json:"depths"`
	Expected      string       `json:"expected"`
	Reconstructed string       `json:"reconstructed"`
	Differences   []Difference `json:"differences"`
}

///////////////////////////////////////////////////////////////////////////////
// Construction
///////////////////////////////////////////////////////////////////////////////

// FromResults pairs each converged result with the secret byte at its offset.
// Results whose offset falls outside expected are skipped.
func FromResults(expected []byte, depth int, results []leak.Result) []Prediction {
	out := make([]Prediction, 0, len(results))
	for _, r := range results {
		if r.Offset < 0 || r.Offset >= len(expected) {
			continue
		}
		out = append(out, Prediction{
			Position:  r.Offset,
			Depth:     depth,
			Expected:  expected[r.Offset],
			Predicted: r.Value,
			Evidence:  r.Evidence,
			Trials:    r.Trials,
			Correct:   r.Value == expected[r.Offset],
		})
	}
	return out
}

// Fingerprint returns a short SHA3-256 tag of secret, so reports can be matched
// to a run without printing the secret twice.
func Fingerprint(secret []byte) string {
	sum := sha3.Sum256(secret)
	return hex.EncodeToString(sum[:8])
}

///////////////////////////////////////////////////////////////////////////////
// Analysis
///////////////////////////////////////////////////////////////////////////////

// Analyze aggregates preds for a run over secret. The reconstruction takes, per
// position, the most frequently predicted byte, lowest value on ties. The
// fingerprint covers the whole of secret, leaked or not, so it matches the tag
// the journal stores for the run.
func Analyze(secret []byte, preds []Prediction) Analysis {
	var a Analysis
	a.Predictions = len(preds)
	a.Fingerprint = Fingerprint(secret)

	byPos := map[int]*Stats{}
	byDepth := map[int]*Stats{}
	votes := map[int]*[256]int{}
	expected := map[int]byte{}

	for _, p := range preds {
		c := utils.B2i(p.Correct)
		a.Correct += c
		tally(byPos, p.Position, c)
		tally(byDepth, p.Depth, c)

		v, ok := votes[p.Position]
		if !ok {
			v = new([256]int)
			votes[p.Position] = v
		}
		v[p.Predicted]++
		expected[p.Position] = p.Expected
	}
	a.Overall = ratio(a.Correct, a.Predictions)
	a.Positions = flatten(byPos)
	a.Depths = flatten(byDepth)

	var exp, rec strings.Builder
	for _, s := range a.Positions {
		pos := s.Key
		want, got := expected[pos], majority(votes[pos])
		exp.WriteByte(want)
		rec.WriteByte(got)
		if got != want {
			a.Differences = append(a.Differences, Difference{Position: pos, Expected: want, Predicted: got})
		}
	}
	a.Expected = exp.String()
	a.Reconstructed = rec.String()
	return a
}

func tally(m map[int]*Stats, key, correct int) {
	s, ok := m[key]
	if !ok {
		s = &Stats{Key: key}
		m[key] = s
	}
	s.Correct += correct
	s.Total++
}

func flatten(m map[int]*Stats) []Stats {
	out := make([]Stats, 0, len(m))
	for _, s := range m {
		s.Accuracy = ratio(s.Correct, s.Total)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func majority(v *[256]int) byte {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return byte(best)
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

///////////////////////////////////////////////////////////////////////////////
// Rendering
///////////////////////////////////////////////////////////////////////////////

// Render writes a human-readable summary of a to w.
func (a *Analysis) Render(w io.Writer) error {
	var b strings.Builder
	b.WriteString("═══ accuracy ═══\n")
	b.WriteString("secret   " + printable(a.Expected) + "  [" + a.Fingerprint + "]\n")
	b.WriteString("recovered " + printable(a.Reconstructed) + "\n")
	b.WriteString("overall  " + utils.Itoa(a.Correct) + "/" + utils.Itoa(a.Predictions) +
		" (" + percent(a.Overall) + ")\n")

	if len(a.Depths) > 1 || (len(a.Depths) == 1 && a.Depths[0].Key != 0) {
		for _, s := range a.Depths {
			b.WriteString("depth " + pad(utils.Itoa(s.Key), 4) + utils.Itoa(s.Correct) + "/" +
				utils.Itoa(s.Total) + " (" + percent(s.Accuracy) + ")\n")
		}
	}
	for _, s := range a.Positions {
		b.WriteString("pos " + pad(utils.Itoa(s.Key), 6) + utils.Itoa(s.Correct) + "/" +
			utils.Itoa(s.Total) + " (" + percent(s.Accuracy) + ")\n")
	}
	for _, d := range a.Differences {
		b.WriteString("diff pos " + utils.Itoa(d.Position) + ": want 0x" + utils.Hex2(d.Expected) +
			" '" + utils.Printable(d.Expected) + "' got 0x" + utils.Hex2(d.Predicted) +
			" '" + utils.Printable(d.Predicted) + "'\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// JSON encodes a.
func (a *Analysis) JSON() ([]byte, error) {
	return sonnet.Marshal(a)
}

func printable(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		b.WriteString(utils.Printable(s[i]))
	}
	return b.String()
}

func percent(f float64) string {
	return strconv.FormatFloat(f*100, 'f', 1, 64) + "%"
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s + " "
	}
	return s + strings.Repeat(" ", n-len(s))
}
