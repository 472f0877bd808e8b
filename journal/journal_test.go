package journal

import (
	"errors"
	"path/filepath"
	"testing"

	"specleak/leak"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestConfigureDatabase(t *testing.T) {
	j := openTemp(t)
	var mode string
	if err := j.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	j, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	id, err := j.BeginRun(Params{Strategy: "btb"})
	if err != nil {
		t.Fatal(err)
	}
	j.Close()

	j, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	if p, err := j.Params(id); err != nil || p.Strategy != "btb" {
		t.Fatalf("Params = %+v, %v", p, err)
	}
}

func TestParamsRoundTrip(t *testing.T) {
	j := openTemp(t)
	want := Params{Strategy: "rsb", Depth: 30, Threshold: 3, MaxTrials: 1000, Sim: true, Seed: 7,
		CPU: -1, Sweep: []int{1, 5, 15, 25}, Fingerprint: "abcd"}
	id, err := j.BeginRun(want)
	if err != nil {
		t.Fatal(err)
	}
	got, err := j.Params(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Strategy != want.Strategy || got.Depth != want.Depth || got.Seed != want.Seed ||
		len(got.Sweep) != 4 || got.Sweep[3] != 25 || !got.Sim {
		t.Fatalf("Params = %+v, want %+v", got, want)
	}
}

func TestUnknownRun(t *testing.T) {
	j := openTemp(t)
	if _, err := j.Params(42); !errors.Is(err, ErrUnknownRun) {
		t.Fatalf("err = %v", err)
	}
}

func TestAccuracy(t *testing.T) {
	j := openTemp(t)
	id, _ := j.BeginRun(Params{Strategy: "inject"})
	secret := []byte("AB!")

	rec := []leak.Result{
		{Offset: 0, Value: 'A', Evidence: 4, Trials: 4, Converged: true},
		{Offset: 1, Value: 'X', Evidence: 4, Trials: 9, Converged: true},
	}
	for _, r := range rec {
		if err := j.Record(id, 0, secret[r.Offset], r); err != nil {
			t.Fatal(err)
		}
	}
	// A failure whose best guess happens to match still counts as wrong.
	gaveUp := leak.Result{Offset: 2, Value: '!', Evidence: 2, Trials: 100}
	if err := j.Record(id, 0, secret[2], gaveUp); err != nil {
		t.Fatal(err)
	}

	correct, total, err := j.Accuracy(id)
	if err != nil {
		t.Fatal(err)
	}
	if correct != 1 || total != 3 {
		t.Fatalf("accuracy = %d/%d, want 1/3", correct, total)
	}

	other, _ := j.BeginRun(Params{Strategy: "inject"})
	if c, n, _ := j.Accuracy(other); c != 0 || n != 0 {
		t.Fatalf("empty run accuracy = %d/%d", c, n)
	}
}

func TestDepthAccuracy(t *testing.T) {
	j := openTemp(t)
	id, _ := j.BeginRun(Params{Strategy: "btb", Sweep: []int{1, 15}})
	for _, depth := range []int{1, 15} {
		for off := 0; off < 3; off++ {
			v := byte('a' + off)
			if depth == 1 && off > 0 {
				v = '?'
			}
			r := leak.Result{Offset: off, Value: v, Evidence: 4, Trials: 4, Converged: true}
			if err := j.Record(id, depth, byte('a'+off), r); err != nil {
				t.Fatal(err)
			}
		}
	}
	got, err := j.DepthAccuracy(id)
	if err != nil {
		t.Fatal(err)
	}
	if got[1] != [2]int{1, 3} || got[15] != [2]int{3, 3} {
		t.Fatalf("depth accuracy = %v", got)
	}
}
