package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wavetrace/internal/manifest"
	"wavetrace/internal/vcd"
)

// writeTrace writes a trace with one 1-bit and one 8-bit signal.
func writeTrace(t *testing.T, path string, changes int) {
	t.Helper()
	w := vcd.NewWriter(vcd.Config{Quantum: 1})
	if err := w.OpenPath(path); err != nil {
		t.Fatal(err)
	}
	if err := w.BeginScope("Top"); err != nil {
		t.Fatal(err)
	}
	bit, err := w.DeclareSignal("v", 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.DeclareSignal("data", 8); err != nil {
		t.Fatal(err)
	}
	if err := w.EndDefinitions(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < changes; i++ {
		b := []byte{'0' + byte(i%2)}
		if err := w.Emit(uint64(i*5), bit, b, false); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSummarize(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.vcd"), filepath.Join(dir, "b.vcd")
	writeTrace(t, a, 3)
	writeTrace(t, b, 5)

	sums, err := summarize(context.Background(), []string{b, a}, 2, true, nil)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(sums) != 2 || sums[0].Path != b || sums[1].Path != a {
		t.Fatalf("summaries out of order: %+v", sums)
	}
	if sums[0].Changes != 5 || sums[0].End != 20 || sums[0].Signals != 2 {
		t.Errorf("b = %+v", sums[0])
	}
	if sums[1].Timescale != "1ns" {
		t.Errorf("timescale = %q, want 1ns", sums[1].Timescale)
	}
	per := sums[1].PerSignal
	if len(per) != 2 || per[0].Path != "Top.data" || per[0].Changes != 0 || per[1].Changes != 3 {
		t.Errorf("per-signal = %+v", per)
	}
}

func TestSummarizeWithManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.vcd")
	writeTrace(t, path, 1)
	m := &manifest.Manifest{}
	m.Add("!!!!", "Top.v", 1, "regq", "clk")

	sums, err := summarize(context.Background(), []string{path}, 0, true, m)
	if err != nil {
		t.Fatal(err)
	}
	for _, sig := range sums[0].PerSignal {
		if sig.Path == "Top.v" && (sig.Kind != "regq" || sig.Domain != "clk") {
			t.Errorf("manifest columns not joined: %+v", sig)
		}
	}
}

func TestSummarizeMissingFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.vcd")
	writeTrace(t, good, 1)
	if err := os.WriteFile(filepath.Join(dir, "bad.vcd"), []byte("#x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"missing.vcd", "bad.vcd"} {
		if _, err := summarize(context.Background(), []string{good, filepath.Join(dir, name)}, 0, false, nil); err == nil {
			t.Errorf("summarize with %s succeeded", name)
		}
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	writeTable(&buf, [][]string{{"A", "B"}, {"long-cell", "x"}, {"y", "z"}})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if got, want := lines[1], "long-cell  x"; got != want {
		t.Errorf("row = %q, want %q", got, want)
	}
	if got, want := lines[2], "y          z"; got != want {
		t.Errorf("row = %q, want %q", got, want)
	}
}
