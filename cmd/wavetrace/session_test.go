package main

import (
	"context"
	"path/filepath"
	"slices"
	"strconv"
	"testing"

	"wavetrace/internal/config"
	"wavetrace/internal/logging"
	"wavetrace/internal/ui"
	"wavetrace/internal/vcd"
)

const counterDesign = `
[trace]
date = "test"
segment_cycles = 4

[run]
until = 10

[[domain]]
name = "clk"
period = 1

[[component]]
path = "Top"
domain = "clk"

  [[component.port]]
  name = "cnt"
  kind = "reg"
  width = 4
  behavior = "counter"

[[dump]]
component = "Top"
depth = 1
`

func newTestSession(t *testing.T, text string) (*session, string) {
	t.Helper()
	cfg, err := config.Parse(text)
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	out := filepath.Join(t.TempDir(), "w.vcd")
	cfg.Trace.Output = out
	s, err := newSession(cfg, logging.Discard(), "wavetrace test")
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	return s, out
}

func counts(t *testing.T, path string) []string {
	t.Helper()
	tr, err := vcd.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	v, ok := tr.Lookup("Top.cnt")
	if !ok {
		t.Fatalf("%s: Top.cnt not declared", path)
	}
	var out []string
	for _, r := range tr.RecordsOf(v.ID) {
		out = append(out, strconv.FormatUint(r.Time, 10)+":"+r.Value)
	}
	return out
}

func TestSessionRotatesSegments(t *testing.T) {
	s, out := newTestSession(t, counterDesign)
	events := make(chan ui.Event, 64)
	s.events = events

	res, err := s.run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	close(events)

	dir := filepath.Dir(out)
	wantSegs := []string{out, filepath.Join(dir, "w.1.vcd"), filepath.Join(dir, "w.2.vcd")}
	if !slices.Equal(res.Segments, wantSegs) {
		t.Fatalf("segments = %v, want %v", res.Segments, wantSegs)
	}
	if res.Signals != 1 || res.Edges != 11 || res.End != 10 {
		t.Errorf("result = %+v", res)
	}

	tests := []struct {
		path string
		want []string
	}{
		{wantSegs[0], []string{"0:b0001", "1:b0010", "2:b0011", "3:b0100", "4:b0101"}},
		{wantSegs[1], []string{"4:b0101", "5:b0110", "6:b0111", "7:b1000", "8:b1001"}},
		{wantSegs[2], []string{"8:b1001", "9:b1010", "10:b1011"}},
	}
	for _, tt := range tests {
		if got := counts(t, tt.path); !slices.Equal(got, tt.want) {
			t.Errorf("%s = %v, want %v", filepath.Base(tt.path), got, tt.want)
		}
	}

	var segments []string
	var last ui.Event
	for ev := range events {
		if ev.Segment != "" {
			segments = append(segments, ev.Segment)
		}
		if ev.Domain == "clk" {
			last = ev
		}
	}
	if !slices.Equal(segments, []string{"w.1.vcd", "w.2.vcd"}) {
		t.Errorf("segment events = %v", segments)
	}
	if last.Edges != 11 || last.Time != 10 {
		t.Errorf("last progress event = %+v", last)
	}

	var stages []string
	for _, st := range s.timer.Report().Stages {
		stages = append(stages, st.Name)
	}
	want := []string{"declare", "elaborate", "initialize", "resolve", "run", "cleanup"}
	if !slices.Equal(stages, want) {
		t.Errorf("stages = %v, want %v", stages, want)
	}
}

func TestSessionSingleSegment(t *testing.T) {
	s, out := newTestSession(t, counterDesign)
	s.span = 0
	res, err := s.run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !slices.Equal(res.Segments, []string{out}) {
		t.Fatalf("segments = %v", res.Segments)
	}
	if got := counts(t, out); len(got) != 11 {
		t.Errorf("changes = %v, want one per edge", got)
	}
}

func TestSessionCancelled(t *testing.T) {
	s, _ := newTestSession(t, counterDesign)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.run(ctx); err == nil {
		t.Fatalf("run with a cancelled context succeeded")
	}
	if r := s.timer.Report(); r.Stages[len(r.Stages)-1].Name != "cleanup" {
		t.Errorf("cleanup did not run after the failure")
	}
}

func TestSegmentPath(t *testing.T) {
	tests := []struct {
		base string
		n    int
		want string
	}{
		{"wave.vcd", 1, "wave.1.vcd"},
		{"out/run.vcd", 12, "out/run.12.vcd"},
		{"trace", 2, "trace.2"},
	}
	for _, tt := range tests {
		if got := segmentPath(tt.base, tt.n); got != tt.want {
			t.Errorf("segmentPath(%q, %d) = %q, want %q", tt.base, tt.n, got, tt.want)
		}
	}
}

func TestReadUIMode(t *testing.T) {
	for in, want := range map[string]uiMode{"": uiModeAuto, "ON": uiModeOn, " off ": uiModeOff} {
		got, err := readUIMode(in)
		if err != nil || got != want {
			t.Errorf("readUIMode(%q) = %q, %v, want %q", in, got, err, want)
		}
	}
	if _, err := readUIMode("sometimes"); err == nil {
		t.Errorf("readUIMode accepted an unknown mode")
	}
	if shouldUseTUI(uiModeOn, "-") {
		t.Errorf("stdout traces must not get a progress view")
	}
}
