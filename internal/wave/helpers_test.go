package wave

import (
	"path/filepath"
	"strconv"
	"testing"

	"wavetrace/internal/sim"
	"wavetrace/internal/vcd"
)

// bench is a single-domain design with one top-level component.
type bench struct {
	k    *sim.Kernel
	d    *sim.Domain
	top  *sim.Component
	path string
}

func newBench(t *testing.T) *bench {
	t.Helper()
	k := sim.NewKernel()
	d := k.AddDomain(sim.NewDomain("clk", 1, 0))
	top := k.AddTop(sim.NewComponent("Top"))
	top.SetDomain(d)
	return &bench{k: k, d: d, top: top, path: filepath.Join(t.TempDir(), "wave.vcd")}
}

func (b *bench) reg(c *sim.Component, name string, width int) sim.Ref {
	r := b.d.Arena().Alloc(width, false)
	c.AddPort(&sim.Port{Name: name, Kind: sim.PortReg, Width: width, Value: r})
	return r
}

func (b *bench) queue(name string, width, depth int, delayed bool) *sim.Queue {
	q := sim.NewQueue(b.d.Arena(), name, width, depth)
	q.Delayed = delayed
	b.k.Connect(q, b.d, b.d)
	return q
}

func queuePort(c *sim.Component, name string, q *sim.Queue, side sim.Side) {
	c.AddPort(&sim.Port{Name: name, Kind: sim.PortQueue, Width: q.Width, Queue: q, Side: side})
}

func (b *bench) engine() *Engine {
	return New(b.k, Config{Output: b.path, Quantum: 1, Timescale: "1ns", Date: "test", Version: "wavetrace test"})
}

// start elaborates the kernel and takes the engine to the open stage.
func (b *bench) start(t *testing.T, e *Engine) {
	t.Helper()
	if err := b.k.Elaborate(); err != nil {
		t.Fatalf("Elaborate: %v", err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := e.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
}

// finish cleans the engine up and parses what it wrote.
func (b *bench) finish(t *testing.T, e *Engine) *vcd.Trace {
	t.Helper()
	if err := e.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	tr, err := vcd.ParseFile(b.path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	return tr
}

func (b *bench) run(t *testing.T, e *Engine, until uint64) *vcd.Trace {
	t.Helper()
	b.start(t, e)
	if err := b.k.Run(until); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return b.finish(t, e)
}

// history renders the records of path as "time:value" strings.
func history(t *testing.T, tr *vcd.Trace, path string) []string {
	t.Helper()
	v, ok := tr.Lookup(path)
	if !ok {
		t.Fatalf("%s not declared; vars: %+v", path, tr.Vars)
	}
	var out []string
	for _, r := range tr.RecordsOf(v.ID) {
		out = append(out, formatRecord(r))
	}
	return out
}

func formatRecord(r vcd.Record) string {
	return strconv.FormatUint(r.Time, 10) + ":" + r.Value
}
