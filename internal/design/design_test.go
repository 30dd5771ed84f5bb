package design

import (
	"strings"
	"testing"

	"wavetrace/internal/config"
	"wavetrace/internal/sim"
)

const twoDomains = `
[[domain]]
name = "core"
period = 2

[[domain]]
name = "bus"
period = 3
offset = 1

[[component]]
path = "Top"
domain = "core"

  [[component.port]]
  name = "clk"
  kind = "clock"

  [[component.port]]
  name = "rst"
  kind = "reset"
  width = 1
  behavior = "pulse"
  value = 4

[[component]]
path = "Top.A"
domain = "core"

  [[component.port]]
  name = "count"
  kind = "reg"
  width = 8
  behavior = "counter"

  [[component.port]]
  name = "id"
  kind = "free"
  width = 16
  behavior = "const"
  value = 0x1234
  order = "byteswap"

  [[component.port]]
  name = "seen"
  kind = "out"
  width = 4
  valid = true
  behavior = "counter"
  every = 3

[[component]]
path = "Top.B"
domain = "bus"

  [[component.port]]
  name = "flag"
  kind = "out"
  width = 1
  behavior = "toggle"
  every = 2

[[queue]]
name = "req"
width = 8
depth = 2
delayed = true
producer = "Top.A.o_req"
consumer = "Top.B.i_req"
push_every = 1
pop_every = 1
`

func build(t *testing.T, text string) *Design {
	t.Helper()
	f, err := config.Parse(text)
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	d, err := Build(f, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return d
}

func run(t *testing.T, d *Design, until uint64) {
	t.Helper()
	if d.Kernel.Phase() == sim.PhaseConstruct {
		if err := d.Kernel.Elaborate(); err != nil {
			t.Fatalf("Elaborate: %v", err)
		}
	}
	if err := d.Kernel.Run(until); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func portValue(t *testing.T, d *Design, comp, port string) (uint64, bool) {
	t.Helper()
	c := d.Component(comp)
	if c == nil {
		t.Fatalf("component %s missing", comp)
	}
	p := c.Port(port)
	if p == nil {
		t.Fatalf("port %s.%s missing", comp, port)
	}
	_, valid, err := p.Value.Load()
	if err != nil {
		t.Fatal(err)
	}
	v, err := p.Value.Uint()
	if err != nil {
		t.Fatal(err)
	}
	return v, valid
}

func TestBuildHierarchy(t *testing.T) {
	d := build(t, twoDomains)
	if got := len(d.Kernel.Top()); got != 1 {
		t.Fatalf("top components = %d, want 1", got)
	}
	a := d.Component("Top.A")
	if a == nil || a.Parent() != d.Component("Top") {
		t.Fatalf("Top.A not attached under Top")
	}
	var names []string
	for _, p := range a.Ports() {
		names = append(names, p.Name)
	}
	if got, want := strings.Join(names, ","), "count,id,seen,o_req"; got != want {
		t.Errorf("Top.A ports = %s, want %s", got, want)
	}
	if d.Component("Top.B").Domain() != d.Domain("bus") {
		t.Errorf("Top.B domain = %v, want bus", d.Component("Top.B").Domain())
	}
	if clk := d.Component("Top").Port("clk"); clk.Value.Arena().Owner() != d.Domain("core") {
		t.Errorf("clock port is not the core domain clock")
	}
	if id := a.Port("id"); !id.Const || id.Order == nil {
		t.Errorf("id port = %+v, want a byte-swapped constant", id)
	}
	if v, _ := portValue(t, d, "Top.A", "id"); v != 0x1234 {
		t.Errorf("id = %#x, want 0x1234", v)
	}

	q := d.Queue("req")
	if q == nil {
		t.Fatal("queue req missing")
	}
	if q.Producer != d.Domain("core") || q.Consumer != d.Domain("bus") {
		t.Errorf("queue domains = %s -> %s", q.Producer.Name, q.Consumer.Name)
	}
	if q.Slot(0).Arena().Owner() != d.Domain("bus") {
		t.Errorf("queue storage should live in the consumer domain")
	}
	if p := d.Component("Top.B").Port("i_req"); p == nil || p.Side != sim.SideConsumer {
		t.Errorf("consumer port = %+v", p)
	}
}

func TestEdgeCounting(t *testing.T) {
	d := build(t, twoDomains)
	if got := d.EdgesUntil(10); got != 10 {
		t.Fatalf("EdgesUntil(10) = %d, want 10", got)
	}
	run(t, d, 10)
	if got := d.Edges(); got != 10 {
		t.Fatalf("Edges = %d, want 10", got)
	}
}

func TestBehaviors(t *testing.T) {
	d := build(t, twoDomains)

	if _, valid := portValue(t, d, "Top.A", "seen"); valid {
		t.Errorf("seen should start undefined")
	}

	run(t, d, 6) // core edges at 0, 2, 4, 6; bus edges at 1, 4
	if v, _ := portValue(t, d, "Top.A", "count"); v != 4 {
		t.Errorf("count = %d, want 4", v)
	}
	if v, _ := portValue(t, d, "Top", "rst"); v != 1 {
		t.Errorf("rst = %d, want 1 during the pulse", v)
	}
	if v, valid := portValue(t, d, "Top.A", "seen"); v != 1 || !valid {
		t.Errorf("seen = %d valid=%v, want 1 valid", v, valid)
	}
	if v, _ := portValue(t, d, "Top.B", "flag"); v != 1 {
		t.Errorf("flag = %d, want 1 after the second bus edge", v)
	}

	run(t, d, 8)
	if v, _ := portValue(t, d, "Top", "rst"); v != 0 {
		t.Errorf("rst = %d, want 0 after the pulse", v)
	}
	if q := d.Queue("req"); q.Head() == 0 {
		t.Errorf("consumer never popped")
	}
}

func TestDefaultDomain(t *testing.T) {
	d := build(t, "[[component]]\npath = \"Top\"\n[[component.port]]\nname = \"c\"\nkind = \"reg\"\nwidth = 2\nbehavior = \"counter\"\n")
	if d.Domain(DefaultDomain) == nil {
		t.Fatalf("default domain missing")
	}
	run(t, d, 5)
	// six edges on a 2-bit counter
	if v, _ := portValue(t, d, "Top", "c"); v != 2 {
		t.Errorf("c = %d, want 2", v)
	}
}

func TestStoragelessQueue(t *testing.T) {
	d := build(t, "[[queue]]\nname = \"evt\"\nwidth = 8\nproducer = \"Top.o_evt\"\npush_every = 1\n")
	q := d.Queue("evt")
	if q.Depth() != 0 || q.Trigger() == nil {
		t.Fatalf("storageless queue should have a sink target")
	}
	run(t, d, 3)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		file *config.File
		want string
	}{
		{
			name: "endpoint without port",
			file: &config.File{Queues: []config.Queue{{Name: "q", Width: 8, Producer: "Top"}}},
			want: "needs a component and a port name",
		},
		{
			name: "duplicate queue",
			file: &config.File{Queues: []config.Queue{
				{Name: "q", Width: 8, Producer: "Top.a"},
				{Name: "q", Width: 8, Producer: "Top.b"},
			}},
			want: "declared twice",
		},
		{
			name: "negative period",
			file: &config.File{Domains: []config.Domain{{Name: "d", Period: -1}}},
			want: "period",
		},
		{
			name: "unknown domain",
			file: &config.File{Components: []config.Component{{Path: "Top", Domain: "x"}}},
			want: "unknown domain",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.file, nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Build = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}
