package wave

import (
	"errors"
	"slices"
	"testing"

	"wavetrace/internal/sim"
)

type traceCase struct {
	path string
	want []string
}

func checkHistories(t *testing.T, e *Engine, b *bench, cases []traceCase) {
	t.Helper()
	tr := b.finish(t, e)
	for _, c := range cases {
		if got := history(t, tr, c.path); !slices.Equal(got, c.want) {
			t.Errorf("%s = %v, want %v", c.path, got, c.want)
		}
	}
}

// handshake pushes 0x2A at push and pops it at pop.
func handshake(b *bench, q *sim.Queue, push, pop uint64) {
	b.d.OnEdge(func(now uint64) error {
		switch now {
		case push:
			return q.Push([]byte{0x2a})
		case pop:
			_, _, err := q.Pop()
			return err
		}
		return nil
	})
}

func TestDelayedQueue(t *testing.T) {
	b := newBench(t)
	a := b.top.Add(sim.NewComponent("A"))
	c := b.top.Add(sim.NewComponent("B"))
	q := b.queue("req", 8, 2, true)
	queuePort(a, "o_req", q, sim.SideProducer)
	queuePort(c, "i_req", q, sim.SideConsumer)
	handshake(b, q, 2, 5)

	e := b.engine()
	if err := e.DeclarePattern("*", "*", 0); err != nil {
		t.Fatal(err)
	}
	b.start(t, e)
	if err := b.k.Run(8); err != nil {
		t.Fatal(err)
	}
	checkHistories(t, e, b, []traceCase{
		{"Top.A.o_req", []string{"2:b00101010"}},
		{"Top.A.o_req_valid", []string{"2:1", "3:0"}},
		// the credit reaches the producer one edge after the pop
		{"Top.A.i_req_credit", []string{"6:1", "7:0"}},
		{"Top.B.i_req", []string{"3:b00101010"}},
		{"Top.B.i_req_valid", []string{"3:1", "4:0"}},
		{"Top.B.o_req_credit", []string{"5:1", "6:0"}},
	})
}

func TestDelayedQueueAcrossDomains(t *testing.T) {
	tests := []struct {
		name          string
		producerFirst bool
	}{
		{name: "consumer steps first"},
		{name: "producer steps first", producerFirst: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBench(t)
			var prod, cons *sim.Domain
			if tt.producerFirst {
				prod = b.k.AddDomain(sim.NewDomain("prod", 1, 0))
				cons = b.k.AddDomain(sim.NewDomain("cons", 1, 0))
			} else {
				cons = b.k.AddDomain(sim.NewDomain("cons", 1, 0))
				prod = b.k.AddDomain(sim.NewDomain("prod", 1, 0))
			}
			a := b.top.Add(sim.NewComponent("A"))
			a.SetDomain(prod)
			c := b.top.Add(sim.NewComponent("B"))
			c.SetDomain(cons)
			q := sim.NewQueue(cons.Arena(), "req", 8, 2)
			q.Delayed = true
			b.k.Connect(q, prod, cons)
			queuePort(a, "o_req", q, sim.SideProducer)
			queuePort(c, "i_req", q, sim.SideConsumer)
			prod.OnEdge(func(now uint64) error {
				if now == 2 {
					return q.Push([]byte{0x2a})
				}
				return nil
			})
			cons.OnEdge(func(now uint64) error {
				if now == 5 {
					_, _, err := q.Pop()
					return err
				}
				return nil
			})

			e := b.engine()
			if err := e.DeclarePattern("*", "*", 0); err != nil {
				t.Fatal(err)
			}
			b.start(t, e)
			if err := b.k.Run(8); err != nil {
				t.Fatal(err)
			}
			checkHistories(t, e, b, []traceCase{
				{"Top.A.o_req", []string{"2:b00101010"}},
				{"Top.A.o_req_valid", []string{"2:1", "3:0"}},
				{"Top.A.i_req_credit", []string{"6:1", "7:0"}},
				{"Top.B.i_req", []string{"3:b00101010"}},
				{"Top.B.i_req_valid", []string{"3:1", "4:0"}},
				{"Top.B.o_req_credit", []string{"5:1", "6:0"}},
			})
		})
	}
}

func TestUndelayedQueue(t *testing.T) {
	b := newBench(t)
	a := b.top.Add(sim.NewComponent("A"))
	c := b.top.Add(sim.NewComponent("B"))
	q := b.queue("req", 8, 2, false)
	queuePort(a, "o_req", q, sim.SideProducer)
	queuePort(c, "i_req", q, sim.SideConsumer)
	handshake(b, q, 2, 4)

	e := b.engine()
	if err := e.DeclarePattern("*", "*", 0); err != nil {
		t.Fatal(err)
	}
	b.start(t, e)
	if err := b.k.Run(6); err != nil {
		t.Fatal(err)
	}
	checkHistories(t, e, b, []traceCase{
		{"Top.A.o_req", []string{"2:b00101010"}},
		{"Top.A.o_req_valid", []string{"2:1", "3:0"}},
		{"Top.A.i_req_credit", []string{"4:1", "5:0"}},
		{"Top.B.i_req", []string{"2:b00101010"}},
		{"Top.B.i_req_valid", []string{"2:1", "3:0"}},
		{"Top.B.o_req_credit", []string{"4:1", "5:0"}},
	})
}

func TestNoFlowQueueHasNoCredit(t *testing.T) {
	b := newBench(t)
	a := b.top.Add(sim.NewComponent("A"))
	q := b.queue("req", 8, 1, true)
	q.NoFlow = true
	queuePort(a, "o_req", q, sim.SideProducer)
	handshake(b, q, 1, 3)

	e := b.engine()
	if err := e.Declare(a, "*", 1); err != nil {
		t.Fatal(err)
	}
	tr := b.run(t, e, 4)
	for _, v := range tr.Vars {
		if v.Name == "i_req_credit" {
			t.Fatalf("noflow queue declared a credit wire")
		}
	}
	if got, want := history(t, tr, "Top.A.o_req_valid"), []string{"1:1", "2:0"}; !slices.Equal(got, want) {
		t.Fatalf("valid = %v, want %v", got, want)
	}
}

type eventLog struct{ got [][]byte }

func (l *eventLog) Fire(raw []byte) { l.got = append(l.got, raw) }

func TestTriggerProxy(t *testing.T) {
	tests := []struct {
		name  string
		fire  bool
		valid []string
		data  []string
	}{
		{name: "fired once", fire: true, valid: []string{"3:1", "4:0"}, data: []string{"3:b00000111"}},
		{name: "never fired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBench(t)
			a := b.top.Add(sim.NewComponent("A"))
			c := b.top.Add(sim.NewComponent("B"))
			q := b.queue("evt", 8, 0, false)
			target := &eventLog{}
			q.SetTrigger(target)
			queuePort(a, "o_evt", q, sim.SideProducer)
			queuePort(c, "i_evt", q, sim.SideConsumer)
			if tt.fire {
				b.d.OnEdge(func(now uint64) error {
					if now == 3 {
						return q.Push([]byte{7})
					}
					return nil
				})
			}

			e := b.engine()
			if err := e.DeclarePattern("*", "*", 0); err != nil {
				t.Fatal(err)
			}
			b.start(t, e)
			if err := b.k.Run(5); err != nil {
				t.Fatal(err)
			}
			n := e.Catalog().Lookup("Top.B")
			if tr := n.Tracers(); len(tr) != 1 || tr[0].Kind != KindFifoTrigger {
				t.Fatalf("consumer tracer = %+v, want a trigger tracer", tr)
			}
			tr := b.finish(t, e)

			for _, path := range []string{"Top.A.o_evt", "Top.B.i_evt"} {
				if got := history(t, tr, path+"_valid"); !slices.Equal(got, tt.valid) {
					t.Errorf("%s_valid = %v, want %v", path, got, tt.valid)
				}
				if got := history(t, tr, path); !slices.Equal(got, tt.data) {
					t.Errorf("%s = %v, want %v", path, got, tt.data)
				}
			}
			if tt.fire && (len(target.got) != 1 || target.got[0][0] != 7) {
				t.Errorf("wrapped target received %v", target.got)
			}
			if q.Trigger() != sim.Trigger(target) {
				t.Errorf("Cleanup did not restore the original trigger")
			}
		})
	}
}

func TestCreditAliasOnMirroredNode(t *testing.T) {
	b := newBench(t)
	c := b.top.Add(sim.NewComponent("B"))
	in := c.Add(sim.NewComponent("in_link"))
	c.Add(sim.NewComponent("out_link"))
	q := b.queue("link", 8, 2, false)
	queuePort(in, "data", q, sim.SideConsumer)
	b.d.OnEdge(func(now uint64) error {
		switch now {
		case 1:
			return q.Push([]byte{1})
		case 2:
			_, _, err := q.Pop()
			return err
		}
		return nil
	})

	e := b.engine()
	if err := e.Declare(c, "*", 0); err != nil {
		t.Fatal(err)
	}
	b.start(t, e)
	if err := b.k.Run(4); err != nil {
		t.Fatal(err)
	}
	host := e.Catalog().Lookup("Top.B.out_link")
	if host == nil || host.Signal("data_credit") == nil {
		t.Fatalf("credit alias not registered on Top.B.out_link")
	}
	if e.Catalog().Lookup("Top.B.in_link").Signal("data_credit") != nil {
		t.Fatalf("credit alias also registered on the tracer's node")
	}
	checkHistories(t, e, b, []traceCase{
		{"Top.B.in_link.data_valid", []string{"1:1", "2:0"}},
		{"Top.B.out_link.data_credit", []string{"2:1", "3:0"}},
	})
	if host.Signal("data_credit") != nil {
		t.Fatalf("credit alias survived Cleanup")
	}
}

func TestCreditAliasFallsBackToOwnNode(t *testing.T) {
	b := newBench(t)
	in := b.top.Add(sim.NewComponent("in_x"))
	q := b.queue("x", 4, 1, false)
	queuePort(in, "data", q, sim.SideConsumer)

	e := b.engine()
	if err := e.Declare(in, "*", 1); err != nil {
		t.Fatal(err)
	}
	tr := b.run(t, e, 0)
	if _, ok := tr.Lookup("Top.in_x.data_credit"); !ok {
		t.Fatalf("credit not declared next to the port: %+v", tr.Vars)
	}
}

func TestCreditNameTakenKeepsExistingSignal(t *testing.T) {
	b := newBench(t)
	c := b.top.Add(sim.NewComponent("B"))
	in := c.Add(sim.NewComponent("in_link"))
	out := c.Add(sim.NewComponent("out_link"))
	taken := b.reg(out, "data_credit", 1)
	q := b.queue("link", 8, 2, false)
	queuePort(in, "data", q, sim.SideConsumer)
	b.d.OnEdge(func(now uint64) error {
		switch now {
		case 1:
			return q.Push([]byte{1})
		case 2:
			_, _, err := q.Pop()
			return err
		case 3:
			return taken.SetUint(1)
		}
		return nil
	})

	e := b.engine()
	if err := e.Declare(c, "*", 0); err != nil {
		t.Fatal(err)
	}
	b.start(t, e)
	if err := b.k.Run(4); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s := e.Catalog().Lookup("Top.B.out_link").Signal("data_credit"); s == nil || s.Kind != KindRegQ {
		t.Fatalf("data_credit = %+v, want the register", s)
	}
	checkHistories(t, e, b, []traceCase{
		{"Top.B.in_link.data_valid", []string{"1:1", "2:0"}},
		{"Top.B.out_link.data_credit", []string{"3:1"}},
	})
}

func TestStoragelessQueueWithoutTargetStillFails(t *testing.T) {
	b := newBench(t)
	a := b.top.Add(sim.NewComponent("A"))
	q := b.queue("evt", 8, 0, false)
	queuePort(a, "o_evt", q, sim.SideProducer)
	b.d.OnEdge(func(now uint64) error {
		if now == 2 {
			return q.Push([]byte{7})
		}
		return nil
	})

	e := b.engine()
	if err := e.Declare(a, "*", 1); err != nil {
		t.Fatal(err)
	}
	b.start(t, e)
	if err := b.k.Run(4); !errors.Is(err, sim.ErrNoTarget) {
		t.Fatalf("Run = %v, want ErrNoTarget", err)
	}
	if q.Trigger() != nil {
		t.Fatalf("tracing installed a target on a queue without one")
	}
	checkHistories(t, e, b, []traceCase{
		{"Top.A.o_evt_valid", nil},
		{"Top.A.o_evt", nil},
	})
}
