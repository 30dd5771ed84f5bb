package sim

import (
	"errors"
	"fmt"
)

// Phase is the lifecycle stage of a kernel.
type Phase uint8

const (
	PhaseConstruct Phase = iota // components and dump requests are declared
	PhaseElaborate              // wiring is fixed, nothing runs yet
	PhaseRun                    // domains are stepping
)

// String returns the string representation of Phase.
func (p Phase) String() string {
	switch p {
	case PhaseConstruct:
		return "construct"
	case PhaseElaborate:
		return "elaborate"
	case PhaseRun:
		return "run"
	default:
		return "unknown"
	}
}

// ErrPhase is returned when a kernel call does not fit the current phase.
var ErrPhase = errors.New("wrong kernel phase")

// Kernel owns the design and steps its clock domains in time order.
type Kernel struct {
	phase   Phase
	top     []*Component
	domains []*Domain
	queues  []*Queue
	global  *Arena
	globals []Observer
	now     uint64
}

// NewKernel creates an empty kernel in the construct phase.
func NewKernel() *Kernel {
	return &Kernel{global: NewArena(nil)}
}

// Phase returns the current phase.
func (k *Kernel) Phase() Phase { return k.phase }

// Now returns the time of the last stepped edge.
func (k *Kernel) Now() uint64 { return k.now }

// Global returns the arena for values no domain owns.
func (k *Kernel) Global() *Arena { return k.global }

// AddTop registers a top-level component.
func (k *Kernel) AddTop(c *Component) *Component {
	k.top = append(k.top, c)
	return c
}

// Top returns the top-level components in declaration order.
func (k *Kernel) Top() []*Component { return k.top }

// AddDomain registers a clock domain.
func (k *Kernel) AddDomain(d *Domain) *Domain {
	k.domains = append(k.domains, d)
	return d
}

// Domains returns the clock domains in declaration order.
func (k *Kernel) Domains() []*Domain { return k.domains }

// Connect records that q flows from producer to consumer.
func (k *Kernel) Connect(q *Queue, producer, consumer *Domain) {
	q.Producer = producer
	q.Consumer = consumer
	q.clock = k.Now
	k.queues = append(k.queues, q)
}

// Observe registers an observer wrapped around every domain step: Archive
// before it, Tick and Update after it.
func (k *Kernel) Observe(o Observer) {
	for _, have := range k.globals {
		if have == o {
			return
		}
	}
	k.globals = append(k.globals, o)
}

// Forget removes a global observer.
func (k *Kernel) Forget(o Observer) {
	for i, have := range k.globals {
		if have == o {
			k.globals = append(k.globals[:i], k.globals[i+1:]...)
			return
		}
	}
}

// Elaborate ends construction and fixes the queue commit points.
func (k *Kernel) Elaborate() error {
	if k.phase != PhaseConstruct {
		return fmt.Errorf("%w: elaborate in %s", ErrPhase, k.phase)
	}
	for _, q := range k.queues {
		if !q.Delayed {
			continue
		}
		if q.Consumer != nil {
			q.Consumer.pushes = append(q.Consumer.pushes, q)
		}
		if q.Producer != nil && !q.NoFlow {
			q.Producer.credits = append(q.Producer.credits, q)
		}
	}
	k.phase = PhaseElaborate
	return nil
}

// Run steps every domain edge due at or before until. Edges at the same
// time run in domain declaration order. The first error halts the run.
func (k *Kernel) Run(until uint64) error {
	switch k.phase {
	case PhaseConstruct:
		return fmt.Errorf("%w: run before elaborate", ErrPhase)
	case PhaseElaborate:
		k.phase = PhaseRun
	}
	for {
		var next *Domain
		for _, d := range k.domains {
			if next == nil || d.NextEdge() < next.NextEdge() {
				next = d
			}
		}
		if next == nil || next.NextEdge() > until {
			return nil
		}
		k.now = next.NextEdge()
		for _, o := range k.globals {
			if err := o.Archive(k.now); err != nil {
				return fmt.Errorf("global: archive: %w", err)
			}
		}
		if err := next.Step(k.now); err != nil {
			return err
		}
		for _, o := range k.globals {
			if err := o.Tick(k.now); err != nil {
				return fmt.Errorf("global: tick: %w", err)
			}
			if err := o.Update(k.now); err != nil {
				return fmt.Errorf("global: update: %w", err)
			}
		}
	}
}
