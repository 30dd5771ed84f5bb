package sim

import "fmt"

// Observer is called by a domain at the three points of every step.
type Observer interface {
	// Archive runs before the edge.
	Archive(now uint64) error
	// Tick runs after registered state moved but before behaviours run.
	Tick(now uint64) error
	// Update runs after the edge settled.
	Update(now uint64) error
}

// Behavior is the logic a domain evaluates on every edge.
type Behavior func(now uint64) error

// Domain is an independently clocked region of the design.
type Domain struct {
	Name   string
	Period uint64
	Offset uint64

	arena     *Arena
	clock     Ref
	edges     uint64
	observers []Observer
	behaviors []Behavior
	pushes    []*Queue // delayed queues this domain consumes from
	credits   []*Queue // delayed queues this domain produces into
}

// NewDomain creates a domain ticking every period time units from offset.
func NewDomain(name string, period, offset uint64) *Domain {
	if period == 0 {
		period = 1
	}
	d := &Domain{Name: name, Period: period, Offset: offset}
	d.arena = NewArena(d)
	d.clock = d.arena.Alloc(1, false)
	return d
}

// Arena returns the value arena owned by the domain.
func (d *Domain) Arena() *Arena { return d.arena }

// Clock returns the 1-bit value holding the parity of the edge counter.
func (d *Domain) Clock() Ref { return d.clock }

// Edges returns the number of edges stepped so far.
func (d *Domain) Edges() uint64 { return d.edges }

// NextEdge returns the time of the next edge.
func (d *Domain) NextEdge() uint64 { return d.Offset + d.edges*d.Period }

// Register adds o to the per-step dispatch list. Registering twice is a no-op.
func (d *Domain) Register(o Observer) {
	for _, have := range d.observers {
		if have == o {
			return
		}
	}
	d.observers = append(d.observers, o)
}

// Unregister removes o from the dispatch list.
func (d *Domain) Unregister(o Observer) {
	for i, have := range d.observers {
		if have == o {
			d.observers = append(d.observers[:i], d.observers[i+1:]...)
			return
		}
	}
}

// Apply calls fn on every registered observer in registration order and
// stops at the first error.
func (d *Domain) Apply(fn func(Observer) error) error {
	for _, o := range d.observers {
		if err := fn(o); err != nil {
			return err
		}
	}
	return nil
}

// OnEdge adds a behaviour evaluated on every edge.
func (d *Domain) OnEdge(b Behavior) { d.behaviors = append(d.behaviors, b) }

// Step advances the domain by one edge at time now.
func (d *Domain) Step(now uint64) error {
	if err := d.Apply(func(o Observer) error { return o.Archive(now) }); err != nil {
		return fmt.Errorf("%s: archive: %w", d.Name, err)
	}
	d.edges++
	if err := d.clock.SetUint(d.edges & 1); err != nil {
		return fmt.Errorf("%s: clock: %w", d.Name, err)
	}
	for _, q := range d.pushes {
		q.CommitPushes(now)
	}
	for _, q := range d.credits {
		q.CommitCredits(now)
	}
	if err := d.Apply(func(o Observer) error { return o.Tick(now) }); err != nil {
		return fmt.Errorf("%s: tick: %w", d.Name, err)
	}
	for _, b := range d.behaviors {
		if err := b(now); err != nil {
			return fmt.Errorf("%s: %w", d.Name, err)
		}
	}
	if err := d.Apply(func(o Observer) error { return o.Update(now) }); err != nil {
		return fmt.Errorf("%s: update: %w", d.Name, err)
	}
	return nil
}
