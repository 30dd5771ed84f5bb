package design

import (
	"fmt"

	"wavetrace/internal/sim"
)

// behavior drives one value port.
type behavior struct {
	ref    sim.Ref
	value  uint64 // counter step, pulse length
	every  uint64
	valid  bool
	domain *sim.Domain
}

func (b *behavior) store(v uint64) error {
	if err := b.ref.SetUint(v); err != nil {
		return err
	}
	if b.valid {
		return b.ref.SetValid(true)
	}
	return nil
}

func (b *behavior) due() bool { return b.domain.Edges()%b.every == 0 }

func (b *behavior) counter(uint64) error {
	if !b.due() {
		return nil
	}
	cur, err := b.ref.Uint()
	if err != nil {
		return err
	}
	return b.store(cur + b.value)
}

func (b *behavior) toggle(uint64) error {
	if !b.due() {
		return nil
	}
	cur, err := b.ref.Uint()
	if err != nil {
		return err
	}
	return b.store(cur ^ 1)
}

// pulse holds the value high for the first value edges.
func (b *behavior) pulse(uint64) error {
	if b.domain.Edges() <= b.value {
		return b.store(1)
	}
	return b.store(0)
}

// producer pushes an incrementing sequence number into a queue.
type producer struct {
	queue  *sim.Queue
	domain *sim.Domain
	every  uint64
	seq    uint64
}

func (p *producer) step(uint64) error {
	if p.domain.Edges()%p.every != 0 {
		return nil
	}
	q := p.queue
	if q.Depth() > 0 && q.Space() <= 0 && (!q.NoFlow || q.Len() == 0) {
		return nil // back-pressured
	}
	p.seq++
	raw := make([]byte, (q.Width+7)/8)
	for i := range raw {
		if i >= 8 {
			break
		}
		raw[i] = byte(p.seq >> (8 * i))
	}
	if err := q.Push(raw); err != nil {
		return fmt.Errorf("producer %s: %w", q.Name, err)
	}
	return nil
}

// consumer pops one item from a queue when one is visible.
type consumer struct {
	queue  *sim.Queue
	domain *sim.Domain
	every  uint64
	popped uint64
}

func (c *consumer) step(uint64) error {
	if c.domain.Edges()%c.every != 0 {
		return nil
	}
	_, ok, err := c.queue.Pop()
	if err != nil {
		return fmt.Errorf("consumer %s: %w", c.queue.Name, err)
	}
	if ok {
		c.popped++
	}
	return nil
}
