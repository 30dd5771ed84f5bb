package wave

import (
	"bytes"
	"fmt"

	"wavetrace/internal/sim"
	"wavetrace/internal/vcd"
)

// Sink receives value change records.
type Sink interface {
	Emit(now uint64, id vcd.ID, bits []byte, undefined bool) error
}

// Signal is one traced value. It starts as a placeholder created during
// Initialize and is bound to its backing value by resolve.
type Signal struct {
	Name  string
	Kind  Kind
	Width int

	port     *sim.Port // placeholder source, nil for synthesized signals
	ref      sim.Ref
	order    sim.BitOrder
	constant bool
	domain   *sim.Domain
	index    int
	id       vcd.ID

	last      []byte
	lastValid bool
	scratch   []byte
}

func newSignal(name string, kind Kind, width, index int) *Signal {
	if width <= 0 {
		width = 1
	}
	last := bytes.Repeat([]byte{'0'}, width)
	return &Signal{Name: name, Kind: kind, Width: width, index: index, last: last, lastValid: true}
}

// ID returns the sink identifier, empty until the index was written.
func (s *Signal) ID() vcd.ID { return s.id }

// Domain returns the clock domain that samples the signal, nil for the
// global list.
func (s *Signal) Domain() *sim.Domain { return s.domain }

// Last returns the cached bit pattern and validity.
func (s *Signal) Last() ([]byte, bool) { return s.last, s.lastValid }

// resolve binds a value-backed signal to its storage and picks the dispatch
// list it is sampled from. FIFO kinds are bound by their tracer.
func (s *Signal) resolve(ctx *resolveCtx) error {
	p := s.port
	switch s.Kind {
	case KindPort, KindRegQ:
		s.ref, s.order, s.constant = p.Value, p.Order, p.Const
		s.domain = p.Value.Arena().Owner()
	case KindClock:
		s.domain = p.Value.Arena().Owner()
		if s.domain == nil {
			s.domain = ctx.component.Domain()
		}
		if s.domain == nil {
			return fmt.Errorf("clock %s: no owning domain", p.Path())
		}
		s.ref = s.domain.Clock()
	case KindReset, KindFree:
		s.ref, s.order, s.constant = p.Value, p.Order, p.Const
		s.domain = ctx.component.Domain()
	case KindFifoProducer, KindFifoConsumer, KindFifoTrigger:
		return nil
	default:
		return fmt.Errorf("signal %s: unknown kind %d", s.Name, s.Kind)
	}
	if s.ref.IsZero() {
		return fmt.Errorf("signal %s: port %s has no backing value", s.Name, p.Path())
	}
	if s.constant {
		ctx.engine.initial = append(ctx.engine.initial, s)
		return nil
	}
	pr := ctx.engine.probeFor(s.domain)
	pr.signals = append(pr.signals, s)
	return nil
}

// dump samples the backing value and emits it when it changed.
func (s *Signal) dump(w Sink, now uint64) error {
	raw, valid, err := s.ref.Load()
	if err != nil {
		return fmt.Errorf("signal %s: %w", s.Name, err)
	}
	s.scratch = s.order.Bits(s.scratch, raw, s.Width)
	return s.emit(w, now, s.scratch, valid)
}

// emit writes bits when they or the validity differ from the cached sample.
func (s *Signal) emit(w Sink, now uint64, bits []byte, valid bool) error {
	if s.id == "" {
		return nil
	}
	if valid == s.lastValid && bytes.Equal(bits, s.last) {
		return nil
	}
	if err := w.Emit(now, s.id, bits, !valid); err != nil {
		return err
	}
	copy(s.last, bits)
	s.lastValid = valid
	return nil
}

// emitBool is emit for 1-bit pseudo-signals.
func (s *Signal) emitBool(w Sink, now uint64, v bool) error {
	bit := []byte{'0'}
	if v {
		bit[0] = '1'
	}
	return s.emit(w, now, bit, true)
}

// writeIndex declares the signal. The identifier is issued on the first call
// and reused when the index is rewritten for a new segment.
func (s *Signal) writeIndex(w *vcd.Writer) error {
	if s.id != "" {
		return w.Redeclare(s.id, s.Name, s.Width)
	}
	id, err := w.DeclareSignal(s.Name, s.Width)
	if err != nil {
		return fmt.Errorf("declare %s: %w", s.Name, err)
	}
	s.id = id
	return nil
}

// change returns the cached sample as a change record.
func (s *Signal) change() vcd.Change {
	bits := make([]byte, len(s.last))
	copy(bits, s.last)
	return vcd.Change{ID: s.id, Bits: bits, Undefined: !s.lastValid}
}
