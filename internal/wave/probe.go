package wave

import "wavetrace/internal/sim"

// probe is the dispatch list of one clock domain, or the global list when
// domain is nil. It is registered on the domain as a sim.Observer.
type probe struct {
	engine  *Engine
	domain  *sim.Domain
	signals []*Signal
	tracers []*FifoTracer
}

var _ sim.Observer = (*probe)(nil)

func (p *probe) Archive(uint64) error {
	for _, t := range p.tracers {
		t.archive()
	}
	return nil
}

func (p *probe) Tick(uint64) error {
	for _, t := range p.tracers {
		t.tick()
	}
	return nil
}

func (p *probe) Update(now uint64) error {
	e := p.engine
	if err := e.flushInitial(now); err != nil {
		return err
	}
	for _, s := range p.signals {
		if err := s.dump(e.sink, now); err != nil {
			return err
		}
	}
	for _, t := range p.tracers {
		if err := t.update(e.sink, now); err != nil {
			return err
		}
	}
	return nil
}
