package wave

import "wavetrace/internal/sim"

// TriggerProxy stands between a queue and its handshake target. It keeps the
// last value pushed and a one-shot fired flag so a storageless queue can be
// sampled like a stateful one.
type TriggerProxy struct {
	queue *sim.Queue
	inner sim.Trigger
	arena *sim.Arena
	buf   sim.Ref
	fired bool
	err   error
}

// installTriggerProxy wraps the current target of q, which must be set.
func installTriggerProxy(q *sim.Queue) *TriggerProxy {
	p := &TriggerProxy{queue: q, arena: sim.NewArena(nil)}
	p.buf = p.arena.Alloc(q.Width, false)
	p.inner = q.SetTrigger(p)
	return p
}

// Fire records the value and forwards the event to the wrapped target.
func (p *TriggerProxy) Fire(raw []byte) {
	if err := p.buf.Store(raw); err != nil && p.err == nil {
		p.err = err
	}
	p.fired = true
	p.inner.Fire(raw)
}

// take returns and clears the fired flag.
func (p *TriggerProxy) take() (bool, error) {
	fired := p.fired
	p.fired = false
	return fired, p.err
}

// uninstall restores the wrapped target if the proxy is still in place.
func (p *TriggerProxy) uninstall() {
	if p.queue.Trigger() == sim.Trigger(p) {
		p.queue.SetTrigger(p.inner)
	}
	p.arena.Free(p.buf)
}
