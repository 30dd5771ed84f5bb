package wave

import (
	"fmt"

	"wavetrace/internal/sim"
)

// FifoTracer derives the data, valid and credit pseudo-signals of one queue
// endpoint from the queue's ring counters.
type FifoTracer struct {
	Kind Kind

	port  *sim.Port
	queue *sim.Queue
	node  *Node

	data   *Signal
	valid  *Signal
	credit *Signal

	// credit alias registration, possibly on another node
	creditNode *Node
	creditName string

	delayed bool
	noflow  bool

	// snapshots taken at archive
	head uint64
	tail uint64
	free uint64
	full uint64

	dataPos   uint64
	validNow  bool
	creditNow bool

	proxy *TriggerProxy
}

func newFifoTracer(node *Node, p *sim.Port, kind Kind, data, valid *Signal) *FifoTracer {
	return &FifoTracer{Kind: kind, port: p, queue: p.Queue, node: node, data: data, valid: valid}
}

// Data returns the data pseudo-signal.
func (t *FifoTracer) Data() *Signal { return t.data }

// Valid returns the valid pseudo-signal.
func (t *FifoTracer) Valid() *Signal { return t.valid }

// Credit returns the credit pseudo-signal, nil without flow control or
// before resolve.
func (t *FifoTracer) Credit() *Signal { return t.credit }

func (t *FifoTracer) consumer() bool { return t.Kind == KindFifoConsumer }

func (t *FifoTracer) producer() bool { return t.Kind == KindFifoProducer }

// resolve picks between direct buffer tracing and a trigger proxy, creates
// the credit alias and registers the tracer with its domains.
func (t *FifoTracer) resolve(ctx *resolveCtx) error {
	q := t.queue
	t.delayed, t.noflow = q.Delayed, q.NoFlow

	if q.Depth() == 0 || (t.consumer() && q.Trigger() != nil) {
		side := q.Consumer
		if t.producer() {
			side = q.Producer
		}
		if side == nil {
			side = ctx.component.Domain()
		}
		t.Kind = KindFifoTrigger
		t.data.Kind, t.valid.Kind = KindFifoTrigger, KindFifoTrigger
		t.data.domain, t.valid.domain = side, side
		if q.Trigger() == nil {
			// pushes keep failing with sim.ErrNoTarget, valid stays low
			ctx.engine.log.Debug("storageless queue has no target", "queue", q.Name, "port", t.port.Path())
			return nil
		}
		t.proxy = installTriggerProxy(q)
		t.data.ref = t.proxy.buf
		ctx.engine.log.Info("trigger proxy installed", "queue", q.Name, "port", t.port.Path())
		ctx.engine.addTracer(side, t)
		return nil
	}

	if !t.noflow {
		if err := t.bindCredit(ctx); err != nil {
			return err
		}
	}

	orDefault := func(d *sim.Domain) *sim.Domain {
		if d == nil {
			return ctx.component.Domain()
		}
		return d
	}
	var domains []*sim.Domain
	if t.producer() {
		domains = append(domains, orDefault(q.Producer))
	}
	if t.consumer() || !t.delayed {
		if d := orDefault(q.Consumer); len(domains) == 0 || domains[0] != d {
			domains = append(domains, d)
		}
	}
	for _, d := range domains {
		ctx.engine.addTracer(d, t)
	}
	t.data.domain, t.valid.domain = domains[0], domains[0]
	if t.credit != nil {
		t.credit.domain = domains[0]
	}
	ctx.engine.log.Debug("fifo tracer resolved",
		"port", t.port.Path(), "kind", t.Kind, "delayed", t.delayed, "noflow", t.noflow)
	return nil
}

// bindCredit registers the credit signal under the mirrored path. The alias
// goes to the node the mirrored path names when it is catalogued, otherwise
// to the tracer's own node. A name already taken there leaves the tracer
// without a credit signal.
func (t *FifoTracer) bindCredit(ctx *resolveCtx) error {
	parent, leaf := splitPath(CreditName(t.port.Path()))
	host := ctx.engine.catalog.Lookup(parent)
	if host == nil {
		host = t.node
	}
	if host.Signal(leaf) != nil {
		// first registration wins
		ctx.engine.log.Debug("credit name taken", "node", host.Path(), "name", leaf)
		return nil
	}
	t.credit = ctx.engine.newSignal(leaf, t.Kind, 1)
	host.Put(t.credit)
	t.creditNode, t.creditName = host, leaf
	if host != t.node {
		host.aliases = append(host.aliases, leaf)
	}
	return nil
}

// writePos is the position after the newest pushed item, in-flight pushes
// included.
func (t *FifoTracer) writePos() uint64 {
	return t.queue.Tail() + t.queue.Full()
}

// archive snapshots the counters before the edge.
func (t *FifoTracer) archive() {
	if t.proxy != nil {
		return
	}
	q := t.queue
	t.head, t.free, t.full = q.Head(), q.Free(), q.Full()
	// in-flight pushes count as written: tail+full is the tail the edge
	// will commit for a delayed consumer
	t.tail = q.Tail() + t.full
}

// tick observes what the registered flow control moved at the edge.
func (t *FifoTracer) tick() {
	if t.proxy != nil || !t.delayed {
		return
	}
	switch {
	case t.consumer():
		t.validNow = t.queue.Full() != t.full
		if t.validNow {
			t.dataPos = t.queue.Tail() - 1
		}
	case t.producer():
		t.creditNow = t.queue.Free() != t.free
	}
}

// update computes the remaining pseudo-signal values after the edge and
// emits them.
func (t *FifoTracer) update(w Sink, now uint64) error {
	if t.proxy != nil {
		return t.updateTrigger(w, now)
	}
	q := t.queue
	t.free, t.full = q.Free(), q.Full()

	if t.producer() || !t.delayed {
		pos := t.writePos()
		t.validNow = pos != t.tail
		if t.validNow {
			t.dataPos = pos - 1
		}
	}
	if t.consumer() || !t.delayed {
		t.creditNow = q.Head() != t.head
	}

	if err := t.valid.emitBool(w, now, t.validNow); err != nil {
		return err
	}
	if t.validNow {
		t.data.ref = q.Slot(t.dataPos)
		if err := t.data.dump(w, now); err != nil {
			return err
		}
	}
	if !t.noflow && t.credit != nil {
		if err := t.credit.emitBool(w, now, t.creditNow); err != nil {
			return err
		}
	}
	return nil
}

func (t *FifoTracer) updateTrigger(w Sink, now uint64) error {
	fired, err := t.proxy.take()
	if err != nil {
		return fmt.Errorf("trigger %s: %w", t.port.Path(), err)
	}
	if err := t.valid.emitBool(w, now, fired); err != nil {
		return err
	}
	if !fired {
		return nil
	}
	return t.data.dump(w, now)
}

// release detaches the tracer from live simulation objects.
func (t *FifoTracer) release() {
	if t.creditNode != nil {
		t.creditNode.Remove(t.creditName)
		t.creditNode = nil
	}
	if t.proxy != nil {
		t.proxy.uninstall()
		t.proxy = nil
	}
}
