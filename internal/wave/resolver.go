package wave

import (
	"fmt"

	"github.com/gobwas/glob"

	"wavetrace/internal/sim"
)

// unlimited is the include budget of a request with depth 0.
const unlimited = -1

// DumpRequest asks for the signals matching Signals on the components
// matching Pattern (or on Component itself), down to Depth levels.
type DumpRequest struct {
	Component *sim.Component // explicit start; Pattern is ignored when set
	Pattern   string
	Signals   string
	Depth     int // levels including the matched one; 0 means all

	components glob.Glob
	names      glob.Glob
}

func (r *DumpRequest) compile() error {
	if r.Signals == "" {
		r.Signals = "*"
	}
	names, err := glob.Compile(r.Signals)
	if err != nil {
		return fmt.Errorf("signal pattern %q: %w", r.Signals, err)
	}
	r.names = names
	if r.Component != nil {
		return nil
	}
	if r.Pattern == "" {
		r.Pattern = "*"
	}
	comps, err := glob.Compile(r.Pattern)
	if err != nil {
		return fmt.Errorf("component pattern %q: %w", r.Pattern, err)
	}
	r.components = comps
	return nil
}

func (r *DumpRequest) budget() int {
	if r.Depth <= 0 {
		return unlimited
	}
	return r.Depth
}

func (r *DumpRequest) String() string {
	target := r.Pattern
	if r.Component != nil {
		target = r.Component.Path()
	}
	return fmt.Sprintf("%s/%s depth=%d", target, r.Signals, r.Depth)
}

// below returns the include budget handed to the children of a node.
func below(budget int) int {
	switch {
	case budget == unlimited:
		return unlimited
	case budget <= 1:
		return 0
	default:
		return budget - 1
	}
}

// widen returns the larger of two include budgets.
func widen(a, b int) int {
	if a == unlimited || b == unlimited {
		return unlimited
	}
	return max(a, b)
}

// expand applies one request to the live hierarchy.
func (e *Engine) expand(r *DumpRequest) error {
	if r.Component != nil {
		return e.visit(r, r.Component, r.budget(), true)
	}
	for _, top := range e.kernel.Top() {
		if err := e.visit(r, top, 0, false); err != nil {
			return err
		}
	}
	return nil
}

// visit includes c when it matches or an ancestor's budget still covers it,
// then recurses with the remaining budget.
func (e *Engine) visit(r *DumpRequest, c *sim.Component, budget int, forced bool) error {
	// an explicit start reaches its descendants through the budget alone
	if forced || (r.components != nil && r.components.Match(c.Path())) {
		budget = widen(budget, r.budget())
	}
	if budget != 0 {
		if err := e.include(r, c); err != nil {
			return err
		}
	}
	for _, ch := range c.Children() {
		if err := e.visit(r, ch, below(budget), false); err != nil {
			return err
		}
	}
	return nil
}

// include registers every port of c whose name matches the request and is
// not registered on its node yet.
func (e *Engine) include(r *DumpRequest, c *sim.Component) error {
	n := e.catalog.ensure(c)
	for _, p := range c.Ports() {
		if !r.names.Match(p.Name) || n.Signal(p.Name) != nil {
			continue
		}
		kind, err := kindOf(p)
		if err != nil {
			return err
		}
		if kind.IsFifo() {
			if p.Queue == nil {
				return fmt.Errorf("queue port %s has no queue", p.Path())
			}
			data := e.newSignal(p.Name, kind, p.Queue.Width)
			valid := e.newSignal(p.Name+"_valid", kind, 1)
			data.port, valid.port = p, p
			n.Put(data)
			n.tracers = append(n.tracers, newFifoTracer(n, p, kind, data, valid))
			e.log.Debug("register fifo", "path", p.Path(), "kind", kind)
			continue
		}
		width := p.Width
		if kind == KindClock {
			width = 1
		}
		s := e.newSignal(p.Name, kind, width)
		s.port = p
		n.Put(s)
		e.log.Debug("register signal", "path", p.Path(), "kind", kind, "width", width)
	}
	return nil
}
