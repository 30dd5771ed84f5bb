// Package design builds a runnable simulation kernel from the design
// sections of a configuration file.
package design

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fortio.org/safecast"

	"wavetrace/internal/config"
	"wavetrace/internal/logging"
	"wavetrace/internal/sim"
)

// DefaultDomain is created when the configuration declares no domain.
const DefaultDomain = "clk"

// Design is a built kernel plus lookup tables into it.
type Design struct {
	Kernel *sim.Kernel

	domains    map[string]*sim.Domain
	components map[string]*sim.Component
	queues     map[string]*sim.Queue
	log        *slog.Logger
}

// Build creates the kernel described by f. The kernel is left in the
// construct phase so dump requests can still be declared.
func Build(f *config.File, log *slog.Logger) (*Design, error) {
	if log == nil {
		log = logging.Discard()
	}
	d := &Design{
		Kernel:     sim.NewKernel(),
		domains:    map[string]*sim.Domain{},
		components: map[string]*sim.Component{},
		queues:     map[string]*sim.Queue{},
		log:        log,
	}
	if err := d.addDomains(f.Domains); err != nil {
		return nil, err
	}
	for _, c := range f.Components {
		if err := d.addComponent(c); err != nil {
			return nil, err
		}
	}
	for _, q := range f.Queues {
		if err := d.addQueue(q); err != nil {
			return nil, err
		}
	}
	log.Debug("design built",
		"domains", len(d.domains), "components", len(d.components), "queues", len(d.queues))
	return d, nil
}

// Domain returns the named clock domain, or nil.
func (d *Design) Domain(name string) *sim.Domain { return d.domains[name] }

// Component returns the component at a dotted path, or nil.
func (d *Design) Component(path string) *sim.Component { return d.components[path] }

// Queue returns the named queue, or nil.
func (d *Design) Queue(name string) *sim.Queue { return d.queues[name] }

// Edges returns the number of edges every domain has stepped so far.
func (d *Design) Edges() uint64 {
	var n uint64
	for _, dom := range d.Kernel.Domains() {
		n += dom.Edges()
	}
	return n
}

// EdgesUntil returns how many edges a run up to time until steps in total.
func (d *Design) EdgesUntil(until uint64) uint64 {
	var n uint64
	for _, dom := range d.Kernel.Domains() {
		if dom.Offset > until {
			continue
		}
		n += (until-dom.Offset)/dom.Period + 1
	}
	return n
}

func (d *Design) addDomains(decls []config.Domain) error {
	if len(decls) == 0 {
		decls = []config.Domain{{Name: DefaultDomain, Period: 1}}
	}
	for _, decl := range decls {
		period, err := safecast.Conv[uint64](decl.Period)
		if err != nil {
			return fmt.Errorf("domain %s: period: %w", decl.Name, err)
		}
		offset, err := safecast.Conv[uint64](decl.Offset)
		if err != nil {
			return fmt.Errorf("domain %s: offset: %w", decl.Name, err)
		}
		d.domains[decl.Name] = d.Kernel.AddDomain(sim.NewDomain(decl.Name, period, offset))
	}
	return nil
}

// defaultDomain is the first declared domain.
func (d *Design) defaultDomain() *sim.Domain {
	return d.Kernel.Domains()[0]
}

// ensure returns the component at path, creating it and its ancestors.
func (d *Design) ensure(path string) *sim.Component {
	if c, ok := d.components[path]; ok {
		return c
	}
	var c *sim.Component
	if i := strings.LastIndexByte(path, '.'); i < 0 {
		c = d.Kernel.AddTop(sim.NewComponent(path))
	} else {
		c = d.ensure(path[:i]).Add(sim.NewComponent(path[i+1:]))
	}
	d.components[path] = c
	return c
}

// driver returns the domain evaluating the behaviours of c.
func (d *Design) driver(c *sim.Component) *sim.Domain {
	if dom := c.Domain(); dom != nil {
		return dom
	}
	return d.defaultDomain()
}

func (d *Design) addComponent(decl config.Component) error {
	c := d.ensure(decl.Path)
	if decl.Domain != "" {
		dom := d.domains[decl.Domain]
		if dom == nil {
			return fmt.Errorf("component %s: unknown domain %q", decl.Path, decl.Domain)
		}
		c.SetDomain(dom)
	}
	for _, p := range decl.Ports {
		if err := d.addPort(c, p); err != nil {
			return fmt.Errorf("component %s: %w", decl.Path, err)
		}
	}
	return nil
}

var portKinds = map[string]sim.PortKind{
	"in":    sim.PortIn,
	"out":   sim.PortOut,
	"reg":   sim.PortReg,
	"clock": sim.PortClock,
	"reset": sim.PortReset,
	"free":  sim.PortFree,
}

func (d *Design) addPort(c *sim.Component, decl config.Port) error {
	kind, ok := portKinds[decl.Kind]
	if !ok {
		return fmt.Errorf("port %s: unknown kind %q", decl.Name, decl.Kind)
	}
	if kind == sim.PortClock {
		dom := d.driver(c)
		c.AddPort(&sim.Port{Name: decl.Name, Kind: kind, Width: 1, Value: dom.Clock()})
		return nil
	}
	width, err := safecast.Conv[int](decl.Width)
	if err != nil {
		return fmt.Errorf("port %s: width: %w", decl.Name, err)
	}
	value, err := safecast.Conv[uint64](decl.Value)
	if err != nil {
		return fmt.Errorf("port %s: value: %w", decl.Name, err)
	}
	every, err := safecast.Conv[uint64](decl.Every)
	if err != nil {
		return fmt.Errorf("port %s: every: %w", decl.Name, err)
	}

	// values of undomained components live in the global arena
	arena := d.Kernel.Global()
	if dom := c.Domain(); dom != nil {
		arena = dom.Arena()
	}
	ref := arena.Alloc(width, decl.Valid)
	port := &sim.Port{Name: decl.Name, Kind: kind, Width: width, Value: ref}
	if decl.Order == "byteswap" {
		port.Order = sim.ByteSwapped(width)
	}
	if decl.Valid {
		if err := ref.SetValid(false); err != nil {
			return err
		}
	}

	b := behavior{ref: ref, value: value, every: max(every, 1), valid: decl.Valid, domain: d.driver(c)}
	switch decl.Behavior {
	case "const":
		port.Const = true
		if err := b.store(value); err != nil {
			return err
		}
	case "counter":
		if b.value == 0 {
			b.value = 1
		}
		b.domain.OnEdge(b.counter)
	case "toggle":
		b.domain.OnEdge(b.toggle)
	case "pulse":
		b.domain.OnEdge(b.pulse)
	case "":
		if value != 0 {
			if err := b.store(value); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("port %s: unknown behavior %q", decl.Name, decl.Behavior)
	}
	c.AddPort(port)
	d.log.Log(context.Background(), logging.LevelTrace, "port built",
		"path", port.Path(), "kind", kind, "width", width, "behavior", decl.Behavior)
	return nil
}

// addQueue creates a queue and its ports. Storage lives in the consumer
// domain's arena.
func (d *Design) addQueue(decl config.Queue) error {
	if _, dup := d.queues[decl.Name]; dup {
		return fmt.Errorf("queue %s declared twice", decl.Name)
	}
	width, err := safecast.Conv[int](decl.Width)
	if err != nil {
		return fmt.Errorf("queue %s: width: %w", decl.Name, err)
	}
	depth, err := safecast.Conv[int](decl.Depth)
	if err != nil {
		return fmt.Errorf("queue %s: depth: %w", decl.Name, err)
	}
	pushEvery, err := safecast.Conv[uint64](decl.PushEvery)
	if err != nil {
		return fmt.Errorf("queue %s: push_every: %w", decl.Name, err)
	}
	popEvery, err := safecast.Conv[uint64](decl.PopEvery)
	if err != nil {
		return fmt.Errorf("queue %s: pop_every: %w", decl.Name, err)
	}

	var prodComp, consComp *sim.Component
	var prodName, consName string
	prodDom, consDom := d.defaultDomain(), d.defaultDomain()
	if decl.Producer != "" {
		prodComp, prodName, err = d.endpoint(decl.Producer)
		if err != nil {
			return fmt.Errorf("queue %s: %w", decl.Name, err)
		}
		prodDom = d.driver(prodComp)
	}
	if decl.Consumer != "" {
		consComp, consName, err = d.endpoint(decl.Consumer)
		if err != nil {
			return fmt.Errorf("queue %s: %w", decl.Name, err)
		}
		consDom = d.driver(consComp)
	}

	q := sim.NewQueue(consDom.Arena(), decl.Name, width, depth)
	q.Delayed, q.NoFlow = decl.Delayed, decl.NoFlow
	if depth == 0 {
		// storageless queues deliver to a sink that accepts every event
		q.SetTrigger(sim.TriggerFunc(func([]byte) {}))
	}
	d.Kernel.Connect(q, prodDom, consDom)
	d.queues[decl.Name] = q

	if prodComp != nil {
		prodComp.AddPort(&sim.Port{Name: prodName, Kind: sim.PortQueue, Width: width, Queue: q, Side: sim.SideProducer})
	}
	if consComp != nil {
		consComp.AddPort(&sim.Port{Name: consName, Kind: sim.PortQueue, Width: width, Queue: q, Side: sim.SideConsumer})
	}
	if pushEvery > 0 {
		p := &producer{queue: q, domain: prodDom, every: pushEvery}
		prodDom.OnEdge(p.step)
	}
	if popEvery > 0 {
		c := &consumer{queue: q, domain: consDom, every: popEvery}
		consDom.OnEdge(c.step)
	}
	d.log.Log(context.Background(), logging.LevelTrace, "queue built",
		"queue", decl.Name, "depth", depth, "delayed", decl.Delayed, "noflow", decl.NoFlow)
	return nil
}

// endpoint splits a port path into its component, created on demand, and
// the port name.
func (d *Design) endpoint(path string) (*sim.Component, string, error) {
	i := strings.LastIndexByte(path, '.')
	if i <= 0 || i == len(path)-1 {
		return nil, "", fmt.Errorf("port path %q needs a component and a port name", path)
	}
	return d.ensure(path[:i]), path[i+1:], nil
}
