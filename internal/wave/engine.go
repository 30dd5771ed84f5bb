package wave

import (
	"errors"
	"fmt"
	"log/slog"

	"wavetrace/internal/logging"
	"wavetrace/internal/manifest"
	"wavetrace/internal/sim"
	"wavetrace/internal/vcd"
)

var (
	// ErrLateDeclare is returned by Declare once construction has ended.
	ErrLateDeclare = errors.New("dump request declared after construction")
	// ErrLifecycle is returned when lifecycle calls arrive out of order.
	ErrLifecycle = errors.New("tracing lifecycle out of order")
)

type stage uint8

const (
	stageDeclare stage = iota
	stageInitialized
	stageOpen
	stageClosed
)

// Config holds the engine settings.
type Config struct {
	Output    string // trace file path, "-" for stdout
	Manifest  string // optional sidecar index path
	Timescale string
	Date      string
	Version   string
	Quantum   uint64
	Logger    *slog.Logger
}

// Engine records value changes of selected signals of a simulated design.
//
// The kernel drives it through Declare, Initialize, Resolve, Archive (any
// number of times) and Cleanup, in that order. Between Resolve and Cleanup
// the engine samples through observers registered on the clock domains.
type Engine struct {
	cfg    Config
	kernel *sim.Kernel
	log    *slog.Logger

	stage    stage
	requests []*DumpRequest
	catalog  *Catalog
	sink     *vcd.Writer
	next     int // declaration index

	probes  []*probe
	byDom   map[*sim.Domain]*probe
	global  *probe
	initial []*Signal // constants, sampled once
}

// New creates an engine tracing the design held by k.
func New(k *sim.Kernel, cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Engine{
		cfg:     cfg,
		kernel:  k,
		log:     log,
		catalog: newCatalog(),
		byDom:   map[*sim.Domain]*probe{},
		sink: vcd.NewWriter(vcd.Config{
			Date:      cfg.Date,
			Version:   cfg.Version,
			Timescale: cfg.Timescale,
			Quantum:   cfg.Quantum,
		}),
	}
}

// Catalog returns the signal catalog.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Declare requests the signals matching signals on c and depth-1 levels of
// its descendants. It must be called while the kernel is constructing.
func (e *Engine) Declare(c *sim.Component, signals string, depth int) error {
	return e.declare(&DumpRequest{Component: c, Signals: signals, Depth: depth})
}

// DeclarePattern requests the signals matching signals on every component
// whose dotted path matches pattern.
func (e *Engine) DeclarePattern(pattern, signals string, depth int) error {
	return e.declare(&DumpRequest{Pattern: pattern, Signals: signals, Depth: depth})
}

func (e *Engine) declare(r *DumpRequest) error {
	if e.kernel.Phase() != sim.PhaseConstruct || e.stage != stageDeclare {
		return fmt.Errorf("%w: %s", ErrLateDeclare, r)
	}
	if err := r.compile(); err != nil {
		return err
	}
	e.requests = append(e.requests, r)
	return nil
}

// Initialize expands the dump requests against the hierarchy and creates
// placeholder signals. The requests are consumed.
func (e *Engine) Initialize() error {
	if e.stage != stageDeclare {
		return fmt.Errorf("%w: initialize", ErrLifecycle)
	}
	for _, r := range e.requests {
		if err := e.expand(r); err != nil {
			return fmt.Errorf("dump %s: %w", r, err)
		}
	}
	e.log.Debug("dump requests expanded", "requests", len(e.requests), "signals", e.next)
	e.requests = nil
	e.stage = stageInitialized
	return nil
}

// resolveCtx is threaded through resolution in place of a global "current
// component".
type resolveCtx struct {
	engine    *Engine
	component *sim.Component
}

// Resolve binds every placeholder to its storage and clock domain, then
// opens the configured output and writes the index.
func (e *Engine) Resolve() error {
	if e.stage != stageInitialized {
		return fmt.Errorf("%w: resolve", ErrLifecycle)
	}
	err := e.catalog.Apply(func(n *Node) error {
		if n.component == nil {
			return nil
		}
		ctx := &resolveCtx{engine: e, component: n.component}
		for _, s := range n.Signals() {
			if err := s.resolve(ctx); err != nil {
				return err
			}
		}
		for _, t := range n.tracers {
			if err := t.resolve(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, p := range e.probes {
		if p.domain != nil {
			p.domain.Register(p)
		}
	}
	e.kernel.Observe(e.globalProbe())
	if err := e.open(e.cfg.Output); err != nil {
		return err
	}
	e.stage = stageOpen
	return nil
}

// Archive closes the current output and continues the trace in path. The
// index is rewritten with the same identifiers and the current values are
// dumped so the new segment stands alone.
func (e *Engine) Archive(path string) error {
	if e.stage != stageOpen {
		return fmt.Errorf("%w: archive", ErrLifecycle)
	}
	if err := e.sink.Close(); err != nil {
		return err
	}
	if err := e.open(path); err != nil {
		return err
	}
	var changes []vcd.Change
	_ = e.catalog.Apply(func(n *Node) error {
		for _, s := range n.declared() {
			changes = append(changes, s.change())
		}
		return nil
	})
	e.log.Info("trace segment rotated", "path", path, "time", e.kernel.Now())
	return e.sink.DumpVars(e.kernel.Now(), changes)
}

// Cleanup tears the session down: credit aliases are removed first, then
// proxies, observers and nodes are released and the output is closed.
func (e *Engine) Cleanup() error {
	if e.stage == stageClosed {
		return nil
	}
	var tracers []*FifoTracer
	_ = e.catalog.Apply(func(n *Node) error {
		for _, name := range n.aliases {
			n.Remove(name)
		}
		n.aliases = nil
		tracers = append(tracers, n.tracers...)
		return nil
	})
	// proxies stack on a shared queue, unwind them newest first
	for i := len(tracers) - 1; i >= 0; i-- {
		tracers[i].release()
	}
	for _, p := range e.probes {
		if p.domain != nil {
			p.domain.Unregister(p)
		}
	}
	if e.global != nil {
		e.kernel.Forget(e.global)
	}
	e.probes, e.byDom, e.global, e.initial = nil, nil, nil, nil
	e.catalog = newCatalog()
	e.stage = stageClosed
	return e.sink.Close()
}

// newSignal creates a placeholder with the next declaration index.
func (e *Engine) newSignal(name string, kind Kind, width int) *Signal {
	s := newSignal(name, kind, width, e.next)
	e.next++
	return s
}

// open attaches the sink to path and writes the static index.
func (e *Engine) open(path string) error {
	if err := e.sink.OpenPath(path); err != nil {
		return err
	}
	if err := e.writeScope(e.catalog.root); err != nil {
		return err
	}
	if err := e.sink.EndDefinitions(); err != nil {
		return err
	}
	if e.cfg.Manifest != "" {
		if err := manifest.Write(e.cfg.Manifest, e.manifest()); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
	}
	return nil
}

func (e *Engine) writeScope(n *Node) error {
	if !n.populated() {
		return nil
	}
	if n.component != nil {
		if err := e.sink.BeginScope(n.Name); err != nil {
			return err
		}
	}
	for _, s := range n.declared() {
		if err := s.writeIndex(e.sink); err != nil {
			return err
		}
	}
	for _, ch := range n.children {
		if err := e.writeScope(ch); err != nil {
			return err
		}
	}
	if n.component != nil {
		return e.sink.EndScope()
	}
	return nil
}

func (e *Engine) manifest() *manifest.Manifest {
	m := &manifest.Manifest{Timescale: e.cfg.Timescale}
	_ = e.catalog.Apply(func(n *Node) error {
		for _, s := range n.declared() {
			dom := ""
			if s.domain != nil {
				dom = s.domain.Name
			}
			m.Add(string(s.id), n.path+"."+s.Name, s.Width, s.Kind.String(), dom)
		}
		return nil
	})
	return m
}

// probeFor returns the dispatch list of d, the global list for nil.
func (e *Engine) probeFor(d *sim.Domain) *probe {
	if d == nil {
		return e.globalProbe()
	}
	if p, ok := e.byDom[d]; ok {
		return p
	}
	p := &probe{engine: e, domain: d}
	e.byDom[d] = p
	e.probes = append(e.probes, p)
	return p
}

func (e *Engine) globalProbe() *probe {
	if e.global == nil {
		e.global = &probe{engine: e}
	}
	return e.global
}

func (e *Engine) addTracer(d *sim.Domain, t *FifoTracer) {
	p := e.probeFor(d)
	p.tracers = append(p.tracers, t)
}

// flushInitial samples the constant signals once.
func (e *Engine) flushInitial(now uint64) error {
	for _, s := range e.initial {
		if err := s.dump(e.sink, now); err != nil {
			return err
		}
	}
	e.initial = nil
	return nil
}
