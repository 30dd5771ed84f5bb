package wave

import (
	"sort"

	"wavetrace/internal/sim"
)

// Node mirrors one component of the live hierarchy.
type Node struct {
	Name string

	path      string
	component *sim.Component
	parent    *Node
	children  []*Node
	byName    map[string]*Node
	signals   map[string]*Signal
	tracers   []*FifoTracer
	aliases   []string // signal names registered here by other nodes' tracers
	domain    *sim.Domain
}

func newNode(name, path string, c *sim.Component, parent *Node) *Node {
	return &Node{
		Name:      name,
		path:      path,
		component: c,
		parent:    parent,
		byName:    map[string]*Node{},
		signals:   map[string]*Signal{},
	}
}

// Path returns the dotted hierarchical name, empty for the root.
func (n *Node) Path() string { return n.path }

// Component returns the mirrored component, nil for the root.
func (n *Node) Component() *sim.Component { return n.component }

// Domain returns the clock domain of the mirrored component, if any.
func (n *Node) Domain() *sim.Domain { return n.domain }

// Children returns the child nodes in creation order.
func (n *Node) Children() []*Node { return n.children }

// Child returns the child node mirroring the sub-component name, or nil.
func (n *Node) Child(name string) *Node { return n.byName[name] }

// Put registers s under its name, replacing a previous registration.
func (n *Node) Put(s *Signal) { n.signals[s.Name] = s }

// Signal returns the signal registered under name, or nil.
func (n *Node) Signal(name string) *Signal { return n.signals[name] }

// Remove drops the registration of name.
func (n *Node) Remove(name string) { delete(n.signals, name) }

// Signals returns the registered signals in declaration order.
func (n *Node) Signals() []*Signal {
	out := make([]*Signal, 0, len(n.signals))
	for _, s := range n.signals {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

// Tracers returns the queue tracers of the node.
func (n *Node) Tracers() []*FifoTracer { return n.tracers }

// declared returns every signal declared in this node's scope: registered
// signals plus the valid wires of its tracers, in declaration order.
func (n *Node) declared() []*Signal {
	out := n.Signals()
	for _, t := range n.tracers {
		out = append(out, t.valid)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

// populated reports whether the subtree rooted at n declares anything.
func (n *Node) populated() bool {
	if len(n.signals) > 0 || len(n.tracers) > 0 {
		return true
	}
	for _, c := range n.children {
		if c.populated() {
			return true
		}
	}
	return false
}

// Catalog is the tree of traced components.
type Catalog struct {
	root   *Node
	byPath map[string]*Node
}

func newCatalog() *Catalog {
	return &Catalog{root: newNode("", "", nil, nil), byPath: map[string]*Node{}}
}

// Root returns the session root node.
func (c *Catalog) Root() *Node { return c.root }

// Lookup returns the node for a dotted component path, or nil.
func (c *Catalog) Lookup(path string) *Node { return c.byPath[path] }

// ensure returns the node mirroring comp, creating it and its ancestors.
func (c *Catalog) ensure(comp *sim.Component) *Node {
	path := comp.Path()
	if n, ok := c.byPath[path]; ok {
		return n
	}
	parent := c.root
	if comp.Parent() != nil {
		parent = c.ensure(comp.Parent())
	}
	n := newNode(comp.Name, path, comp, parent)
	n.domain = comp.Domain()
	parent.children = append(parent.children, n)
	parent.byName[comp.Name] = n
	c.byPath[path] = n
	return n
}

// Apply calls fn on every node in pre-order, root first, stopping at the
// first error.
func (c *Catalog) Apply(fn func(*Node) error) error {
	return apply(c.root, fn)
}

func apply(n *Node, fn func(*Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, ch := range n.children {
		if err := apply(ch, fn); err != nil {
			return err
		}
	}
	return nil
}
