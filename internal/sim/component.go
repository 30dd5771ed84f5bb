package sim

import "strings"

// PortKind classifies what a port exposes.
type PortKind uint8

const (
	PortIn PortKind = iota + 1
	PortOut
	PortReg   // register output
	PortClock // clock edge
	PortReset
	PortFree  // free-standing value not tied to a port direction
	PortQueue // flow-controlled queue endpoint
)

// String returns the string representation of PortKind.
func (k PortKind) String() string {
	switch k {
	case PortIn:
		return "in"
	case PortOut:
		return "out"
	case PortReg:
		return "reg"
	case PortClock:
		return "clock"
	case PortReset:
		return "reset"
	case PortFree:
		return "free"
	case PortQueue:
		return "queue"
	default:
		return "unknown"
	}
}

// Side tells which end of a queue a port sits on.
type Side uint8

const (
	SideProducer Side = iota + 1
	SideConsumer
)

// Port describes one observable endpoint of a component.
type Port struct {
	Name  string
	Kind  PortKind
	Width int
	Order BitOrder // nil for natural ordering
	Const bool     // value never changes after elaboration
	Value Ref      // backing value, unset for queue ports
	Queue *Queue   // queue ports only
	Side  Side     // queue ports only

	owner *Component
}

// Component returns the component the port belongs to.
func (p *Port) Component() *Component { return p.owner }

// Path returns the dotted hierarchical name of the port.
func (p *Port) Path() string {
	if p.owner == nil {
		return p.Name
	}
	return p.owner.Path() + "." + p.Name
}

// Component is a node of the simulated hardware hierarchy.
type Component struct {
	Name string

	parent   *Component
	children []*Component
	ports    []*Port
	domain   *Domain
}

// NewComponent creates a detached component.
func NewComponent(name string) *Component {
	return &Component{Name: name}
}

// Add attaches child under c and returns it.
func (c *Component) Add(child *Component) *Component {
	child.parent = c
	c.children = append(c.children, child)
	return child
}

// AddPort attaches p to c and returns it.
func (c *Component) AddPort(p *Port) *Port {
	p.owner = c
	c.ports = append(c.ports, p)
	return p
}

// Parent returns the enclosing component, nil for top-level components.
func (c *Component) Parent() *Component { return c.parent }

// Children returns the sub-components in declaration order.
func (c *Component) Children() []*Component { return c.children }

// Ports returns the ports in declaration order.
func (c *Component) Ports() []*Port { return c.ports }

// Child finds a direct sub-component by name.
func (c *Component) Child(name string) *Component {
	for _, ch := range c.children {
		if ch.Name == name {
			return ch
		}
	}
	return nil
}

// Port finds a port by name.
func (c *Component) Port(name string) *Port {
	for _, p := range c.ports {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// SetDomain binds the component to a clock domain.
func (c *Component) SetDomain(d *Domain) { c.domain = d }

// Domain returns the nearest clock domain bound to c or one of its ancestors.
func (c *Component) Domain() *Domain {
	for n := c; n != nil; n = n.parent {
		if n.domain != nil {
			return n.domain
		}
	}
	return nil
}

// Path returns the dotted hierarchical name.
func (c *Component) Path() string {
	if c.parent == nil {
		return c.Name
	}
	parts := []string{c.Name}
	for n := c.parent; n != nil; n = n.parent {
		parts = append(parts, n.Name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}
