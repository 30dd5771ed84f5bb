package wave

import (
	"fmt"

	"wavetrace/internal/sim"
)

// Kind is the closed set of traced signal kinds.
type Kind uint8

const (
	KindPort         Kind = iota + 1 // input or output port value
	KindRegQ                         // register output
	KindClock                        // domain edge counter
	KindReset                        // reset line
	KindFree                         // free-standing value
	KindFifoProducer                 // producer end of a queue
	KindFifoConsumer                 // consumer end of a queue
	KindFifoTrigger                  // storageless queue traced through a trigger proxy
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindPort:
		return "port"
	case KindRegQ:
		return "regq"
	case KindClock:
		return "clock"
	case KindReset:
		return "reset"
	case KindFree:
		return "free"
	case KindFifoProducer:
		return "fifo-producer"
	case KindFifoConsumer:
		return "fifo-consumer"
	case KindFifoTrigger:
		return "fifo-trigger"
	default:
		return "unknown"
	}
}

// IsFifo reports whether k is driven by a FifoTracer rather than sampled
// from its own backing value.
func (k Kind) IsFifo() bool {
	return k == KindFifoProducer || k == KindFifoConsumer || k == KindFifoTrigger
}

// kindOf maps a port descriptor to the signal kind that traces it.
func kindOf(p *sim.Port) (Kind, error) {
	switch p.Kind {
	case sim.PortIn, sim.PortOut:
		return KindPort, nil
	case sim.PortReg:
		return KindRegQ, nil
	case sim.PortClock:
		return KindClock, nil
	case sim.PortReset:
		return KindReset, nil
	case sim.PortFree:
		return KindFree, nil
	case sim.PortQueue:
		if p.Side == sim.SideProducer {
			return KindFifoProducer, nil
		}
		return KindFifoConsumer, nil
	default:
		return 0, fmt.Errorf("port %s: unsupported kind %s", p.Path(), p.Kind)
	}
}
