package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned by Push when the producer has no credit left.
	ErrQueueFull = errors.New("queue full")
	// ErrNoTarget is returned by Push on a storageless queue without a trigger.
	ErrNoTarget = errors.New("storageless queue has no trigger target")
)

// Trigger is a handshake-only target: it receives an event carrying a value
// but has no state that can be queried afterwards.
type Trigger interface {
	Fire(raw []byte)
}

// TriggerFunc adapts a function to Trigger.
type TriggerFunc func(raw []byte)

// Fire calls f(raw).
func (f TriggerFunc) Fire(raw []byte) { f(raw) }

// Queue is a bounded ring buffer between a producer and a consumer.
//
// head and tail are monotonically increasing positions; the buffer slot for
// position p is p % depth. tail is the last position visible to the
// consumer. For delayed queues pushes land after tail and stay in flight
// until a consumer edge later than the push commits them. Pops leave a credit
// in flight until a later producer edge returns it.
type Queue struct {
	Name    string
	Width   int
	Delayed bool // flow control is registered, visible one edge later
	NoFlow  bool // no backpressure, no credit wire

	Producer *Domain
	Consumer *Domain

	slots    []Ref
	head     uint64
	tail     uint64
	pushAt   []uint64 // issue times of in-flight pushes, oldest first
	creditAt []uint64 // issue times of in-flight credits, oldest first
	clock    func() uint64
	trigger  Trigger
}

// NewQueue allocates the buffer of a queue in arena.
func NewQueue(arena *Arena, name string, width, depth int) *Queue {
	q := &Queue{Name: name, Width: width}
	for i := 0; i < depth; i++ {
		q.slots = append(q.slots, arena.Alloc(width, false))
	}
	return q
}

// Depth returns the storage depth, zero for storageless queues.
func (q *Queue) Depth() int { return len(q.slots) }

// Head returns the consumer read position.
func (q *Queue) Head() uint64 { return q.head }

// Tail returns the position after the last item visible to the consumer.
func (q *Queue) Tail() uint64 { return q.tail }

// Free returns the number of credits in flight back to the producer.
func (q *Queue) Free() uint64 { return uint64(len(q.creditAt)) }

// Full returns the number of pushes in flight to the consumer.
func (q *Queue) Full() uint64 { return uint64(len(q.pushAt)) }

// Slot returns the buffer cell backing position pos.
func (q *Queue) Slot(pos uint64) Ref {
	if len(q.slots) == 0 {
		return Ref{}
	}
	return q.slots[pos%uint64(len(q.slots))]
}

// Len returns the number of items the consumer can pop.
func (q *Queue) Len() int { return int(q.tail - q.head) }

// Space returns how many pushes the producer may still issue.
func (q *Queue) Space() int {
	used := int(q.tail-q.head) + len(q.pushAt) + len(q.creditAt)
	return len(q.slots) - used
}

// Trigger returns the handshake target, nil for plain storage.
func (q *Queue) Trigger() Trigger { return q.trigger }

// SetTrigger replaces the handshake target and returns the previous one.
func (q *Queue) SetTrigger(t Trigger) Trigger {
	prev := q.trigger
	q.trigger = t
	return prev
}

// Push enqueues raw. Storage is written first, then the trigger fires.
func (q *Queue) Push(raw []byte) error {
	if len(q.slots) == 0 {
		if q.trigger == nil {
			return fmt.Errorf("%s: %w", q.Name, ErrNoTarget)
		}
		q.trigger.Fire(raw)
		return nil
	}
	if q.Space() <= 0 {
		if !q.NoFlow || q.Len() == 0 {
			return fmt.Errorf("%s: %w", q.Name, ErrQueueFull)
		}
		// without backpressure the oldest item is dropped
		q.head++
	}
	if err := q.Slot(q.tail + q.Full()).Store(raw); err != nil {
		return err
	}
	if q.Delayed {
		q.pushAt = append(q.pushAt, q.now())
	} else {
		q.tail++
	}
	if q.trigger != nil {
		q.trigger.Fire(raw)
	}
	return nil
}

// Pop dequeues the oldest visible item.
func (q *Queue) Pop() ([]byte, bool, error) {
	if q.Len() == 0 {
		return nil, false, nil
	}
	raw, _, err := q.Slot(q.head).Load()
	if err != nil {
		return nil, false, err
	}
	q.head++
	if q.Delayed && !q.NoFlow {
		q.creditAt = append(q.creditAt, q.now())
	}
	return raw, true, nil
}

func (q *Queue) now() uint64 {
	if q.clock == nil {
		return 0
	}
	return q.clock()
}

// CommitPushes makes pushes issued before now visible. Called on the
// consumer edge.
func (q *Queue) CommitPushes(now uint64) {
	n := issuedBefore(q.pushAt, now)
	q.tail += uint64(n)
	q.pushAt = append(q.pushAt[:0], q.pushAt[n:]...)
}

// CommitCredits returns credits issued before now. Called on the producer
// edge.
func (q *Queue) CommitCredits(now uint64) {
	n := issuedBefore(q.creditAt, now)
	q.creditAt = append(q.creditAt[:0], q.creditAt[n:]...)
}

// issuedBefore counts the leading entries of times older than now.
func issuedBefore(times []uint64, now uint64) int {
	n := 0
	for n < len(times) && times[n] < now {
		n++
	}
	return n
}
