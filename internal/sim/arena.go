package sim

import (
	"errors"
	"fmt"
)

// ErrStaleRef is returned when a Ref outlives the cell it points at.
var ErrStaleRef = errors.New("stale value reference")

// Arena owns value cells. Each clock domain owns one arena, so the arena a
// value lives in identifies the domain that drives it.
type Arena struct {
	owner *Domain
	cells []cell
}

type cell struct {
	raw   []byte // little-endian native bits
	valid bool
	live  bool
	gen   uint32
}

// Ref is a handle to one value cell. It never carries a pointer into the
// cell itself; every access goes through the owning arena.
type Ref struct {
	arena    *Arena
	index    int
	gen      uint32
	Width    int
	HasValid bool // the cell carries a validity flag next to the value
}

// NewArena creates an arena owned by d (nil for values no domain drives).
func NewArena(d *Domain) *Arena {
	return &Arena{owner: d}
}

// Owner returns the domain owning the arena, or nil.
func (a *Arena) Owner() *Domain {
	if a == nil {
		return nil
	}
	return a.owner
}

// Alloc reserves a zeroed cell of the given width.
func (a *Arena) Alloc(width int, hasValid bool) Ref {
	if width <= 0 {
		width = 1
	}
	c := cell{raw: make([]byte, (width+7)/8), valid: true, live: true}
	for i := range a.cells {
		if !a.cells[i].live {
			c.gen = a.cells[i].gen + 1
			a.cells[i] = c
			return Ref{arena: a, index: i, gen: c.gen, Width: width, HasValid: hasValid}
		}
	}
	a.cells = append(a.cells, c)
	return Ref{arena: a, index: len(a.cells) - 1, Width: width, HasValid: hasValid}
}

// Free releases the cell. Refs to it become stale.
func (a *Arena) Free(r Ref) {
	if c, err := a.lookup(r); err == nil {
		c.live = false
		c.raw = nil
	}
}

func (a *Arena) lookup(r Ref) (*cell, error) {
	if r.arena != a || r.index < 0 || r.index >= len(a.cells) {
		return nil, fmt.Errorf("%w: foreign or out of range", ErrStaleRef)
	}
	c := &a.cells[r.index]
	if !c.live || c.gen != r.gen {
		return nil, ErrStaleRef
	}
	return c, nil
}

// IsZero reports whether r was never allocated.
func (r Ref) IsZero() bool { return r.arena == nil }

// Arena returns the arena that owns r.
func (r Ref) Arena() *Arena { return r.arena }

// Load returns a copy of the raw little-endian bytes and the validity flag.
// Cells without a validity flag always report valid.
func (r Ref) Load() ([]byte, bool, error) {
	if r.arena == nil {
		return nil, false, fmt.Errorf("%w: unbound", ErrStaleRef)
	}
	c, err := r.arena.lookup(r)
	if err != nil {
		return nil, false, err
	}
	out := make([]byte, len(c.raw))
	copy(out, c.raw)
	return out, c.valid || !r.HasValid, nil
}

// Store overwrites the cell with raw little-endian bytes. Missing high bytes
// are zero, extra bytes are dropped.
func (r Ref) Store(raw []byte) error {
	if r.arena == nil {
		return fmt.Errorf("%w: unbound", ErrStaleRef)
	}
	c, err := r.arena.lookup(r)
	if err != nil {
		return err
	}
	for i := range c.raw {
		if i < len(raw) {
			c.raw[i] = raw[i]
		} else {
			c.raw[i] = 0
		}
	}
	if rem := r.Width % 8; rem != 0 {
		c.raw[len(c.raw)-1] &= byte(1<<rem) - 1
	}
	return nil
}

// SetUint stores v truncated to the ref width.
func (r Ref) SetUint(v uint64) error {
	raw := make([]byte, (r.Width+7)/8)
	for i := range raw {
		if i >= 8 {
			break
		}
		raw[i] = byte(v >> (8 * i))
	}
	return r.Store(raw)
}

// Uint returns the low 64 bits of the cell.
func (r Ref) Uint() (uint64, error) {
	raw, _, err := r.Load()
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < len(raw) && i < 8; i++ {
		v |= uint64(raw[i]) << (8 * i)
	}
	return v, nil
}

// SetValid updates the validity flag. It is a no-op for refs without one.
func (r Ref) SetValid(valid bool) error {
	if r.arena == nil {
		return fmt.Errorf("%w: unbound", ErrStaleRef)
	}
	c, err := r.arena.lookup(r)
	if err != nil {
		return err
	}
	if r.HasValid {
		c.valid = valid
	}
	return nil
}
