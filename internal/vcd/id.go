package vcd

import "errors"

// ErrIDSpaceExhausted is returned once every identifier has been issued.
var ErrIDSpaceExhausted = errors.New("vcd: identifier space exhausted")

// ID is a compact signal identifier.
type ID string

const (
	idLen   = 4
	idFirst = '!'
	idLast  = '~'
	idRadix = idLast - idFirst + 1
)

// IDAllocator issues identifiers. The zero value starts at "!!!!".
type IDAllocator struct {
	next      [idLen]byte
	init      bool
	exhausted bool
	issued    int
}

// Next returns a fresh identifier.
func (a *IDAllocator) Next() (ID, error) {
	if !a.init {
		for i := range a.next {
			a.next[i] = idFirst
		}
		a.init = true
	}
	if a.exhausted {
		return "", ErrIDSpaceExhausted
	}
	id := ID(a.next[:])
	a.issued++
	for i := 0; ; i++ {
		if i == idLen {
			a.exhausted = true
			break
		}
		if a.next[i] < idLast {
			a.next[i]++
			break
		}
		a.next[i] = idFirst
	}
	return id, nil
}

// Issued returns how many identifiers were handed out.
func (a *IDAllocator) Issued() int { return a.issued }

// Capacity is the total number of identifiers an allocator can issue.
func Capacity() int {
	n := 1
	for i := 0; i < idLen; i++ {
		n *= idRadix
	}
	return n
}
