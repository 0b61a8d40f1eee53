// Package trace models the input of the trace compiler: a linear record of
// executed basic blocks, and the table binding symbol names to the runtime
// addresses of their machine code.
package trace

import (
	"errors"
	"fmt"
)

// Entry is one element of a trace: either a mapped basic-block location
// (function name plus zero-based block index) or an unmappable hole, marking
// a region of execution in code for which no IR is available.
type Entry struct {
	fn   string
	bb   int
	hole bool
}

// Mapped returns a mapped entry for block bb of function fn.
func Mapped(fn string, bb int) Entry { return Entry{fn: fn, bb: bb} }

// Unmappable returns a hole entry.
func Unmappable() Entry { return Entry{hole: true} }

// Hole reports whether the entry is an unmappable hole.
func (e Entry) Hole() bool { return e.hole }

// Location returns the function name and block index of a mapped entry.
func (e Entry) Location() (fn string, bb int) {
	if e.hole {
		panic("BUG: Location called on an unmappable entry")
	}
	return e.fn, e.bb
}

// String implements fmt.Stringer.
func (e Entry) String() string {
	if e.hole {
		return "<unmappable>"
	}
	return fmt.Sprintf("%s:%d", e.fn, e.bb)
}

// Trace is a random-access view over a linear trace.
type Trace struct {
	entries []Entry
}

// New returns a trace over the given entries.
func New(entries []Entry) (*Trace, error) {
	if len(entries) == 0 {
		return nil, errors.New("trace is empty")
	}
	return &Trace{entries: entries}, nil
}

// NewFromArrays builds a trace from the parallel arrays of the C-style entry
// point: funcNames[i] == "" marks a hole, in which case bbs[i] is ignored.
func NewFromArrays(funcNames []string, bbs []int) (*Trace, error) {
	if len(funcNames) != len(bbs) {
		return nil, fmt.Errorf("trace arrays have mismatched lengths: %d != %d", len(funcNames), len(bbs))
	}
	entries := make([]Entry, len(funcNames))
	for i, fn := range funcNames {
		if fn == "" {
			entries[i] = Unmappable()
		} else {
			entries[i] = Mapped(fn, bbs[i])
		}
	}
	return New(entries)
}

// Length returns the number of entries in the trace.
func (t *Trace) Length() int { return len(t.entries) }

// At returns the i-th entry; ok is false if i is out of range.
func (t *Trace) At(i int) (e Entry, ok bool) {
	if i < 0 || i >= len(t.entries) {
		return Entry{}, false
	}
	return t.entries[i], true
}

// MustAt returns the i-th entry, which the caller has already established to
// be in range and mapped.
func (t *Trace) MustAt(i int) Entry {
	e, ok := t.At(i)
	if !ok {
		panic(fmt.Sprintf("BUG: trace index %d out of range", i))
	}
	if e.hole {
		panic(fmt.Sprintf("BUG: trace index %d is an unmappable hole", i))
	}
	return e
}
