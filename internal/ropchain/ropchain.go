// Package ropchain implements the append-only ROPChain container spec.md
// §6 keeps external to the core: concatenation and padding insertion
// into a gadget-id + padding-word sequence. Rendering the sequence is
// left to callers, which read it through Entries.
//
// Grounded on morpher.MorphResult/AddressTracker's accumulate-then-render
// shape (morpher/morpher.go, morpher/tracker.go): one struct that appends
// entries during a pass and is read back afterward.
package ropchain

import "github.com/subfortress/ropforge/internal/gadget"

// EntryKind tags one slot of the chain.
type EntryKind int

const (
	EntryGadget EntryKind = iota
	EntryPadding
)

// Entry is one word placed on the stack.
type Entry struct {
	Kind    EntryKind
	Gadget  gadget.ID // EntryGadget
	Value   uint64    // EntryPadding
	Comment string    // EntryPadding, optional
}

// ROPChain is an ordered, append-only sequence of gadget addresses and
// padding words.
type ROPChain struct {
	entries []Entry
}

// New returns an empty chain.
func New() *ROPChain { return &ROPChain{} }

// AddGadget appends a single gadget-address slot.
func (c *ROPChain) AddGadget(id gadget.ID) {
	c.entries = append(c.entries, Entry{Kind: EntryGadget, Gadget: id})
}

// AddPadding appends count padding words of the given value. comment, if
// non-empty, is attached to the first padding word only (matching the
// source's single ROPChain::add_padding(value, count, comment) call,
// which only accepts one label per call).
func (c *ROPChain) AddPadding(value uint64, count int, comment ...string) {
	label := ""
	if len(comment) > 0 {
		label = comment[0]
	}
	for i := 0; i < count; i++ {
		e := Entry{Kind: EntryPadding, Value: value}
		if i == 0 {
			e.Comment = label
		}
		c.entries = append(c.entries, e)
	}
}

// AddChain concatenates other onto the end of c.
func (c *ROPChain) AddChain(other *ROPChain) {
	if other == nil {
		return
	}
	c.entries = append(c.entries, other.entries...)
}

// Len returns the chain's length in words.
func (c *ROPChain) Len() int { return len(c.entries) }

// Entries returns the chain's entries in stack order.
func (c *ROPChain) Entries() []Entry { return c.entries }

// CopyFrom replaces c's contents with a copy of other's.
func (c *ROPChain) CopyFrom(other *ROPChain) {
	if other == nil {
		c.entries = nil
		return
	}
	c.entries = append([]Entry(nil), other.entries...)
}

// Clone returns an independent copy of c.
func (c *ROPChain) Clone() *ROPChain {
	cp := New()
	cp.CopyFrom(c)
	return cp
}

// GadgetIDs returns the gadget IDs in stack order, dropping padding.
func (c *ROPChain) GadgetIDs() []gadget.ID {
	var ids []gadget.ID
	for _, e := range c.entries {
		if e.Kind == EntryGadget {
			ids = append(ids, e.Gadget)
		}
	}
	return ids
}
