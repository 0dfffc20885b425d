package constraint

// Assertion is a stack of predicates about pointer validity, separate
// from Constraint because spec.md §6 keeps them as distinct consumed
// interfaces (a gadget satisfies assertions about what memory it may
// touch independently of what constraints bound its encoding/effects).
type Assertion struct {
	items []AssertPredicate
}

// AssertPredicate is one item in an Assertion stack.
type AssertPredicate interface {
	Class() string
}

// ValidWrite asserts that reg holds a pointer valid to write through.
type ValidWrite struct{ Reg int }

func NewValidWrite(reg int) *ValidWrite { return &ValidWrite{reg} }
func (v *ValidWrite) Class() string     { return "valid_write" }

// ValidRead asserts that reg holds a pointer valid to read through.
type ValidRead struct{ Reg int }

func NewValidRead(reg int) *ValidRead { return &ValidRead{reg} }
func (v *ValidRead) Class() string    { return "valid_read" }

// NewAssertion builds an empty Assertion stack.
func NewAssertion() *Assertion { return &Assertion{} }

// Add pushes a predicate, optionally dropping any existing predicate of
// the same class first.
func (a *Assertion) Add(p AssertPredicate, keepExisting bool) {
	if !keepExisting {
		kept := a.items[:0]
		for _, item := range a.items {
			if item.Class() != p.Class() {
				kept = append(kept, item)
			}
		}
		a.items = kept
	}
	a.items = append(a.items, p)
}

// Copy returns an independent Assertion with the same predicate stack.
func (a *Assertion) Copy() *Assertion {
	cp := make([]AssertPredicate, len(a.items))
	copy(cp, a.items)
	return &Assertion{items: cp}
}

// ValidWriteRegs returns every register asserted writable.
func (a *Assertion) ValidWriteRegs() []int {
	var regs []int
	for _, p := range a.items {
		if vw, ok := p.(*ValidWrite); ok {
			regs = append(regs, vw.Reg)
		}
	}
	return regs
}

// ValidReadRegs returns every register asserted readable.
func (a *Assertion) ValidReadRegs() []int {
	var regs []int
	for _, p := range a.items {
		if vr, ok := p.(*ValidRead); ok {
			regs = append(regs, vr.Reg)
		}
	}
	return regs
}
