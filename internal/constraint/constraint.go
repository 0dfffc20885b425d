// Package constraint implements the composable constraint/assertion
// stacks the engine pushes onto and pops off of during search (spec.md
// §6). The shape — a list of typed predicates plus a compact bitmask
// signature for memoization — is grounded on wig/constraints.go's
// ExecutableManifold, whose ForbiddenPatterns/AllowedOpcodes fields play
// the same "what bytes/opcodes may appear" role that BadBytes/Return
// play here, generalized from "validate generated junk code" to
// "validate ROP gadget addresses and padding".
package constraint

import (
	"golang.org/x/exp/slices"

	"github.com/subfortress/ropforge/internal/rng"
)

// Signature summarizes a constraint stack such that for two signatures
// a, b: a.Implies(b) iff the constraint set behind a is weaker than (or
// equal to, hence implied by) b. See record.RegTransitivityRecord for
// the antichain this backs.
//
// Most predicate classes fold into a single bitmask, where the monotone
// ordering (weaker ⊑ stronger) is bitwise AND/OR. BadBytes is the
// exception: two different nonempty forbidden-byte sets are
// incomparable in general (neither generalizes to the other), so it
// carries its own 256-bit membership map rather than a single presence
// bit, and Implies checks it as a byte-set subset test.
type Signature struct {
	bits     sigBits
	badBytes badByteSet
}

// badByteSet is a bitmap over the 256 possible byte values, indexed by
// value (bit i set means byte i is forbidden).
type badByteSet [4]uint64

func (s badByteSet) has(b byte) bool { return s[b/64]&(1<<(uint(b)%64)) != 0 }

func (s *badByteSet) set(b byte) { s[b/64] |= 1 << (uint(b) % 64) }

// subsetOf reports whether every byte forbidden in s is also forbidden
// in other -- s is the weaker (smaller) forbidden set.
func (s badByteSet) subsetOf(other badByteSet) bool {
	for i := range s {
		if s[i]&^other[i] != 0 {
			return false
		}
	}
	return true
}

type sigBits uint32

// Bit layout — each constraint class claims a fixed set of bits so the
// monotone ordering (weaker ⊑ stronger) is just bitwise AND/OR:
//
//	bit 0       : KeepRegs is non-empty (any kept register makes the
//	              constraint strictly stronger than keeping none)
//	bits 1-16   : one bit per register kept (up to 16 registers)
//	bit 18      : Return forbids JMP
//	bit 19      : Return forbids CALL
//	bit 20      : Return forbids RET
//	bit 21      : MaxSpInc is set
//	bit 22      : MinSpInc is set
//
// (bit 17, formerly a bare BadBytes-nonempty flag, is retired; BadBytes
// is now carried in Signature.badBytes instead.)
const (
	sigKeepAny    sigBits = 1 << 0
	sigKeepRegBit         = 1 // regs occupy bits [1, 17)
	sigNoJmp      sigBits = 1 << 18
	sigNoCall     sigBits = 1 << 19
	sigNoRet      sigBits = 1 << 20
	sigMaxSpInc   sigBits = 1 << 21
	sigMinSpInc   sigBits = 1 << 22
)

// Implies reports whether a is weaker than or equal to b, i.e. every
// query impossible under a is also impossible under b.
func (a Signature) Implies(b Signature) bool {
	return a.bits&b.bits == a.bits && a.badBytes.subsetOf(b.badBytes)
}

// Predicate is one item in a Constraint or Assertion stack.
type Predicate interface {
	// Class returns a stable identifier so Update() can replace same-class
	// predicates instead of stacking duplicates.
	Class() string
}

// KeepRegs forbids modifying any of the given registers.
type KeepRegs struct{ Regs map[int]bool }

func NewKeepRegs(regs ...int) *KeepRegs {
	m := make(map[int]bool, len(regs))
	for _, r := range regs {
		m[r] = true
	}
	return &KeepRegs{Regs: m}
}
func (k *KeepRegs) Class() string { return "keep_regs" }

// BadBytes forbids any of the given byte values appearing in an emitted
// address or padding word.
type BadBytes struct{ Bytes map[byte]bool }

func NewBadBytes(bytes ...byte) *BadBytes {
	m := make(map[byte]bool, len(bytes))
	for _, b := range bytes {
		m[b] = true
	}
	return &BadBytes{Bytes: m}
}
func (b *BadBytes) Class() string { return "bad_bytes" }

// Return constrains which terminator kinds a gadget search may accept.
type Return struct{ AllowRet, AllowJmp, AllowCall bool }

func NewReturn(ret, jmp, call bool) *Return { return &Return{ret, jmp, call} }
func (r *Return) Class() string             { return "return" }

// MaxSpInc bounds a gadget's stack-pointer increment from above.
type MaxSpInc struct{ Bytes int64 }

func NewMaxSpInc(bytes int64) *MaxSpInc { return &MaxSpInc{bytes} }
func (m *MaxSpInc) Class() string       { return "max_sp_inc" }

// MinSpInc bounds a gadget's stack-pointer increment from below.
type MinSpInc struct{ Bytes int64 }

func NewMinSpInc(bytes int64) *MinSpInc { return &MinSpInc{bytes} }
func (m *MinSpInc) Class() string       { return "min_sp_inc" }

// Constraint is a stack of predicates. Value semantics: Copy() is the
// only way to get an independent instance, matching spec.md §9's
// recommendation to clone rather than save/restore in place.
type Constraint struct {
	items []Predicate
	rng   *rng.XorShift128
}

// New builds an empty Constraint seeded with a padding RNG.
func New(seed uint32) *Constraint {
	return &Constraint{rng: rng.New(seed)}
}

// Add pushes a predicate. If keepExisting is false, any predicate of the
// same class already on the stack is dropped first (spec.md §6: "add").
func (c *Constraint) Add(p Predicate, keepExisting bool) {
	if !keepExisting {
		c.dropClass(p.Class())
	}
	c.items = append(c.items, p)
}

// Update replaces any predicate of the same class as p (spec.md §6:
// "update"). If none exists yet, p is simply appended.
func (c *Constraint) Update(p Predicate) {
	c.dropClass(p.Class())
	c.items = append(c.items, p)
}

func (c *Constraint) dropClass(class string) {
	c.items = slices.DeleteFunc(c.items, func(p Predicate) bool {
		return p.Class() == class
	})
}

// Copy returns an independent Constraint with the same predicate stack.
func (c *Constraint) Copy() *Constraint {
	cp := &Constraint{items: slices.Clone(c.items), rng: c.rng}
	return cp
}

func (c *Constraint) find(class string) Predicate {
	for i := len(c.items) - 1; i >= 0; i-- {
		if c.items[i].Class() == class {
			return c.items[i]
		}
	}
	return nil
}

// KeepReg reports whether reg must not be modified.
func (c *Constraint) KeepReg(reg int) bool {
	p := c.find("keep_regs")
	if p == nil {
		return false
	}
	return p.(*KeepRegs).Regs[reg]
}

// VerifyAddress reports whether addr's little-endian byte encoding
// contains no forbidden byte.
func (c *Constraint) VerifyAddress(addr uint64, wordBytes int) bool {
	p := c.find("bad_bytes")
	if p == nil {
		return true
	}
	bad := p.(*BadBytes).Bytes
	for i := 0; i < wordBytes; i++ {
		if bad[byte(addr>>(8*uint(i)))] {
			return false
		}
	}
	return true
}

// AllowsReturn reports whether the current Return predicate permits the
// given terminator kind. retKind: 0=RET, 1=JMP, 2=CALL, matching
// gadget.RetType's ordinal values (kept as plain int here so this
// package has no dependency on package gadget).
func (c *Constraint) AllowsReturn(retKind int) bool {
	p := c.find("return")
	if p == nil {
		return true
	}
	r := p.(*Return)
	switch retKind {
	case 0:
		return r.AllowRet
	case 1:
		return r.AllowJmp
	case 2:
		return r.AllowCall
	default:
		return false
	}
}

// SpIncBounds returns the current inclusive [min, max] sp_inc bounds, with ok=false
// for a bound that was never set.
func (c *Constraint) SpIncBounds() (min int64, minOK bool, max int64, maxOK bool) {
	if p := c.find("min_sp_inc"); p != nil {
		min, minOK = p.(*MinSpInc).Bytes, true
	}
	if p := c.find("max_sp_inc"); p != nil {
		max, maxOK = p.(*MaxSpInc).Bytes, true
	}
	return
}

// ValidPadding searches for a word whose every byte is not in BadBytes,
// per spec.md §6 (`valid_padding`). The source used any fixed or
// arbitrary byte-clean value; ropforge draws one via the constraint's
// own XorShift128 (adapted from morpher/xorshift.go) so repeated calls
// within one search don't all return the same pattern, while staying
// reproducible across a run given the same seed.
func (c *Constraint) ValidPadding(wordBytes int) (ok bool, value uint64) {
	p := c.find("bad_bytes")
	if p == nil {
		return true, 0
	}
	bad := p.(*BadBytes).Bytes
	for attempt := 0; attempt < 256; attempt++ {
		candidate := uint64(c.rng.Uint32())<<32 | uint64(c.rng.Uint32())
		clean := true
		for i := 0; i < wordBytes; i++ {
			if bad[byte(candidate>>(8*uint(i)))] {
				clean = false
				break
			}
		}
		if clean {
			return true, candidate
		}
	}
	// Exhaustive fallback: walk every byte value for a single repeated
	// clean byte, which covers the case where the RNG is unlucky but a
	// valid byte still exists.
	for b := 0; b < 256; b++ {
		if bad[byte(b)] {
			continue
		}
		var v uint64
		for i := 0; i < wordBytes; i++ {
			v |= uint64(b) << (8 * uint(i))
		}
		return true, v
	}
	return false, 0
}

// Signature computes the memoization key for the current stack.
func (c *Constraint) Signature() Signature {
	var sig Signature
	if p := c.find("keep_regs"); p != nil {
		regs := p.(*KeepRegs).Regs
		if len(regs) > 0 {
			sig.bits |= sigKeepAny
		}
		for r := range regs {
			if r >= 0 && r < 16 {
				sig.bits |= 1 << uint(sigKeepRegBit+r)
			}
		}
	}
	if p := c.find("bad_bytes"); p != nil {
		for b := range p.(*BadBytes).Bytes {
			sig.badBytes.set(b)
		}
	}
	if p := c.find("return"); p != nil {
		r := p.(*Return)
		if !r.AllowJmp {
			sig.bits |= sigNoJmp
		}
		if !r.AllowCall {
			sig.bits |= sigNoCall
		}
		if !r.AllowRet {
			sig.bits |= sigNoRet
		}
	}
	if _, ok := c.find("max_sp_inc").(*MaxSpInc); ok {
		sig.bits |= sigMaxSpInc
	}
	if _, ok := c.find("min_sp_inc").(*MinSpInc); ok {
		sig.bits |= sigMinSpInc
	}
	return sig
}
