package gadget

import "errors"

// ErrUnsupportedAssign is returned by Dispatch for assign kinds the
// leaf lookup never wires into a DB query (SYSCALL/INT80 — the original
// ChainingEngine.cpp throws "DEBUG TO IMPLEMENT" for both; ropforge keeps
// the boundary but as a typed error instead of a panic).
var ErrUnsupportedAssign = errors.New("gadget: assign kind has no DB lookup")

// RetType is how a gadget transfers control at its end.
type RetType int

const (
	RET RetType = iota
	JMP
	CALL
)

func (t RetType) String() string {
	switch t {
	case RET:
		return "ret"
	case JMP:
		return "jmp"
	case CALL:
		return "call"
	default:
		return "?"
	}
}

// ID identifies a gadget within a Database.
type ID int

// Gadget is the read-only metadata the engine needs about a gadget it
// did not itself find or disassemble. Its shape mirrors spec.md §6.
type Gadget struct {
	ID      ID
	Address uint64

	SpInc      int64 // bytes the gadget moves the stack pointer
	KnownSpInc bool  // false when the effect can't be statically bounded

	RetType RetType
	RetReg  int // valid when RetType is JMP or CALL

	AsmStr    string
	Addresses []uint64 // every known load address for this gadget

	modified map[int]bool
}

// NewGadget builds a Gadget, copying modifiedRegs into an internal set so
// callers may reuse/mutate their slice afterward.
func NewGadget(id ID, addr uint64, spInc int64, known bool, ret RetType, retReg int, asm string, addrs []uint64, modifiedRegs []int) *Gadget {
	m := make(map[int]bool, len(modifiedRegs))
	for _, r := range modifiedRegs {
		m[r] = true
	}
	return &Gadget{
		ID:         id,
		Address:    addr,
		SpInc:      spInc,
		KnownSpInc: known,
		RetType:    ret,
		RetReg:     retReg,
		AsmStr:     asm,
		Addresses:  addrs,
		modified:   m,
	}
}

// ModifiedReg reports whether the gadget writes reg as a side effect.
func (g *Gadget) ModifiedReg(reg int) bool { return g.modified[reg] }

// ModifiedRegs returns every register the gadget writes as a side
// effect, in no particular order.
func (g *Gadget) ModifiedRegs() []int {
	regs := make([]int, 0, len(g.modified))
	for r := range g.modified {
		regs = append(regs, r)
	}
	return regs
}
