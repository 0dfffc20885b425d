// Package gadgetdb is a concrete gadget.Database: it scans a flat code
// buffer with internal/lito for RET/JMP-reg/CALL-reg terminated byte
// windows, classifies the handful of instruction shapes a useful ROP
// gadget actually needs (pop, mov, lea, add/sub with an immediate, xor
// of a register with itself, memory load/store through a
// base+displacement), and
// answers the engine's six Find* queries against what it found.
//
// It does not attempt a general semantic disassembler: any window
// containing an instruction shape outside the recognized set, or more
// than one such "effect" instruction before the terminator, is simply
// not indexed as a gadget. That mirrors how real gadget databases
// bound their own search space rather than reason about arbitrary
// binaries symbolically (spec.md §1 keeps exactly this out of the
// engine's scope; this package is the engine's one concrete supplier).
package gadgetdb

import (
	"github.com/subfortress/ropforge/internal/arch"
	"github.com/subfortress/ropforge/internal/gadget"
)

// regOrderAMD64 maps a ModRM/SIB/opcode register index (and REX
// extension, for indices 8-15) to this module's arch.Register
// constants, in the order x86-64 actually encodes them.
var regOrderAMD64 = [16]arch.Register{
	arch.RAX, arch.RCX, arch.RDX, arch.RBX,
	arch.RSP, arch.RBP, arch.RSI, arch.RDI,
	arch.R8, arch.R9, arch.R10, arch.R11,
	arch.R12, arch.R13, arch.R14, arch.R15,
}

// regOrderI386 is the 32-bit subset of the same encoding order.
var regOrderI386 = [8]arch.Register{
	arch.EAX, arch.ECX, arch.EDX, arch.EBX,
	arch.ESP, arch.EBP, arch.ESI, arch.EDI,
}

// decodeReg resolves a raw 3-bit ModRM/opcode field plus an extension
// bit (REX.R, REX.X or REX.B, already 0 in 32-bit mode) to an
// architecture register index.
func decodeReg(mode64 bool, field uint8, ext bool) arch.Register {
	idx := int(field & 0x07)
	if mode64 {
		if ext {
			idx += 8
		}
		return regOrderAMD64[idx]
	}
	return regOrderI386[idx]
}

// queryKind tags which of the engine's six Find* shapes a
// gadgetRecord answers.
type queryKind int

const (
	kindCstToReg queryKind = iota
	kindRegBinopCstToReg
	kindMemBinopCstToReg
	kindCstToMem
	kindRegBinopCstToMem
	kindMemBinopCstToMem
)

// gadgetRecord is one indexed (effect, terminator-window) pair. Only
// the fields relevant to its kind are meaningful.
type gadgetRecord struct {
	kind queryKind
	g    *gadget.Gadget

	destReg int
	op      gadget.Binop
	srcReg  int
	cst     int64

	addrReg int
	addrOp  gadget.Binop
	addrCst int64

	dstAddrReg int
	dstAddrOp  gadget.Binop
	dstAddrCst int64
	srcAddrReg int
	srcAddrOp  gadget.Binop
	srcAddrCst int64
}
