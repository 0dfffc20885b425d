package gadgetdb

import (
	"fmt"

	"github.com/subfortress/ropforge/internal/arch"
	"github.com/subfortress/ropforge/internal/gadget"
	"github.com/subfortress/ropforge/internal/lito"
)

// effect is the single non-stack-bookkeeping instruction a window may
// carry, in a shape one of the engine's Find* queries can match.
type effect struct {
	kind       queryKind
	destReg    int
	op         gadget.Binop
	srcReg     int
	cst        int64
	addrReg    int
	addrOp     gadget.Binop
	addrCst    int64
	dstAddrReg int
	asm        string
}

// windowFacts is the accumulated semantic read of a gadget window:
// how far pure stack bookkeeping (pop/push/esp adjust) moved sp, which
// registers it wrote, the first popped register (a MEM_BINOP_CST ←
// mem[sp+0] candidate), and at most one further effect instruction.
type windowFacts struct {
	spBytes     int64
	modified    map[int]bool
	firstPopReg int // -1 if no pop seen
	eff         *effect
	asm         []string
}

// classifyWindow walks instrs (the window, terminator excluded) and
// extracts windowFacts, or ok=false if it contains anything outside
// the recognized instruction shapes.
func classifyWindow(a *arch.Architecture, mode64 bool, instrs []*lito.Instruction) (*windowFacts, bool) {
	f := &windowFacts{modified: map[int]bool{}, firstPopReg: -1}
	sawEffect := false
	sawNonPop := false

	for _, instr := range instrs {
		extB := instr.Properties.HasREX && instr.REXPrefix&0x01 != 0
		extR := instr.Properties.HasREX && instr.REXPrefix&0x04 != 0

		switch {
		case instr.Opcode >= 0x58 && instr.Opcode <= 0x5F:
			if sawNonPop {
				return nil, false
			}
			reg := decodeReg(mode64, instr.Opcode-0x58, extB)
			if f.firstPopReg == -1 {
				f.firstPopReg = reg
			}
			f.modified[reg] = true
			f.spBytes += int64(a.WordBytes)
			f.asm = append(f.asm, fmt.Sprintf("pop %s", regName(mode64, reg)))
			continue
		}
		sawNonPop = true

		if espAdjust, ok := classifyEspAdjust(a, mode64, instr, extB); ok {
			f.spBytes += espAdjust
			f.modified[a.SP] = true
			f.asm = append(f.asm, fmt.Sprintf("sub/add esp, %d", espAdjust))
			continue
		}

		eff, ok := classifyEffect(mode64, instr, extB, extR)
		if !ok || sawEffect {
			return nil, false
		}
		sawEffect = true
		f.eff = eff
		f.modified[eff.destOrAddrReg()] = true
		f.asm = append(f.asm, eff.asm)
	}

	return f, true
}

// destOrAddrReg is the register an effect instruction writes to:
// destReg for register-destination effects, dstAddrReg for memory
// stores (where the "write" is through the register, not to it, but
// either way it's not a free intermediary afterward in the same
// gadget's accounting here since its value was just consumed).
func (e *effect) destOrAddrReg() int {
	switch e.kind {
	case kindCstToMem, kindRegBinopCstToMem:
		return e.dstAddrReg
	default:
		return e.destReg
	}
}

// classifyEspAdjust recognizes `add/sub esp, imm8/imm32` and returns
// the signed byte delta it applies to sp.
func classifyEspAdjust(a *arch.Architecture, mode64 bool, instr *lito.Instruction, extB bool) (int64, bool) {
	if !instr.Properties.HasModRM || (instr.Opcode != 0x83 && instr.Opcode != 0x81) {
		return 0, false
	}
	mod := (instr.ModRM >> 6) & 0x03
	reg := (instr.ModRM >> 3) & 0x07
	rm := instr.ModRM & 0x07
	if mod != 3 || (reg != 0 && reg != 5) {
		return 0, false
	}
	if decodeReg(mode64, rm, extB) != a.SP {
		return 0, false
	}
	imm := signExtendImm(instr.Immediate)
	if reg == 0 {
		return imm, true
	}
	return -imm, true
}

// classifyEffect recognizes the one-instruction shapes this scanner
// understands as a gadget's primary effect.
func classifyEffect(mode64 bool, instr *lito.Instruction, extB, extR bool) (*effect, bool) {
	hasModRM := instr.Properties.HasModRM
	var mod, regField, rm uint8
	if hasModRM {
		mod = (instr.ModRM >> 6) & 0x03
		regField = (instr.ModRM >> 3) & 0x07
		rm = instr.ModRM & 0x07
	}
	accum := accumulator(mode64)

	switch instr.Opcode {
	case 0x05: // ADD acc, imm32
		cst := signExtendImm(instr.Immediate)
		return &effect{kind: kindRegBinopCstToReg, destReg: accum, op: gadget.ADD, srcReg: accum, cst: cst,
			asm: fmt.Sprintf("add %s, %d", regName(mode64, accum), cst)}, true
	case 0x2D: // SUB acc, imm32
		cst := signExtendImm(instr.Immediate)
		return &effect{kind: kindRegBinopCstToReg, destReg: accum, op: gadget.SUB, srcReg: accum, cst: cst,
			asm: fmt.Sprintf("sub %s, %d", regName(mode64, accum), cst)}, true
	}

	if instr.Opcode >= 0xB8 && instr.Opcode <= 0xBF {
		dest := decodeReg(mode64, instr.Opcode-0xB8, extB)
		cst := int64(0)
		for i := len(instr.Immediate) - 1; i >= 0; i-- {
			cst = cst<<8 | int64(instr.Immediate[i])
		}
		return &effect{kind: kindCstToReg, destReg: dest, cst: cst, asm: fmt.Sprintf("mov %s, 0x%x", regName(mode64, dest), uint64(cst))}, true
	}

	if !hasModRM {
		return nil, false
	}
	if mod == 0 && rm == 5 {
		return nil, false // RIP-relative, unsupported
	}
	if instr.Properties.HasSIB {
		return nil, false // SIB addressing, unsupported
	}

	switch instr.Opcode {
	case 0x31, 0x33: // XOR, both directions
		if mod != 3 {
			return nil, false
		}
		a1 := decodeReg(mode64, regField, extR)
		a2 := decodeReg(mode64, rm, extB)
		if a1 != a2 {
			return nil, false
		}
		return &effect{kind: kindCstToReg, destReg: a1, cst: 0, asm: fmt.Sprintf("xor %s, %s", regName(mode64, a1), regName(mode64, a1))}, true

	case 0x89: // MOV r/m, reg (store form)
		src := decodeReg(mode64, regField, extR)
		if mod == 3 {
			dest := decodeReg(mode64, rm, extB)
			return &effect{kind: kindRegBinopCstToReg, destReg: dest, op: gadget.ADD, srcReg: src, cst: 0,
				asm: fmt.Sprintf("mov %s, %s", regName(mode64, dest), regName(mode64, src))}, true
		}
		base := decodeReg(mode64, rm, extB)
		disp := displacement(instr, mod)
		return &effect{kind: kindRegBinopCstToMem, dstAddrReg: base, addrOp: gadget.ADD, addrCst: disp, srcReg: src,
			asm: fmt.Sprintf("mov [%s+%d], %s", regName(mode64, base), disp, regName(mode64, src))}, true

	case 0x8B: // MOV reg, r/m (load form)
		dest := decodeReg(mode64, regField, extR)
		if mod == 3 {
			src := decodeReg(mode64, rm, extB)
			return &effect{kind: kindRegBinopCstToReg, destReg: dest, op: gadget.ADD, srcReg: src, cst: 0,
				asm: fmt.Sprintf("mov %s, %s", regName(mode64, dest), regName(mode64, src))}, true
		}
		base := decodeReg(mode64, rm, extB)
		disp := displacement(instr, mod)
		return &effect{kind: kindMemBinopCstToReg, destReg: dest, addrReg: base, addrOp: gadget.ADD, addrCst: disp,
			asm: fmt.Sprintf("mov %s, [%s+%d]", regName(mode64, dest), regName(mode64, base), disp)}, true

	case 0x8D: // LEA reg, [base+disp]
		if mod == 3 {
			return nil, false
		}
		dest := decodeReg(mode64, regField, extR)
		base := decodeReg(mode64, rm, extB)
		disp := displacement(instr, mod)
		return &effect{kind: kindRegBinopCstToReg, destReg: dest, op: gadget.ADD, srcReg: base, cst: disp,
			asm: fmt.Sprintf("lea %s, [%s+%d]", regName(mode64, dest), regName(mode64, base), disp)}, true

	case 0x83, 0x81: // ADD/SUB r/m, imm8/imm32
		if mod != 3 || (regField != 0 && regField != 5) {
			return nil, false
		}
		dest := decodeReg(mode64, rm, extB)
		cst := signExtendImm(instr.Immediate)
		op := gadget.ADD
		mnemonic := "add"
		if regField == 5 {
			op, mnemonic = gadget.SUB, "sub"
		}
		return &effect{kind: kindRegBinopCstToReg, destReg: dest, op: op, srcReg: dest, cst: cst,
			asm: fmt.Sprintf("%s %s, %d", mnemonic, regName(mode64, dest), cst)}, true

	case 0xC7: // MOV r/m, imm32
		if regField != 0 {
			return nil, false
		}
		cst := signExtendImm(instr.Immediate)
		if mod == 3 {
			dest := decodeReg(mode64, rm, extB)
			return &effect{kind: kindCstToReg, destReg: dest, cst: cst, asm: fmt.Sprintf("mov %s, 0x%x", regName(mode64, dest), uint64(cst))}, true
		}
		base := decodeReg(mode64, rm, extB)
		disp := displacement(instr, mod)
		return &effect{kind: kindCstToMem, dstAddrReg: base, addrOp: gadget.ADD, addrCst: disp, cst: cst,
			asm: fmt.Sprintf("mov [%s+%d], 0x%x", regName(mode64, base), disp, uint64(cst))}, true
	}

	return nil, false
}

func displacement(instr *lito.Instruction, mod uint8) int64 {
	if mod == 0 || !instr.Properties.HasDisplacement {
		return 0
	}
	return signExtendImm(instr.Displacement)
}

func signExtendImm(b []byte) int64 {
	switch len(b) {
	case 1:
		return int64(int8(b[0]))
	case 2:
		return int64(int16(uint16(b[0]) | uint16(b[1])<<8))
	case 4:
		v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		return int64(int32(v))
	case 8:
		var v uint64
		for i := 7; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return int64(v)
	default:
		return 0
	}
}

func accumulator(mode64 bool) arch.Register {
	if mode64 {
		return arch.RAX
	}
	return arch.EAX
}

var regNamesAMD64 = map[arch.Register]string{
	arch.RAX: "rax", arch.RBX: "rbx", arch.RCX: "rcx", arch.RDX: "rdx",
	arch.RSI: "rsi", arch.RDI: "rdi", arch.RBP: "rbp", arch.RSP: "rsp",
	arch.R8: "r8", arch.R9: "r9", arch.R10: "r10", arch.R11: "r11",
	arch.R12: "r12", arch.R13: "r13", arch.R14: "r14", arch.R15: "r15",
	arch.RIP: "rip",
}

var regNamesI386 = map[arch.Register]string{
	arch.EAX: "eax", arch.EBX: "ebx", arch.ECX: "ecx", arch.EDX: "edx",
	arch.ESI: "esi", arch.EDI: "edi", arch.EBP: "ebp", arch.ESP: "esp",
	arch.EIP: "eip",
}

func regName(mode64 bool, r arch.Register) string {
	if mode64 {
		if n, ok := regNamesAMD64[r]; ok {
			return n
		}
		return fmt.Sprintf("r%d", r)
	}
	if n, ok := regNamesI386[r]; ok {
		return n
	}
	return fmt.Sprintf("r%d", r)
}
