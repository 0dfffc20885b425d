package gadgetdb

import (
	"sort"

	"github.com/subfortress/ropforge/internal/arch"
	"github.com/subfortress/ropforge/internal/gadget"
	"github.com/subfortress/ropforge/internal/lito"
)

// maxWindowBytes bounds how far back from a terminator the scanner
// looks for a clean instruction run. Real gadget databases cap this
// too (ROPgadget's default is comparable); a longer window mostly
// finds gadgets nobody would want to use anyway.
const maxWindowBytes = 24

// DB is a gadget.Database built by scanning a flat code buffer once.
type DB struct {
	arch    *arch.Architecture
	mode64  bool
	gadgets map[gadget.ID]*gadget.Gadget
	byKind  map[queryKind][]*gadgetRecord
	nextID  gadget.ID
}

// Scan disassembles code (mapped starting at base) looking for every
// RET/indirect-JMP/indirect-CALL terminated instruction window it can
// classify, and returns a Database over what it found.
func Scan(code []byte, base uint64, a *arch.Architecture) (*DB, error) {
	mode64 := a.WordBytes == 8
	db := &DB{
		arch:    a,
		mode64:  mode64,
		gadgets: map[gadget.ID]*gadget.Gadget{},
		byKind:  map[queryKind][]*gadgetRecord{},
	}

	for t := 0; t < len(code); t++ {
		term, err := lito.Disassemble(code, t, mode64)
		if err != nil || !term.IsControlFlow() {
			continue
		}
		retType, retReg, ok := classifyTerminator(term, mode64)
		if !ok {
			continue
		}

		windowStart := t - maxWindowBytes
		if windowStart < 0 {
			windowStart = 0
		}
		for start := t - 1; start >= windowStart; start-- {
			instrs, ok := decodeWindow(code, start, t, mode64)
			if !ok {
				continue
			}
			db.indexWindow(code, base, start, t, instrs, term, retType, retReg)
		}
		// The terminator alone (an empty window, e.g. a bare "ret") is
		// itself a valid zero-pop gadget.
		db.indexWindow(code, base, t, t, nil, term, retType, retReg)
	}

	for k := range db.byKind {
		recs := db.byKind[k]
		sort.Slice(recs, func(i, j int) bool { return recs[i].g.SpInc < recs[j].g.SpInc })
	}

	return db, nil
}

// classifyTerminator reports whether term is a terminator this scanner
// knows how to use, and if so its RetType/pivot register.
func classifyTerminator(term *lito.Instruction, mode64 bool) (retType gadget.RetType, retReg int, ok bool) {
	switch term.Opcode {
	case 0xC2, 0xC3, 0xCA, 0xCB:
		return gadget.RET, -1, true
	case 0xFF:
		if !term.Properties.HasModRM {
			return 0, 0, false
		}
		mod := (term.ModRM >> 6) & 0x03
		reg := (term.ModRM >> 3) & 0x07
		rm := term.ModRM & 0x07
		if mod != 3 {
			return 0, 0, false
		}
		extB := term.Properties.HasREX && term.REXPrefix&0x01 != 0
		pivot := decodeReg(mode64, rm, extB)
		switch {
		case reg == 2 || reg == 3:
			return gadget.CALL, pivot, true
		case reg == 4 || reg == 5:
			return gadget.JMP, pivot, true
		}
	}
	return 0, 0, false
}

// retImmWords returns the extra bytes a RET imm16 terminator consumes.
func retImmWords(term *lito.Instruction) int64 {
	if (term.Opcode != 0xC2 && term.Opcode != 0xCA) || len(term.Immediate) < 2 {
		return 0
	}
	imm16 := int64(term.Immediate[0]) | int64(term.Immediate[1])<<8
	return imm16
}

// decodeWindow tries to decode code[start:end] as a clean run of whole
// instructions landing exactly on end; it returns the decoded
// instructions (excluding the terminator) on success.
func decodeWindow(code []byte, start, end int, mode64 bool) ([]*lito.Instruction, bool) {
	var out []*lito.Instruction
	off := start
	for off < end {
		instr, err := lito.Disassemble(code, off, mode64)
		if err != nil {
			return nil, false
		}
		if off+int(instr.Length) > end {
			return nil, false
		}
		out = append(out, instr)
		off += int(instr.Length)
	}
	return out, off == end
}
