package gadgetdb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/subfortress/ropforge/internal/constraint"
	"github.com/subfortress/ropforge/internal/gadget"
	"github.com/subfortress/ropforge/internal/lito"
)

// ErrNotFound is returned by Get for an ID this Database never issued.
var ErrNotFound = errors.New("gadgetdb: unknown gadget id")

// indexWindow classifies one candidate gadget window (instrs, then
// term at address base+t) and, if recognized, registers it under
// every query kind it can answer.
func (db *DB) indexWindow(code []byte, base uint64, start, t int, instrs []*lito.Instruction, term *lito.Instruction, retType gadget.RetType, retReg int) {
	facts, ok := classifyWindow(db.arch, db.mode64, instrs)
	if !ok {
		return
	}

	word := int64(db.arch.WordBytes)
	retExtra := retImmWords(term)
	address := base + uint64(start)
	asmParts := append([]string{}, facts.asm...)
	asmParts = append(asmParts, terminatorAsm(term, retType, retReg, db.mode64))
	asmStr := strings.Join(asmParts, "; ")

	var spInc int64
	switch retType {
	case gadget.RET:
		spInc = facts.spBytes + word + retExtra
	default:
		spInc = facts.spBytes
	}

	modified := make([]int, 0, len(facts.modified))
	for r := range facts.modified {
		modified = append(modified, r)
	}

	if facts.eff != nil {
		db.registerEffect(facts, address, spInc, retType, retReg, asmStr, modified)
		return
	}

	// No effect instruction: register the plain pop-chain both as an
	// IP pivot target (for chain_adjust_ret) and, if it popped
	// anything, as a mem-load into the first popped register (for
	// chain_pop_constant and basic_db_lookup's MEM_BINOP_CST family).
	ipRecord := &gadgetRecord{
		kind:    kindMemBinopCstToReg,
		destReg: db.arch.IP,
		addrReg: db.arch.SP,
		addrOp:  gadget.ADD,
		addrCst: facts.spBytes,
	}
	db.finishAndIndex(ipRecord, address, spInc, retType, retReg, asmStr, modified)

	if facts.firstPopReg != -1 {
		popRecord := &gadgetRecord{
			kind:    kindMemBinopCstToReg,
			destReg: facts.firstPopReg,
			addrReg: db.arch.SP,
			addrOp:  gadget.ADD,
			addrCst: 0,
		}
		db.finishAndIndex(popRecord, address, spInc, retType, retReg, asmStr, modified)
	}
}

func (db *DB) registerEffect(facts *windowFacts, address uint64, spInc int64, retType gadget.RetType, retReg int, asmStr string, modified []int) {
	e := facts.eff
	rec := &gadgetRecord{
		kind:       e.kind,
		destReg:    e.destReg,
		op:         e.op,
		srcReg:     e.srcReg,
		cst:        e.cst,
		addrReg:    e.addrReg,
		addrOp:     e.addrOp,
		addrCst:    e.addrCst,
		dstAddrReg: e.dstAddrReg,
	}
	db.finishAndIndex(rec, address, spInc, retType, retReg, asmStr, modified)
}

// finishAndIndex builds the shared gadget.Gadget for rec, removing its
// own written register from the modified-side-effect list, and files
// rec under its query kind.
func (db *DB) finishAndIndex(rec *gadgetRecord, address uint64, spInc int64, retType gadget.RetType, retReg int, asmStr string, modified []int) {
	own := rec.destReg
	if rec.kind == kindCstToMem || rec.kind == kindRegBinopCstToMem {
		own = rec.dstAddrReg
	}
	sideEffects := make([]int, 0, len(modified))
	for _, r := range modified {
		if r != own {
			sideEffects = append(sideEffects, r)
		}
	}

	id := db.nextID
	db.nextID++
	g := gadget.NewGadget(id, address, spInc, true, retType, retReg, asmStr, []uint64{address}, sideEffects)
	rec.g = g
	db.gadgets[id] = g
	db.byKind[rec.kind] = append(db.byKind[rec.kind], rec)
}

func terminatorAsm(term *lito.Instruction, retType gadget.RetType, retReg int, mode64 bool) string {
	switch retType {
	case gadget.RET:
		return "ret"
	case gadget.JMP:
		return fmt.Sprintf("jmp %s", regName(mode64, retReg))
	case gadget.CALL:
		return fmt.Sprintf("call %s", regName(mode64, retReg))
	default:
		return "?"
	}
}

// Get returns a previously scanned gadget's metadata.
func (db *DB) Get(id gadget.ID) (*gadget.Gadget, error) {
	g, ok := db.gadgets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return g, nil
}

// Count returns how many gadgets Scan indexed.
func (db *DB) Count() int { return len(db.gadgets) }

// All returns every indexed gadget, ordered by ID.
func (db *DB) All() []*gadget.Gadget {
	out := make([]*gadget.Gadget, 0, len(db.gadgets))
	for id := gadget.ID(0); id < db.nextID; id++ {
		if g, ok := db.gadgets[id]; ok {
			out = append(out, g)
		}
	}
	return out
}

func (db *DB) passes(rec *gadgetRecord, c *constraint.Constraint) bool {
	if !c.AllowsReturn(int(rec.g.RetType)) {
		return false
	}
	min, minOK, max, maxOK := c.SpIncBounds()
	if minOK && rec.g.SpInc < min {
		return false
	}
	if maxOK && rec.g.SpInc > max {
		return false
	}
	if !c.VerifyAddress(rec.g.Address, db.arch.WordBytes) {
		return false
	}
	for _, r := range rec.g.ModifiedRegs() {
		if c.KeepReg(r) {
			return false
		}
	}
	return true
}

func collect(recs []*gadgetRecord, n int) []gadget.ID {
	if n > len(recs) {
		n = len(recs)
	}
	ids := make([]gadget.ID, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, recs[i].g.ID)
	}
	return ids
}

func assertedRead(a *constraint.Assertion, reg int) bool {
	if reg == gadget.NoReg {
		return true
	}
	for _, r := range a.ValidReadRegs() {
		if r == reg {
			return true
		}
	}
	return false
}

func assertedWrite(a *constraint.Assertion, reg int) bool {
	if reg == gadget.NoReg {
		return true
	}
	for _, r := range a.ValidWriteRegs() {
		if r == reg {
			return true
		}
	}
	return false
}

func (db *DB) FindCstToReg(destReg int, cst int64, c *constraint.Constraint, a *constraint.Assertion, n int) ([]gadget.ID, error) {
	var out []*gadgetRecord
	for _, rec := range db.byKind[kindCstToReg] {
		if rec.destReg != destReg || rec.cst != cst {
			continue
		}
		if !db.passes(rec, c) {
			continue
		}
		out = append(out, rec)
		if len(out) >= n {
			break
		}
	}
	return collect(out, n), nil
}

func (db *DB) FindRegBinopCstToReg(destReg int, op gadget.Binop, srcReg int, cst int64, c *constraint.Constraint, a *constraint.Assertion, n int) ([]gadget.ID, error) {
	var out []*gadgetRecord
	for _, rec := range db.byKind[kindRegBinopCstToReg] {
		if rec.destReg != destReg || rec.op != op || rec.srcReg != srcReg || rec.cst != cst {
			continue
		}
		if !db.passes(rec, c) {
			continue
		}
		out = append(out, rec)
		if len(out) >= n {
			break
		}
	}
	return collect(out, n), nil
}

func (db *DB) FindMemBinopCstToReg(destReg int, addrOp gadget.Binop, addrReg int, addrCst, cst int64, c *constraint.Constraint, a *constraint.Assertion, n int) ([]gadget.ID, error) {
	var out []*gadgetRecord
	for _, rec := range db.byKind[kindMemBinopCstToReg] {
		if rec.destReg != destReg || rec.addrOp != addrOp || rec.addrReg != addrReg || rec.addrCst != addrCst || rec.cst != cst {
			continue
		}
		if addrReg != db.arch.SP && !assertedRead(a, addrReg) {
			continue
		}
		if !db.passes(rec, c) {
			continue
		}
		out = append(out, rec)
		if len(out) >= n {
			break
		}
	}
	return collect(out, n), nil
}

func (db *DB) FindCstToMem(addrOp gadget.Binop, addrReg int, addrCst, cst int64, c *constraint.Constraint, a *constraint.Assertion, n int) ([]gadget.ID, error) {
	var out []*gadgetRecord
	for _, rec := range db.byKind[kindCstToMem] {
		if rec.addrOp != addrOp || rec.dstAddrReg != addrReg || rec.addrCst != addrCst || rec.cst != cst {
			continue
		}
		if !assertedWrite(a, addrReg) {
			continue
		}
		if !db.passes(rec, c) {
			continue
		}
		out = append(out, rec)
		if len(out) >= n {
			break
		}
	}
	return collect(out, n), nil
}

func (db *DB) FindRegBinopCstToMem(addrOp gadget.Binop, addrReg int, addrCst int64, op gadget.Binop, srcReg int, cst int64, c *constraint.Constraint, a *constraint.Assertion, n int) ([]gadget.ID, error) {
	var out []*gadgetRecord
	for _, rec := range db.byKind[kindRegBinopCstToMem] {
		if rec.addrOp != addrOp || rec.dstAddrReg != addrReg || rec.addrCst != addrCst || rec.op != op || rec.srcReg != srcReg || rec.cst != cst {
			continue
		}
		if !assertedWrite(a, addrReg) {
			continue
		}
		if !db.passes(rec, c) {
			continue
		}
		out = append(out, rec)
		if len(out) >= n {
			break
		}
	}
	return collect(out, n), nil
}

// FindMemBinopCstToMem is mem-to-mem moves: two indirections in one
// gadget instruction are rare enough that this scanner's single-effect
// window classifier never produces one. The method still exists to
// satisfy gadget.Database; it always reports no match.
func (db *DB) FindMemBinopCstToMem(dstAddrOp gadget.Binop, dstAddrReg int, dstAddrCst int64, srcAddrOp gadget.Binop, srcAddrReg int, srcAddrCst, cst int64, c *constraint.Constraint, a *constraint.Assertion, n int) ([]gadget.ID, error) {
	return nil, nil
}
