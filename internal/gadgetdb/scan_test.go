package gadgetdb

import (
	"testing"

	"github.com/subfortress/ropforge/internal/arch"
	"github.com/subfortress/ropforge/internal/constraint"
	"github.com/subfortress/ropforge/internal/gadget"
)

func noConstraint() (*constraint.Constraint, *constraint.Assertion) {
	c := constraint.New(0)
	c.Add(constraint.NewReturn(true, true, true), true)
	return c, constraint.NewAssertion()
}

func TestScanFindsPlainRet(t *testing.T) {
	code := []byte{0xC3} // ret
	db, err := Scan(code, 0x1000, arch.I386())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if db.Count() == 0 {
		t.Fatal("expected at least one gadget (bare ret)")
	}
}

func TestScanFindsMovImmToReg(t *testing.T) {
	// mov eax, 0x41414141 ; ret
	code := []byte{0xB8, 0x41, 0x41, 0x41, 0x41, 0xC3}
	a := arch.I386()
	db, err := Scan(code, 0x2000, a)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	c, as := noConstraint()
	ids, err := db.FindCstToReg(arch.EAX, 0x41414141, c, as, 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 match, got %d", len(ids))
	}
	g, err := db.Get(ids[0])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if g.Address != 0x2000 {
		t.Errorf("address = 0x%x, want 0x2000", g.Address)
	}
	if g.SpInc != 4 {
		t.Errorf("sp_inc = %d, want 4 (one ret)", g.SpInc)
	}
}

func TestFindCstToRegNeverMatchesAWrongConstant(t *testing.T) {
	// mov eax, 0x41414141 ; ret -- must not satisfy a query for a
	// different literal constant; the gadget's own bytes don't encode it.
	code := []byte{0xB8, 0x41, 0x41, 0x41, 0x41, 0xC3}
	a := arch.I386()
	db, _ := Scan(code, 0x2000, a)

	c, as := noConstraint()
	ids, err := db.FindCstToReg(arch.EAX, 0x42424242, c, as, 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no match for a constant the gadget doesn't encode, got %d", len(ids))
	}
}

func TestScanFindsPopChainAsMemBinopCstToReg(t *testing.T) {
	// pop eax ; pop ebx ; ret
	code := []byte{0x58, 0x5B, 0xC3}
	a := arch.I386()
	db, err := Scan(code, 0x3000, a)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	c, as := noConstraint()
	// First popped register reads from [esp+0].
	ids, err := db.FindMemBinopCstToReg(arch.EAX, gadget.ADD, arch.ESP, 0, 0, c, as, 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(ids) == 0 {
		t.Fatal("expected the two-pop window to answer a pop-into-eax query")
	}
}

func TestScanFindsXorSelfAsZeroConstant(t *testing.T) {
	// xor ecx, ecx ; ret
	code := []byte{0x31, 0xC9, 0xC3}
	a := arch.I386()
	db, _ := Scan(code, 0x4000, a)

	c, as := noConstraint()
	ids, err := db.FindCstToReg(arch.ECX, 0, c, as, 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 match, got %d", len(ids))
	}
}

func TestKeepRegsExcludesGadgetsWithASideEffectOnAProtectedRegister(t *testing.T) {
	// pop eax ; pop ebx ; ret -- queried as a pop-into-eax gadget, this
	// clobbers ebx as a side effect. A gadget's own destination register
	// is never itself a "side effect" (that's the point of using it),
	// but ebx is, and KeepRegs(ebx) must reject this window.
	code := []byte{0x58, 0x5B, 0xC3}
	a := arch.I386()
	db, _ := Scan(code, 0x3000, a)

	c := constraint.New(0)
	c.Add(constraint.NewReturn(true, true, true), true)
	c.Add(constraint.NewKeepRegs(arch.EBX), true)
	as := constraint.NewAssertion()

	ids, err := db.FindMemBinopCstToReg(arch.EAX, gadget.ADD, arch.ESP, 0, 0, c, as, 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected KeepRegs(ebx) to exclude a gadget clobbering ebx as a side effect, got %d matches", len(ids))
	}
}

func TestFindMemBinopCstToMemAlwaysEmpty(t *testing.T) {
	code := []byte{0xC3}
	db, _ := Scan(code, 0, arch.I386())
	c, as := noConstraint()
	ids, err := db.FindMemBinopCstToMem(gadget.ADD, arch.EAX, 0, gadget.ADD, arch.EBX, 0, 0, c, as, 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if ids != nil {
		t.Fatalf("expected nil, got %v", ids)
	}
}
