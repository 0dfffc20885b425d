package engine_test

import (
	"testing"

	"github.com/subfortress/ropforge/internal/arch"
	"github.com/subfortress/ropforge/internal/engine"
	"github.com/subfortress/ropforge/internal/gadget"
	"github.com/subfortress/ropforge/internal/gadgetdb"
)

func TestSearchFindsADirectConstantAssignment(t *testing.T) {
	a := arch.I386()
	// mov eax, 0x41414141 ; ret
	code := []byte{0xB8, 0x41, 0x41, 0x41, 0x41, 0xC3}
	db, err := gadgetdb.Scan(code, 0x1000, a)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	eng := engine.New(a, db)
	result := eng.Search(gadget.Reg(arch.EAX), gadget.Cst(0x41414141), engine.Params{
		Lmax:     4,
		MaxDepth: 4,
	})

	if !result.Found {
		t.Fatalf("expected a chain, last failure: %s", result.LastFail)
	}
	if result.Chain.Len() != 1 {
		t.Errorf("chain length = %d, want 1 (a single satisfying gadget)", result.Chain.Len())
	}
	ids := result.Chain.GadgetIDs()
	g, err := db.Get(ids[0])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if g.Address != 0x1000 {
		t.Errorf("gadget address = 0x%x, want 0x1000", g.Address)
	}
}

func TestSearchFailsWithoutAMatchingGadget(t *testing.T) {
	a := arch.I386()
	code := []byte{0xC3} // bare ret, no constant-loading gadget at all
	db, err := gadgetdb.Scan(code, 0x1000, a)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	eng := engine.New(a, db)
	result := eng.Search(gadget.Reg(arch.EAX), gadget.Cst(0x41414141), engine.Params{
		Lmax:     4,
		MaxDepth: 4,
	})

	if result.Found {
		t.Fatal("expected no chain to be found")
	}
}

func TestSearchShortestReturnsTheSingleGadgetChain(t *testing.T) {
	a := arch.I386()
	// Direct: mov eax, 0x41414141 ; ret  (at 0x1000, one gadget)
	// Indirect padding to reach it isn't offered here; this just
	// confirms the shortest-chain driver returns the single-gadget
	// solution within its budget rather than erroring out.
	code := []byte{0xB8, 0x41, 0x41, 0x41, 0x41, 0xC3}
	db, err := gadgetdb.Scan(code, 0x1000, a)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	eng := engine.New(a, db)
	result := eng.Search(gadget.Reg(arch.EAX), gadget.Cst(0x41414141), engine.Params{
		Lmax:     4,
		MaxDepth: 4,
		Shortest: true,
	})

	if !result.Found {
		t.Fatalf("expected a chain, last failure: %s", result.LastFail)
	}
	if result.Chain.Len() != 1 {
		t.Errorf("chain length = %d, want 1", result.Chain.Len())
	}
}

func TestSearchHonorsKeepRegsAgainstASideEffect(t *testing.T) {
	a := arch.I386()
	// pop eax ; pop ebx ; ret -- satisfies "eax <- [esp+0]" but clobbers
	// ebx as a side effect along the way.
	code := []byte{0x58, 0x5B, 0xC3}
	db, err := gadgetdb.Scan(code, 0x1000, a)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	eng := engine.New(a, db)
	result := eng.Search(gadget.Reg(arch.EAX), gadget.MemBinopCst(arch.ESP, gadget.ADD, 0, 0), engine.Params{
		Lmax:     4,
		MaxDepth: 4,
		KeepRegs: map[int]bool{arch.EBX: true},
	})

	if result.Found {
		t.Fatal("expected no chain: the only candidate gadget clobbers a kept register")
	}
}

func TestSearchRespectsLmax(t *testing.T) {
	a := arch.I386()
	code := []byte{0xB8, 0x41, 0x41, 0x41, 0x41, 0xC3}
	db, err := gadgetdb.Scan(code, 0x1000, a)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	eng := engine.New(a, db)
	result := eng.Search(gadget.Reg(arch.EAX), gadget.Cst(0x41414141), engine.Params{
		Lmax:     0,
		MaxDepth: 4,
	})

	if result.Found {
		t.Fatal("expected no chain with Lmax exhausted before any gadget could be placed")
	}
}
