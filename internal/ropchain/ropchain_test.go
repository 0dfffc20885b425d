package ropchain

import "testing"

func TestAddPaddingLabelsOnlyTheFirstWord(t *testing.T) {
	c := New()
	c.AddPadding(0x41414141, 3, "junk")

	if c.Len() != 3 {
		t.Fatalf("len = %d, want 3", c.Len())
	}
	entries := c.Entries()
	if entries[0].Comment != "junk" {
		t.Errorf("first padding word comment = %q, want %q", entries[0].Comment, "junk")
	}
	for i, e := range entries[1:] {
		if e.Comment != "" {
			t.Errorf("entry %d comment = %q, want empty", i+1, e.Comment)
		}
		if e.Value != 0x41414141 {
			t.Errorf("entry %d value = 0x%x, want 0x41414141", i+1, e.Value)
		}
	}
}

func TestAddChainConcatenatesInOrder(t *testing.T) {
	a := New()
	a.AddGadget(1)
	b := New()
	b.AddGadget(2)
	b.AddGadget(3)

	a.AddChain(b)

	got := a.GadgetIDs()
	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("got %d gadgets, want %d", len(got), len(want))
	}
	for i := range want {
		if int(got[i]) != want[i] {
			t.Errorf("entry %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestAddChainWithNilIsANoOp(t *testing.T) {
	a := New()
	a.AddGadget(1)
	a.AddChain(nil)
	if a.Len() != 1 {
		t.Errorf("len = %d, want 1", a.Len())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	a := New()
	a.AddGadget(1)
	b := a.Clone()
	b.AddGadget(2)

	if a.Len() != 1 {
		t.Errorf("original chain mutated: len = %d, want 1", a.Len())
	}
	if b.Len() != 2 {
		t.Errorf("clone len = %d, want 2", b.Len())
	}
}

func TestCopyFromNilClearsTheChain(t *testing.T) {
	a := New()
	a.AddGadget(1)
	a.CopyFrom(nil)
	if a.Len() != 0 {
		t.Errorf("len = %d, want 0", a.Len())
	}
}
