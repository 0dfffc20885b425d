package record

import (
	"testing"

	"github.com/subfortress/ropforge/internal/constraint"
	"github.com/subfortress/ropforge/internal/gadget"
)

func TestTransitivityRecordIsMonotone(t *testing.T) {
	r := NewRegTransitivityRecord()

	// A failure recorded under a weak (unconstrained) signature must
	// also be reported impossible under any stronger signature implied
	// by it -- if it's impossible with no constraints, it stays
	// impossible once more constraints are added.
	weak := constraint.New(0)
	r.AddFail(0, 1, gadget.ADD, 4, weak)

	strong := constraint.New(0)
	strong.Add(constraint.NewKeepRegs(2), true)

	if !r.IsImpossible(0, 1, gadget.ADD, 4, strong) {
		t.Error("a failure under a weaker signature must generalize to a stronger one")
	}
}

func TestTransitivityRecordDoesNotGeneralizeFromStrongToWeak(t *testing.T) {
	r := NewRegTransitivityRecord()

	strong := constraint.New(0)
	strong.Add(constraint.NewKeepRegs(2), true)
	r.AddFail(0, 1, gadget.ADD, 4, strong)

	weak := constraint.New(0)
	if r.IsImpossible(0, 1, gadget.ADD, 4, weak) {
		t.Error("a failure recorded under a stronger signature must not be assumed impossible under a weaker one")
	}
}

func TestTransitivityRecordIgnoresUnenumeratedConstants(t *testing.T) {
	r := NewRegTransitivityRecord()
	c := constraint.New(0)
	r.AddFail(0, 1, gadget.ADD, 3, c) // 3 is not in addSubBuckets
	if r.IsImpossible(0, 1, gadget.ADD, 3, c) {
		t.Error("a constant outside the fixed enumeration must never be memoized")
	}
}

func TestTransitivityRecordKeysAreIndependent(t *testing.T) {
	r := NewRegTransitivityRecord()
	c := constraint.New(0)
	r.AddFail(0, 1, gadget.ADD, 4, c)
	if r.IsImpossible(0, 1, gadget.SUB, 4, c) {
		t.Error("ADD and SUB failures must not bleed into each other's bucket")
	}
	if r.IsImpossible(2, 1, gadget.ADD, 4, c) {
		t.Error("a different destination register must not share a bucket")
	}
}
