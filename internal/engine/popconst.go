package engine

import (
	"github.com/subfortress/ropforge/internal/constraint"
	"github.com/subfortress/ropforge/internal/gadget"
	"github.com/subfortress/ropforge/internal/record"
	"github.com/subfortress/ropforge/internal/ropchain"
)

// chainPopConstant is C10: load assign.Cst into dest.Reg by pivoting
// through a gadget of the form `dest_reg <- mem[sp+offset] + 0`, with
// the constant itself placed on the stack as padding (spec.md §4.7).
func chainPopConstant(env *SearchEnvironment, dest gadget.DestArg, assign gadget.AssignArg) *ropchain.ROPChain {
	if !env.Constraint.VerifyAddress(uint64(assign.Cst), env.Arch.WordBytes) {
		env.fail(record.FailOther)
		return nil
	}

	restoreHist := env.pushHistory(StrategyPopConstant)
	defer restoreHist()

	word := int64(env.Arch.WordBytes)
	prevLmax := int64(env.Lmax)
	slotWords := int64(2)
	if dest.Kind == gadget.DestReg && dest.Reg == env.Arch.IP {
		slotWords = 1
	}

	for offset := int64(0); offset < prevLmax*word; offset += word {
		c := env.Constraint.Copy()
		c.Add(constraint.NewMinSpInc(offset+slotWords*word), true)
		c.Add(constraint.NewMaxSpInc(prevLmax*word), true)

		restoreConstraint := env.withConstraint(c)
		restoreNoPadding := env.withNoPadding(true)
		ch := basicDBLookup(env, dest, gadget.MemBinopCst(env.Arch.SP, gadget.ADD, offset, 0))
		restoreNoPadding()
		restoreConstraint()

		if ch == nil {
			continue
		}

		g, err := env.DB.Get(ch.GadgetIDs()[0])
		if err != nil || !g.KnownSpInc {
			continue
		}

		ok, padValue := env.Constraint.ValidPadding(env.Arch.WordBytes)
		if !ok {
			env.fail(record.FailNoValidPadding)
			return nil
		}

		result := ropchain.New()
		result.AddGadget(g.ID)
		if offset > 0 {
			result.AddPadding(padValue, int(offset/word))
		}
		result.AddPadding(uint64(assign.Cst), 1, env.commentFor(StrategyPopConstant))

		trailing := (g.SpInc - offset - 2*word) / word
		if trailing > 0 {
			result.AddPadding(padValue, int(trailing))
		}
		return result
	}

	env.fail(record.FailNoGadget)
	return nil
}
