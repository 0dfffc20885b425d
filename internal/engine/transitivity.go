package engine

import (
	"github.com/subfortress/ropforge/internal/constraint"
	"github.com/subfortress/ropforge/internal/gadget"
	"github.com/subfortress/ropforge/internal/record"
	"github.com/subfortress/ropforge/internal/ropchain"
)

func previousStrategy(env *SearchEnvironment) Strategy {
	if n := len(env.callsHistory); n > 0 {
		return env.callsHistory[n-1]
	}
	return StrategyNone
}

func isForbiddenIntermediary(env *SearchEnvironment, reg int) bool {
	return env.Arch.IsIgnoredReg(reg) || env.isUnusable(reg) || env.Constraint.KeepReg(reg) ||
		reg == env.Arch.SP || reg == env.Arch.IP
}

// chainRegTransitivity is C8: synthesize `dest <- reg op cst` as
// `dest <- inter` followed by `inter <- reg op cst` for some
// intermediate register (spec.md §4.5).
func chainRegTransitivity(env *SearchEnvironment, dest gadget.DestArg, assign gadget.AssignArg) *ropchain.ROPChain {
	destReg := dest.Reg
	srcReg, op, cst := assign.Reg, assign.Op, assign.Cst

	if gadget.IsIdentity(destReg, srcReg, op, cst) {
		return nil
	}
	if env.lastTwoAre(StrategyRegTransitivity) {
		return nil
	}
	if env.Lmax <= 1 {
		env.fail(record.FailLMax)
		return nil
	}

	prev := previousStrategy(env)
	restoreHist := env.pushHistory(StrategyRegTransitivity)
	defer restoreHist()

	if prev != StrategyRegTransitivity {
		restoreUnusable := env.resetUnusable()
		defer restoreUnusable()
	}

	prevLmax := env.Lmax
	selfTrivial := gadget.IsIdentity(srcReg, srcReg, op, cst)

	for _, inter := range env.Arch.Regs() {
		if inter == destReg || isForbiddenIntermediary(env, inter) {
			continue
		}
		if gadget.IsIdentity(inter, srcReg, op, cst) {
			continue
		}
		if env.RegTransitivityRecord.IsImpossible(inter, srcReg, op, cst, env.Constraint) {
			continue
		}
		if env.RegTransitivityRecord.IsImpossible(destReg, inter, gadget.ADD, 0, env.Constraint) {
			continue
		}

		var restoreSelf func()
		if selfTrivial {
			restoreSelf = env.addUnusable(srcReg)
		}
		restoreLmax1 := env.withLmax(prevLmax - 1)
		interToDest := search(env, gadget.Reg(destReg), gadget.RegBinopCst(inter, gadget.ADD, 0))
		restoreLmax1()
		if restoreSelf != nil {
			restoreSelf()
		}
		if interToDest == nil {
			continue
		}

		restoreDestUnusable := env.addUnusable(destReg)
		restoreLmax2 := env.withLmax(prevLmax - interToDest.Len())
		assignToInter := search(env, gadget.Reg(inter), gadget.RegBinopCst(srcReg, op, cst))
		restoreLmax2()
		restoreDestUnusable()
		if assignToInter == nil {
			continue
		}

		result := ropchain.New()
		result.CopyFrom(assignToInter)
		result.AddChain(interToDest)
		return result
	}

	env.RegTransitivityRecord.AddFail(destReg, srcReg, op, cst, env.Constraint)
	env.fail(record.FailNoGadget)
	return nil
}

// chainAnyRegTransitivity is C9: the same shape as C8 but for any
// assign kind, used whenever the destination or assignment doesn't fit
// C8's narrower REG_BINOP_CST-to-REG_BINOP_CST form (spec.md §4.6).
func chainAnyRegTransitivity(env *SearchEnvironment, dest gadget.DestArg, assign gadget.AssignArg) *ropchain.ROPChain {
	if env.lastIs(StrategyAnyRegTransitivity) {
		return nil
	}
	if env.Lmax < 2 {
		env.fail(record.FailLMax)
		return nil
	}

	prev := previousStrategy(env)
	restoreHist := env.pushHistory(StrategyAnyRegTransitivity)
	defer restoreHist()

	if prev != StrategyAnyRegTransitivity {
		restoreUnusable := env.resetUnusable()
		defer restoreUnusable()
	}

	if dest.Kind == gadget.DestMem {
		c := env.Constraint.Copy()
		c.Add(constraint.NewKeepRegs(dest.AddrReg), true)
		restoreConstraint := env.withConstraint(c)
		defer restoreConstraint()
	}

	prevLmax := env.Lmax

	for _, inter := range env.Arch.Regs() {
		if isForbiddenIntermediary(env, inter) {
			continue
		}
		if dest.Kind == gadget.DestReg && inter == dest.Reg {
			continue
		}
		if assign.Kind == gadget.AssignRegBinopCst && gadget.IsIdentity(inter, assign.Reg, assign.Op, assign.Cst) {
			continue
		}

		restoreLmax1 := env.withLmax(prevLmax - 1)
		interToDest := search(env, dest, gadget.RegBinopCst(inter, gadget.ADD, 0))
		restoreLmax1()
		if interToDest == nil {
			continue
		}

		var restoreDestUnusable func()
		if dest.Kind == gadget.DestReg {
			restoreDestUnusable = env.addUnusable(dest.Reg)
		}
		restoreLmax2 := env.withLmax(prevLmax - interToDest.Len())
		assignToInter := search(env, gadget.Reg(inter), assign)
		restoreLmax2()
		if restoreDestUnusable != nil {
			restoreDestUnusable()
		}
		if assignToInter == nil {
			continue
		}

		result := ropchain.New()
		result.CopyFrom(assignToInter)
		result.AddChain(interToDest)
		return result
	}

	env.fail(record.FailNoGadget)
	return nil
}
