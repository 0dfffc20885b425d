package engine

import (
	"fmt"

	"github.com/subfortress/ropforge/internal/constraint"
	"github.com/subfortress/ropforge/internal/gadget"
	"github.com/subfortress/ropforge/internal/record"
	"github.com/subfortress/ropforge/internal/ropchain"
)

// Bounds on how many DB candidates and load addresses chain_adjust_ret
// explores per call, matching ChainingEngine.cpp's
// ADJUST_RET_MAX_POSSIBLE_GADGETS / ADJUST_RET_MAX_ADJUST_GADGETS /
// ADJUST_RET_MAX_ADDRESS_TRY.
const (
	adjustRetMaxPossibleGadgets = 3
	adjustRetMaxAdjustGadgets   = 3
	adjustRetMaxAddressTry      = 3
)

// candidateGadgets queries the DB for up to n gadgets matching
// (dest, assign) under c, resolving each ID to its metadata.
func candidateGadgets(env *SearchEnvironment, dest gadget.DestArg, assign gadget.AssignArg, c *constraint.Constraint, n int) []*gadget.Gadget {
	ids, err := gadget.Dispatch(env.DB, dest, assign, c, env.Assertion, n)
	if err != nil || len(ids) == 0 {
		return nil
	}
	out := make([]*gadget.Gadget, 0, len(ids))
	for _, id := range ids {
		if g, err := env.DB.Get(id); err == nil {
			out = append(out, g)
		}
	}
	return out
}

// chainAdjustRet is C11: use a gadget that ends in JMP/CALL instead of
// RET, by chaining in a value for its pivot register first (spec.md
// §4.8).
func chainAdjustRet(env *SearchEnvironment, dest gadget.DestArg, assign gadget.AssignArg) *ropchain.ROPChain {
	if env.countStrategy(StrategyAdjustRet) > 2 {
		return nil
	}
	if dest.Kind == gadget.DestReg && (dest.Reg == env.Arch.IP || dest.Reg == env.Arch.SP) {
		return nil
	}

	restoreHist := env.pushHistory(StrategyAdjustRet)
	defer restoreHist()

	prevLmax := int64(env.Lmax)
	word := int64(env.Arch.WordBytes)

	jmpCallOnly := env.Constraint.Copy()
	jmpCallOnly.Update(constraint.NewReturn(false, true, true))

	candidates := candidateGadgets(env, dest, assign, jmpCallOnly, adjustRetMaxPossibleGadgets)

	for _, g := range candidates {
		if env.AdjustRetRecord.IsImpossible(g.RetReg) {
			continue
		}
		if g.ModifiedReg(g.RetReg) || !g.KnownSpInc || env.Constraint.KeepReg(g.RetReg) {
			continue
		}

		var offset, paddingLen int64
		if g.SpInc < 0 {
			offset = -g.SpInc
			paddingLen = 0
		} else {
			paddingLen = g.SpInc / word
			if g.RetType == gadget.CALL && env.Arch.CallPushesReturn {
				offset = word
			} else {
				offset = 0
			}
		}

		if paddingLen+1 >= prevLmax {
			continue
		}

		retOnly := env.Constraint.Copy()
		retOnly.Update(constraint.NewReturn(true, false, false))
		if dest.Kind == gadget.DestReg {
			retOnly.Add(constraint.NewKeepRegs(dest.Reg), true)
		}

		adjustCandidates := candidateGadgets(
			env, gadget.Reg(env.Arch.IP), gadget.MemBinopCst(env.Arch.SP, gadget.ADD, offset, 0),
			retOnly, adjustRetMaxAdjustGadgets,
		)

		if found := tryAdjustGadgets(env, g, adjustCandidates, assign, prevLmax, paddingLen); found != nil {
			return found
		}

		if len(adjustCandidates) > 0 {
			env.AdjustRetRecord.AddFail(g.RetReg)
		}
	}

	env.fail(record.FailNoGadget)
	return nil
}

// tryAdjustGadgets searches, for each adjust gadget and each of its
// known load addresses, for a sub-chain setting target's pivot
// register to that address; on success it assembles the full chain
// (pivot setup, then target, then trailing padding).
func tryAdjustGadgets(env *SearchEnvironment, target *gadget.Gadget, adjustCandidates []*gadget.Gadget, assign gadget.AssignArg, prevLmax, paddingLen int64) *ropchain.ROPChain {
	for _, a := range adjustCandidates {
		addrs := a.Addresses
		if len(addrs) > adjustRetMaxAddressTry {
			addrs = addrs[:adjustRetMaxAddressTry]
		}
		for _, addr := range addrs {
			restoreComment := env.setComment(StrategyPopConstant, fmt.Sprintf("Address of %s", a.AsmStr))

			var restoreKeep func()
			if keep := assignSideRegs(assign); len(keep) > 0 {
				kc := env.Constraint.Copy()
				kc.Add(constraint.NewKeepRegs(keep...), true)
				restoreKeep = env.withConstraint(kc)
			}

			restoreLmax := env.withLmax(int(prevLmax - paddingLen - 1))
			ret := search(env, gadget.Reg(target.RetReg), gadget.Cst(int64(addr)))
			restoreLmax()
			if restoreKeep != nil {
				restoreKeep()
			}
			restoreComment()

			if ret == nil {
				continue
			}

			result := ropchain.New()
			result.CopyFrom(ret)
			result.AddGadget(target.ID)
			if paddingLen > 0 {
				ok, padValue := env.Constraint.ValidPadding(env.Arch.WordBytes)
				if !ok {
					env.fail(record.FailNoValidPadding)
					return nil
				}
				result.AddPadding(padValue, int(paddingLen))
			}
			return result
		}
	}
	return nil
}

// assignSideRegs returns the registers the assignment side of a query
// touches, so the pivot-address search doesn't clobber the value about
// to be assigned.
func assignSideRegs(assign gadget.AssignArg) []int {
	var regs []int
	switch assign.Kind {
	case gadget.AssignRegBinopCst:
		regs = append(regs, assign.Reg)
	case gadget.AssignMemBinopCst:
		if assign.AddrReg != gadget.NoReg {
			regs = append(regs, assign.AddrReg)
		}
	}
	return regs
}
