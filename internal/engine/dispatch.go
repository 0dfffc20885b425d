package engine

import (
	"github.com/subfortress/ropforge/internal/gadget"
	"github.com/subfortress/ropforge/internal/ropchain"
)

type strategyFn func(*SearchEnvironment, gadget.DestArg, gadget.AssignArg) *ropchain.ROPChain

// chainDispatch is C6: pick the ordered list of strategies to try for a
// (dest-kind, assign-kind) pair, per spec.md §4.4, and run them in
// order until one succeeds.
func chainDispatch(env *SearchEnvironment, dest gadget.DestArg, assign gadget.AssignArg) *ropchain.ROPChain {
	var order []strategyFn

	switch {
	case dest.Kind == gadget.DestReg && assign.Kind == gadget.AssignCst:
		order = []strategyFn{chainAdjustRet, chainPopConstant, chainAnyRegTransitivity}
	case dest.Kind == gadget.DestReg && assign.Kind == gadget.AssignRegBinopCst:
		order = []strategyFn{chainAdjustRet, chainRegTransitivity}
	case dest.Kind == gadget.DestReg && (assign.Kind == gadget.AssignMemBinopCst || assign.Kind == gadget.AssignCstMemBinopCst):
		order = []strategyFn{chainAdjustRet, chainAnyRegTransitivity}
	default:
		// DST_MEM (or DST_CSTMEM) with any assign kind, and anything else
		// not named explicitly in spec.md §4.4, falls back to the same
		// general-purpose pair.
		order = []strategyFn{chainAdjustRet, chainAnyRegTransitivity}
	}

	for _, strat := range order {
		if ch := strat(env, dest, assign); ch != nil {
			return ch
		}
	}
	return nil
}
