package engine

import (
	"github.com/subfortress/ropforge/internal/gadget"
	"github.com/subfortress/ropforge/internal/record"
	"github.com/subfortress/ropforge/internal/ropchain"
)

// search is the recursive entry every strategy calls on sub-queries
// (spec.md §4.2, the "search_first_hit" half — the shortest-chain
// binary search lives one layer up in searchShortest and drives this
// function repeatedly rather than threading a "shortest" flag through
// every recursive call).
//
// Contract: returns a chain of length <= env.Lmax at the time of the
// call, or nil with env.LastFail/env.FailRecord describing why.
func search(env *SearchEnvironment, dest gadget.DestArg, assign gadget.AssignArg) *ropchain.ROPChain {
	if env.Depth >= env.MaxDepth {
		return nil
	}
	restoreDepth := env.enterDepth()
	defer restoreDepth()

	if env.Lmax <= 0 {
		env.fail(record.FailLMax)
		return nil
	}

	if ch := basicDBLookup(env, dest, assign); ch != nil {
		return ch
	}
	return chainDispatch(env, dest, assign)
}

// searchShortest implements spec.md §4.2's binary search over lmax:
// narrow [lmin, lmax] until they coincide, keeping the best chain found
// so far. initialLmax seeds the upper bound.
func searchShortest(env *SearchEnvironment, dest gadget.DestArg, assign gadget.AssignArg, initialLmax int) *ropchain.ROPChain {
	lmin, lmax := 1, initialLmax
	var best *ropchain.ROPChain

	for lmin < lmax {
		lmoy := (lmin + lmax + 1) / 2
		env.Lmax = lmoy
		env.Depth = 0
		ch := search(env, dest, assign)
		if ch != nil {
			best = ch
			lmax = ch.Len() - 1
			env.Sink.Step(lmoy, ch.Len())
		} else {
			lmin = lmoy
			env.Sink.Step(lmoy, bestLen(best))
		}
	}

	if best != nil {
		return best
	}
	// The loop never tried lmin itself when it started above it (e.g.
	// initialLmax==1); make sure that length is covered.
	env.Lmax = lmax
	env.Depth = 0
	ch := search(env, dest, assign)
	if ch != nil {
		env.Sink.Step(lmax, ch.Len())
	} else {
		env.Sink.Step(lmax, 0)
	}
	return ch
}

func bestLen(ch *ropchain.ROPChain) int {
	if ch == nil {
		return 0
	}
	return ch.Len()
}
