package engine

import (
	"errors"

	"github.com/subfortress/ropforge/internal/constraint"
	"github.com/subfortress/ropforge/internal/gadget"
	"github.com/subfortress/ropforge/internal/record"
	"github.com/subfortress/ropforge/internal/ropchain"
)

// basicDBLookup is the leaf strategy C7: a single gadget satisfying the
// query directly, padded out to consume exactly one stack slot per
// gadget in the chain. Unlike search(), it is also called directly by
// chain_pop_constant with no_padding=true, so it does its own
// depth-independent lmax check rather than relying on search()'s.
func basicDBLookup(env *SearchEnvironment, dest gadget.DestArg, assign gadget.AssignArg) *ropchain.ROPChain {
	if env.Lmax <= 0 {
		env.fail(record.FailLMax)
		return nil
	}

	c := env.Constraint.Copy()
	c.Add(constraint.NewMaxSpInc(int64(env.Lmax)*int64(env.Arch.WordBytes)), true)

	// Writing the instruction pointer ends the chain here: the "must
	// continue via ret" requirement no longer applies.
	if dest.Kind == gadget.DestReg && dest.Reg == env.Arch.IP {
		c.Update(constraint.NewReturn(true, true, true))
	}

	ids, err := gadget.Dispatch(env.DB, dest, assign, c, env.Assertion, 1)
	if err != nil {
		if errors.Is(err, gadget.ErrUnsupportedAssign) {
			env.fail(record.FailOther)
		} else {
			env.fail(record.FailNoGadget)
		}
		return nil
	}
	if len(ids) == 0 {
		env.fail(record.FailNoGadget)
		return nil
	}

	g, err := env.DB.Get(ids[0])
	if err != nil || !g.KnownSpInc {
		env.fail(record.FailNoGadget)
		return nil
	}

	ch := ropchain.New()
	ch.AddGadget(g.ID)

	if env.NoPadding {
		return ch
	}

	words := g.SpInc/int64(env.Arch.WordBytes) - 1
	if words <= 0 {
		return ch
	}
	ok, value := env.Constraint.ValidPadding(env.Arch.WordBytes)
	if !ok {
		env.fail(record.FailNoValidPadding)
		return nil
	}
	ch.AddPadding(value, int(words))
	return ch
}
