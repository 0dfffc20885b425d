// Package engine implements the recursive chaining engine: the
// strategy-driven search that decomposes a register/memory assignment
// query into a sequence of gadget lookups and sub-queries.
//
// Grounded on ChainingEngine.cpp in full. The source mutates one
// SearchEnvironment object in place across recursion with hand-written
// save/restore pairs around every strategy call; here that discipline
// is carried over as explicit push/pop helper methods returning a
// restore closure, invoked with defer at each strategy's entry so
// restoration happens on every exit path (including panics) without
// relying on a human to remember the matching pop.
package engine

import (
	"github.com/subfortress/ropforge/internal/arch"
	"github.com/subfortress/ropforge/internal/constraint"
	"github.com/subfortress/ropforge/internal/gadget"
	"github.com/subfortress/ropforge/internal/record"
	"github.com/subfortress/ropforge/internal/trace"
)

// Strategy tags which chaining strategy is active, for the call-history
// guards described throughout spec component C5/C8-C11.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyBasic
	StrategyRegTransitivity
	StrategyAnyRegTransitivity
	StrategyPopConstant
	StrategyAdjustRet
)

func (s Strategy) String() string {
	switch s {
	case StrategyBasic:
		return "basic_db_lookup"
	case StrategyRegTransitivity:
		return "reg_transitivity"
	case StrategyAnyRegTransitivity:
		return "any_reg_transitivity"
	case StrategyPopConstant:
		return "pop_constant"
	case StrategyAdjustRet:
		return "adjust_ret"
	default:
		return "none"
	}
}

// SearchEnvironment is the mutable search context threaded through one
// top-level search: constraint/assertion stack, recursion depth and
// length budget, call history, and the three diagnostic/memoization
// records (C2-C4).
type SearchEnvironment struct {
	Arch *arch.Architecture
	DB   gadget.Database

	Constraint *constraint.Constraint
	Assertion  *constraint.Assertion

	Lmax     int
	MaxDepth int
	Depth    int

	NoPadding bool

	callsCount   map[Strategy]int
	callsHistory []Strategy

	regTransitivityUnusable map[int]bool

	// RegTransitivityRecord is borrowed and shared across every search
	// this engine runs (process-lifetime learned-failure cache, C3).
	RegTransitivityRecord *record.RegTransitivityRecord
	// AdjustRetRecord is owned by this environment alone: fresh per
	// top-level search, never shared, never reset mid-search.
	AdjustRetRecord *record.AdjustRetRecord

	FailRecord *record.FailRecord
	LastFail   record.FailType

	comment map[Strategy]string

	// Sink reports each shortest-chain binary search trial. Always
	// non-nil; NewEnvironment defaults it to trace.Discard{}.
	Sink trace.ProgressSink
}

// NewEnvironment builds a fresh environment for one top-level search.
// transitivity is the shared, caller-owned C3 cache; everything else is
// private to this environment.
func NewEnvironment(a *arch.Architecture, db gadget.Database, transitivity *record.RegTransitivityRecord, lmax, maxDepth int) *SearchEnvironment {
	return &SearchEnvironment{
		Arch:                    a,
		DB:                      db,
		Lmax:                    lmax,
		MaxDepth:                maxDepth,
		callsCount:              map[Strategy]int{},
		regTransitivityUnusable: map[int]bool{},
		RegTransitivityRecord:   transitivity,
		AdjustRetRecord:         record.NewAdjustRetRecord(),
		FailRecord:              record.NewFailRecord(),
		LastFail:                record.FailNone,
		comment:                 map[Strategy]string{},
		Sink:                    trace.Discard{},
	}
}

// pushHistory records strategy s as active, returning a restore closure
// that must run on every exit path from that strategy.
func (e *SearchEnvironment) pushHistory(s Strategy) func() {
	e.callsHistory = append(e.callsHistory, s)
	e.callsCount[s]++
	return func() {
		e.callsHistory = e.callsHistory[:len(e.callsHistory)-1]
		e.callsCount[s]--
	}
}

// lastTwoAre reports whether the two most recent history entries are
// both s (used by chain_reg_transitivity's runaway-recursion guard).
func (e *SearchEnvironment) lastTwoAre(s Strategy) bool {
	n := len(e.callsHistory)
	return n >= 2 && e.callsHistory[n-1] == s && e.callsHistory[n-2] == s
}

// lastIs reports whether the most recent history entry is s (used by
// chain_any_reg_transitivity's no-consecutive-call guard).
func (e *SearchEnvironment) lastIs(s Strategy) bool {
	n := len(e.callsHistory)
	return n > 0 && e.callsHistory[n-1] == s
}

// countStrategy counts total occurrences of s anywhere in the call
// history (used by chain_adjust_ret's "at most 2 prior entries" guard).
func (e *SearchEnvironment) countStrategy(s Strategy) int {
	c := 0
	for _, h := range e.callsHistory {
		if h == s {
			c++
		}
	}
	return c
}

// withConstraint swaps in c for the duration of the caller's scope.
func (e *SearchEnvironment) withConstraint(c *constraint.Constraint) func() {
	old := e.Constraint
	e.Constraint = c
	return func() { e.Constraint = old }
}

// withLmax swaps in a new length budget.
func (e *SearchEnvironment) withLmax(n int) func() {
	old := e.Lmax
	e.Lmax = n
	return func() { e.Lmax = old }
}

// withNoPadding swaps the no-padding flag.
func (e *SearchEnvironment) withNoPadding(v bool) func() {
	old := e.NoPadding
	e.NoPadding = v
	return func() { e.NoPadding = old }
}

// resetUnusable snapshots and clears the transitivity-unusable set,
// for when a new transitivity chain begins (the set is private to one
// chain of reg_transitivity calls, per spec.md §4.5).
func (e *SearchEnvironment) resetUnusable() func() {
	old := e.regTransitivityUnusable
	e.regTransitivityUnusable = map[int]bool{}
	return func() { e.regTransitivityUnusable = old }
}

// addUnusable marks reg unusable as a transitivity intermediary for the
// caller's scope.
func (e *SearchEnvironment) addUnusable(reg int) func() {
	was := e.regTransitivityUnusable[reg]
	e.regTransitivityUnusable[reg] = true
	return func() {
		if !was {
			delete(e.regTransitivityUnusable, reg)
		}
	}
}

func (e *SearchEnvironment) isUnusable(reg int) bool { return e.regTransitivityUnusable[reg] }

// setComment attaches text to the next constant pop_constant pads in,
// for the caller's scope (chain_adjust_ret uses this to label the
// "Address of <gadget>" constant it asks pop_constant to load).
func (e *SearchEnvironment) setComment(s Strategy, text string) func() {
	old, had := e.comment[s]
	e.comment[s] = text
	return func() {
		if had {
			e.comment[s] = old
		} else {
			delete(e.comment, s)
		}
	}
}

func (e *SearchEnvironment) commentFor(s Strategy) string { return e.comment[s] }

// enterDepth increments recursion depth; the restore closure
// decrements it. Called once per search() entry.
func (e *SearchEnvironment) enterDepth() func() {
	e.Depth++
	return func() { e.Depth-- }
}

// fail records the proximate failure cause for this call's exit.
func (e *SearchEnvironment) fail(t record.FailType) {
	e.LastFail = t
	switch t {
	case record.FailLMax:
		e.FailRecord.SetMaxLen(true)
	case record.FailNoValidPadding:
		e.FailRecord.SetNoValidPadding(true)
	}
}
