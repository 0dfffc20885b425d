package engine

import (
	"github.com/google/uuid"

	"github.com/subfortress/ropforge/internal/arch"
	"github.com/subfortress/ropforge/internal/constraint"
	"github.com/subfortress/ropforge/internal/gadget"
	"github.com/subfortress/ropforge/internal/logs"
	"github.com/subfortress/ropforge/internal/record"
	"github.com/subfortress/ropforge/internal/ropchain"
	"github.com/subfortress/ropforge/internal/trace"
)

var log = logs.NamedLogger("engine", "search")

// defaultMaxDepth bounds recursion when Params.MaxDepth is left zero.
// The source has no equivalent hard default (callers always set one);
// this is picked generously relative to the default lmax guard in §3.
const defaultMaxDepth = 8

// Params is the top-level search request (spec.md §4.1).
type Params struct {
	KeepRegs map[int]bool
	BadBytes map[byte]bool
	Lmax     int
	MaxDepth int
	Shortest bool

	// Sink receives one report per shortest-chain binary search trial.
	// Left nil, the search reports to trace.Discard{}.
	Sink trace.ProgressSink
}

// Result is the top-level search outcome (spec.md §6,
// SearchResultsBinding).
type Result struct {
	Found      bool
	Chain      *ropchain.ROPChain
	FailRecord *record.FailRecord
	LastFail   record.FailType
}

// NewResultChain builds a successful Result around ch.
func NewResultChain(ch *ropchain.ROPChain) Result {
	return Result{Found: true, Chain: ch}
}

// NewResultFail builds a failed Result, carrying the diagnostic records
// accumulated over the search that came up empty.
func NewResultFail(failRecord *record.FailRecord, lastFail record.FailType) Result {
	return Result{Found: false, FailRecord: failRecord, LastFail: lastFail}
}

// Engine owns the architecture descriptor, gadget database, and the
// process-lifetime RegTransitivityRecord (C3) shared across every
// search it runs.
type Engine struct {
	arch         *arch.Architecture
	db           gadget.Database
	transitivity *record.RegTransitivityRecord
}

// New builds an engine over a gadget.Database for the given
// architecture, with a fresh, empty transitivity cache.
func New(a *arch.Architecture, db gadget.Database) *Engine {
	return &Engine{arch: a, db: db, transitivity: record.NewRegTransitivityRecord()}
}

// ResetTransitivityCache drops every learned infeasibility entry. This
// is the explicit, never-automatic reset hook spec.md §9 reserves for
// "starting over" (e.g. the database changed underneath the engine);
// ordinary searches never call it themselves.
func (e *Engine) ResetTransitivityCache() {
	e.transitivity = record.NewRegTransitivityRecord()
}

// Search runs the top-level entry point (spec.md §4.1): build the
// constraint/assertion stack from params, dispatch to the bounded or
// binary-search driver, and return a Result.
func (e *Engine) Search(dest gadget.DestArg, assign gadget.AssignArg, params Params) Result {
	runID := uuid.New().String()
	l := log.WithField("run", runID)

	c := constraint.New(0)
	if len(params.KeepRegs) > 0 {
		keep := make([]int, 0, len(params.KeepRegs))
		for r, ok := range params.KeepRegs {
			if ok {
				keep = append(keep, r)
			}
		}
		c.Add(constraint.NewKeepRegs(keep...), true)
	}
	if len(params.BadBytes) > 0 {
		bad := make([]byte, 0, len(params.BadBytes))
		for b, ok := range params.BadBytes {
			if ok {
				bad = append(bad, b)
			}
		}
		c.Add(constraint.NewBadBytes(bad...), true)
	}
	c.Add(constraint.NewReturn(true, false, false), true)

	a := constraint.NewAssertion()
	a.Add(constraint.NewValidWrite(e.arch.SP), true)
	if dest.Kind == gadget.DestMem {
		a.Add(constraint.NewValidWrite(dest.AddrReg), true)
	}
	if assign.Kind == gadget.AssignMemBinopCst {
		a.Add(constraint.NewValidRead(assign.AddrReg), true)
	}

	maxDepth := params.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}

	env := NewEnvironment(e.arch, e.db, e.transitivity, params.Lmax, maxDepth)
	env.Constraint = c
	env.Assertion = a
	env.Sink = params.Sink
	if env.Sink == nil {
		env.Sink = trace.Discard{}
	}

	l.WithFields(map[string]interface{}{
		"lmax":     params.Lmax,
		"shortest": params.Shortest,
	}).Debug("search start")

	var ch *ropchain.ROPChain
	if params.Shortest {
		ch = searchShortest(env, dest, assign, params.Lmax)
	} else {
		ch = search(env, dest, assign)
	}

	if ch == nil {
		l.WithField("last_fail", env.LastFail).Debug("search failed")
		return NewResultFail(env.FailRecord, env.LastFail)
	}
	l.WithField("len", ch.Len()).Debug("search succeeded")
	return NewResultChain(ch)
}
