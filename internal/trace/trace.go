// Package trace is the non-interactive replacement for the shortest-chain
// search's ANSI-redraw progress output: a ProgressSink interface the engine's
// binary-search driver reports each trial to, plus a renderer that
// turns the accumulated trials into a tree a human can read after the
// fact instead of a live terminal redraw.
//
// Grounded in shape (not algorithm) on wig.ChainOfThought's running log
// of decisions rendered on demand via GetSummary().
package trace

import (
	"fmt"

	"github.com/xlab/treeprint"
)

// ProgressSink receives one report per searchShortest trial. tried is
// the candidate chain length just attempted; best is the shortest
// length found so far (0 if none yet).
type ProgressSink interface {
	Step(tried, best int)
}

// Discard is a ProgressSink that does nothing; the default when a
// caller doesn't want progress tracking.
type Discard struct{}

func (Discard) Step(tried, best int) {}

// Trail is a ProgressSink that records every trial in order, for
// rendering as a tree once the search completes.
type Trail struct {
	root  string
	steps []step
}

type step struct {
	tried, best int
}

// NewTrail creates a Trail labeled with a short description of the
// query it is tracing (e.g. "rax := 0x41414141").
func NewTrail(label string) *Trail {
	return &Trail{root: label}
}

func (t *Trail) Step(tried, best int) {
	t.steps = append(t.steps, step{tried: tried, best: best})
}

// Render builds a tree summarizing the binary search: one branch per
// trial, noting whether it narrowed the upper or lower bound.
func (t *Trail) Render() string {
	tree := treeprint.NewWithRoot(t.root)
	best := 0
	for i, s := range t.steps {
		if s.best != 0 && (best == 0 || s.best < best) {
			best = s.best
			tree.AddNode(fmt.Sprintf("trial %d: lmax=%d -> found, chain length %d", i+1, s.tried, s.best))
			continue
		}
		tree.AddNode(fmt.Sprintf("trial %d: lmax=%d -> no chain", i+1, s.tried))
	}
	if best != 0 {
		tree.AddNode(fmt.Sprintf("shortest found: %d", best))
	} else {
		tree.AddNode("no chain found within bounds")
	}
	return tree.String()
}
