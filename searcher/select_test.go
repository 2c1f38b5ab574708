package searcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tengen/game"
)

/*
PUCT selection:
- all-unvisited children score identically -> first child in link order
- invalid children are never selected, whatever their statistics
- a child mid-expansion by another worker is penalized below any
  plausible winrate
- visited children compete on eval + exploration term
*/

// expandedNode builds a node with linked children and a fixed net eval,
// bypassing the evaluator.
func expandedNode(netEval float32, priors []policyMove) *Node {
	n := newNode(game.Pass, 1.0)
	if !n.acquireExpanding() {
		panic("fresh node must be expandable")
	}
	n.netEval = netEval
	n.linkChildren(priors, 0)
	n.expandDone()
	return n
}

func TestSelectFirstOnTie(t *testing.T) {
	cfg := DefaultConfig()
	n := expandedNode(0.5, []policyMove{
		{0.25, 10}, {0.25, 20}, {0.25, 30}, {0.25, 40},
	})

	child := n.SelectChild(game.Black, false, &cfg)
	require.NotNil(t, child)
	require.Equal(t, 10, child.Move(), "ties break to the first child in link order")
}

func TestSelectSkipsInvalid(t *testing.T) {
	cfg := DefaultConfig()
	n := expandedNode(0.5, []policyMove{{0.9, 10}, {0.1, 20}})

	n.Children()[0].Inflate().Invalidate()
	for i := 0; i < 10; i++ {
		child := n.SelectChild(game.Black, false, &cfg)
		require.Equal(t, 20, child.Move(), "invalid children are never selected")
	}
}

func TestSelectAvoidsExpandingChild(t *testing.T) {
	cfg := DefaultConfig()
	n := expandedNode(0.5, []policyMove{{0.9, 10}, {0.1, 20}})

	// Another worker is expanding the dominant child.
	busy := n.Children()[0].Inflate()
	require.True(t, busy.acquireExpanding())

	child := n.SelectChild(game.Black, false, &cfg)
	require.Equal(t, 20, child.Move(),
		"descending into an EXPANDING node would spin on its interlock")

	busy.expandCancel()
	child = n.SelectChild(game.Black, false, &cfg)
	require.Equal(t, 10, child.Move())
}

func TestSelectPrefersHigherEval(t *testing.T) {
	cfg := DefaultConfig()
	n := expandedNode(0.5, []policyMove{{0.5, 10}, {0.5, 20}})

	// Equal priors and visits, different outcomes.
	a := n.Children()[0].Inflate()
	b := n.Children()[1].Inflate()
	for i := 0; i < 10; i++ {
		a.Update(0.2) // black does poorly
		b.Update(0.8)
	}

	require.Equal(t, 20, n.SelectChild(game.Black, false, &cfg).Move())
	require.Equal(t, 10, n.SelectChild(game.White, false, &cfg).Move(),
		"winrates flip with the color to move")
}

func TestSelectFPUReduction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FpuReduction = 0.25
	n := expandedNode(0.5, []policyMove{{0.6, 10}, {0.4, 20}})

	// Visit the dominant child with a mediocre result; the unvisited
	// child's first-play urgency is the parent eval minus the reduction,
	// which keeps the visited child preferred despite equal-ish values.
	a := n.Children()[0].Inflate()
	a.Update(0.5)

	child := n.SelectChild(game.Black, false, &cfg)
	require.Equal(t, 10, child.Move())
}
