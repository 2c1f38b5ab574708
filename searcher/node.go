package searcher

import (
	"math"
	"runtime"
	"sort"
	"sync/atomic"
	"unsafe"

	"tengen/game"
	"tengen/network"
)

// Virtual losses added per node on the way down a descent, removed on
// backup. Steers concurrent workers onto different paths.
const virtualLossCount = 3

// Node status. Invalid marks superko children; pruned nodes are skipped
// by selection but keep their statistics.
const (
	statusInvalid int32 = iota
	statusPruned
	statusActive
)

// Expansion interlock states. The transition INITIAL -> EXPANDING is won
// by exactly one thread, which either publishes EXPANDED or reverts to
// INITIAL on failure.
const (
	expandInitial int32 = iota
	expandExpanding
	expandExpanded
)

// The min-psa-ratio sentinel: 2 means no children linked yet, 0 means the
// full prior tail has been linked.
const (
	psaUnexpanded    = 2.0
	psaFullyExpanded = 0.0
)

type policyMove struct {
	prior float32
	move  int
}

// Node is one position in the tree. All statistics are updated with
// atomics; children is published by the expansion interlock and is
// append-frozen afterwards.
type Node struct {
	move     int
	policy   float32
	staticSP float32

	// Evaluator value for this node, Black-relative, written once under
	// the expansion interlock.
	netEval float32

	visits      atomic.Int32
	virtualLoss atomic.Int32
	blackEvals  atomic.Uint64 // float64 bits, CAS-accumulated
	status      atomic.Int32
	expandState atomic.Int32
	minPSARatio atomic.Uint32 // float32 bits

	children []*Edge
}

// Live inflated-node count across all trees, for the memory governor.
var treeNodes atomic.Int64

var nodeSize = int64(unsafe.Sizeof(Node{})) + 4*int64(unsafe.Sizeof(Edge{}))

// TreeNodes returns the live inflated-node count.
func TreeNodes() int64 {
	return treeNodes.Load()
}

// TreeBytes estimates the tree footprint before overhead.
func TreeBytes() int64 {
	return treeNodes.Load() * nodeSize
}

func newNode(move int, policy float32) *Node {
	n := &Node{move: move, policy: policy}
	n.status.Store(statusActive)
	n.minPSARatio.Store(math.Float32bits(psaUnexpanded))
	treeNodes.Add(1)
	return n
}

func (n *Node) Move() int         { return n.move }
func (n *Node) Policy() float32   { return n.policy }
func (n *Node) StaticSP() float32 { return n.staticSP }
func (n *Node) Visits() int       { return int(n.visits.Load()) }
func (n *Node) FirstVisit() bool  { return n.visits.Load() == 0 }
func (n *Node) Valid() bool       { return n.status.Load() != statusInvalid }
func (n *Node) Active() bool      { return n.status.Load() == statusActive }
func (n *Node) Expanded() bool    { return n.expandState.Load() == expandExpanded }
func (n *Node) expanding() bool   { return n.expandState.Load() == expandExpanding }

func (n *Node) Invalidate() {
	n.status.Store(statusInvalid)
}

// SetActive toggles between active and pruned; invalid nodes stay invalid.
func (n *Node) SetActive(active bool) {
	if !n.Valid() {
		return
	}
	if active {
		n.status.Store(statusActive)
	} else {
		n.status.Store(statusPruned)
	}
}

func (n *Node) minPSA() float32 {
	return math.Float32frombits(n.minPSARatio.Load())
}

// HasChildren is true once any prior tail has been linked.
func (n *Node) HasChildren() bool {
	return n.minPSA() <= 1.0
}

func (n *Node) expandable(minPSARatio float32) bool {
	return minPSARatio < n.minPSA()
}

// Children must only be called after the node is Expanded (or while
// holding the expansion interlock).
func (n *Node) Children() []*Edge {
	return n.children
}

// acquireExpanding is the INITIAL -> EXPANDING compare-and-set.
func (n *Node) acquireExpanding() bool {
	return n.expandState.CompareAndSwap(expandInitial, expandExpanding)
}

func (n *Node) expandDone() {
	if prev := n.expandState.Swap(expandExpanded); prev != expandExpanding {
		panic("expand_done without holding the expansion interlock")
	}
}

func (n *Node) expandCancel() {
	if prev := n.expandState.Swap(expandInitial); prev != expandExpanding {
		panic("expand_cancel without holding the expansion interlock")
	}
}

// waitExpanded spins until a concurrent expansion publishes the children.
func (n *Node) waitExpanded() {
	for n.expandState.Load() != expandExpanded {
		runtime.Gosched()
	}
}

// BlackEvals returns the accumulated Black-relative value sum.
func (n *Node) BlackEvals() float64 {
	return math.Float64frombits(n.blackEvals.Load())
}

// accumulate adds eval with a lock-free double CAS.
func (n *Node) accumulate(eval float64) {
	for {
		old := n.blackEvals.Load()
		next := math.Float64bits(math.Float64frombits(old) + eval)
		if n.blackEvals.CompareAndSwap(old, next) {
			return
		}
	}
}

// Update records one completed backup through this node.
func (n *Node) Update(eval float64) {
	n.visits.Add(1)
	n.accumulate(eval)
}

func (n *Node) addVirtualLoss() {
	n.virtualLoss.Add(virtualLossCount)
}

func (n *Node) undoVirtualLoss() {
	n.virtualLoss.Add(-virtualLossCount)
}

// RawEval is the mean value for color, pretending the node lost
// virtualLoss extra simulations from the mover's perspective.
func (n *Node) RawEval(color game.Color, virtualLoss int) float64 {
	visits := n.Visits() + virtualLoss
	if visits == 0 {
		panic("eval of unvisited node")
	}
	blackEvals := n.BlackEvals()
	if color == game.White {
		blackEvals += float64(virtualLoss)
	}
	eval := blackEvals / float64(visits)
	if color == game.White {
		eval = 1.0 - eval
	}
	return eval
}

// Eval is RawEval with the node's current virtual losses applied.
func (n *Node) Eval(color game.Color) float64 {
	return n.RawEval(color, int(n.virtualLoss.Load()))
}

// NetEval is the evaluator's cached value for color.
func (n *Node) NetEval(color game.Color) float64 {
	if color == game.White {
		return 1.0 - float64(n.netEval)
	}
	return float64(n.netEval)
}

// CreateChildren expands the node through the evaluator client. Returns
// the Black-relative evaluation and whether this call performed the
// expansion. Terminal positions (two passes) never reach the evaluator.
func (n *Node) CreateChildren(client *network.Client, pos *game.State, minPSARatio float32) (float64, bool, error) {
	if pos.Passes() >= 2 {
		return 0, false, nil
	}
	if !n.acquireExpanding() {
		return 0, false, nil
	}
	if !n.expandable(minPSARatio) {
		n.expandDone()
		return 0, false, nil
	}

	result, err := client.Evaluate(pos, network.RandomSymmetry, 0)
	if err != nil {
		// Revert so a later playout can retry the expansion.
		n.expandCancel()
		return 0, false, err
	}

	// The evaluator scores for the side to move; the tree stores values
	// from Black's point of view.
	netEval := float64(result.Winrate)
	if pos.ToMove() == game.White {
		netEval = 1.0 - netEval
	}
	n.netEval = float32(netEval)

	nodelist := legalPolicy(result, pos)
	n.linkChildren(nodelist, minPSARatio)
	n.expandDone()
	return netEval, true, nil
}

// legalPolicy filters the policy to legal moves plus pass and
// re-normalises. If the legal mass underflows (fresh random networks), a
// uniform distribution is substituted.
func legalPolicy(result *network.Result, pos *game.State) []policyMove {
	toMove := pos.ToMove()
	nodelist := make([]policyMove, 0, game.NumIntersections+1)
	legalSum := float64(0)
	for i := 0; i < game.NumIntersections; i++ {
		vertex := game.Vertex(i%game.BoardSize, i/game.BoardSize)
		if pos.IsLegal(toMove, vertex) {
			nodelist = append(nodelist, policyMove{result.Policy[i], vertex})
			legalSum += float64(result.Policy[i])
		}
	}
	nodelist = append(nodelist, policyMove{result.PolicyPass, game.Pass})
	legalSum += float64(result.PolicyPass)

	if legalSum > math.SmallestNonzeroFloat32 {
		for i := range nodelist {
			nodelist[i].prior = float32(float64(nodelist[i].prior) / legalSum)
		}
	} else {
		uniform := float32(1.0 / float64(len(nodelist)))
		for i := range nodelist {
			nodelist[i].prior = uniform
		}
	}
	return nodelist
}

// linkChildren sorts the prior list and creates one child slot per entry
// above max_psa * minPSARatio. Entries below the cut are dropped and the
// sentinel records whether any were.
func (n *Node) linkChildren(nodelist []policyMove, minPSARatio float32) {
	if len(nodelist) == 0 {
		return
	}
	// Descending prior; ties keep board order, which fixes the selector's
	// tie-break order.
	sort.SliceStable(nodelist, func(i, j int) bool {
		return nodelist[i].prior > nodelist[j].prior
	})

	maxPSA := nodelist[0].prior
	oldMinPSA := maxPSA * n.minPSA()
	newMinPSA := maxPSA * minPSARatio

	skipped := false
	for _, pm := range nodelist {
		if pm.prior < newMinPSA {
			skipped = true
		} else if pm.prior < oldMinPSA {
			n.children = append(n.children, newEdge(pm.move, pm.prior))
		}
	}

	if skipped {
		n.minPSARatio.Store(math.Float32bits(minPSARatio))
	} else {
		n.minPSARatio.Store(math.Float32bits(psaFullyExpanded))
	}
}

// CountNodes walks the subtree, counting inflated nodes (itself included)
// and reverting any stale EXPANDING marks left by a cancelled search.
func (n *Node) CountNodes() int64 {
	count := int64(1)
	if n.expandState.CompareAndSwap(expandExpanding, expandInitial) {
		return count
	}
	for _, e := range n.children {
		if child := e.Get(); child != nil {
			count += child.CountNodes()
		}
	}
	return count
}
