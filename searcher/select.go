package searcher

import (
	"math"

	"tengen/game"
)

// SelectChild picks the PUCT-best active child and inflates it. The
// statistics reads here are deliberately relaxed: PUCT tolerates stale
// values, and the backup path provides the ordering that matters.
func (n *Node) SelectChild(color game.Color, isRoot bool, cfg *Config) *Node {
	n.waitExpanded()

	// Visits are summed over the children rather than taken from the
	// parent so transposed virtual losses cannot skew the numerator.
	parentVisits := 0
	totalVisitedPolicy := 0.0
	for _, child := range n.children {
		if !child.Valid() {
			continue
		}
		if v := child.Visits(); v > 0 {
			parentVisits += v
			totalVisitedPolicy += float64(child.Policy())
		}
	}

	numerator := math.Sqrt(float64(parentVisits))
	fpuCoeff := cfg.FpuReduction
	if isRoot {
		fpuCoeff = cfg.FpuRootReduction
	}
	fpuReduction := fpuCoeff * math.Sqrt(totalVisitedPolicy)
	// First-play urgency: the parent's own net eval, docked by how much
	// policy mass has already been explored.
	fpuEval := n.NetEval(color) - fpuReduction

	var best *Edge
	bestValue := math.Inf(-1)
	for _, child := range n.children {
		if !child.Active() {
			continue
		}

		winrate := fpuEval
		if node := child.Get(); node != nil && node.expanding() {
			// Another worker is mid-expansion here; descending would
			// only spin on its interlock.
			winrate = -1.0 - fpuCoeff
		} else if child.Visits() > 0 {
			winrate = child.Eval(color, fpuEval)
		}
		psa := float64(child.Policy())
		denom := 1.0 + float64(child.Visits())
		value := winrate + cfg.Puct*psa*(numerator/denom)

		if value > bestValue {
			bestValue = value
			best = child
		}
	}
	if best == nil {
		return nil
	}
	return best.Inflate()
}
