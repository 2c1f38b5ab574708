package searcher

import (
	"tengen/game"
)

// playSimulation runs one playout: descend from the root under PUCT with
// virtual losses, expand (or score) the leaf, and back the value up the
// descent path in reverse. The path is carried explicitly; nodes have no
// parent pointers.
func (s *Search) playSimulation(pos *game.State) error {
	node := s.root
	path := make([]*Node, 0, 64)
	node.addVirtualLoss()
	path = append(path, node)

	var value float64
	for {
		if pos.Passes() >= 2 {
			value = pos.TerminalValue()
			break
		}
		if !node.HasChildren() {
			if s.stopFlag.Load() {
				// Cancelled between descent and evaluator call; this
				// simulation never completes.
				unwindVirtualLoss(path)
				return nil
			}
			eval, expanded, err := node.CreateChildren(s.client, pos, s.minPSARatio())
			if err != nil {
				unwindVirtualLoss(path)
				return err
			}
			if expanded {
				value = eval
				break
			}
			// Lost the expansion race: wait for the winner to publish and
			// back up its cached evaluation without expanding ourselves.
			node.waitExpanded()
			value = node.NetEval(game.Black)
			break
		}

		child := node.SelectChild(pos.ToMove(), node == s.root, &s.cfg)
		if child == nil {
			panic("selector returned no child for a node with children")
		}
		pos.PlayMove(pos.ToMove(), child.move)
		child.addVirtualLoss()
		path = append(path, child)
		node = child
	}

	for i := len(path) - 1; i >= 0; i-- {
		path[i].Update(value)
		path[i].undoVirtualLoss()
	}
	s.playouts.Add(1)
	return nil
}

func unwindVirtualLoss(path []*Node) {
	for i := len(path) - 1; i >= 0; i-- {
		path[i].undoVirtualLoss()
	}
}

// minPSARatio raises the child-link cutoff as the tree approaches its
// memory ceiling, so expansion narrows before the hard stop triggers.
func (s *Search) minPSARatio() float32 {
	if s.cfg.MaxTreeBytes <= 0 {
		return psaFullyExpanded
	}
	full := float64(TreeBytes()) / float64(s.cfg.MaxTreeBytes)
	switch {
	case full > 0.95:
		// Only the dominant prior may still be linked.
		return 1.0
	case full > 0.5:
		return float32(0.01 * (full - 0.5) / 0.45)
	}
	return psaFullyExpanded
}
