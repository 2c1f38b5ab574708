package searcher

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distmv"

	"tengen/game"
	"tengen/network"
)

// SetPosition informs the search of the external game position before the
// next Think or Ponder. When the new position is the old one advanced by
// exactly one move that matches a root child, the subtree is promoted and
// its statistics carry over; otherwise the tree is dropped.
func (s *Search) SetPosition(state *game.State) {
	newPos := state.Clone()
	defer func() { s.position = newPos }()

	if s.root == nil {
		return
	}
	if newPos.Hash() == s.position.Hash() {
		return
	}
	if newPos.MoveNum() == s.position.MoveNum()+1 {
		move := newPos.LastMove()
		probe := s.position.Clone()
		probe.PlayMove(s.position.ToMove(), move)
		if probe.Hash() == newPos.Hash() && s.advanceRoot(move) {
			s.metrics.treeReused.Store(true)
			return
		}
	}
	s.dropRoot()
}

// AdvancePlayed descends the root along the move the engine just played.
func (s *Search) AdvancePlayed(state *game.State) {
	s.SetPosition(state)
}

// advanceRoot promotes the child for move to the new root. Siblings are
// deactivated and the abandoned subtrees become garbage.
func (s *Search) advanceRoot(move int) bool {
	if s.root == nil || !s.root.Expanded() {
		return false
	}
	var promoted *Node
	for _, e := range s.root.Children() {
		if e.Move() == move {
			promoted = e.Inflate()
			continue
		}
		if n := e.Get(); n != nil {
			n.SetActive(false)
		}
	}
	if promoted == nil {
		return false
	}
	s.root = promoted
	return true
}

func (s *Search) dropRoot() {
	s.root = nil
}

// RecountTree walks the live tree, clearing stale expansion marks, and
// returns its inflated-node count. The engine aggregates the counts of
// both trees into the global accounting after every move.
func (s *Search) RecountTree() int64 {
	if s.root == nil {
		return 0
	}
	return s.root.CountNodes()
}

// SetTreeNodes overwrites the global node accounting after trimming.
func SetTreeNodes(n int64) {
	treeNodes.Store(n)
}

// prepareRoot expands and prepares the root for a new search: capture
// static priors, mix in exploration noise when configured, invalidate
// superko repetitions and inflate every child so root statistics are
// stable under concurrent access.
func (s *Search) prepareRoot(color game.Color) error {
	if s.root == nil {
		s.root = newNode(s.position.LastMove(), 1.0)
	}

	hadChildren := s.root.HasChildren()
	if !hadChildren {
		eval, expanded, err := s.root.CreateChildren(s.client, s.position.Clone(), psaFullyExpanded)
		if err != nil {
			return err
		}
		if expanded {
			// The expansion counts as the root's first visit, as it does
			// for every node expanded during a playout.
			s.root.Update(eval)
			s.logger.Debug().Float64("net_eval", eval).Msg("root expanded")
		}
	} else {
		s.metrics.treeReused.Store(true)
	}
	if !s.root.HasChildren() {
		return nil // terminal position
	}

	// The root may carry virtual-loss ghosts if a previous search was
	// interrupted mid-backup; they are harmless for selection.

	for _, e := range s.root.Children() {
		e.Inflate()
	}
	s.pruneSuperko(color)
	if s.cfg.NoiseEnabled {
		s.applyDirichletNoise()
	}
	return s.captureStaticPriors()
}

// pruneSuperko marks root children whose move would repeat a historical
// position. Pass never repeats a position under positional superko with
// the pass-count in the full hash, so it stays selectable.
func (s *Search) pruneSuperko(color game.Color) {
	for _, e := range s.root.Children() {
		if e.Move() == game.Pass {
			continue
		}
		probe := s.position.Clone()
		probe.PlayMove(color, e.Move())
		if s.position.WouldRepeat(probe.KoHash()) {
			e.Inflate().Invalidate()
		}
	}
}

// applyDirichletNoise mixes epsilon * Dir(alpha) into the root priors.
// The draw happens once per move preparation.
func (s *Search) applyDirichletNoise() {
	children := s.root.Children()
	if len(children) < 2 {
		return
	}
	alpha := make([]float64, len(children))
	for i := range alpha {
		alpha[i] = s.cfg.NoiseAlpha
	}
	s.rngMu.Lock()
	dir := distmv.NewDirichlet(alpha, s.rngSrc)
	noise := dir.Rand(nil)
	s.rngMu.Unlock()

	eps := float32(s.cfg.NoiseEpsilon)
	for i, e := range children {
		node := e.Inflate()
		node.policy = (1-eps)*node.policy + eps*float32(noise[i])
	}
}

// captureStaticPriors stores the evaluator's raw prior for each root
// child before any further search distorts the picture; the
// strength-control layer reads these as the "naturalness" of a move.
func (s *Search) captureStaticPriors() error {
	result, err := s.client.Evaluate(s.position, network.RandomSymmetry, 0)
	if err != nil {
		return fmt.Errorf("static policy: %w", err)
	}
	static := legalPolicy(result, s.position)
	byMove := make(map[int]float32, len(static))
	for _, pm := range static {
		byMove[pm.move] = pm.prior
	}
	for _, e := range s.root.Children() {
		node := e.Inflate()
		if sp, ok := byMove[e.Move()]; ok {
			node.staticSP = sp
		}
	}
	return nil
}
