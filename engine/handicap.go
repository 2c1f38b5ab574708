package engine

import (
	"tengen/game"
)

// FixedHandicap places n stones on the star points. Returns nil when the
// board is not empty or n is out of range.
func (e *Engine) FixedHandicap(n int) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.MoveNum() != 0 {
		return nil
	}
	pts := e.state.SetFixedHandicap(n)
	if pts == nil {
		return nil
	}
	e.syncSearches()
	out := make([]string, len(pts))
	for i, v := range pts {
		out[i] = game.FormatVertex(v)
	}
	return out
}

// PlaceFreeHandicap chooses and places n handicap stones.
func (e *Engine) PlaceFreeHandicap(n int) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.MoveNum() != 0 || n < 2 {
		return nil
	}
	pts := e.state.PlaceFreeHandicap(n)
	if pts == nil {
		return nil
	}
	e.syncSearches()
	out := make([]string, len(pts))
	for i, v := range pts {
		out[i] = game.FormatVertex(v)
	}
	return out
}

// SetFreeHandicap places the caller's handicap stones.
func (e *Engine) SetFreeHandicap(vertices []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, v := range vertices {
		if err := e.state.PlayTextMove("black", v); err != nil {
			e.syncSearches()
			return err
		}
		e.state.SetHandicap(e.state.Handicap() + 1)
	}
	e.state.SetToMove(game.White)
	e.syncSearches()
	return nil
}

// StoneList is the occupied-vertex reply for the handicap commands.
func (e *Engine) StoneList() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.StoneList()
}
