package game

// Star points for the compiled board size, in the order GTP fixed_handicap
// assigns them: opposing corners first, then the remaining corners, sides
// and center.
var hoshiOrder = []struct{ x, y int }{
	{3, 9}, {9, 3}, {9, 9}, {3, 3},
	{3, 6}, {9, 6}, {6, 3}, {6, 9}, {6, 6},
}

// fixedHandicapStones returns the vertex list for n handicap stones, or nil
// if n is out of range. For odd n of five or more the center stone is
// included.
func fixedHandicapStones(n int) []int {
	if n < 2 || n > len(hoshiOrder) {
		return nil
	}
	pts := make([]int, 0, n)
	if n >= 5 && n%2 == 1 {
		pts = append(pts, Vertex(6, 6))
		n--
	}
	for _, p := range hoshiOrder {
		if len(pts) == cap(pts) {
			break
		}
		v := Vertex(p.x, p.y)
		dup := false
		for _, q := range pts {
			if q == v {
				dup = true
			}
		}
		if !dup {
			pts = append(pts, v)
		}
	}
	return pts
}

// SetFixedHandicap places n handicap stones on the star points and gives
// White the move. Returns the placed vertices, or nil if n is invalid.
func (s *State) SetFixedHandicap(n int) []int {
	pts := fixedHandicapStones(n)
	if pts == nil {
		return nil
	}
	for _, v := range pts {
		s.PlayMove(Black, v)
	}
	s.SetHandicap(n)
	s.SetToMove(White)
	return pts
}

// PlaceFreeHandicap is the engine's own placement for free handicap; it
// uses the fixed points, which is what the original also falls back to for
// sizes where no network placement is available.
func (s *State) PlaceFreeHandicap(n int) []int {
	if n > len(hoshiOrder) {
		n = len(hoshiOrder)
	}
	return s.SetFixedHandicap(n)
}

// StoneList returns all occupied vertices in GTP text, for the handicap
// replies.
func (s *State) StoneList() []string {
	var out []string
	for v := 0; v < NumVertices; v++ {
		if s.board.state[v] == Black || s.board.state[v] == White {
			out = append(out, FormatVertex(v))
		}
	}
	return out
}
