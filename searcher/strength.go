package searcher

import (
	"github.com/rs/zerolog/log"

	"tengen/game"
)

// Strength-control parameters. The strong tree plays precisely; these
// thresholds decide when the layer is allowed to soften its choice.
const (
	strengthC = 0.8

	// A first move this far ahead of the second is never softened.
	tUnique = 0.08 * strengthC
	// Below tMin the position is lost and the best move is kept.
	tMin = 0.40
	// Between tMin and tMax the most natural near-best move is played.
	tMax = 0.60
	tDif = 0.03 * strengthC

	// Winning positions: a child within gap band k may substitute for the
	// best move if its static prior clears the matching floor.
	strengthMinVisits = 10
)

var (
	gapBands = [4]float64{0.03 * strengthC, 0.04 * strengthC, 0.06 * strengthC, 0.08 * strengthC}
	spFloors = [4]float64{0.05, 0.10, 0.20, 0.40}
)

// SelectStrengthMove blends the strong tree S and the nominal tree N into
// the final move. Both candidate lists are sorted by visits, best first,
// with side-to-move winrates. moveNum is the number of the move about to
// be played; inside the opening window the nominal tree's best move is
// played unconditionally, before any of the four cases run.
func SelectStrengthMove(strong, nominal []ChildStat, moveNum, openingMoves int) int {
	if moveNum <= openingMoves && len(nominal) > 0 {
		log.Debug().Int("move_num", moveNum).Msg("strength control: opening override")
		return nominal[0].Move
	}
	if len(strong) == 0 {
		return game.Pass
	}

	w1 := strong[0].Winrate

	// Case 1: dominant first move.
	if len(strong) > 1 {
		if w1-strong[1].Winrate >= tUnique {
			return strong[0].Move
		}
	} else {
		return strong[0].Move
	}

	// Case 2: losing position, keep the best move.
	if w1 <= tMin {
		return strong[0].Move
	}

	// Case 3: intermediate winrate. Among the children within tDif of the
	// best, play the one the evaluator considered most natural.
	if w1 <= tMax {
		threshold := w1 - tDif
		best := strong[0]
		bestSP := float64(-1)
		for _, c := range strong {
			if c.Winrate >= threshold && float64(c.StaticSP) > bestSP {
				bestSP = float64(c.StaticSP)
				best = c
			}
		}
		return best.Move
	}

	// Case 4: winning position. Soften deliberately: of the children that
	// qualify in some gap band, pick the lowest winrate. No qualifier
	// falls back to the best move.
	selected := strong[0]
	found := false
	for _, c := range strong {
		if c.Visits < strengthMinVisits {
			continue
		}
		if !qualifies(w1-c.Winrate, float64(c.StaticSP)) {
			continue
		}
		if !found || c.Winrate < selected.Winrate {
			selected = c
			found = true
		}
	}
	return selected.Move
}

// qualifies checks the gap against the banded static-prior floors:
// band k covers gaps in [g[k-1], g[k]) with g[-1] = 0.
func qualifies(gap, staticSP float64) bool {
	if gap < 0 {
		gap = 0
	}
	lower := 0.0
	for k := 0; k < len(gapBands); k++ {
		if gap >= lower && gap < gapBands[k] {
			return staticSP >= spFloors[k]
		}
		lower = gapBands[k]
	}
	return false
}
