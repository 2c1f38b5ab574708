package searcher

import (
	"fmt"
	"sync"

	"tengen/game"
)

// TimeControl models the GTP clock families in centiseconds: absolute
// (byoTime == 0), canadian overtime (byoStones > 0) and byo-yomi periods
// (byoPeriods > 0). "none" is represented as a large absolute clock.
type TimeControl struct {
	mu sync.Mutex

	mainTime   int
	byoTime    int
	byoStones  int
	byoPeriods int

	remaining   [2]int
	stonesLeft  [2]int
	periodsLeft [2]int
	inByoyomi   [2]bool
}

// NewTimeControl takes the time_settings parameters, all centiseconds.
func NewTimeControl(mainCS, byoCS, byoStones, byoPeriods int) *TimeControl {
	tc := &TimeControl{
		mainTime:   mainCS,
		byoTime:    byoCS,
		byoStones:  byoStones,
		byoPeriods: byoPeriods,
	}
	for c := 0; c < 2; c++ {
		tc.remaining[c] = mainCS
		tc.stonesLeft[c] = byoStones
		tc.periodsLeft[c] = byoPeriods
		if mainCS <= 0 && byoCS > 0 {
			tc.startOvertime(c)
		}
	}
	return tc
}

func (tc *TimeControl) startOvertime(c int) {
	tc.inByoyomi[c] = true
	tc.remaining[c] = tc.byoTime
	tc.stonesLeft[c] = tc.byoStones
}

// AdjustTime applies a GTP time_left report. stones > 0 means the player
// is in canadian overtime (or byo-yomi, where stones counts periods).
func (tc *TimeControl) AdjustTime(color game.Color, timeCS, stones int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	c := int(color)
	tc.remaining[c] = timeCS
	if stones > 0 {
		tc.inByoyomi[c] = true
		if tc.byoPeriods > 0 {
			tc.periodsLeft[c] = stones
		} else {
			tc.stonesLeft[c] = stones
		}
	} else {
		tc.inByoyomi[c] = false
	}
}

// movesExpected estimates how many more moves this side will play; the
// board empties as the game goes on, floored so the endgame still gets
// thinking time.
func movesExpected(moveNum int) int {
	left := game.NumIntersections - moveNum
	if floor := game.NumIntersections / 5; left < floor {
		left = floor
	}
	return left/2 + 1
}

// MaxTimeForMove computes the per-move allotment in centiseconds, after
// subtracting the configured lag buffer.
func (tc *TimeControl) MaxTimeForMove(color game.Color, moveNum, lagBufferCS int) int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	c := int(color)

	alloc := 0
	switch {
	case tc.inByoyomi[c] && tc.byoPeriods > 0:
		// One full period is always available; spending it only consumes
		// a period when we run over.
		alloc = tc.byoTime
	case tc.inByoyomi[c] && tc.byoStones > 0:
		stones := max(1, tc.stonesLeft[c])
		alloc = tc.remaining[c] / stones
	case tc.byoTime > 0 && tc.byoStones > 0:
		// Canadian main time: the overtime behind it allows a faster burn.
		alloc = tc.remaining[c]/movesExpected(moveNum) + tc.byoTime/max(1, tc.byoStones)
	case tc.byoTime > 0 && tc.byoPeriods > 0:
		alloc = tc.remaining[c]/movesExpected(moveNum) + tc.byoTime
	default:
		alloc = tc.remaining[c] / movesExpected(moveNum)
	}

	alloc -= lagBufferCS
	if alloc < 1 {
		alloc = 1
	}
	return alloc
}

// Consume books elapsed thinking time and handles overtime transitions.
func (tc *TimeControl) Consume(color game.Color, elapsedCS int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	c := int(color)

	tc.remaining[c] -= elapsedCS
	if tc.inByoyomi[c] {
		switch {
		case tc.byoPeriods > 0:
			for tc.remaining[c] < 0 && tc.periodsLeft[c] > 1 {
				tc.periodsLeft[c]--
				tc.remaining[c] += tc.byoTime
			}
			if tc.remaining[c] >= 0 {
				// A started period resets when the move completes in time.
				tc.remaining[c] = tc.byoTime
			}
		case tc.byoStones > 0:
			tc.stonesLeft[c]--
			if tc.stonesLeft[c] <= 0 {
				tc.remaining[c] = tc.byoTime
				tc.stonesLeft[c] = tc.byoStones
			}
		}
		return
	}
	if tc.remaining[c] < 0 && (tc.byoTime > 0) {
		tc.startOvertime(c)
	}
}

func (tc *TimeControl) String() string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return fmt.Sprintf("black %.1fs, white %.1fs",
		float64(tc.remaining[game.Black])/100,
		float64(tc.remaining[game.White])/100)
}
