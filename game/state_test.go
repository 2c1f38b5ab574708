package game

import (
	"testing"

	"github.com/stretchr/testify/require"
)

/*
state bookkeeping:
- passes: two consecutive passes end the game, any move resets the count
- undo: restores board, ko, passes, move number and history length
- superko: WouldRepeat sees every historical stone hash
- text moves: bad color/vertex/occupied point -> error, state unchanged
*/

func TestPassesAndGameOver(t *testing.T) {
	s := NewState(7.5)
	s.PlayMove(Black, Pass)
	require.Equal(t, 1, s.Passes())
	require.False(t, s.GameOver())

	s.PlayMove(White, Pass)
	require.Equal(t, 2, s.Passes())
	require.True(t, s.GameOver())

	s2 := NewState(7.5)
	s2.PlayMove(Black, Pass)
	s2.PlayMove(White, Vertex(3, 3))
	require.Equal(t, 0, s2.Passes(), "a stone resets the pass count")
}

func TestResign(t *testing.T) {
	s := NewState(7.5)
	s.PlayMove(Black, Vertex(3, 3))
	s.PlayMove(White, Resign)
	require.True(t, s.HasResigned())
	require.Equal(t, White, s.Resigned())
	require.True(t, s.GameOver())
}

func TestUndo(t *testing.T) {
	s := NewState(7.5)
	require.False(t, s.Undo(), "nothing to undo at the initial position")

	before := s.Hash()
	s.PlayMove(Black, Vertex(0, 1))
	s.PlayMove(White, Vertex(5, 5))
	s.PlayMove(Black, Vertex(1, 0))

	require.True(t, s.Undo())
	require.True(t, s.Undo())
	require.True(t, s.Undo())
	require.Equal(t, before, s.Hash())
	require.Equal(t, 0, s.MoveNum())
	require.Equal(t, Black, s.ToMove())
}

func TestWouldRepeat(t *testing.T) {
	s := NewState(7.5)
	initial := s.KoHash()
	s.PlayMove(Black, Vertex(3, 3))
	after := s.KoHash()

	require.True(t, s.WouldRepeat(initial))
	require.True(t, s.WouldRepeat(after))
	require.False(t, s.WouldRepeat(after^1))
}

func TestPlayTextMove(t *testing.T) {
	s := NewState(7.5)
	require.NoError(t, s.PlayTextMove("b", "D4"))
	require.Equal(t, Black, s.Stone(Vertex(3, 3)))

	err := s.PlayTextMove("w", "D4")
	require.ErrorIs(t, err, ErrIllegalMove)
	require.Equal(t, 1, s.MoveNum(), "illegal move leaves the state unchanged")

	require.Error(t, s.PlayTextMove("purple", "D4"))
	require.Error(t, s.PlayTextMove("w", "Z99"))

	require.NoError(t, s.PlayTextMove("white", "pass"))
	require.Equal(t, 1, s.Passes())
}

func TestCloneIndependence(t *testing.T) {
	s := NewState(7.5)
	s.PlayMove(Black, Vertex(3, 3))

	c := s.Clone()
	c.PlayMove(White, Vertex(9, 9))

	require.Equal(t, Empty, s.Stone(Vertex(9, 9)))
	require.NotEqual(t, s.Hash(), c.Hash())
	require.True(t, c.WouldRepeat(s.KoHash()), "clone keeps the history")
}

func TestFixedHandicap(t *testing.T) {
	s := NewState(7.5)
	pts := s.SetFixedHandicap(4)
	require.Len(t, pts, 4)
	require.Equal(t, White, s.ToMove())
	require.Equal(t, 4, s.Handicap())
	for _, v := range pts {
		require.Equal(t, Black, s.Stone(v))
	}

	require.Nil(t, NewState(7.5).SetFixedHandicap(1))
	require.Nil(t, NewState(7.5).SetFixedHandicap(10))
}
