package sgf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tengen/game"
)

/*
SGF codec:
- load: mainline replay, SZ/KM honored, move cap, variations skipped
- save: header, coordinate mapping, load(save(x)) reproduces the position
- errors: wrong board size, illegal record, garbage input
*/

func TestLoadSimpleGame(t *testing.T) {
	text := "(;GM[1]FF[4]SZ[13]KM[6.5];B[dd];W[jj];B[dj])"
	state, err := Load(text, 999)
	require.NoError(t, err)

	require.Equal(t, 6.5, state.Komi())
	require.Equal(t, 3, state.MoveNum())
	// SGF "dd" is column d, row d from the top: (3, 9) from the bottom.
	require.Equal(t, game.Black, state.Stone(game.Vertex(3, 9)))
	require.Equal(t, game.White, state.Stone(game.Vertex(9, 3)))
	require.Equal(t, game.Black, state.Stone(game.Vertex(3, 3)))
	require.Equal(t, game.White, state.ToMove())
}

func TestLoadMoveCap(t *testing.T) {
	text := "(;GM[1]SZ[13];B[dd];W[jj];B[dj])"
	state, err := Load(text, 2)
	require.NoError(t, err)
	require.Equal(t, 2, state.MoveNum())
	require.Equal(t, game.Empty, state.Stone(game.Vertex(3, 3)))
}

func TestLoadPass(t *testing.T) {
	state, err := Load("(;GM[1]SZ[13];B[];W[tt])", 999)
	require.NoError(t, err)
	require.Equal(t, 2, state.Passes())
	require.True(t, state.GameOver())
}

func TestLoadSkipsVariations(t *testing.T) {
	text := "(;GM[1]SZ[13];B[dd](;W[jj];B[dj])(;W[cc]))"
	state, err := Load(text, 999)
	require.NoError(t, err)
	require.Equal(t, game.White, state.Stone(game.Vertex(9, 3)),
		"the first variation is the mainline")
	require.Equal(t, game.Empty, state.Stone(game.Vertex(2, 10)),
		"other variations are ignored")
}

func TestLoadWrongBoardSize(t *testing.T) {
	_, err := Load("(;GM[1]SZ[19];B[dd])", 999)
	require.Error(t, err)
}

func TestLoadGarbage(t *testing.T) {
	_, err := Load("this is not SGF", 999)
	require.Error(t, err)
}

func TestLoadIllegalRecord(t *testing.T) {
	_, err := Load("(;GM[1]SZ[13];B[dd];W[dd])", 999)
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	state := game.NewState(7.5)
	require.NoError(t, state.PlayTextMove("b", "D4"))
	require.NoError(t, state.PlayTextMove("w", "K10"))
	require.NoError(t, state.PlayTextMove("b", "pass"))

	text := Save(state)
	require.True(t, strings.HasPrefix(text, "(;GM[1]FF[4]"))
	require.Contains(t, text, "SZ[13]")
	require.Contains(t, text, "KM[7.5]")

	loaded, err := Load(text, 999)
	require.NoError(t, err)
	require.Equal(t, state.KoHash(), loaded.KoHash())
	require.Equal(t, state.MoveNum(), loaded.MoveNum())
	require.Equal(t, state.ToMove(), loaded.ToMove())
}

func TestHandicapRecord(t *testing.T) {
	state, err := Load("(;GM[1]SZ[13]HA[2]AB[dd][jj])", 999)
	require.NoError(t, err)
	require.Equal(t, 2, state.Handicap())
	require.Equal(t, game.White, state.ToMove())
	require.Equal(t, game.Black, state.Stone(game.Vertex(3, 9)))
	require.Equal(t, game.Black, state.Stone(game.Vertex(9, 3)))
}
