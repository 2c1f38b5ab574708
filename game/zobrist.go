package game

import "golang.org/x/exp/rand"

// Zobrist tables are seeded with a fixed constant so position hashes are
// stable across processes; search trees are never persisted, but tests and
// SGF round-trips rely on reproducible hashes.
const zobristSeed = 0x5d7cdd6a921c4f5b

var (
	zobristStone  [2][NumVertices]uint64
	zobristKo     [NumVertices + 1]uint64
	zobristPasses [4]uint64
	zobristToMove uint64
)

func init() {
	rng := rand.New(rand.NewSource(zobristSeed))
	for c := 0; c < 2; c++ {
		for v := 0; v < NumVertices; v++ {
			zobristStone[c][v] = rng.Uint64()
		}
	}
	for v := range zobristKo {
		zobristKo[v] = rng.Uint64()
	}
	for i := range zobristPasses {
		zobristPasses[i] = rng.Uint64()
	}
	zobristToMove = rng.Uint64()
}
