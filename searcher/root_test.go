package searcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tengen/game"
)

/*
root preparation:
- every root child is inflated and carries a static prior
- dirichlet noise perturbs priors but keeps them a distribution-ish mix
  (same draw for the same seed)
- superko-repeating children are invalidated and never selected
*/

func TestPrepareRootInflatesAndCapturesStatic(t *testing.T) {
	cfg := testConfig()
	s, _ := newTestSearch(t, cfg, 0.5)

	require.NoError(t, s.prepareRoot(game.Black))
	children := s.root.Children()
	require.Len(t, children, game.NumIntersections+1)

	uniform := 1.0 / float64(game.NumIntersections+1)
	for _, e := range children {
		require.True(t, e.IsInflated(), "root children are inflated for stable stats")
		require.InDelta(t, uniform, float64(e.Get().StaticSP()), 1e-6)
	}
}

func TestDirichletNoiseChangesPriors(t *testing.T) {
	cfg := testConfig()
	cfg.NoiseEnabled = true
	s, _ := newTestSearch(t, cfg, 0.5)

	require.NoError(t, s.prepareRoot(game.Black))

	uniform := float32(1.0 / float64(game.NumIntersections+1))
	changed := 0
	var sum float64
	for _, e := range s.root.Children() {
		if e.Policy() != uniform {
			changed++
		}
		sum += float64(e.Policy())
	}
	require.Greater(t, changed, game.NumIntersections/2,
		"noise should move nearly every prior")
	require.InDelta(t, 1.0, sum, 1e-3,
		"epsilon-mixing two distributions stays normalised")
}

func TestDirichletNoiseDeterministicPerSeed(t *testing.T) {
	draw := func() []float32 {
		cfg := testConfig()
		cfg.NoiseEnabled = true
		s, _ := newTestSearch(t, cfg, 0.5)
		require.NoError(t, s.prepareRoot(game.Black))
		var out []float32
		for _, e := range s.root.Children() {
			out = append(out, e.Policy())
		}
		return out
	}
	require.Equal(t, draw(), draw(), "same seed, same noise")
}

func TestSuperkoChildInvalidated(t *testing.T) {
	// Double ko: two independent single-stone kos. Cycling captures
	// through both recreates an earlier whole-board position, which the
	// simple-ko rule alone does not forbid.
	state := game.NewState(7.5)
	b, w := game.Black, game.White
	// Ko A, black holding the ko point C1.
	state.PlayMove(b, game.Vertex(0, 0))
	state.PlayMove(b, game.Vertex(1, 1))
	state.PlayMove(w, game.Vertex(2, 1))
	state.PlayMove(w, game.Vertex(3, 0))
	state.PlayMove(b, game.Vertex(2, 0))
	// Ko B, colors mirrored, white holding (9,0).
	state.PlayMove(w, game.Vertex(7, 0))
	state.PlayMove(w, game.Vertex(8, 1))
	state.PlayMove(b, game.Vertex(9, 1))
	state.PlayMove(b, game.Vertex(10, 0))
	state.PlayMove(w, game.Vertex(9, 0)) // position P0 enters the history

	state.PlayMove(w, game.Vertex(1, 0)) // white takes ko A
	state.PlayMove(b, game.Vertex(8, 0)) // black takes ko B
	state.PlayMove(b, game.Vertex(2, 0)) // black retakes ko A

	// White retaking ko B at (9,0) is legal under simple ko but would
	// recreate P0 exactly.
	koVertex := game.Vertex(9, 0)
	require.True(t, state.IsLegal(w, koVertex))

	cfg := testConfig()
	client := newTestClient(t, uniformEvaluator())
	s := NewSearch("test", cfg, client, state)
	require.NoError(t, s.prepareRoot(game.White))

	var koEdge *Edge
	for _, e := range s.root.Children() {
		if e.Move() == koVertex {
			koEdge = e
		}
	}
	require.NotNil(t, koEdge)
	require.False(t, koEdge.Valid(), "superko repetitions are invalidated at the root")

	for i := 0; i < 50; i++ {
		child := s.root.SelectChild(game.White, true, &cfg)
		require.NotEqual(t, koVertex, child.Move(), "INVALID is never selected")
	}
}

func TestRecountClearsStaleExpanding(t *testing.T) {
	cfg := testConfig()
	cfg.MaxVisits = 30
	s, _ := newTestSearch(t, cfg, 0.5)
	_, err := s.Think(game.Black, Normal)
	require.NoError(t, err)

	// Simulate a worker killed mid-expansion on the first unexpanded node
	// along the first-child line.
	leaf := s.root.Children()[0].Get()
	require.NotNil(t, leaf)
	for leaf.Expanded() {
		leaf = leaf.Children()[0].Inflate()
	}
	require.True(t, leaf.acquireExpanding())

	count := s.RecountTree()
	require.Positive(t, count)
	require.False(t, leaf.expanding(), "recount reverts stale EXPANDING marks")
}

func TestStaticPriorsSurviveNoise(t *testing.T) {
	// Static priors are captured from a separate evaluation and must not
	// be contaminated by the noise mixed into the search priors.
	cfg := testConfig()
	cfg.NoiseEnabled = true
	s, _ := newTestSearch(t, cfg, 0.5)
	require.NoError(t, s.prepareRoot(game.Black))

	uniform := 1.0 / float64(game.NumIntersections+1)
	for _, e := range s.root.Children() {
		require.InDelta(t, uniform, float64(e.Get().StaticSP()), 1e-6)
	}
}

func TestPrepareRootReusedTreeKeepsVisits(t *testing.T) {
	cfg := testConfig()
	cfg.MaxVisits = 40
	s, state := newTestSearch(t, cfg, 0.5)

	move, err := s.Think(game.Black, Normal)
	require.NoError(t, err)
	state.PlayMove(game.Black, move)
	s.SetPosition(state)

	visitsBefore := s.root.Visits()
	require.NoError(t, s.prepareRoot(game.White))
	require.Equal(t, visitsBefore, s.root.Visits(),
		"preparation of a reused root does not reset statistics")
}
