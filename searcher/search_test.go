package searcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tengen/game"
	"tengen/network"
)

/*
search controller:
- visit and playout budgets are honored exactly in single-thread mode
- fixed seed + deterministic evaluator + one thread -> identical results
- the visit-sum invariant holds over the whole tree after a search
- tie-break property: uniform evaluator on an empty board concentrates
  visits on the first legal move in canonical order
- tree reuse: promoting the played child keeps its statistics
- resignation honors the threshold, the -1 off switch and the visit floor
- cancellation still yields a well-defined move
*/

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Threads = 1
	cfg.RNGSeed = 42
	return cfg
}

func newTestSearch(t *testing.T, cfg Config, winrate float32) (*Search, *game.State) {
	t.Helper()
	state := game.NewState(7.5)
	client := newTestClient(t, constEvaluator(winrate))
	return NewSearch("test", cfg, client, state), state
}

func TestVisitBudgetExact(t *testing.T) {
	cfg := testConfig()
	cfg.MaxVisits = 50
	s, _ := newTestSearch(t, cfg, 0.5)

	move, err := s.Think(game.Black, Normal)
	require.NoError(t, err)
	require.Equal(t, 50, s.RootVisits())
	require.True(t, move == game.Pass || game.OnBoard(move))
}

func TestPlayoutBudget(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPlayouts = 30
	s, _ := newTestSearch(t, cfg, 0.5)

	_, err := s.Think(game.Black, Normal)
	require.NoError(t, err)
	require.Equal(t, 30, s.Playouts())
}

func TestDeterministicSearch(t *testing.T) {
	run := func() (int, map[int]int) {
		cfg := testConfig()
		cfg.MaxVisits = 80
		s, _ := newTestSearch(t, cfg, 0.5)
		move, err := s.Think(game.Black, Normal)
		require.NoError(t, err)

		visits := map[int]int{}
		for _, e := range s.root.Children() {
			if e.Visits() > 0 {
				visits[e.Move()] = e.Visits()
			}
		}
		return move, visits
	}

	move1, visits1 := run()
	move2, visits2 := run()
	require.Equal(t, move1, move2)
	require.Equal(t, visits1, visits2,
		"single-thread search with a fixed seed is deterministic")
}

func TestTieBreakCanonicalFirstMove(t *testing.T) {
	cfg := testConfig()
	cfg.MaxVisits = 60
	s, _ := newTestSearch(t, cfg, 0.5)

	_, err := s.Think(game.Black, Normal)
	require.NoError(t, err)

	best := s.sortedChildren(game.Black)[0]
	require.Equal(t, game.Vertex(0, 0), best.Move(),
		"uniform priors concentrate on the first legal move in canonical order")
}

// checkVisitSums walks the tree asserting sum(child.visits)+1 == visits
// for every internal node that has been backed up through.
func checkVisitSums(t *testing.T, n *Node) {
	if !n.Expanded() || n.Visits() == 0 {
		return
	}
	sum := 0
	for _, e := range n.Children() {
		sum += e.Visits()
	}
	require.Equal(t, n.Visits(), sum+1,
		"visits = children + the expansion visit at %s", game.FormatVertex(n.Move()))
	for _, e := range n.Children() {
		if child := e.Get(); child != nil {
			checkVisitSums(t, child)
		}
	}
}

func TestVisitSumInvariant(t *testing.T) {
	cfg := testConfig()
	cfg.MaxVisits = 120
	s, _ := newTestSearch(t, cfg, 0.5)

	_, err := s.Think(game.Black, Normal)
	require.NoError(t, err)
	checkVisitSums(t, s.root)
}

func TestVirtualLossesDrainAfterSearch(t *testing.T) {
	cfg := testConfig()
	cfg.Threads = 4
	cfg.MaxVisits = 200
	s, _ := newTestSearch(t, cfg, 0.5)

	_, err := s.Think(game.Black, Normal)
	require.NoError(t, err)

	var walk func(n *Node)
	walk = func(n *Node) {
		require.Zero(t, int(n.virtualLoss.Load()),
			"virtual losses must be fully undone at %s", game.FormatVertex(n.Move()))
		for _, e := range n.Children() {
			if child := e.Get(); child != nil {
				walk(child)
			}
		}
	}
	walk(s.root)
}

func TestTreeReusePromotesChild(t *testing.T) {
	cfg := testConfig()
	cfg.MaxVisits = 60
	s, state := newTestSearch(t, cfg, 0.5)

	move, err := s.Think(game.Black, Normal)
	require.NoError(t, err)

	childVisits := 0
	for _, e := range s.root.Children() {
		if e.Move() == move {
			childVisits = e.Visits()
		}
	}
	require.Positive(t, childVisits)

	state.PlayMove(game.Black, move)
	s.SetPosition(state)
	require.NotNil(t, s.root)
	require.Equal(t, move, s.root.Move())
	require.Equal(t, childVisits, s.root.Visits(),
		"promotion transfers the subtree's statistics")
}

func TestTreeDropOnForeignPosition(t *testing.T) {
	cfg := testConfig()
	cfg.MaxVisits = 20
	s, _ := newTestSearch(t, cfg, 0.5)

	_, err := s.Think(game.Black, Normal)
	require.NoError(t, err)
	require.NotNil(t, s.root)

	other := game.NewState(7.5)
	other.PlayMove(game.Black, game.Vertex(5, 5))
	other.PlayMove(game.White, game.Vertex(6, 6))
	other.PlayMove(game.Black, game.Vertex(7, 7))
	s.SetPosition(other)
	require.Nil(t, s.root, "an unrelated position drops the tree")
}

func TestResignation(t *testing.T) {
	newLostSearch := func(t *testing.T, cfg Config) *Search {
		state := game.NewState(7.5)
		client := newTestClient(t, biasedEvaluator(0.01))
		return NewSearch("test", cfg, client, state)
	}

	t.Run("resigns below threshold", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxVisits = 40
		cfg.ResignPercent = 30
		cfg.ResignMinVisits = 10
		s := newLostSearch(t, cfg)

		move, err := s.Think(game.Black, Normal)
		require.NoError(t, err)
		require.Equal(t, game.Resign, move)
	})

	t.Run("minus one disables", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxVisits = 40
		cfg.ResignPercent = -1
		s := newLostSearch(t, cfg)

		move, err := s.Think(game.Black, Normal)
		require.NoError(t, err)
		require.NotEqual(t, game.Resign, move)
	})

	t.Run("suppressed before the visit floor", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxVisits = 40
		cfg.ResignPercent = 30
		cfg.ResignMinVisits = 1000
		s := newLostSearch(t, cfg)

		move, err := s.Think(game.Black, Normal)
		require.NoError(t, err)
		require.NotEqual(t, game.Resign, move)
	})
}

func TestCancellationReturnsMove(t *testing.T) {
	cfg := testConfig()
	cfg.Threads = 2
	cfg.MaxVisits = UnlimitedBudget
	cfg.MaxPlayouts = UnlimitedBudget
	s, _ := newTestSearch(t, cfg, 0.5)
	s.SetTimeControl(NewTimeControl(100*60*60*100, 0, 0, 0))

	done := make(chan int, 1)
	go func() {
		move, err := s.Think(game.Black, Normal)
		require.NoError(t, err)
		done <- move
	}()
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	select {
	case move := <-done:
		require.True(t, move == game.Pass || game.OnBoard(move),
			"a cancelled search still reports a well-defined move")
	case <-time.After(5 * time.Second):
		t.Fatal("search did not stop on cancellation")
	}
}

func TestEvaluatorFailureSurfaces(t *testing.T) {
	cfg := testConfig()
	cfg.MaxVisits = 10
	state := game.NewState(7.5)
	client := newTestClient(t, stubEvaluator{forward: func(*game.State, int) (network.Result, error) {
		return network.Result{}, errTest
	}})
	s := NewSearch("test", cfg, client, state)

	_, err := s.Think(game.Black, Normal)
	require.ErrorIs(t, err, errTest)
}
