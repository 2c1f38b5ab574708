package searcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"tengen/game"
	"tengen/network"
)

// ThinkMode selects pass handling for one search.
type ThinkMode int

const (
	// Normal allows any move.
	Normal ThinkMode = iota
	// NoPass avoids passing while an alternative with visits exists
	// (kgs-genmove_cleanup).
	NoPass
)

// ErrAlreadyRunning is returned when Think or Ponder is entered while a
// search is active on the same tree.
var ErrAlreadyRunning = errors.New("search already running")

// ChildStat is a root child's statistics snapshot for move selection and
// the strength-control layer.
type ChildStat struct {
	Move     int
	Visits   int
	Winrate  float64 // side-to-move
	Prior    float32
	StaticSP float32
}

// Search owns one tree over one position and drives parallel playouts
// into it. A Search is reused across moves so the subtree below the
// played move carries over.
type Search struct {
	cfg      Config
	client   *network.Client
	name     string
	logger   zerolog.Logger
	position *game.State
	root     *Node

	rngMu  sync.Mutex
	rngSrc rand.Source
	rng    *rand.Rand

	stopFlag atomic.Bool
	running  atomic.Bool
	playouts atomic.Int32

	timeControl *TimeControl
	metrics     metricsCollector

	analysisMu       sync.Mutex
	analysisWriter   io.Writer
	analysisInterval int // centiseconds
}

// NewSearch creates a controller for one tree. name tags log lines
// ("strong", "nominal").
func NewSearch(name string, cfg Config, client *network.Client, state *game.State) *Search {
	src := rand.NewSource(cfg.RNGSeed)
	return &Search{
		cfg:         cfg,
		client:      client,
		name:        name,
		logger:      log.With().Str("tree", name).Logger(),
		position:    state.Clone(),
		rngSrc:      src,
		rng:         rand.New(src),
		timeControl: NewTimeControl(30*60*100, 0, 0, 0),
	}
}

// SetConfig replaces the tunables between searches (lz-setoption).
func (s *Search) SetConfig(cfg Config) {
	s.cfg = cfg
}

// Config returns the current tunables.
func (s *Search) Config() Config {
	return s.cfg
}

// SetTimeControl installs the clock shared with the protocol layer.
func (s *Search) SetTimeControl(tc *TimeControl) {
	s.timeControl = tc
}

// TimeControl returns the active clock.
func (s *Search) TimeControl() *TimeControl {
	return s.timeControl
}

// SetAnalysis directs streaming analysis output; interval 0 disables it.
func (s *Search) SetAnalysis(w io.Writer, intervalCS int) {
	s.analysisMu.Lock()
	s.analysisWriter = w
	s.analysisInterval = intervalCS
	s.analysisMu.Unlock()
}

// Stop requests cancellation; workers notice between simulations.
func (s *Search) Stop() {
	s.stopFlag.Store(true)
}

// Running reports whether a Think or Ponder is in progress.
func (s *Search) Running() bool {
	return s.running.Load()
}

// Playouts completed in the current (or last) search.
func (s *Search) Playouts() int {
	return int(s.playouts.Load())
}

// RootVisits of the current tree, 0 without a root.
func (s *Search) RootVisits() int {
	if s.root == nil {
		return 0
	}
	return s.root.Visits()
}

// Think searches the current position for color and returns the chosen
// move (possibly Pass or Resign). The tree is left in place for reuse.
func (s *Search) Think(color game.Color, mode ThinkMode) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		return game.Pass, ErrAlreadyRunning
	}
	defer s.running.Store(false)
	s.stopFlag.Store(false)
	s.playouts.Store(0)
	s.position.SetToMove(color)

	hits, lookups := s.client.Cache().Stats()
	s.metrics.start(hits, lookups)

	if err := s.prepareRoot(color); err != nil {
		return game.Pass, fmt.Errorf("preparing root: %w", err)
	}
	if !s.root.HasChildren() {
		// Terminal root: nothing to search.
		return game.Pass, nil
	}

	budget := time.Duration(0)
	if s.timeControl != nil && s.cfg.MaxVisits == UnlimitedBudget && s.cfg.MaxPlayouts == UnlimitedBudget {
		cs := s.timeControl.MaxTimeForMove(color, s.position.MoveNum(), s.cfg.LagBufferCS)
		budget = time.Duration(cs) * 10 * time.Millisecond
		s.logger.Debug().Int("budget_cs", cs).Msg("time for move")
	}

	err := s.runWorkers(color, budget, false)

	elapsed := time.Since(s.metrics.startTime)
	if s.timeControl != nil && budget > 0 {
		s.timeControl.Consume(color, int(elapsed/(10*time.Millisecond)))
	}
	hits, lookups = s.client.Cache().Stats()
	m := s.metrics.complete(s.Playouts(), s.RootVisits(), hits, lookups)
	s.logSearchResult(color, m)

	if err != nil {
		return game.Pass, err
	}
	return s.selectBestMove(color, mode), nil
}

// Ponder searches in the background until Stop, context cancellation or
// the memory ceiling; visit, playout and time budgets do not apply.
func (s *Search) Ponder(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)
	s.stopFlag.Store(false)
	s.playouts.Store(0)

	color := s.position.ToMove()
	if err := s.prepareRoot(color); err != nil {
		return fmt.Errorf("preparing root: %w", err)
	}
	if !s.root.HasChildren() {
		return nil
	}

	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.stopFlag.Store(true)
		case <-watchDone:
		}
	}()
	defer close(watchDone)

	return s.runWorkers(color, 0, true)
}

func (s *Search) runWorkers(color game.Color, budget time.Duration, ponder bool) error {
	start := time.Now()
	stopAnalysis := s.startAnalysis(color)
	defer stopAnalysis()

	var g errgroup.Group
	for t := 0; t < max(1, s.cfg.Threads); t++ {
		g.Go(func() error {
			for {
				if s.shouldHalt(time.Since(start), budget, ponder) {
					return nil
				}
				if err := s.playSimulation(s.position.Clone()); err != nil {
					s.stopFlag.Store(true)
					return err
				}
			}
		})
	}
	return g.Wait()
}

func (s *Search) shouldHalt(elapsed, budget time.Duration, ponder bool) bool {
	if s.stopFlag.Load() {
		return true
	}
	if s.cfg.MaxTreeBytes > 0 && TreeBytes() > s.cfg.MaxTreeBytes {
		s.logger.Warn().Int64("tree_bytes", TreeBytes()).Msg("tree memory ceiling reached")
		return true
	}
	if ponder {
		return false
	}
	if s.RootVisits() >= s.cfg.MaxVisits {
		return true
	}
	if s.Playouts() >= s.cfg.MaxPlayouts {
		return true
	}
	if budget > 0 && elapsed >= budget {
		return true
	}
	return false
}

// sortedChildren orders root children best first: by visits, then by
// winrate among visited, then by prior among unvisited.
func (s *Search) sortedChildren(color game.Color) []*Edge {
	if s.root == nil || !s.root.Expanded() {
		return nil
	}
	children := append([]*Edge(nil), s.root.Children()...)
	sort.SliceStable(children, func(i, j int) bool {
		a, b := children[i], children[j]
		if a.Visits() != b.Visits() {
			return a.Visits() > b.Visits()
		}
		if a.Visits() == 0 {
			return a.Policy() > b.Policy()
		}
		return a.Eval(color, 0) > b.Eval(color, 0)
	})
	return children
}

// Candidates returns the visited root children, best first, with the
// static priors the strength-control layer consumes.
func (s *Search) Candidates(color game.Color) []ChildStat {
	var out []ChildStat
	for _, e := range s.sortedChildren(color) {
		if !e.Valid() || e.Visits() == 0 {
			continue
		}
		node := e.Get()
		stat := ChildStat{
			Move:    e.Move(),
			Visits:  e.Visits(),
			Winrate: e.Eval(color, 0),
			Prior:   e.Policy(),
		}
		if node != nil {
			stat.StaticSP = node.StaticSP()
		}
		out = append(out, stat)
	}
	return out
}

func (s *Search) selectBestMove(color game.Color, mode ThinkMode) int {
	children := s.sortedChildren(color)
	if len(children) == 0 {
		return game.Pass
	}

	best := children[0]
	if mode == NoPass && best.Move() == game.Pass {
		for _, e := range children[1:] {
			if e.Move() != game.Pass && e.Valid() && e.Visits() > 0 {
				best = e
				break
			}
		}
	}

	if s.cfg.RandomMoves > 0 && s.position.MoveNum() < s.cfg.RandomMoves {
		if e := s.randomizeProportionally(children); e != nil {
			best = e
		}
	}

	if best.Visits() > 0 && s.shouldResign(best.Eval(color, 0)) {
		return game.Resign
	}
	return best.Move()
}

// randomizeProportionally picks a root child weighted by visit count, for
// opening diversity in self-play.
func (s *Search) randomizeProportionally(children []*Edge) *Edge {
	total := 0
	for _, e := range children {
		if e.Valid() {
			total += e.Visits()
		}
	}
	if total == 0 {
		return nil
	}
	s.rngMu.Lock()
	pick := s.rng.Intn(total)
	s.rngMu.Unlock()
	for _, e := range children {
		if !e.Valid() {
			continue
		}
		pick -= e.Visits()
		if pick < 0 {
			return e
		}
	}
	return nil
}

func (s *Search) shouldResign(bestEval float64) bool {
	if s.cfg.ResignPercent < 0 {
		return false
	}
	if s.cfg.RandomMoves > 0 && s.position.MoveNum() <= s.cfg.RandomMoves {
		return false
	}
	if s.RootVisits() < s.cfg.ResignMinVisits {
		return false
	}
	return bestEval < float64(s.cfg.ResignPercent)/100.0
}

// PrincipalVariation follows most-visited children from a root child.
func (s *Search) PrincipalVariation(first *Edge, color game.Color) string {
	var moves []string
	moves = append(moves, game.FormatVertex(first.Move()))
	node := first.Get()
	for node != nil && node.Expanded() {
		var next *Edge
		bestVisits := 0
		for _, e := range node.Children() {
			if v := e.Visits(); v > bestVisits {
				bestVisits = v
				next = e
			}
		}
		if next == nil {
			break
		}
		moves = append(moves, game.FormatVertex(next.Move()))
		node = next.Get()
	}
	return strings.Join(moves, " ")
}

func (s *Search) logSearchResult(color game.Color, m SearchMetrics) {
	children := s.sortedChildren(color)
	ev := s.logger.Info().
		Int("visits", m.RootVisits).
		Int("playouts", m.Playouts).
		Dur("elapsed", m.Duration).
		Float64("pps", m.PlayoutsPerSecond()).
		Uint64("cache_hits", m.CacheHits).
		Uint64("cache_lookups", m.CacheTotal)
	if len(children) > 0 && children[0].Visits() > 0 {
		ev = ev.
			Str("best", game.FormatVertex(children[0].Move())).
			Float64("winrate", children[0].Eval(color, 0)).
			Str("pv", s.PrincipalVariation(children[0], color))
	}
	ev.Msg("search finished")
}

// startAnalysis launches the lz-analyze emitter if configured; the
// returned func stops it.
func (s *Search) startAnalysis(color game.Color) func() {
	s.analysisMu.Lock()
	w, interval := s.analysisWriter, s.analysisInterval
	s.analysisMu.Unlock()
	if w == nil || interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Duration(interval) * 10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fmt.Fprint(w, s.AnalysisLine(color))
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// AnalysisLine renders the lz-analyze info block for the current root.
func (s *Search) AnalysisLine(color game.Color) string {
	var sb strings.Builder
	order := 0
	for _, e := range s.sortedChildren(color) {
		if e.Visits() == 0 || !e.Valid() {
			continue
		}
		fmt.Fprintf(&sb, "info move %s visits %d winrate %d prior %d order %d pv %s ",
			game.FormatVertex(e.Move()),
			e.Visits(),
			int(e.Eval(color, 0)*10000),
			int(float64(e.Policy())*10000),
			order,
			s.PrincipalVariation(e, color))
		order++
	}
	if sb.Len() == 0 {
		return ""
	}
	return strings.TrimRight(sb.String(), " ") + "\n"
}
