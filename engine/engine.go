// Package engine orchestrates the two search trees over one game: the
// strong tree decides how good moves are, the nominal tree anchors the
// opening, and the strength-control rules blend them into the move that
// is actually played.
package engine

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"tengen/game"
	"tengen/network"
	"tengen/searcher"
)

// Engine is the protocol-facing façade: one game state, two search
// controllers and the memory governor. All entry points are serialized;
// concurrency lives inside the searches.
type Engine struct {
	mu sync.Mutex

	cfg      searcher.Config
	state    *game.State
	strong   *searcher.Search
	nominal  *searcher.Search
	governor *Governor

	timeControl *searcher.TimeControl

	// moveCounter counts generated moves; the strength-control opening
	// override keys off it.
	moveCounter int

	ponderCancel context.CancelFunc
	ponderDone   chan struct{}
}

// New wires an engine from one config and the two evaluator clients.
// The memory split is applied immediately so a too-small ceiling fails at
// startup, not mid-game.
func New(cfg searcher.Config, strongClient, nominalClient *network.Client, komi float64) (*Engine, error) {
	e := &Engine{
		cfg:         cfg,
		state:       game.NewState(komi),
		governor:    NewGovernor(strongClient, nominalClient),
		timeControl: searcher.NewTimeControl(30*60*100, 0, 0, 0),
	}
	maxTree, msg, err := e.governor.Apply(e.governor.MaxMemory(), e.governor.CacheRatio())
	if err != nil {
		return nil, err
	}
	log.Info().Msg(msg)
	e.cfg.MaxTreeBytes = maxTree

	e.strong = searcher.NewSearch("strong", e.cfg, strongClient, e.state)
	e.nominal = searcher.NewSearch("nominal", e.cfg, nominalClient, e.state)
	e.strong.SetTimeControl(e.timeControl)
	e.nominal.SetTimeControl(e.timeControl)
	return e, nil
}

// State exposes the live game for the protocol layer. Callers must not
// mutate it while a search runs; the GTP loop stops pondering first.
func (e *Engine) State() *game.State {
	return e.state
}

// Config returns the current tunables.
func (e *Engine) Config() searcher.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func (e *Engine) syncSearches() {
	e.strong.SetPosition(e.state)
	e.nominal.SetPosition(e.state)
	searcher.SetTreeNodes(e.strong.RecountTree() + e.nominal.RecountTree())
}

func (e *Engine) applyConfig() {
	e.strong.SetConfig(e.cfg)
	e.nominal.SetConfig(e.cfg)
}

// ClearBoard resets the game and drops both trees.
func (e *Engine) ClearBoard() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Reset(e.state.Komi())
	e.moveCounter = 0
	e.syncSearches()
}

// SetKomi changes komi; cached evaluations keyed on the old komi simply
// stop matching.
func (e *Engine) SetKomi(komi float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.SetKomi(komi)
	e.syncSearches()
}

// Play applies an external move ("play" command).
func (e *Engine) Play(colorStr, vertexStr string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.state.PlayTextMove(colorStr, vertexStr); err != nil {
		return err
	}
	e.syncSearches()
	return nil
}

// Undo reverts one move.
func (e *Engine) Undo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Undo() {
		return false
	}
	e.syncSearches()
	return true
}

// Replace swaps in a state loaded from SGF.
func (e *Engine) Replace(state *game.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = state
	e.moveCounter = state.MoveNum()
	e.syncSearches()
}

// GenMoveOptions alters a single generation.
type GenMoveOptions struct {
	// Cleanup forbids passing while alternatives exist.
	Cleanup bool
	// AnalysisWriter streams lz-genmove_analyze info lines when set.
	AnalysisWriter io.Writer
	// AnalysisIntervalCS is the emission interval in centiseconds.
	AnalysisIntervalCS int
}

// GenMove runs both searches and plays the strength-controlled choice.
func (e *Engine) GenMove(color game.Color, opts GenMoveOptions) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.moveCounter++
	e.state.SetToMove(color)
	e.syncSearches()

	mode := searcher.Normal
	if opts.Cleanup {
		mode = searcher.NoPass
	}

	e.strong.SetAnalysis(opts.AnalysisWriter, opts.AnalysisIntervalCS)
	defer e.strong.SetAnalysis(nil, 0)

	strongMove, err := e.strong.Think(color, mode)
	if err != nil {
		return game.Pass, err
	}
	if opts.AnalysisWriter != nil {
		// Short searches can finish before the first interval tick; the
		// analyze consumers still expect at least one info block.
		fmt.Fprint(opts.AnalysisWriter, e.strong.AnalysisLine(color))
	}
	if _, err := e.nominal.Think(color, mode); err != nil {
		return game.Pass, err
	}

	move := searcher.SelectStrengthMove(
		e.strong.Candidates(color),
		e.nominal.Candidates(color),
		e.moveCounter,
		e.cfg.OpeningMoves,
	)
	// Resignation is the strong controller's call and overrides blending.
	if strongMove == game.Resign {
		move = game.Resign
	}
	if move != game.Resign && move != game.Pass && !e.state.IsLegal(color, move) {
		// Both trees only propose legal moves; anything else is a broken
		// invariant, not a recoverable state.
		panic(fmt.Sprintf("search selected illegal move %s", game.FormatVertex(move)))
	}

	e.state.PlayMove(color, move)
	e.syncSearches()
	log.Info().
		Str("color", color.String()).
		Str("move", game.FormatVertex(move)).
		Int("move_counter", e.moveCounter).
		Msg("move generated")
	return move, nil
}

// StartPonder begins background search on the strong tree if enabled.
func (e *Engine) StartPonder() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.cfg.Ponder || e.state.GameOver() || e.ponderCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.ponderCancel = cancel
	e.ponderDone = make(chan struct{})
	e.strong.SetPosition(e.state)
	go func(done chan struct{}) {
		defer close(done)
		if err := e.strong.Ponder(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("ponder failed")
		}
	}(e.ponderDone)
}

// StopPonder cancels background search and waits for the workers to
// drain; the tree keeps everything it learned.
func (e *Engine) StopPonder() {
	e.mu.Lock()
	cancel, done := e.ponderCancel, e.ponderDone
	e.ponderCancel, e.ponderDone = nil, nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	e.strong.Stop()
	<-done
}

// Analyze ponders with streaming output until the context is cancelled
// (lz-analyze).
func (e *Engine) Analyze(ctx context.Context, color game.Color, w io.Writer, intervalCS int) error {
	e.mu.Lock()
	e.state.SetToMove(color)
	e.strong.SetPosition(e.state)
	e.strong.SetAnalysis(w, intervalCS)
	e.mu.Unlock()
	defer e.strong.SetAnalysis(nil, 0)
	err := e.strong.Ponder(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// TimeSettings installs a fresh clock (time_settings family).
func (e *Engine) TimeSettings(mainCS, byoCS, byoStones, byoPeriods int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeControl = searcher.NewTimeControl(mainCS, byoCS, byoStones, byoPeriods)
	e.strong.SetTimeControl(e.timeControl)
	e.nominal.SetTimeControl(e.timeControl)
}

// TimeLeft applies a GTP clock report.
func (e *Engine) TimeLeft(color game.Color, timeCS, stones int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeControl.AdjustTime(color, timeCS, stones)
}

// MemoryReport returns the breakdown in bytes.
func (e *Engine) MemoryReport() (base, tree, cache int64) {
	return e.governor.Report()
}

// SetMaxMemory revalidates the split for a new ceiling in MiB.
func (e *Engine) SetMaxMemory(maxMiB int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	maxTree, msg, err := e.governor.Apply(int64(maxMiB)*MiB, e.governor.CacheRatio())
	if err != nil {
		return "", err
	}
	e.cfg.MaxTreeBytes = maxTree
	e.applyConfig()
	return msg, nil
}

// SetCacheRatio revalidates the split for a new cache percentage.
func (e *Engine) SetCacheRatio(percent int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	maxTree, msg, err := e.governor.Apply(e.governor.MaxMemory(), percent)
	if err != nil {
		return "", err
	}
	e.cfg.MaxTreeBytes = maxTree
	e.applyConfig()
	return msg, nil
}

// SetVisits caps root visits; 0 means unlimited.
func (e *Engine) SetVisits(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n == 0 {
		n = searcher.UnlimitedBudget
	}
	e.cfg.MaxVisits = n
	e.applyConfig()
}

// SetPlayouts caps playouts per search; rejected while pondering is on,
// since a playout budget is meaningless with a background search running.
func (e *Engine) SetPlayouts(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n == 0 {
		n = searcher.UnlimitedBudget
	} else if e.cfg.Ponder {
		return fmt.Errorf("playout limit requires pondering off")
	}
	e.cfg.MaxPlayouts = n
	e.applyConfig()
	return nil
}

// SetLagBuffer adjusts the network-lag allowance in centiseconds.
func (e *Engine) SetLagBuffer(cs int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.LagBufferCS = cs
	e.applyConfig()
}

// SetPondering toggles background search; enabling it clashes with a
// finite playout budget.
func (e *Engine) SetPondering(on bool) error {
	e.mu.Lock()
	if on && e.cfg.MaxPlayouts != searcher.UnlimitedBudget {
		e.mu.Unlock()
		return fmt.Errorf("pondering requires an unlimited playout budget")
	}
	e.cfg.Ponder = on
	e.applyConfig()
	e.mu.Unlock()
	if !on {
		e.StopPonder()
	}
	return nil
}

// SetResignPercent updates the resignation threshold; -1 disables.
func (e *Engine) SetResignPercent(p int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.ResignPercent = p
	e.applyConfig()
}
