// Command tengen is a GTP engine: a PUCT Monte-Carlo tree search over a
// policy/value evaluator, with a dual-tree strength-control layer picking
// the moves that are actually played.
package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
	"lukechampine.com/frand"

	"tengen/engine"
	"tengen/gtp"
	"tengen/network"
	"tengen/searcher"
)

func main() {
	var (
		weightsNominal string
		weightsStrong  string
		configFile     string
		threads        int
		visits         int
		playouts       int
		komi           float64
		resignPct      int
		lagBuffer      int
		openingMoves   int
		seed           uint64
		noise          bool
		noPonder       bool
		quiet          bool
	)

	flag.StringVarP(&weightsNominal, "weights", "w", "", "nominal-tree weights file (gzipped)")
	flag.StringVar(&weightsStrong, "weights-strong", "", "strong-tree weights file (defaults to --weights)")
	flag.StringVar(&configFile, "config", "", "YAML option file overlaying the defaults")
	flag.IntVarP(&threads, "threads", "t", runtime.NumCPU(), "number of search threads")
	flag.IntVarP(&visits, "visits", "v", 0, "visit budget per move, 0 for unlimited")
	flag.IntVarP(&playouts, "playouts", "p", 0, "playout budget per move, 0 for unlimited")
	flag.Float64Var(&komi, "komi", 7.5, "initial komi")
	flag.IntVarP(&resignPct, "resignpct", "r", -1, "resign when winrate drops below this percent, -1 disables")
	flag.IntVar(&lagBuffer, "lagbuffer", 100, "network lag allowance in centiseconds")
	flag.IntVar(&openingMoves, "opening-moves", 2, "strength-control opening override window")
	flag.Uint64VarP(&seed, "seed", "s", 0, "random seed, 0 picks one")
	flag.BoolVar(&noise, "noise", false, "enable Dirichlet noise at the root (self-play)")
	flag.BoolVar(&noPonder, "noponder", false, "disable thinking on the opponent's time")
	flag.BoolVarP(&quiet, "quiet", "q", false, "log warnings and errors only")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if quiet {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	if seed == 0 {
		seed = binary.LittleEndian.Uint64(frand.Bytes(8))
	}

	cfg := searcher.DefaultConfig()
	cfg.Threads = threads
	cfg.RNGSeed = seed
	cfg.ResignPercent = resignPct
	cfg.LagBufferCS = lagBuffer
	cfg.OpeningMoves = openingMoves
	cfg.NoiseEnabled = noise
	cfg.Ponder = !noPonder
	if visits > 0 {
		cfg.MaxVisits = visits
	}
	if playouts > 0 {
		cfg.MaxPlayouts = playouts
		cfg.Ponder = false
	}
	if configFile != "" {
		var err error
		cfg, err = searcher.LoadConfigFile(cfg, configFile)
		if err != nil {
			log.Fatal().Err(err).Msg("bad config file")
		}
	}

	nominalNet, err := loadEvaluator(weightsNominal)
	if err != nil {
		log.Fatal().Err(err).Str("path", weightsNominal).Msg("loading nominal weights")
	}
	strongPath := weightsStrong
	if strongPath == "" {
		strongPath = weightsNominal
	}
	strongNet, err := loadEvaluator(strongPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", strongPath).Msg("loading strong weights")
	}

	// Cache sizes here are provisional; the memory governor resizes them
	// from the configured ceiling as soon as the engine comes up.
	strongClient, err := network.NewClient(strongNet, 2*network.MinCacheCount, seed)
	if err != nil {
		log.Fatal().Err(err).Msg("strong evaluator client")
	}
	nominalClient, err := network.NewClient(nominalNet, 2*network.MinCacheCount, seed+1)
	if err != nil {
		log.Fatal().Err(err).Msg("nominal evaluator client")
	}

	eng, err := engine.New(cfg, strongClient, nominalClient, komi)
	if err != nil {
		log.Fatal().Err(err).Msg("engine init")
	}

	log.Info().
		Int("threads", cfg.Threads).
		Uint64("seed", seed).
		Str("weights", weightsNominal).
		Msg("tengen ready")

	if err := gtp.Run(os.Stdin, os.Stdout, eng); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadEvaluator reads a weights file, or falls back to the uniform
// evaluator when no path is given.
func loadEvaluator(path string) (network.Evaluator, error) {
	if path == "" {
		log.Warn().Msg("no weights file; using the built-in uniform evaluator")
		return network.NewUniform(), nil
	}
	return network.LoadWeights(path)
}
