// Package searcher implements the PUCT Monte-Carlo tree search: the
// lock-free expandable tree, the parallel playout loop with virtual-loss
// coordination, root preparation with tree reuse, time management and the
// dual-tree strength-control move selection.
package searcher

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// UnlimitedBudget disables a visit or playout limit.
const UnlimitedBudget = math.MaxInt32

// Config carries every search tunable. It is built once at startup and
// passed by value; nothing in the engine mutates a shared config.
type Config struct {
	Threads     int    `yaml:"threads"`
	MaxVisits   int    `yaml:"visits"`
	MaxPlayouts int    `yaml:"playouts"`
	RNGSeed     uint64 `yaml:"seed"`

	Puct             float64 `yaml:"puct"`
	FpuReduction     float64 `yaml:"fpu_reduction"`
	FpuRootReduction float64 `yaml:"fpu_root_reduction"`

	NoiseEnabled bool    `yaml:"noise"`
	NoiseEpsilon float64 `yaml:"noise_epsilon"`
	NoiseAlpha   float64 `yaml:"noise_alpha"`

	// ResignPercent below 0 disables resignation entirely.
	ResignPercent   int `yaml:"resign_percent"`
	ResignMinVisits int `yaml:"resign_min_visits"`
	// RandomMoves is the opening window with randomized move selection
	// (self-play); resignation is suppressed inside it.
	RandomMoves int `yaml:"random_moves"`

	// OpeningMoves is the strength-control override window: up to this
	// move number the nominal tree's best move is played unconditionally.
	OpeningMoves int `yaml:"opening_moves"`

	Ponder      bool `yaml:"ponder"`
	LagBufferCS int  `yaml:"lagbuffer"`

	// MaxTreeBytes caps the estimated tree footprint; the memory governor
	// derives it from the overall memory ceiling.
	MaxTreeBytes int64 `yaml:"-"`
}

// DefaultConfig mirrors the engine's shipped defaults.
func DefaultConfig() Config {
	return Config{
		Threads:          1,
		MaxVisits:        UnlimitedBudget,
		MaxPlayouts:      UnlimitedBudget,
		Puct:             0.8,
		FpuReduction:     0.25,
		FpuRootReduction: 0.25,
		NoiseEpsilon:     0.25,
		NoiseAlpha:       0.03,
		ResignPercent:    -1,
		ResignMinVisits:  100,
		OpeningMoves:     2,
		Ponder:           true,
		LagBufferCS:      100,
	}
}

// LoadConfigFile overlays a YAML option file onto cfg.
func LoadConfigFile(cfg Config, path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}
