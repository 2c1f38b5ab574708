package network

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"math"
	"os"
	"strconv"

	"tengen/game"
)

// Linear is the built-in fallback evaluator: a per-vertex policy bias
// table and a logistic value head over stone difference and komi. It
// exists so the engine runs end to end without an external network; it is
// not a strong evaluator and does not try to be.
type Linear struct {
	policyBias [game.NumIntersections]float32
	passBias   float32
	valueStone float64
	valueKomi  float64
	valueBias  float64
	size       int64
}

// NewUniform returns an evaluator with a flat policy and a 0.5 value,
// independent of the position. Deterministic searches in tests use it.
func NewUniform() *Linear {
	l := &Linear{valueStone: 0, valueKomi: 0, valueBias: 0}
	l.size = int64(4 * (game.NumIntersections + 8))
	return l
}

// LoadWeights reads a gzipped text weights file: a version line, one
// policy bias per intersection, the pass bias, then the three value-head
// weights (stone difference, komi, bias).
func LoadWeights(path string) (*Linear, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening weights: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("weights file is not gzip: %w", err)
	}
	defer gz.Close()

	sc := bufio.NewScanner(gz)
	sc.Split(bufio.ScanWords)
	next := func() (float64, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return 0, err
			}
			return 0, fmt.Errorf("weights file truncated")
		}
		return strconv.ParseFloat(sc.Text(), 64)
	}

	version, err := next()
	if err != nil {
		return nil, err
	}
	if int(version) != 1 {
		return nil, fmt.Errorf("unsupported weights version %d", int(version))
	}

	l := &Linear{}
	for i := range l.policyBias {
		w, err := next()
		if err != nil {
			return nil, err
		}
		l.policyBias[i] = float32(w)
	}
	pass, err := next()
	if err != nil {
		return nil, err
	}
	l.passBias = float32(pass)
	for _, dst := range []*float64{&l.valueStone, &l.valueKomi, &l.valueBias} {
		w, err := next()
		if err != nil {
			return nil, err
		}
		*dst = w
	}
	if fi, err := f.Stat(); err == nil {
		l.size = fi.Size() * 4 // decompressed float tables
	}
	return l, nil
}

func (l *Linear) EstimatedSize() int64 {
	if l.size == 0 {
		return int64(4 * (game.NumIntersections + 8))
	}
	return l.size
}

// Forward computes a softmax over the (symmetry-transformed) policy table
// and a logistic value from the side to move's perspective.
func (l *Linear) Forward(pos *game.State, symmetry int) (Result, error) {
	var r Result

	// Softmax over the bias table, read through the symmetry so the
	// ensemble modes behave as they would with a real network.
	maxBias := l.passBias
	logits := make([]float32, game.NumIntersections)
	for i := 0; i < game.NumIntersections; i++ {
		x, y := i%game.BoardSize, i/game.BoardSize
		v := game.SymmetryVertex(game.Vertex(x, y), symmetry)
		sx, sy := game.VertexXY(v)
		logits[i] = l.policyBias[sy*game.BoardSize+sx]
		if logits[i] > maxBias {
			maxBias = logits[i]
		}
	}
	var sum float64
	for i, lg := range logits {
		e := math.Exp(float64(lg - maxBias))
		r.Policy[i] = float32(e)
		sum += e
	}
	passExp := math.Exp(float64(l.passBias - maxBias))
	sum += passExp
	for i := range r.Policy {
		r.Policy[i] = float32(float64(r.Policy[i]) / sum)
	}
	r.PolicyPass = float32(passExp / sum)

	// Value head: stone difference and komi, flipped to the mover.
	diff := 0.0
	for v := 0; v < game.NumVertices; v++ {
		switch pos.Stone(v) {
		case game.Black:
			diff++
		case game.White:
			diff--
		}
	}
	netKomi := pos.Komi() + float64(pos.Handicap())
	if pos.ToMove() == game.White {
		diff, netKomi = -diff, -netKomi
	}
	z := l.valueStone*diff - l.valueKomi*netKomi + l.valueBias
	r.Winrate = float32(1.0 / (1.0 + math.Exp(-z)))
	return r, nil
}
