package network

import (
	"sync"

	"golang.org/x/exp/rand"

	"tengen/game"
)

// Client is the search's view of an evaluator: it applies the ensemble
// mode, consults the result cache, and keeps the raw network out of the
// hot path where possible.
type Client struct {
	net   Evaluator
	cache *Cache

	mu  sync.Mutex
	rng *rand.Rand
}

// NewClient wraps an evaluator with a cache of maxCacheCount entries.
// seed fixes the random-symmetry stream.
func NewClient(net Evaluator, maxCacheCount int, seed uint64) (*Client, error) {
	cache, err := NewCache(maxCacheCount)
	if err != nil {
		return nil, err
	}
	return &Client{
		net:   net,
		cache: cache,
		rng:   rand.New(rand.NewSource(seed)),
	}, nil
}

// Cache exposes the result cache to the memory governor.
func (c *Client) Cache() *Cache {
	return c.cache
}

// BaseSize is the wrapped evaluator's resident footprint.
func (c *Client) BaseSize() int64 {
	return c.net.EstimatedSize()
}

// Evaluate runs one ensemble evaluation. symmetry is only used with
// Direct. Results are cached per (position, symmetry); Average bypasses
// the cache since it already touches every symmetry.
func (c *Client) Evaluate(pos *game.State, mode Ensemble, symmetry int) (*Result, error) {
	switch mode {
	case RandomSymmetry:
		c.mu.Lock()
		symmetry = c.rng.Intn(game.NumSymmetries)
		c.mu.Unlock()
	case Average:
		return c.evaluateAverage(pos)
	}

	key := cacheKey(pos.SymmetryHash(symmetry), pos.Komi(), int(pos.ToMove()), pos.Passes())
	if r, ok := c.cache.Lookup(key); ok {
		return r, nil
	}
	r, err := c.net.Forward(pos, symmetry)
	if err != nil {
		return nil, err
	}
	c.cache.Insert(key, &r)
	return &r, nil
}

func (c *Client) evaluateAverage(pos *game.State) (*Result, error) {
	var acc Result
	for sym := 0; sym < game.NumSymmetries; sym++ {
		r, err := c.net.Forward(pos, sym)
		if err != nil {
			return nil, err
		}
		for i := range acc.Policy {
			acc.Policy[i] += r.Policy[i]
		}
		acc.PolicyPass += r.PolicyPass
		acc.Winrate += r.Winrate
	}
	n := float32(game.NumSymmetries)
	for i := range acc.Policy {
		acc.Policy[i] /= n
	}
	acc.PolicyPass /= n
	acc.Winrate /= n
	return &acc, nil
}
