package network

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cespare/xxhash"
	"github.com/dgraph-io/ristretto/v2"

	"tengen/game"
)

// EntrySize is the estimated resident size of one cached Result, used by
// the memory governor to translate a byte budget into an entry count.
const EntrySize = int64(4*(game.NumIntersections+2) + 64)

// MinCacheCount is the smallest cache the governor will accept.
const MinCacheCount = 6000

// Cache is the content-addressed evaluation cache. Hits are counted for
// reporting but never feed back into search statistics.
type Cache struct {
	inner    *ristretto.Cache[uint64, *Result]
	maxCount atomic.Int64
	hits     atomic.Uint64
	lookups  atomic.Uint64
}

// NewCache builds a cache bounded to maxCount entries.
func NewCache(maxCount int) (*Cache, error) {
	if maxCount < MinCacheCount {
		return nil, fmt.Errorf("cache of %d entries is below the minimum of %d", maxCount, MinCacheCount)
	}
	inner, err := ristretto.NewCache(&ristretto.Config[uint64, *Result]{
		NumCounters: int64(maxCount) * 10,
		MaxCost:     int64(maxCount),
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	c := &Cache{inner: inner}
	c.maxCount.Store(int64(maxCount))
	return c, nil
}

// Resize changes the entry budget in place. Must not be called while a
// search is running; the memory governor serializes this.
func (c *Cache) Resize(maxCount int) {
	c.inner.UpdateMaxCost(int64(maxCount))
	c.maxCount.Store(int64(maxCount))
}

// MaxCount returns the current entry budget.
func (c *Cache) MaxCount() int {
	return int(c.maxCount.Load())
}

// EstimatedBytes is the worst-case footprint at the current budget.
func (c *Cache) EstimatedBytes() int64 {
	return c.maxCount.Load() * EntrySize
}

func (c *Cache) Lookup(key uint64) (*Result, bool) {
	c.lookups.Add(1)
	r, ok := c.inner.Get(key)
	if ok {
		c.hits.Add(1)
	}
	return r, ok
}

func (c *Cache) Insert(key uint64, r *Result) {
	c.inner.Set(key, r, 1)
}

// Stats returns lifetime hits and lookups.
func (c *Cache) Stats() (hits, lookups uint64) {
	return c.hits.Load(), c.lookups.Load()
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.inner.Clear()
}

// cacheKey mixes everything a cached result depends on: the stone hash
// under the requested symmetry, komi, side to move and pass count.
func cacheKey(symHash uint64, komi float64, toMove int, passes int) uint64 {
	var buf [26]byte
	binary.LittleEndian.PutUint64(buf[0:], symHash)
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(komi))
	buf[16] = byte(toMove)
	binary.LittleEndian.PutUint64(buf[17:], uint64(passes))
	return xxhash.Sum64(buf[:])
}
