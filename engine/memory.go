package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pbnjay/memory"

	"tengen/network"
	"tengen/searcher"
)

const MiB = int64(1024 * 1024)

const (
	// DefaultMaxMemoryMiB matches the shipped default ceiling.
	DefaultMaxMemoryMiB = 2048
	// MinTreeSpace is the least the search tree may be budgeted.
	MinTreeSpace = 100 * MiB
	// DefaultCacheRatioPercent of the post-network budget goes to the
	// evaluator caches.
	DefaultCacheRatioPercent = 10
)

// Estimated allocator and bookkeeping overhead on top of raw structure
// sizes.
const (
	overheadNum = 5
	overheadDen = 4
)

var (
	ErrNetworkMemory = errors.New("Not enough memory for network")
	ErrCacheMemory   = errors.New("Not enough memory for cache")
	ErrTreeMemory    = errors.New("Not enough memory for search tree")
)

func addOverhead(n int64) int64    { return n * overheadNum / overheadDen }
func removeOverhead(n int64) int64 { return n * overheadDen / overheadNum }

// Governor owns the memory ceiling: it splits the configured maximum
// between the evaluator caches and the search trees, resizes the caches,
// and reports the breakdown. Resizes are serialized here and must not
// overlap an active search; the engine guarantees that.
type Governor struct {
	mu         sync.Mutex
	maxMemory  int64 // bytes
	cacheRatio int   // percent
	clients    []*network.Client
}

// NewGovernor starts from the default ceiling, clamped to half the
// machine's physical memory when that is smaller.
func NewGovernor(clients ...*network.Client) *Governor {
	maxMem := DefaultMaxMemoryMiB * MiB
	if half := int64(memory.TotalMemory() / 2); half > 0 && half < maxMem {
		maxMem = half
	}
	return &Governor{
		maxMemory:  maxMem,
		cacheRatio: DefaultCacheRatioPercent,
		clients:    clients,
	}
}

// BaseMemory is the evaluators' resident footprint.
func (g *Governor) BaseMemory() int64 {
	var base int64
	for _, c := range g.clients {
		base += c.BaseSize()
	}
	return base
}

// MaxMemory returns the current ceiling in bytes.
func (g *Governor) MaxMemory() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxMemory
}

// CacheRatio returns the current cache percentage.
func (g *Governor) CacheRatio() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cacheRatio
}

// Apply recomputes the split for the given ceiling and ratio, resizes the
// caches and returns the tree budget (without overhead) for the search
// config. On error nothing is changed.
func (g *Governor) Apply(maxMemory int64, cacheRatioPercent int) (maxTreeBytes int64, msg string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if maxMemory == 0 {
		maxMemory = DefaultMaxMemoryMiB * MiB
	}
	base := g.BaseMemory()
	if maxMemory < base {
		return 0, "", fmt.Errorf("%w: %d MiB required", ErrNetworkMemory, base/MiB)
	}
	avail := maxMemory - base

	cacheBytes := avail * int64(cacheRatioPercent) / 100
	perCache := int(removeOverhead(cacheBytes) / network.EntrySize)
	if len(g.clients) > 0 {
		perCache /= len(g.clients)
	}
	if perCache < network.MinCacheCount {
		return 0, "", ErrCacheMemory
	}

	treeBytes := avail - cacheBytes
	if treeBytes < MinTreeSpace {
		return 0, "", ErrTreeMemory
	}

	for _, c := range g.clients {
		c.Cache().Resize(perCache)
	}
	g.maxMemory = maxMemory
	g.cacheRatio = cacheRatioPercent

	msg = fmt.Sprintf("Setting max tree size to %d MiB and cache size to %d MiB.",
		treeBytes/MiB, cacheBytes/MiB)
	return removeOverhead(treeBytes), msg, nil
}

// Report returns the estimated consumption breakdown in bytes.
func (g *Governor) Report() (base, tree, cache int64) {
	base = g.BaseMemory()
	tree = addOverhead(searcher.TreeBytes())
	for _, c := range g.clients {
		cache += addOverhead(c.Cache().EstimatedBytes())
	}
	return base, tree, cache
}
