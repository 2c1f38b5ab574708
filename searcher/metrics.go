package searcher

import (
	"sync/atomic"
	"time"
)

// SearchMetrics summarises one completed search for logging and the
// analyze commands.
type SearchMetrics struct {
	StartTime  time.Time
	Duration   time.Duration
	Playouts   int
	RootVisits int
	TreeReused bool
	CacheHits  uint64
	CacheTotal uint64
}

// PlayoutsPerSecond is derived, guarded against zero duration.
func (m SearchMetrics) PlayoutsPerSecond() float64 {
	secs := m.Duration.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(m.Playouts) / secs
}

type metricsCollector struct {
	startTime  time.Time
	treeReused atomic.Bool
	cacheHits0 uint64
	cacheTot0  uint64
}

func (m *metricsCollector) start(cacheHits, cacheTotal uint64) {
	m.startTime = time.Now()
	m.treeReused.Store(false)
	m.cacheHits0 = cacheHits
	m.cacheTot0 = cacheTotal
}

func (m *metricsCollector) complete(playouts, rootVisits int, cacheHits, cacheTotal uint64) SearchMetrics {
	return SearchMetrics{
		StartTime:  m.startTime,
		Duration:   time.Since(m.startTime),
		Playouts:   playouts,
		RootVisits: rootVisits,
		TreeReused: m.treeReused.Load(),
		CacheHits:  cacheHits - m.cacheHits0,
		CacheTotal: cacheTotal - m.cacheTot0,
	}
}
