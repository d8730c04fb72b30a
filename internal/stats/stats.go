// Package stats holds the executor's atomic query counters and assembles
// the health report the operator-facing health check returns.
package stats

import (
	"sync"
	"sync/atomic"

	"sensorquery/internal/cache"
	"sensorquery/internal/model"
	"sensorquery/internal/storage"
)

// Counters accumulates query outcomes across the executor's lifetime.
// Counts are atomic; the execution-time sum is under its own mutex since
// float64 has no atomic add, matching the spec's "atomic or dedicated
// lock" latitude for the statistics surface.
type Counters struct {
	totalQueries atomic.Int64
	cacheHits    atomic.Int64
	tierUsage    [6]atomic.Int64 // indexed by model.Tier

	mu                   sync.Mutex
	totalExecutionTimeMS float64
}

// New returns a zeroed Counters.
func New() *Counters {
	return &Counters{}
}

// RecordQuery folds one query's outcome into the running totals. tier is
// the tier the Result actually reports (including TierCache, TierNone and
// TierError), durationMS is the wall-clock execution time, and cacheHit
// marks whether this query was served from cache.
func (c *Counters) RecordQuery(tier model.Tier, durationMS float64, cacheHit bool) {
	c.totalQueries.Add(1)
	if cacheHit {
		c.cacheHits.Add(1)
	}
	if int(tier) >= 0 && int(tier) < len(c.tierUsage) {
		c.tierUsage[tier].Add(1)
	}
	c.mu.Lock()
	c.totalExecutionTimeMS += durationMS
	c.mu.Unlock()
}

// Report is the derived, read-time view of Counters.
type Report struct {
	TotalQueries      int64
	CacheHits         int64
	HitRate           float64
	AverageLatencyMS  float64
	TierUsage         map[string]int64
}

// Snapshot computes a Report from the current counter values.
func (c *Counters) Snapshot() Report {
	total := c.totalQueries.Load()
	hits := c.cacheHits.Load()

	c.mu.Lock()
	totalTime := c.totalExecutionTimeMS
	c.mu.Unlock()

	var hitRate, avgLatency float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
		avgLatency = totalTime / float64(total)
	}

	usage := make(map[string]int64, len(c.tierUsage))
	for t := model.TierRaw; int(t) < len(c.tierUsage); t++ {
		if n := c.tierUsage[t].Load(); n > 0 || t <= model.TierError {
			usage[t.String()] = n
		}
	}

	return Report{
		TotalQueries:     total,
		CacheHits:        hits,
		HitRate:          hitRate,
		AverageLatencyMS: avgLatency,
		TierUsage:        usage,
	}
}

// HealthReport is the merged health view: overall status, one diagnostic
// per active backend, and the cache's current occupancy.
type HealthReport struct {
	Healthy  bool
	Backends map[string]storage.HealthStatus
	Cache    cache.Stats
}

// BuildHealth merges the given backend health statuses (already collected
// by the caller) with the cache's current stats. The report is unhealthy iff any backend reports unhealthy.
func BuildHealth(backendStatuses []storage.HealthStatus, cacheStats cache.Stats) HealthReport {
	backends := make(map[string]storage.HealthStatus, len(backendStatuses))
	healthy := true
	for _, hs := range backendStatuses {
		backends[hs.Backend] = hs
		if !hs.Healthy {
			healthy = false
		}
	}
	return HealthReport{Healthy: healthy, Backends: backends, Cache: cacheStats}
}
