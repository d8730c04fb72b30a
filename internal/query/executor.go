// Package query implements the planner and executor that turn a Query into
// a Result: validation, cache lookup, tier selection with fallback, hybrid
// backend union, smart-aggregation post-processing, and point-budget
// enforcement.
package query

import (
	"context"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"sensorquery/internal/aggregate"
	"sensorquery/internal/cache"
	"sensorquery/internal/config"
	"sensorquery/internal/model"
	"sensorquery/internal/partition"
	"sensorquery/internal/stats"
	"sensorquery/internal/storage"
)

// backendHandle bundles one active backend with its bounded reader and
// partition index. The executor holds at most two: local and remote.
type backendHandle struct {
	name    string
	backend storage.Backend
	reader  *storage.Reader
	index   *partition.Index
}

// localIndexTTL and remoteIndexTTL are the asset-discovery cache lifetimes:
// short for local (cheap to re-list) and longer for remote (a network call
// per miss).
const (
	localIndexTTL  = 60 * time.Second
	remoteIndexTTL = 300 * time.Second
)

// Executor owns the cache and the active backends for one deployment.
// Specialized engines and the rebuilder hold a borrowed reference to it;
// there are no cyclic owners.
type Executor struct {
	cfg      config.Config
	cache    *cache.Cache
	counters *stats.Counters
	local    *backendHandle
	remote   *backendHandle
}

// NewExecutor wires an Executor from configuration and the backend(s)
// cfg.StorageMode calls for. Passing a nil backend for a mode that doesn't
// need it (e.g. remoteBackend when StorageMode is "local") is fine.
func NewExecutor(cfg config.Config, localBackend, remoteBackend storage.Backend, c *cache.Cache, counters *stats.Counters) *Executor {
	e := &Executor{cfg: cfg, cache: c, counters: counters}

	if localBackend != nil && (cfg.StorageMode == config.StorageModeLocal || cfg.StorageMode == config.StorageModeHybrid) {
		var verifier partition.ExistenceChecker
		if ec, ok := localBackend.(partition.ExistenceChecker); ok {
			verifier = ec
		}
		e.local = &backendHandle{
			name:    localBackend.Name(),
			backend: localBackend,
			reader:  storage.NewReader(localBackend, cfg.Query.MaxWorkers),
			index:   partition.New(localBackend, localIndexTTL, verifier),
		}
	}
	if remoteBackend != nil && (cfg.StorageMode == config.StorageModeRemote || cfg.StorageMode == config.StorageModeHybrid) {
		e.remote = &backendHandle{
			name:    remoteBackend.Name(),
			backend: remoteBackend,
			reader:  storage.NewReader(remoteBackend, cfg.Azure.MaxWorkers),
			index:   partition.New(remoteBackend, remoteIndexTTL, nil),
		}
	}
	return e
}

func (e *Executor) activeBackends() []*backendHandle {
	var out []*backendHandle
	if e.local != nil {
		out = append(out, e.local)
	}
	if e.remote != nil {
		out = append(out, e.remote)
	}
	return out
}

// Query runs the full planner/executor pipeline for q. Validation errors
// are returned to the caller; every other fault degrades to a Result with
// TierUsed == model.TierError, per the executor's never-propagate contract.
func (e *Executor) Query(ctx context.Context, q *model.Query) (model.Result, error) {
	begin := time.Now()

	if err := validateAndNormalize(e.cfg, q); err != nil {
		return model.Result{Data: model.NewBatch(), TierUsed: model.TierError, Error: err.Error()}, err
	}

	fp := cache.Fingerprint(q)
	if e.cache != nil {
		if batch, ok := e.cache.Get(fp); ok {
			result := model.Result{
				Data:               batch,
				TierUsed:           model.TierCache,
				CacheHit:           true,
				ExecutionTimeMS:    elapsedMS(begin),
				ActualEndTime:      q.End,
				OriginalDatapoints: batch.Rows,
			}
			e.counters.RecordQuery(model.TierCache, result.ExecutionTimeMS, true)
			return result, nil
		}
	}

	result := e.execute(ctx, q, begin)
	e.counters.RecordQuery(result.TierUsed, result.ExecutionTimeMS, false)

	if e.cache != nil && result.TierUsed != model.TierError {
		sizeMB := float64(estimateBatchBytes(result.Data)) / (1024 * 1024)
		if cache.ShouldCache(e.cfg.Cache.Enabled, e.cfg.Cache.SizeMB, len(q.Sensors), q.Duration().Hours(), sizeMB) {
			e.cache.Put(fp, result.Data)
		}
	}
	return result, nil
}

// execute is steps 3-7 of the planner: tier selection with fallback,
// hybrid union, smart-aggregation post-processing, and point-budget
// enforcement. Any panic during these steps is caught here and converted
// to an empty error Result rather than propagating to the caller.
func (e *Executor) execute(ctx context.Context, q *model.Query, begin time.Time) (result model.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[query] execution error: %v", r)
			result = model.Result{Data: model.NewBatch(), TierUsed: model.TierError, ExecutionTimeMS: elapsedMS(begin)}
		}
	}()

	durationHours := q.Duration().Hours()
	preferred := e.cfg.Tiers.TierFor(durationHours)

	batch := model.NewBatch()
	usedTier := model.TierNone
	for _, tier := range tierAttemptOrder(preferred) {
		candidate := e.attemptTier(ctx, q.NormalizedSensors(), q.NormalizedAssets(), q.Start, q.End, tier)
		if !candidate.Empty() {
			batch = candidate
			usedTier = tier
			break
		}
	}

	originalPoints := batch.Rows
	if e.cfg.Query.EnableSmartAggregation && !batch.Empty() {
		batch = aggregate.ApplySmartAggregation(batch, q.IntervalMS, q.MaxDatapoints, durationHours)
	}
	batch = filterToQuery(batch, q)

	truncated := false
	if batch.Rows > q.MaxDatapoints {
		batch = aggregate.DownsampleToMaxPoints(batch, q.MaxDatapoints, q.Aggregation)
		truncated = true
	}

	actualEnd := q.End
	if ts := batch.Timestamps(); len(ts) > 0 {
		if last := ts[len(ts)-1]; last.Before(actualEnd) {
			actualEnd = last
		}
	} else if truncated {
		actualEnd = q.Start
	}

	return model.Result{
		Data:               batch,
		TierUsed:           usedTier,
		ExecutionTimeMS:    elapsedMS(begin),
		Truncated:          truncated,
		ActualEndTime:      actualEnd,
		OriginalDatapoints: originalPoints,
	}
}

// tierAttemptOrder returns the fixed fallback sequence: preferred first,
// then the remaining tiers in {raw, aggregated, daily} order.
func tierAttemptOrder(preferred model.Tier) []model.Tier {
	order := []model.Tier{model.TierRaw, model.TierAggregated, model.TierDaily}
	out := make([]model.Tier, 0, len(order))
	out = append(out, preferred)
	for _, t := range order {
		if t != preferred {
			out = append(out, t)
		}
	}
	return out
}

// attemptTier reads tier's partitions from every active backend and, in
// hybrid mode, unions the results.
func (e *Executor) attemptTier(ctx context.Context, sensors, assets []string, start, end time.Time, tier model.Tier) *model.Batch {
	var remoteBatch, localBatch *model.Batch
	if e.remote != nil {
		remoteBatch = e.readFromBackend(ctx, e.remote, sensors, assets, start, end, tier)
	}
	if e.local != nil {
		localBatch = e.readFromBackend(ctx, e.local, sensors, assets, start, end, tier)
	}

	switch {
	case e.remote != nil && e.local != nil:
		return hybridUnion(remoteBatch, localBatch)
	case e.remote != nil:
		return remoteBatch
	case e.local != nil:
		return localBatch
	default:
		return model.NewBatch()
	}
}

func (e *Executor) readFromBackend(ctx context.Context, bh *backendHandle, sensors, assets []string, start, end time.Time, tier model.Tier) *model.Batch {
	paths, err := bh.index.Candidates(ctx, sensors, assets, start, end, tier)
	if err != nil {
		log.Printf("[query] %s: candidate discovery failed for %s tier: %v", bh.name, tier, err)
		return model.NewBatch()
	}
	return bh.reader.ReadMany(ctx, paths)
}

// hybridUnion concatenates remote ahead of local and deduplicates on
// (timestamp, sensor_name, asset_id), remote winning ties, then sorts the
// survivors by timestamp.
func hybridUnion(remote, local *model.Batch) *model.Batch {
	combined := model.Concat(remote, local)
	if combined.Empty() {
		return combined
	}
	ts := combined.Timestamps()
	seen := make(map[string]bool, combined.Rows)
	idx := make([]int, 0, combined.Rows)
	for i := 0; i < combined.Rows; i++ {
		var tsKey string
		if ts != nil {
			tsKey = strconv.FormatInt(ts[i].UnixNano(), 10)
		}
		sensor, _ := combined.StringAt("sensor_name", i)
		asset, _ := combined.StringAt("asset_id", i)
		key := tsKey + "\x00" + sensor + "\x00" + asset
		if seen[key] {
			continue
		}
		seen[key] = true
		idx = append(idx, i)
	}
	return combined.Select(idx).SortByTimestamp()
}

// filterToQuery restricts batch to rows within [q.Start, q.End) and,
// where the batch carries sensor_name/asset_id columns, to the requested
// sensors/assets. Tier reads are granularity-floored and so may return
// rows outside the exact requested window; this step trims them.
func filterToQuery(b *model.Batch, q *model.Query) *model.Batch {
	if b.Empty() {
		return b
	}
	ts := b.Timestamps()
	sensors := toSet(q.Sensors)
	assets := toSet(q.Assets)
	return b.Filter(func(i int) bool {
		if ts != nil {
			t := ts[i]
			if t.Before(q.Start) || !t.Before(q.End) {
				return false
			}
		}
		if len(sensors) > 0 {
			if name, ok := b.StringAt("sensor_name", i); ok && !sensors[name] {
				return false
			}
		}
		if len(assets) > 0 {
			if asset, ok := b.StringAt("asset_id", i); ok && !assets[asset] {
				return false
			}
		}
		return true
	})
}

func toSet(ss []string) map[string]bool {
	if len(ss) == 0 {
		return nil
	}
	out := make(map[string]bool, len(ss))
	for _, s := range ss {
		out[s] = true
	}
	return out
}

// estimateBatchBytes approximates the in-memory footprint of a batch for
// the cache admission policy: 8 bytes per numeric/timestamp cell, the
// actual length for strings.
func estimateBatchBytes(b *model.Batch) int64 {
	if b.Empty() {
		return 0
	}
	var total int64
	for _, col := range b.Columns {
		switch col.Kind {
		case model.ColumnTimestamp:
			total += int64(len(col.Timestamps)) * 8
		case model.ColumnNumeric:
			total += int64(len(col.Numerics)) * 8
		default:
			for _, s := range col.Strings {
				total += int64(len(s))
			}
		}
	}
	return total
}

func elapsedMS(since time.Time) float64 {
	return float64(time.Since(since).Microseconds()) / 1000.0
}

// ClearCache drops every cached result and its frequency tracking.
func (e *Executor) ClearCache() {
	if e.cache != nil {
		e.cache.ClearAll()
	}
}

// Stats returns the current query counters.
func (e *Executor) Stats() stats.Report {
	return e.counters.Snapshot()
}

// Health polls every active backend and merges it with the cache's
// current occupancy.
func (e *Executor) Health(ctx context.Context) stats.HealthReport {
	var statuses []storage.HealthStatus
	for _, bh := range e.activeBackends() {
		statuses = append(statuses, bh.backend.Health(ctx))
	}
	var cacheStats cache.Stats
	if e.cache != nil {
		cacheStats = e.cache.Stats()
	}
	return stats.BuildHealth(statuses, cacheStats)
}

// ListAssets returns every asset discovered across active backends' raw
// partitions, sorted.
func (e *Executor) ListAssets(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, bh := range e.activeBackends() {
		assets, err := bh.index.DiscoverAssets(ctx, model.TierRaw)
		if err != nil {
			log.Printf("[query] %s: list_assets failed: %v", bh.name, err)
			continue
		}
		for _, a := range assets {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListSensors returns every distinct sensor name discovered under asset
// (or across all assets, if asset is empty), sorted.
func (e *Executor) ListSensors(ctx context.Context, asset string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, bh := range e.activeBackends() {
		paths, err := bh.backend.List(ctx, asset)
		if err != nil {
			log.Printf("[query] %s: list_sensors failed: %v", bh.name, err)
			continue
		}
		for _, p := range paths {
			sensor := partition.SensorFromPath(p)
			if sensor != "" && !seen[sensor] {
				seen[sensor] = true
				out = append(out, sensor)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// TimeRange returns the earliest and latest instants covered by raw
// partitions matching sensors/assets (all assets if assets is empty). The
// upper bound is each matching partition's floor time stepped forward by
// one granularity unit, an upper estimate of the data it covers.
func (e *Executor) TimeRange(ctx context.Context, sensors, assets []string) (time.Time, time.Time, error) {
	if len(assets) == 0 {
		discovered, err := e.ListAssets(ctx)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		assets = discovered
	}
	sensorSet := toSet(sensors)

	var minT, maxT time.Time
	found := false
	for _, bh := range e.activeBackends() {
		for _, asset := range assets {
			paths, err := bh.backend.List(ctx, asset)
			if err != nil {
				log.Printf("[query] %s: time_range listing failed for %s: %v", bh.name, asset, err)
				continue
			}
			for _, p := range paths {
				if len(sensorSet) > 0 && !sensorSet[partition.SensorFromPath(p)] {
					continue
				}
				floor, ok := partition.ParsePathTime(p)
				if !ok {
					continue
				}
				tier := partition.TierOfPath(p)
				ceiling := partition.GranularityStep(floor, tier)
				if !found || floor.Before(minT) {
					minT = floor
				}
				if !found || ceiling.After(maxT) {
					maxT = ceiling
				}
				found = true
			}
		}
	}
	return minT, maxT, nil
}

// StorageStats reports how many partition files exist per sensor and per
// asset across every active backend, plus the overall total.
func (e *Executor) StorageStats(ctx context.Context) StorageStats {
	result := StorageStats{BySensor: map[string]int{}, ByAsset: map[string]int{}}
	for _, bh := range e.activeBackends() {
		paths, err := bh.backend.List(ctx, "")
		if err != nil {
			log.Printf("[query] %s: storage_stats listing failed: %v", bh.name, err)
			continue
		}
		for _, p := range paths {
			result.TotalFiles++
			result.BySensor[partition.SensorFromPath(p)]++
			result.ByAsset[assetFromPath(p)]++
		}
	}
	return result
}

// assetFromPath extracts the leading asset-id path segment, skipping a
// leading tier-prefix literal if present.
func assetFromPath(path string) string {
	segs := strings.Split(path, "/")
	if len(segs) > 0 && (segs[0] == "aggregated" || segs[0] == "daily") {
		segs = segs[1:]
	}
	if len(segs) == 0 {
		return ""
	}
	return segs[0]
}

// StorageStats is the per-sensor/per-asset partition file count snapshot
// returned by Executor.StorageStats.
type StorageStats struct {
	TotalFiles int
	BySensor   map[string]int
	ByAsset    map[string]int
}
