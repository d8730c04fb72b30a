// Package rebuild recomputes the aggregated and daily tiers from raw data
// in time-bounded chunks, tolerating per-chunk failures without aborting
// the overall operation.
package rebuild

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"sensorquery/internal/aggregate"
	"sensorquery/internal/model"
	"sensorquery/internal/partition"
	"sensorquery/internal/query"
	"sensorquery/internal/storage"
)

const (
	minuteTierChunk = 24 * time.Hour
	hourTierChunk   = 7 * 24 * time.Hour

	// minSuccessRate is the fraction of chunks that must write successfully
	// for a tier rebuild to count as successful.
	minSuccessRate = 0.8

	rawInterval    = 1000
	minuteInterval = 60 * 1000
	hourIntervalMS = 3600 * 1000
)

// Target is the subset of a storage backend the rebuilder writes derived
// partitions to and reads existing ones from for coverage validation.
type Target interface {
	storage.Backend
	storage.Writer
}

// TierReport summarizes one tier's chunked rebuild.
type TierReport struct {
	ChunksTotal     int
	ChunksSucceeded int
	Success         bool
}

// Report is the outcome of one Rebuild call.
type Report struct {
	Minute TierReport
	Hour   TierReport
}

// Success reports whether both tiers met the success threshold.
func (r Report) Success() bool { return r.Minute.Success && r.Hour.Success }

// Rebuilder holds a borrowed reference to the executor it reads through and
// the backend it writes derived partitions to. It owns no cache or backend
// lifecycle of its own.
type Rebuilder struct {
	exec   *query.Executor
	target Target

	mu          sync.Mutex
	inProgress  bool
	lastRebuilt *time.Time
	lastReport  Report
}

// New returns a Rebuilder that reads through exec and writes to target.
func New(exec *query.Executor, target Target) *Rebuilder {
	return &Rebuilder{exec: exec, target: target}
}

type assetSensor struct {
	asset, sensor string
}

// Rebuild recomputes the aggregated and daily tiers for the requested
// sensors/assets over [start, end). A nil sensors or assets list is
// resolved by discovery; a zero start or end is resolved via the
// executor's time-range discovery.
func (r *Rebuilder) Rebuild(ctx context.Context, sensors, assets []string, start, end time.Time) (Report, error) {
	r.mu.Lock()
	r.inProgress = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.inProgress = false
		now := time.Now()
		r.lastRebuilt = &now
		r.mu.Unlock()
	}()

	pairs, err := r.resolvePairs(ctx, sensors, assets)
	if err != nil {
		return Report{}, err
	}
	if len(pairs) == 0 {
		log.Printf("[rebuild] no sensors found, nothing to rebuild")
		return Report{}, nil
	}

	if start.IsZero() || end.IsZero() {
		rangeStart, rangeEnd, err := r.exec.TimeRange(ctx, sensors, assets)
		if err != nil {
			return Report{}, err
		}
		if start.IsZero() {
			start = rangeStart
		}
		if end.IsZero() {
			end = rangeEnd
		}
	}
	if !end.After(start) {
		log.Printf("[rebuild] no data available for the requested range")
		return Report{}, nil
	}

	minute := r.rebuildTier(ctx, pairs, start, end, minuteTierChunk, r.rebuildMinuteChunk)
	hour := r.rebuildTier(ctx, pairs, start, end, hourTierChunk, r.rebuildHourChunk)

	report := Report{Minute: minute, Hour: hour}
	r.mu.Lock()
	r.lastReport = report
	r.mu.Unlock()

	if report.Success() {
		log.Printf("[rebuild] completed successfully")
	} else {
		log.Printf("[rebuild] completed with errors: minute=%d/%d hour=%d/%d",
			minute.ChunksSucceeded, minute.ChunksTotal, hour.ChunksSucceeded, hour.ChunksTotal)
	}
	return report, nil
}

// resolvePairs expands the requested sensors/assets into concrete
// (asset, sensor) pairs, discovering whichever side is unspecified.
func (r *Rebuilder) resolvePairs(ctx context.Context, sensors, assets []string) ([]assetSensor, error) {
	if len(assets) == 0 {
		discovered, err := r.exec.ListAssets(ctx)
		if err != nil {
			return nil, err
		}
		assets = discovered
	}

	var pairs []assetSensor
	for _, asset := range assets {
		assetSensors := sensors
		if len(assetSensors) == 0 {
			discovered, err := r.exec.ListSensors(ctx, asset)
			if err != nil {
				log.Printf("[rebuild] list_sensors failed for %s: %v", asset, err)
				continue
			}
			assetSensors = discovered
		}
		for _, sensor := range assetSensors {
			pairs = append(pairs, assetSensor{asset: asset, sensor: sensor})
		}
	}
	return pairs, nil
}

// chunkFunc processes one (asset, sensor) over one chunk window, reporting
// whether it produced and wrote data, or an error if the chunk failed
// outright. A chunk with no underlying data (wrote=false, err=nil) is not
// logged as a failure, but it counts toward the chunk total without
// counting as a success, so it lowers the tier's success rate.
type chunkFunc func(ctx context.Context, asset, sensor string, start, end time.Time) (wrote bool, err error)

// rebuildTier walks every (asset, sensor) pair across [start, end) in
// chunkSize windows, running fn per chunk. A chunk failure is logged and
// skipped; it never aborts the walk. The tier is deemed successful when at
// least minSuccessRate of chunks wrote data successfully.
func (r *Rebuilder) rebuildTier(ctx context.Context, pairs []assetSensor, start, end time.Time, chunkSize time.Duration, fn chunkFunc) TierReport {
	var total, succeeded int
	for _, p := range pairs {
		cursor := start
		for cursor.Before(end) {
			chunkEnd := cursor.Add(chunkSize)
			if chunkEnd.After(end) {
				chunkEnd = end
			}
			total++
			wrote, err := fn(ctx, p.asset, p.sensor, cursor, chunkEnd)
			if err != nil {
				log.Printf("[rebuild] chunk %s/%s [%s,%s) failed: %v", p.asset, p.sensor, cursor, chunkEnd, err)
			} else if wrote {
				succeeded++
			}
			cursor = chunkEnd
		}
	}
	rate := 1.0
	if total > 0 {
		rate = float64(succeeded) / float64(total)
	}
	return TierReport{ChunksTotal: total, ChunksSucceeded: succeeded, Success: rate >= minSuccessRate}
}

// rebuildMinuteChunk reads one 24h raw-tier window, reduces it to 1-minute
// mean/min/max companion columns, and writes the result into the
// aggregated tier.
func (r *Rebuilder) rebuildMinuteChunk(ctx context.Context, asset, sensor string, start, end time.Time) (bool, error) {
	q := &model.Query{
		Sensors:       []string{sensor},
		Assets:        []string{asset},
		Start:         start,
		End:           end,
		IntervalMS:    rawInterval,
		Aggregation:   model.AggLast,
		MaxDatapoints: int(end.Sub(start).Seconds()) + 10,
	}
	result, err := r.exec.Query(ctx, q)
	if err != nil {
		return false, err
	}
	if result.Data.Empty() {
		return false, nil
	}

	companion := createPreAggregatedData(result.Data, 60*1000)
	if companion.Empty() {
		return false, nil
	}
	if err := r.writePartitioned(ctx, model.TierAggregated, asset, sensor, companion); err != nil {
		return false, err
	}
	return true, nil
}

// rebuildHourChunk reads one 7-day window at minute resolution (preferring
// the aggregated tier, which the executor's own tier fallback already
// does), re-buckets it to 1h/avg, and writes the result into the daily
// tier.
func (r *Rebuilder) rebuildHourChunk(ctx context.Context, asset, sensor string, start, end time.Time) (bool, error) {
	q := &model.Query{
		Sensors:       []string{sensor},
		Assets:        []string{asset},
		Start:         start,
		End:           end,
		IntervalMS:    minuteInterval,
		Aggregation:   model.AggAvg,
		MaxDatapoints: int(end.Sub(start).Minutes()) + 10,
	}
	result, err := r.exec.Query(ctx, q)
	if err != nil {
		return false, err
	}
	if result.Data.Empty() {
		return false, nil
	}

	hourly := aggregate.AggregateByInterval(result.Data, hourIntervalMS, model.AggAvg)
	if hourly.Empty() {
		return false, nil
	}
	if err := r.writePartitioned(ctx, model.TierDaily, asset, sensor, hourly); err != nil {
		return false, err
	}
	return true, nil
}

// writePartitioned splits b's rows by tier's partition granularity and
// writes one partition file per group, overwriting whatever was there —
// rebuilds are idempotent with respect to identical inputs.
func (r *Rebuilder) writePartitioned(ctx context.Context, tier model.Tier, asset, sensor string, b *model.Batch) error {
	if b.Empty() {
		return nil
	}
	ts := b.Timestamps()
	groups := make(map[time.Time][]int)
	var order []time.Time
	for i, t := range ts {
		floor := partition.GranularityFloor(t, tier)
		if _, ok := groups[floor]; !ok {
			order = append(order, floor)
		}
		groups[floor] = append(groups[floor], i)
	}

	for _, floor := range order {
		sub := b.Select(groups[floor])
		path := partition.BuildPath(tier, asset, sensor, floor)
		if err := r.target.Write(ctx, path, sub); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// Status reports whether a rebuild is currently running and when the last
// one finished.
type Status struct {
	InProgress  bool
	LastRebuilt *time.Time
	LastReport  Report
}

// GetRebuildStatus returns the rebuilder's current state.
func (r *Rebuilder) GetRebuildStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{InProgress: r.inProgress, LastRebuilt: r.lastRebuilt, LastReport: r.lastReport}
}
