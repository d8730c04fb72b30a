package query

import (
	"context"
	"strings"
	"time"

	"sensorquery/internal/aggregate"
	"sensorquery/internal/model"
)

// RawEngine is the specialized facade that always reads at native
// resolution: interval_ms=1000, aggregation=last (it returns original
// values, never a reduction). It holds a borrowed reference to the
// executor; it owns no state of its own.
type RawEngine struct {
	exec *Executor
}

// NewRawEngine returns a RawEngine over exec.
func NewRawEngine(exec *Executor) *RawEngine {
	return &RawEngine{exec: exec}
}

// Query runs a fixed-resolution raw query. When the naive point count
// (one row per second per sensor) would exceed max_absolute_datapoints,
// the window is pre-truncated before the read so the executor never has
// to downsample raw data away from its original values.
func (r *RawEngine) Query(ctx context.Context, sensors, assets []string, start, end time.Time) (model.Result, error) {
	maxPoints := r.exec.cfg.Query.MaxAbsoluteDatapoints
	perSensor := maxInt(maxPoints/maxInt(len(sensors), 1), 1)

	truncated := false
	if int64(end.Sub(start).Seconds())*int64(maxInt(len(sensors), 1)) > int64(maxPoints) {
		end = start.Add(time.Duration(perSensor) * time.Second)
		truncated = true
	}

	q := &model.Query{
		Sensors:       sensors,
		Assets:        assets,
		Start:         start,
		End:           end,
		IntervalMS:    1000,
		MaxDatapoints: maxPoints,
		Aggregation:   model.AggLast,
	}
	result, err := r.exec.Query(ctx, q)
	if err != nil {
		return result, err
	}
	if truncated {
		result.Truncated = true
		if result.ActualEndTime.IsZero() || result.ActualEndTime.After(end) {
			result.ActualEndTime = end
		}
	}
	return result, nil
}

// AggregatedEngine is the specialized facade that derives its interval
// automatically and prefers reading pre-computed companion columns
// (<metric>_mean/_min/_max) straight off the aggregated or daily tier,
// falling back to the general executor when no pre-computed batch covers
// the request.
type AggregatedEngine struct {
	exec *Executor
}

// NewAggregatedEngine returns an AggregatedEngine over exec.
func NewAggregatedEngine(exec *Executor) *AggregatedEngine {
	return &AggregatedEngine{exec: exec}
}

// Query runs the aggregated facade. method accepts "mean" as an alias for
// "avg". intervalMS == 0 derives the interval from maxDatapoints via the
// standard ladder; maxDatapoints <= 0 falls back to the configured default.
func (a *AggregatedEngine) Query(ctx context.Context, sensors, assets []string, start, end time.Time, intervalMS int64, maxDatapoints int, method string) (model.Result, error) {
	begin := time.Now()
	agg := model.ParseAggregation(method)
	if maxDatapoints <= 0 {
		maxDatapoints = a.exec.cfg.Query.DefaultMaxDatapoints
	}
	durationHours := end.Sub(start).Hours()
	if intervalMS <= 0 {
		perSensor := maxInt(maxDatapoints/maxInt(len(sensors), 1), 1)
		intervalMS = recommendedInterval(durationHours, perSensor)
	}

	tier := tierForPrecomputedRead(intervalMS, durationHours)
	precomputed := a.exec.attemptTier(ctx, sensors, assets, start, end, tier)
	if !precomputed.Empty() {
		projected := projectCompanionColumns(precomputed, agg)
		projected = filterToQuery(projected, &model.Query{Sensors: sensors, Assets: assets, Start: start, End: end})
		if !projected.Empty() {
			return model.Result{
				Data:               projected,
				TierUsed:           tier,
				ActualEndTime:      end,
				OriginalDatapoints: projected.Rows,
				ExecutionTimeMS:    elapsedMS(begin),
			}, nil
		}
	}

	q := &model.Query{
		Sensors:       sensors,
		Assets:        assets,
		Start:         start,
		End:           end,
		IntervalMS:    intervalMS,
		MaxDatapoints: maxDatapoints,
		Aggregation:   agg,
	}
	return a.exec.Query(ctx, q)
}

// EstimateDatapoints reports how many rows a raw read at intervalMS would
// produce over [start, end) for len(sensors) sensors, without executing
// the query.
func (a *AggregatedEngine) EstimateDatapoints(sensors []string, start, end time.Time, intervalMS int64) int {
	if intervalMS <= 0 {
		intervalMS = 1000
	}
	durationMS := end.Sub(start).Milliseconds()
	if durationMS <= 0 {
		return 0
	}
	perSensor := durationMS/intervalMS + 1
	return int(perSensor) * maxInt(len(sensors), 1)
}

// GetRecommendedInterval reports the interval the aggregated engine would
// choose for this request, without executing it.
func (a *AggregatedEngine) GetRecommendedInterval(sensors []string, start, end time.Time, maxDatapoints int) int64 {
	if maxDatapoints <= 0 {
		maxDatapoints = a.exec.cfg.Query.DefaultMaxDatapoints
	}
	perSensor := maxInt(maxDatapoints/maxInt(len(sensors), 1), 1)
	return recommendedInterval(end.Sub(start).Hours(), perSensor)
}

// tierForPrecomputedRead picks daily first, then the minute (aggregated)
// tier (interval checks inclusive, duration checks strict) — the deterministic ordering the
// overlapping thresholds in the original implementation left ambiguous.
// The daily tier stores both the hour- and day-granularity companion
// columns together, so "hourly" and "daily" reads both resolve here; only
// "minute" resolves to the distinct aggregated tier.
func tierForPrecomputedRead(intervalMS int64, durationHours float64) model.Tier {
	switch {
	case intervalMS >= 3600000 || durationHours > 168:
		return model.TierDaily
	case intervalMS >= 60000 || durationHours > 24:
		return model.TierDaily
	default:
		return model.TierAggregated
	}
}

// recommendedInterval walks the standard ladder for the smallest interval
// that keeps maxPointsPerSensor points across durationHours, without the
// aggregate package's early-exit for already-small inputs (the aggregated
// engine always derives an interval from the budget, never from a live
// row count). When even the largest ladder step (1h) exceeds the budget,
// that largest step is returned and the budget is not met.
func recommendedInterval(durationHours float64, maxPointsPerSensor int) int64 {
	if maxPointsPerSensor < 1 {
		maxPointsPerSensor = 1
	}
	durationMS := durationHours * 3600 * 1000
	minInterval := durationMS / float64(maxPointsPerSensor)
	for _, interval := range aggregate.StandardIntervalLadder {
		if float64(interval) >= minInterval {
			return interval
		}
	}
	return aggregate.StandardIntervalLadder[len(aggregate.StandardIntervalLadder)-1]
}

// companionSuffix maps a reduction method to the pre-computed companion
// column suffix the rebuilder writes. Only avg/min/max have a companion
// column; every other method has no pre-computed form and must fall back
// to the general executor.
func companionSuffix(agg model.Aggregation) (string, bool) {
	switch agg {
	case model.AggAvg:
		return "_mean", true
	case model.AggMin:
		return "_min", true
	case model.AggMax:
		return "_max", true
	default:
		return "", false
	}
}

// projectCompanionColumns extracts the <metric><suffix> numeric columns
// for agg's companion suffix and renames them back to <metric>, alongside
// the timestamp/sensor_name/asset_id columns. Returns an empty batch if
// agg has no companion column or none is present.
func projectCompanionColumns(b *model.Batch, agg model.Aggregation) *model.Batch {
	suffix, ok := companionSuffix(agg)
	if !ok {
		return model.NewBatch()
	}

	bd := model.NewBuilder()
	for i := 0; i < b.Rows; i++ {
		numerics := make(map[string]float64)
		for _, name := range b.NumericColumnNames() {
			if !strings.HasSuffix(name, suffix) {
				continue
			}
			metric := strings.TrimSuffix(name, suffix)
			if v, ok := b.NumericAt(name, i); ok {
				numerics[metric] = v
			}
		}
		if len(numerics) == 0 {
			continue
		}
		strs := make(map[string]string)
		if v, ok := b.StringAt("sensor_name", i); ok {
			strs["sensor_name"] = v
		}
		if v, ok := b.StringAt("asset_id", i); ok {
			strs["asset_id"] = v
		}
		var ts time.Time
		if timestamps := b.Timestamps(); i < len(timestamps) {
			ts = timestamps[i]
		}
		bd.AddRow(ts, strs, numerics)
	}
	return bd.Build()
}
