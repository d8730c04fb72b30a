package rebuild

import (
	"fmt"
	"time"

	"sensorquery/internal/aggregate"
	"sensorquery/internal/model"
)

// createPreAggregatedData buckets raw rows into intervalMS-wide windows and
// produces, for every numeric metric column, the <metric>_mean,
// <metric>_min and <metric>_max companion columns the aggregated/daily
// tiers are read from (internal/query's AggregatedEngine projects these
// back to a bare <metric> column at read time).
func createPreAggregatedData(b *model.Batch, intervalMS int64) *model.Batch {
	if b.Empty() {
		return b
	}

	mean := aggregate.AggregateByInterval(b, intervalMS, model.AggAvg)
	min := aggregate.AggregateByInterval(b, intervalMS, model.AggMin)
	max := aggregate.AggregateByInterval(b, intervalMS, model.AggMax)
	if mean.Empty() {
		return model.NewBatch()
	}

	minByKey := indexBucketsByKey(min)
	maxByKey := indexBucketsByKey(max)

	metrics := mean.NumericColumnNames()
	bd := model.NewBuilder()
	meanTS := mean.Timestamps()
	for i := 0; i < mean.Rows; i++ {
		strs := map[string]string{}
		var sensor, asset string
		if v, ok := mean.StringAt("sensor_name", i); ok {
			strs["sensor_name"] = v
			sensor = v
		}
		if v, ok := mean.StringAt("asset_id", i); ok {
			strs["asset_id"] = v
			asset = v
		}
		var ts time.Time
		if i < len(meanTS) {
			ts = meanTS[i]
		}
		key := bucketKey(ts, sensor, asset)

		numerics := make(map[string]float64, len(metrics)*3)
		for _, metric := range metrics {
			if v, ok := mean.NumericAt(metric, i); ok {
				numerics[metric+"_mean"] = v
			}
			if j, ok := minByKey[key]; ok {
				if v, ok := min.NumericAt(metric, j); ok {
					numerics[metric+"_min"] = v
				}
			}
			if j, ok := maxByKey[key]; ok {
				if v, ok := max.NumericAt(metric, j); ok {
					numerics[metric+"_max"] = v
				}
			}
		}
		bd.AddRow(ts, strs, numerics)
	}
	return bd.Build()
}

// indexBucketsByKey maps each row of a bucketed batch to its index by
// (timestamp, sensor_name, asset_id), so companion columns produced by
// separate AggregateByInterval passes can be joined by bucket identity
// rather than assuming the passes emit rows in lockstep order.
func indexBucketsByKey(b *model.Batch) map[string]int {
	out := make(map[string]int, b.Rows)
	ts := b.Timestamps()
	for i := 0; i < b.Rows; i++ {
		var sensor, asset string
		if v, ok := b.StringAt("sensor_name", i); ok {
			sensor = v
		}
		if v, ok := b.StringAt("asset_id", i); ok {
			asset = v
		}
		var t time.Time
		if i < len(ts) {
			t = ts[i]
		}
		out[bucketKey(t, sensor, asset)] = i
	}
	return out
}

func bucketKey(t time.Time, sensor, asset string) string {
	return fmt.Sprintf("%d\x00%s\x00%s", t.UnixNano(), sensor, asset)
}
