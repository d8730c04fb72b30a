// Package aggregate implements the time-bucket reduction, point-budget
// downsampling, and smart aggregation policy described for the query
// engine's post-processing stage.
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"time"

	"sensorquery/internal/model"
)

// AggregateByInterval floors each row's timestamp to an interval-ms
// boundary, groups by (time_bucket, sensor_name?, asset_id?) — whichever
// of the two grouping columns are present in b — and reduces each numeric
// column per method. The representative timestamp for a bucket is the
// earliest raw timestamp that fell into it, never the bucket boundary
// itself.
//
// An empty batch, or one with no timestamp column, is returned unchanged;
// the caller (the executor's post-processing step) treats that as the
// bucketing fallback case.
func AggregateByInterval(b *model.Batch, intervalMS int64, method model.Aggregation) *model.Batch {
	if b.Empty() {
		return b
	}
	ts := b.Timestamps()
	if ts == nil {
		return b
	}

	hasSensor := hasStringColumn(b, "sensor_name")
	hasAsset := hasStringColumn(b, "asset_id")
	numericCols := b.NumericColumnNames()

	groups := buildGroups(b, ts, intervalMS, hasSensor, hasAsset)

	out := model.NewBuilder()
	for _, g := range groups {
		sort.SliceStable(g.indices, func(i, j int) bool {
			return ts[g.indices[i]].Before(ts[g.indices[j]])
		})
		representative := ts[g.indices[0]]

		strings := map[string]string{}
		if hasSensor {
			strings["sensor_name"] = g.sensor
		}
		if hasAsset {
			strings["asset_id"] = g.asset
		}

		var numerics map[string]float64
		if method == model.AggCount {
			numerics = map[string]float64{"count": float64(len(g.indices))}
		} else {
			numerics = make(map[string]float64, len(numericCols))
			for _, col := range numericCols {
				numerics[col] = reduce(b, col, g.indices, method)
			}
		}

		out.AddRow(representative, strings, numerics)
	}

	return out.Build().SortByTimestamp()
}

type bucketGroup struct {
	indices []int
	sensor  string
	asset   string
}

func buildGroups(b *model.Batch, ts []time.Time, intervalMS int64, hasSensor, hasAsset bool) []*bucketGroup {
	order := make([]string, 0)
	byKey := make(map[string]*bucketGroup)

	for i := range ts {
		bucket := floorToInterval(ts[i], intervalMS)
		var sensor, asset string
		if hasSensor {
			sensor, _ = b.StringAt("sensor_name", i)
		}
		if hasAsset {
			asset, _ = b.StringAt("asset_id", i)
		}
		key := fmt.Sprintf("%d\x00%s\x00%s", bucket.UnixNano(), sensor, asset)

		g, ok := byKey[key]
		if !ok {
			g = &bucketGroup{sensor: sensor, asset: asset}
			byKey[key] = g
			order = append(order, key)
		}
		g.indices = append(g.indices, i)
	}

	groups := make([]*bucketGroup, len(order))
	for i, key := range order {
		groups[i] = byKey[key]
	}
	return groups
}

// floorToInterval rounds t down to the nearest multiple of intervalMS since
// the Unix epoch.
func floorToInterval(t time.Time, intervalMS int64) time.Time {
	if intervalMS <= 0 {
		return t
	}
	ms := t.UnixMilli()
	floored := (ms / intervalMS) * intervalMS
	return time.UnixMilli(floored).UTC()
}

func hasStringColumn(b *model.Batch, name string) bool {
	col, ok := b.Columns[name]
	return ok && col.Kind == model.ColumnString
}

// reduce applies method to the values of column at the given row indices.
// NaN values are excluded from avg/min/max/sum; first/last are positional
// (post timestamp-sort) and may themselves be NaN.
func reduce(b *model.Batch, column string, indices []int, method model.Aggregation) float64 {
	switch method {
	case model.AggFirst:
		v, _ := b.NumericAt(column, indices[0])
		return v
	case model.AggLast:
		v, _ := b.NumericAt(column, indices[len(indices)-1])
		return v
	}

	var sum float64
	var count int
	min := math.Inf(1)
	max := math.Inf(-1)
	for _, i := range indices {
		v, _ := b.NumericAt(column, i)
		if math.IsNaN(v) {
			continue
		}
		sum += v
		count++
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	switch method {
	case model.AggMin:
		if count == 0 {
			return math.NaN()
		}
		return min
	case model.AggMax:
		if count == 0 {
			return math.NaN()
		}
		return max
	case model.AggSum:
		return sum
	default: // AggAvg and anything unrecognized
		if count == 0 {
			return math.NaN()
		}
		return sum / float64(count)
	}
}
