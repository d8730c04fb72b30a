package aggregate

import (
	"sensorquery/internal/model"
)

// DownsampleToMaxPoints reduces b to at most maxDatapoints rows: first by
// bucketing at the smallest interval (never under 1s) that would fit the
// range into maxDatapoints buckets, then — if bucketing still leaves too
// many rows — by an evenly spaced stride sample.
func DownsampleToMaxPoints(b *model.Batch, maxDatapoints int, method model.Aggregation) *model.Batch {
	if b.Empty() || b.Rows <= maxDatapoints {
		return b
	}
	ts := b.Timestamps()
	if ts == nil {
		return strideSample(b, maxDatapoints)
	}

	start, end := ts[0], ts[0]
	for _, t := range ts {
		if t.Before(start) {
			start = t
		}
		if t.After(end) {
			end = t
		}
	}
	durationMS := end.Sub(start).Milliseconds()
	requiredInterval := (durationMS + int64(maxDatapoints) - 1) / int64(maxDatapoints)
	if requiredInterval < 1000 {
		requiredInterval = 1000
	}

	result := AggregateByInterval(b, requiredInterval, method)
	if result.Rows > maxDatapoints {
		result = strideSample(result, maxDatapoints)
	}
	return result
}

// strideSample takes every stride-th row, up to maxDatapoints rows, the
// fallback used whenever bucketing cannot or need not apply.
func strideSample(b *model.Batch, maxDatapoints int) *model.Batch {
	stride := b.Rows / maxDatapoints
	if stride < 1 {
		stride = 1
	}
	idx := make([]int, 0, maxDatapoints)
	for i := 0; i < b.Rows && len(idx) < maxDatapoints; i += stride {
		idx = append(idx, i)
	}
	return b.Select(idx)
}
