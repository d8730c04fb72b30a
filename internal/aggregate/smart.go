package aggregate

import (
	"math"
	"strings"

	"sensorquery/internal/model"
)

// StandardIntervalLadder is the ordered set of intervals the smart
// aggregation policy chooses from, 1 second through 1 hour.
var StandardIntervalLadder = []int64{
	1000, 5000, 10000, 30000, // 1s, 5s, 10s, 30s
	60000, 300000, 600000, // 1min, 5min, 10min
	1800000, 3600000, // 30min, 1h
}

// statusLikeTokens are column-name substrings that indicate discrete
// state rather than continuous measurement; such columns are sampled with
// "last" rather than averaged.
var statusLikeTokens = []string{"status", "state", "mode", "alarm"}

// ApplySmartAggregation is the policy the executor's post-processing step
// runs on whichever tier served the read: pick a reduction method appropriate to the
// data, bucket at the smallest interval that keeps the result within
// maxDatapoints, then fall back to stride sampling if bucketing alone
// isn't enough.
func ApplySmartAggregation(b *model.Batch, targetIntervalMS int64, maxDatapoints int, durationHours float64) *model.Batch {
	if b.Empty() {
		return b
	}
	method := ChooseMethod(b, durationHours)
	interval := CalculateOptimalInterval(b.Rows, durationHours, maxDatapoints, targetIntervalMS)

	result := b
	if interval > targetIntervalMS {
		result = AggregateByInterval(b, interval, method)
	}
	if result.Rows > maxDatapoints {
		result = DownsampleToMaxPoints(result, maxDatapoints, method)
	}
	return result
}

// ChooseMethod picks the reduction method the policy would use for b.
// Short ranges default to avg for accuracy; a numeric column whose name
// contains a status-like token (case-insensitive) overrides to last;
// low-variability numeric data for ranges an hour or longer also resolves
// to avg.
func ChooseMethod(b *model.Batch, durationHours float64) model.Aggregation {
	if durationHours < 1 {
		return model.AggAvg
	}

	numericCols := b.NumericColumnNames()
	for _, col := range numericCols {
		lower := strings.ToLower(col)
		for _, token := range statusLikeTokens {
			if strings.Contains(lower, token) {
				return model.AggLast
			}
		}
	}

	if len(numericCols) > 0 {
		mean, stddev := meanStdDev(b, numericCols[0])
		if math.Abs(mean) > 0 && stddev/math.Abs(mean) < 0.1 {
			return model.AggAvg
		}
	}
	return model.AggAvg
}

// CalculateOptimalInterval returns the smallest ladder interval that would
// keep currentPoints worth of data, spread over durationHours, within
// maxDatapoints buckets. Returns targetIntervalMS unchanged if the data is
// already within budget.
func CalculateOptimalInterval(currentPoints int, durationHours float64, maxDatapoints int, targetIntervalMS int64) int64 {
	if currentPoints <= maxDatapoints {
		return targetIntervalMS
	}
	durationMS := durationHours * 3600 * 1000
	minInterval := durationMS / float64(maxDatapoints)

	for _, interval := range StandardIntervalLadder {
		if float64(interval) >= minInterval {
			return interval
		}
	}
	if int64(minInterval) > targetIntervalMS {
		return int64(minInterval)
	}
	return targetIntervalMS
}

func meanStdDev(b *model.Batch, column string) (mean, stddev float64) {
	var sum float64
	var count int
	for i := 0; i < b.Rows; i++ {
		v, ok := b.NumericAt(column, i)
		if !ok || math.IsNaN(v) {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return 0, 0
	}
	mean = sum / float64(count)

	var sqDiff float64
	for i := 0; i < b.Rows; i++ {
		v, ok := b.NumericAt(column, i)
		if !ok || math.IsNaN(v) {
			continue
		}
		d := v - mean
		sqDiff += d * d
	}
	stddev = math.Sqrt(sqDiff / float64(count))
	return mean, stddev
}
