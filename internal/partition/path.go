// Package partition turns a (sensors, assets, time range, tier) query into
// the ordered set of candidate partition paths to read, per the grammar:
//
//	<tier-prefix?>/<asset>/<YYYY>/<MM>[/<DD>[/<HH>]]/<sensor>[.suffix].parquet
package partition

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"sensorquery/internal/model"
)

// BuildPath renders the partition path for one (tier, asset, sensor, time).
// Raw partitions always carry day and hour; aggregated omits hour; daily
// omits day and hour.
func BuildPath(tier model.Tier, asset, sensor string, t time.Time) string {
	parts := make([]string, 0, 6)
	if prefix := tier.PathPrefix(); prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, asset, fmt.Sprintf("%04d", t.Year()), fmt.Sprintf("%02d", int(t.Month())))

	switch tier {
	case model.TierRaw:
		parts = append(parts, fmt.Sprintf("%02d", t.Day()), fmt.Sprintf("%02d", t.Hour()))
	case model.TierAggregated:
		parts = append(parts, fmt.Sprintf("%02d", t.Day()))
	}

	parts = append(parts, sensor+".parquet")
	return strings.Join(parts, "/")
}

// SensorFromPath extracts the sensor name from a partition path produced by
// BuildPath: the final segment with the ".parquet" extension removed.
func SensorFromPath(path string) string {
	base := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		base = path[i+1:]
	}
	return strings.TrimSuffix(base, ".parquet")
}

// TierOfPath infers which tier a listed partition path belongs to from its
// leading literal, the inverse of Tier.PathPrefix.
func TierOfPath(path string) model.Tier {
	switch {
	case strings.HasPrefix(path, "aggregated/"):
		return model.TierAggregated
	case strings.HasPrefix(path, "daily/"):
		return model.TierDaily
	default:
		return model.TierRaw
	}
}

// ParsePathTime recovers the partition's floor instant from its path,
// tolerating the raw/aggregated/daily grammars' differing depth (hour down
// to month). Returns false if path is too short to carry a year and month.
func ParsePathTime(path string) (time.Time, bool) {
	segs := strings.Split(path, "/")
	if len(segs) > 0 && reservedPathSegments[segs[0]] {
		segs = segs[1:]
	}
	if len(segs) < 3 {
		return time.Time{}, false
	}
	year, errYear := strconv.Atoi(segs[1])
	month, errMonth := strconv.Atoi(segs[2])
	if errYear != nil || errMonth != nil {
		return time.Time{}, false
	}
	day, hour := 1, 0
	if len(segs) >= 4 {
		if d, err := strconv.Atoi(segs[3]); err == nil {
			day = d
		}
	}
	if len(segs) >= 5 {
		if h, err := strconv.Atoi(segs[4]); err == nil {
			hour = h
		}
	}
	return time.Date(year, time.Month(month), day, hour, 0, 0, 0, time.UTC), true
}

// GranularityStep exposes granularityStep to callers outside this package
// that walk partition granularity directly: the time-range discovery
// operation and the rebuilder's chunked tier walks.
func GranularityStep(t time.Time, tier model.Tier) time.Time {
	return granularityStep(t, tier)
}

// GranularityFloor exposes granularityFloor to the same external callers.
func GranularityFloor(t time.Time, tier model.Tier) time.Time {
	return granularityFloor(t, tier)
}

// granularityFloor rounds t down to the first instant of the tier's
// partition granularity: the hour for raw, the day for aggregated, the
// month for daily. Using time.Date for reconstruction (rather than
// subtracting a naive field) keeps this calendar-correct across
// month/year boundaries, per the "Ambiguous behaviors" note on naive
// field increment being a latent bug.
func granularityFloor(t time.Time, tier model.Tier) time.Time {
	switch tier {
	case model.TierRaw:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	case model.TierAggregated:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	default: // TierDaily
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	}
}

// granularityStep advances t by one partition granularity for the tier.
// time.Time.Add and time.Time.AddDate both normalize overflowing fields
// (a 31-day Add to Jan rolls correctly into Feb, a 13th month rolls into
// the next year), so calendar rollover is correct by construction.
func granularityStep(t time.Time, tier model.Tier) time.Time {
	switch tier {
	case model.TierRaw:
		return t.Add(time.Hour)
	case model.TierAggregated:
		return t.AddDate(0, 0, 1)
	default: // TierDaily
		return t.AddDate(0, 1, 0)
	}
}
