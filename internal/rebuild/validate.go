package rebuild

import (
	"context"
	"fmt"
	"time"

	"sensorquery/internal/model"
	"sensorquery/internal/partition"
)

const (
	minRawCoverage        = 0.90
	minAggregatedCoverage = 0.80
	sampleSize            = 5
)

// TierCoverage is the fraction of expected partitions present for one tier.
type TierCoverage struct {
	Raw        float64
	Aggregated float64
	Daily      float64
}

// ValidationReport is the outcome of ValidateAggregatedData.
type ValidationReport struct {
	OverallValid bool
	Issues       []string
	Coverage     map[string]TierCoverage // keyed by "asset/sensor"
}

// ValidateAggregatedData compares partition coverage across tiers for a
// sample of sensors. It only reports gaps — it never triggers repair.
func (r *Rebuilder) ValidateAggregatedData(ctx context.Context, sensors, assets []string) (ValidationReport, error) {
	pairs, err := r.resolvePairs(ctx, sensors, assets)
	if err != nil {
		return ValidationReport{}, err
	}
	if len(pairs) > sampleSize {
		pairs = pairs[:sampleSize]
	}

	report := ValidationReport{OverallValid: true, Coverage: make(map[string]TierCoverage, len(pairs))}
	for _, p := range pairs {
		start, end, err := r.exec.TimeRange(ctx, []string{p.sensor}, []string{p.asset})
		if err != nil || !end.After(start) {
			report.Issues = append(report.Issues, fmt.Sprintf("no data range for %s/%s", p.asset, p.sensor))
			continue
		}

		raw, err := r.tierCoverage(ctx, p.asset, p.sensor, start, end, model.TierRaw)
		if err != nil {
			report.Issues = append(report.Issues, fmt.Sprintf("coverage check failed for %s/%s: %v", p.asset, p.sensor, err))
			report.OverallValid = false
			continue
		}
		aggregated, err := r.tierCoverage(ctx, p.asset, p.sensor, start, end, model.TierAggregated)
		if err != nil {
			report.Issues = append(report.Issues, fmt.Sprintf("coverage check failed for %s/%s: %v", p.asset, p.sensor, err))
			report.OverallValid = false
			continue
		}
		daily, err := r.tierCoverage(ctx, p.asset, p.sensor, start, end, model.TierDaily)
		if err != nil {
			report.Issues = append(report.Issues, fmt.Sprintf("coverage check failed for %s/%s: %v", p.asset, p.sensor, err))
			report.OverallValid = false
			continue
		}

		key := p.asset + "/" + p.sensor
		report.Coverage[key] = TierCoverage{Raw: raw, Aggregated: aggregated, Daily: daily}
		if raw < minRawCoverage || aggregated < minAggregatedCoverage {
			report.Issues = append(report.Issues, fmt.Sprintf("incomplete coverage for %s", key))
			report.OverallValid = false
		}
	}
	return report, nil
}

// tierCoverage walks every partition tier's calendar granularity between
// start and end and reports the fraction that actually exist on the
// target backend.
func (r *Rebuilder) tierCoverage(ctx context.Context, asset, sensor string, start, end time.Time, tier model.Tier) (float64, error) {
	step := partition.GranularityFloor(start, tier)
	total, present := 0, 0
	for step.Before(end) {
		total++
		path := partition.BuildPath(tier, asset, sensor, step)
		ok, err := r.target.Exists(ctx, path)
		if err != nil {
			return 0, err
		}
		if ok {
			present++
		}
		step = partition.GranularityStep(step, tier)
	}
	if total == 0 {
		return 1.0, nil
	}
	return float64(present) / float64(total), nil
}
