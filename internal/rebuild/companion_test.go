package rebuild

import (
	"math"
	"testing"
	"time"
)

func TestCreatePreAggregatedDataMatchesWorkedExample(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	b := buildRawBatch(base, 3600, "temperature", "turbine-1", func(i int) float64 { return float64(i) * 0.01 })

	out := createPreAggregatedData(b, 60*1000)
	if out.Rows != 60 {
		t.Fatalf("expected 60 one-minute buckets, got %d", out.Rows)
	}

	ts := out.Timestamps()
	for k := 0; k < 60; k++ {
		wantTS := base.Add(time.Duration(k) * time.Minute)
		if !ts[k].Equal(wantTS) {
			t.Fatalf("row %d: expected timestamp %v, got %v", k, wantTS, ts[k])
		}

		wantMean := (60*float64(k) + 29.5) * 0.01
		mean, ok := out.NumericAt("temperature_mean", k)
		if !ok || math.Abs(mean-wantMean) > 1e-9 {
			t.Fatalf("row %d: expected temperature_mean %.6f, got %v (ok=%v)", k, wantMean, mean, ok)
		}

		wantMin := float64(60*k) * 0.01
		min, ok := out.NumericAt("temperature_min", k)
		if !ok || math.Abs(min-wantMin) > 1e-9 {
			t.Fatalf("row %d: expected temperature_min %.6f, got %v (ok=%v)", k, wantMin, min, ok)
		}

		wantMax := float64(60*k+59) * 0.01
		max, ok := out.NumericAt("temperature_max", k)
		if !ok || math.Abs(max-wantMax) > 1e-9 {
			t.Fatalf("row %d: expected temperature_max %.6f, got %v (ok=%v)", k, wantMax, max, ok)
		}
	}
}

func TestCreatePreAggregatedDataEmptyInputIsEmpty(t *testing.T) {
	t.Parallel()
	out := createPreAggregatedData(buildRawBatch(time.Now(), 0, "temperature", "turbine-1", func(i int) float64 { return 0 }), 60*1000)
	if !out.Empty() {
		t.Fatal("expected an empty batch for empty input")
	}
}
